package appkey

import (
	"context"
	"net/http"
	"strings"
	"time"

	"teclab/bitgate/pkg/backends"
	"teclab/bitgate/pkg/demux"
)

// DefaultBaseURL is the agent platform origin.
const DefaultBaseURL = "https://agent.bit.edu.cn"

const (
	apiPrefix        = "/api/proxy/chat/v2"
	createPath       = apiPrefix + "/create_conversation"
	deletePath       = apiPrefix + "/delete_conversation"
	listPath         = apiPrefix + "/get_conversation_list"
	queryPath        = apiPrefix + "/chat_query"
	visitorKeyCookie = "app-visitor-key"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36 Edg/136.0.0.0"
)

// Backend is the app-key adapter. Its auth material is static: the app key
// travels in every request body and the visitor key as a cookie and header.
type Backend struct {
	*backends.HTTPBackend

	config backends.BackendConfig
}

// New creates an app-key backend. Credentials must carry an app key and a
// visitor key.
func New(cfg backends.BackendConfig) (*Backend, error) {
	if cfg.Credentials.AppKey == "" {
		return nil, &backends.ConfigError{Backend: cfg.Name, Field: "credentials.app_key", Message: "required"}
	}
	if cfg.Credentials.VisitorKey == "" {
		return nil, &backends.ConfigError{Backend: cfg.Name, Field: "credentials.visitor_key", Message: "required"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	b := &Backend{config: cfg}
	b.HTTPBackend = backends.NewHTTPBackend(cfg, b.handshake)
	return b, nil
}

// handshake makes no network call; it only fixes the static headers.
func (b *Backend) handshake(context.Context) (*backends.AuthContext, error) {
	creds := b.config.Credentials
	return &backends.AuthContext{
		Token: creds.AppKey,
		Headers: map[string]string{
			"Accept":             "application/json, text/event-stream",
			"Content-Type":       "application/json; charset=utf-8",
			"Origin":             b.config.BaseURL,
			"Referer":            b.config.BaseURL + "/product/llm/chat/" + creds.AppKey,
			"User-Agent":         userAgent,
			"X-KL-Ajax-Request":  "Ajax_Request",
			"accept-language":    "zh",
			visitorKeyCookie:     creds.VisitorKey,
			"sec-ch-ua-mobile":   "?0",
			"sec-ch-ua-platform": `"Windows"`,
			"Sec-Fetch-Dest":     "empty",
			"Sec-Fetch-Mode":     "cors",
			"Sec-Fetch-Site":     "same-origin",
		},
		Cookies:    map[string]string{visitorKeyCookie: creds.VisitorKey},
		ObtainedAt: time.Now(),
	}, nil
}

// Init installs the static auth context and deletes every conversation left
// over from a previous run.
func (b *Backend) Init(ctx context.Context) error {
	if err := b.Authenticate(ctx); err != nil {
		return err
	}
	return b.ClearConversations(ctx)
}

type createRequest struct {
	AppKey string         `json:"AppKey"`
	Inputs map[string]any `json:"Inputs"`
}

type createResponse struct {
	Conversation *struct {
		AppConversationID string `json:"AppConversationID"`
	} `json:"Conversation"`
}

// OpenSession creates a conversation.
func (b *Backend) OpenSession(ctx context.Context) (backends.SessionHandle, error) {
	var resp createResponse
	err := b.DoJSONRequest(ctx, backends.Request{
		Method: http.MethodPost,
		URL:    b.config.BaseURL + createPath,
		Body:   createRequest{AppKey: b.config.Credentials.AppKey, Inputs: map[string]any{}},
	}, &resp)
	if err != nil {
		return "", backends.NewSessionError(b.Name(), "open", err)
	}
	if resp.Conversation == nil || resp.Conversation.AppConversationID == "" {
		return "", &backends.SessionError{Backend: b.Name(), Op: "open", Message: "response carried no conversation id"}
	}
	return backends.SessionHandle(resp.Conversation.AppConversationID), nil
}

type conversationRequest struct {
	AppKey            string `json:"AppKey"`
	AppConversationID string `json:"AppConversationID"`
}

// CloseSession deletes the conversation. Failures are logged only.
func (b *Backend) CloseSession(ctx context.Context, h backends.SessionHandle) {
	if h == "" {
		return
	}
	err := b.DoJSONRequest(ctx, backends.Request{
		Method:     http.MethodPost,
		URL:        b.config.BaseURL + deletePath,
		Body:       conversationRequest{AppKey: b.config.Credentials.AppKey, AppConversationID: string(h)},
		Idempotent: true,
	}, nil)
	if err != nil {
		b.Logger().Warn("failed to delete conversation", "conversation_id", string(h), "error", err)
	}
}

type listRequest struct {
	AppKey string `json:"AppKey"`
}

type listResponse struct {
	ConversationList []struct {
		AppConversationID string `json:"AppConversationID"`
	} `json:"ConversationList"`
}

// ListConversations returns every conversation the app key owns.
func (b *Backend) ListConversations(ctx context.Context) ([]backends.SessionHandle, error) {
	var resp listResponse
	err := b.DoJSONRequest(ctx, backends.Request{
		Method:     http.MethodPost,
		URL:        b.config.BaseURL + listPath,
		Body:       listRequest{AppKey: b.config.Credentials.AppKey},
		Idempotent: true,
	}, &resp)
	if err != nil {
		return nil, backends.NewSessionError(b.Name(), "list", err)
	}

	handles := make([]backends.SessionHandle, 0, len(resp.ConversationList))
	for _, c := range resp.ConversationList {
		if c.AppConversationID != "" {
			handles = append(handles, backends.SessionHandle(c.AppConversationID))
		}
	}
	return handles, nil
}

// ClearConversations deletes every listed conversation.
func (b *Backend) ClearConversations(ctx context.Context) error {
	handles, err := b.ListConversations(ctx)
	if err != nil {
		return err
	}
	for _, h := range handles {
		b.CloseSession(ctx, h)
	}
	if len(handles) > 0 {
		b.Logger().Info("cleared stale conversations", "count", len(handles))
	}
	return nil
}

type queryRequest struct {
	Query             string       `json:"Query"`
	AppConversationID string       `json:"AppConversationID"`
	AppKey            string       `json:"AppKey"`
	QueryExtends      queryExtends `json:"QueryExtends"`
}

type queryExtends struct {
	Files []any `json:"Files"`
}

// StreamQuery submits the turn with history folded into the query.
func (b *Backend) StreamQuery(ctx context.Context, turn *backends.Turn, h backends.SessionHandle) (backends.EventStream, error) {
	if h == "" {
		return nil, backends.ErrEmptyHandle
	}

	return b.OpenStream(ctx, backends.Request{
		Method: http.MethodPost,
		URL:    b.config.BaseURL + queryPath,
		Body: queryRequest{
			Query:             backends.FoldHistory(turn.History, turn.Query),
			AppConversationID: string(h),
			AppKey:            b.config.Credentials.AppKey,
			QueryExtends:      queryExtends{Files: []any{}},
		},
	})
}

// NewDemuxer returns an event-type demuxer.
func (b *Backend) NewDemuxer() backends.Demuxer {
	return demux.NewEventTypeDemuxer()
}

var _ backends.Backend = (*Backend)(nil)
