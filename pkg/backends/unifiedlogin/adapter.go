package unifiedlogin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"teclab/bitgate/pkg/backends"
	"teclab/bitgate/pkg/demux"
)

// Defaults for the unified-login backend.
const (
	DefaultBaseURL     = "https://ibit.yanhekt.cn"
	DefaultLoginURL    = "https://login.bit.edu.cn/authserver/login?service=https%3A%2F%2Fibit.yanhekt.cn%2F"
	DefaultAssistantID = 43
	BadgeCookie        = "badge_2"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.5359.125 Safari/537.36"
)

const (
	dialoguePath = "/proxy/v1/dialogue"
	streamPath   = "/proxy/v1/chat/stream/private/kb"
)

// Stream request tuning sent with every query.
const (
	temperature    = 0.7
	topK           = 3
	scoreThreshold = 0.5
)

// Backend is the unified-login adapter. It logs in through the university
// identity provider, derives request headers from the issued badge and runs
// each turn in a fresh dialogue.
type Backend struct {
	*backends.HTTPBackend

	config backends.BackendConfig
	login  *casLogin
}

// New creates a unified-login backend. Credentials must carry a username
// and password.
func New(cfg backends.BackendConfig) (*Backend, error) {
	if cfg.Credentials.Username == "" {
		return nil, &backends.ConfigError{Backend: cfg.Name, Field: "credentials.username", Message: "required"}
	}
	if cfg.Credentials.Password == "" {
		return nil, &backends.ConfigError{Backend: cfg.Name, Field: "credentials.password", Message: "required"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}
	if cfg.AssistantID == 0 {
		cfg.AssistantID = DefaultAssistantID
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	b := &Backend{config: cfg}
	b.HTTPBackend = backends.NewHTTPBackend(cfg, b.handshake)
	b.login = &casLogin{
		backend:     cfg.Name,
		loginURL:    cfg.LoginURL,
		baseURL:     cfg.BaseURL,
		badgeCookie: BadgeCookie,
		userAgent:   userAgent,
		transport:   http.DefaultTransport,
		logger:      b.Logger(),
	}
	return b, nil
}

// Init authenticates. The registry starts the keepalive monitor afterwards.
func (b *Backend) Init(ctx context.Context) error {
	return b.Authenticate(ctx)
}

func (b *Backend) handshake(ctx context.Context) (*backends.AuthContext, error) {
	if b.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 3*b.config.Timeout)
		defer cancel()
	}

	badge, err := b.login.login(ctx, b.config.Credentials)
	if err != nil {
		return nil, err
	}
	return b.authContext(badge), nil
}

// authContext derives the full header set from a badge.
func (b *Backend) authContext(badge string) *backends.AuthContext {
	origin := b.config.BaseURL
	return &backends.AuthContext{
		Token: badge,
		Headers: map[string]string{
			"badge":              quote(badge),
			"Authorization":      "Bearer undefined",
			"Xdomain-Client":     "web_user",
			"x-assistant-id":     strconv.Itoa(b.config.AssistantID),
			"User-Agent":         userAgent,
			"Origin":             origin,
			"Referer":            origin + "/",
			"sec-ch-ua":          `"Chromium";v="108"`,
			"sec-ch-ua-mobile":   "?0",
			"sec-ch-ua-platform": `"Windows"`,
			"Sec-Fetch-Site":     "same-origin",
			"Sec-Fetch-Mode":     "cors",
			"Sec-Fetch-Dest":     "empty",
			"Accept-Language":    "zh-CN,zh;q=0.9",
		},
		Cookies:    map[string]string{BadgeCookie: badge},
		ObtainedAt: time.Now(),
	}
}

type createDialogueRequest struct {
	AssistantID int    `json:"assistant_id"`
	Title       string `json:"title"`
}

type createDialogueResponse struct {
	Message string `json:"message"`
	Data    struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// OpenSession creates a dialogue and returns its id.
func (b *Backend) OpenSession(ctx context.Context) (backends.SessionHandle, error) {
	title := fmt.Sprintf("[auto]%d-%s", time.Now().UnixMilli(), uuid.NewString()[:4])

	var resp createDialogueResponse
	err := b.DoJSONRequest(ctx, backends.Request{
		Method: http.MethodPost,
		URL:    b.config.BaseURL + dialoguePath,
		Body:   createDialogueRequest{AssistantID: b.config.AssistantID, Title: title},
	}, &resp)
	if err != nil {
		return "", backends.NewSessionError(b.Name(), "open", err)
	}
	if resp.Data.ID == "" {
		return "", &backends.SessionError{Backend: b.Name(), Op: "open", Message: "response carried no dialogue id: " + resp.Message}
	}
	return backends.SessionHandle(resp.Data.ID), nil
}

type deleteDialogueRequest struct {
	IDs []json.Number `json:"ids"`
}

type deleteDialogueResponse struct {
	Data struct {
		Success bool `json:"success"`
	} `json:"data"`
}

// CloseSession deletes the dialogue. Failures are logged only.
func (b *Backend) CloseSession(ctx context.Context, h backends.SessionHandle) {
	if h == "" {
		return
	}

	var resp deleteDialogueResponse
	err := b.DoJSONRequest(ctx, backends.Request{
		Method:     http.MethodDelete,
		URL:        b.config.BaseURL + dialoguePath,
		Body:       deleteDialogueRequest{IDs: []json.Number{json.Number(h)}},
		Idempotent: true,
	}, &resp)
	if err != nil {
		b.Logger().Warn("failed to delete dialogue", "dialogue_id", string(h), "error", err)
		return
	}
	if !resp.Data.Success {
		b.Logger().Warn("dialogue delete not acknowledged", "dialogue_id", string(h))
	}
}

type streamRequest struct {
	Query             string             `json:"query"`
	DialogueID        json.Number        `json:"dialogue_id"`
	Stream            bool               `json:"stream"`
	History           []backends.Message `json:"history"`
	Temperature       float64            `json:"temperature"`
	TopK              int                `json:"top_k"`
	ScoreThreshold    float64            `json:"score_threshold"`
	PromptName        string             `json:"prompt_name"`
	KnowledgeBaseName string             `json:"knowledge_base_name"`
}

// StreamQuery submits the turn with history folded into the query.
func (b *Backend) StreamQuery(ctx context.Context, turn *backends.Turn, h backends.SessionHandle) (backends.EventStream, error) {
	if h == "" {
		return nil, backends.ErrEmptyHandle
	}

	return b.OpenStream(ctx, backends.Request{
		Method: http.MethodPost,
		URL:    b.config.BaseURL + streamPath,
		Body: streamRequest{
			Query:          backends.FoldHistory(turn.History, turn.Query),
			DialogueID:     json.Number(h),
			Stream:         true,
			History:        []backends.Message{},
			Temperature:    temperature,
			TopK:           topK,
			ScoreThreshold: scoreThreshold,
		},
	})
}

// NewDemuxer returns a <think> marker demuxer.
func (b *Backend) NewDemuxer() backends.Demuxer {
	return demux.NewThinkTagDemuxer()
}

// quote percent-encodes like a browser-side encoder that keeps "/" literal.
func quote(s string) string {
	q := url.QueryEscape(s)
	q = strings.ReplaceAll(q, "+", "%20")
	return strings.ReplaceAll(q, "%2F", "/")
}

var _ backends.Backend = (*Backend)(nil)
