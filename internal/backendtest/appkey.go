package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"teclab/bitgate/pkg/backends"
)

// AppKey fakes the app-key upstream.
type AppKey struct {
	Server     *httptest.Server
	AppKey     string
	VisitorKey string

	Opens   atomic.Int32
	Closes  atomic.Int32
	Streams atomic.Int32

	mu         sync.Mutex
	nextID     int
	live       map[string]bool
	events     []string
	eventDelay time.Duration
	lastQuery  string
	failOpens  int
}

// NewAppKey starts a fake accepting app key "app" and visitor key "visitor".
func NewAppKey(t testing.TB) *AppKey {
	t.Helper()
	a := &AppKey{AppKey: "app", VisitorKey: "visitor", live: map[string]bool{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/proxy/chat/v2/create_conversation", a.handleCreate)
	mux.HandleFunc("POST /api/proxy/chat/v2/delete_conversation", a.handleDelete)
	mux.HandleFunc("POST /api/proxy/chat/v2/get_conversation_list", a.handleList)
	mux.HandleFunc("POST /api/proxy/chat/v2/chat_query", a.handleQuery)

	a.Server = httptest.NewServer(mux)
	t.Cleanup(a.Server.Close)
	return a
}

// Config returns a backend configuration pointing at the fake.
func (a *AppKey) Config(name string) backends.BackendConfig {
	return backends.BackendConfig{
		Name:    name,
		Type:    backends.TypeAppKey,
		BaseURL: a.Server.URL,
		Credentials: backends.Credentials{
			AppKey:     a.AppKey,
			VisitorKey: a.VisitorKey,
		},
		Timeout:           5 * time.Second,
		StreamIdleTimeout: 5 * time.Second,
	}
}

// Seed adds pre-existing conversations.
func (a *AppKey) Seed(ids ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		a.live[id] = true
	}
}

// Live returns the ids of conversations not yet deleted.
func (a *AppKey) Live() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.live))
	for id := range a.live {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SetEvents sets the raw data payloads streamed for every query.
func (a *AppKey) SetEvents(payloads ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = payloads
}

// SetEventDelay sets a pause between streamed events.
func (a *AppKey) SetEventDelay(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.eventDelay = d
}

// FailOpens makes the next n conversation creations fail with a 500.
func (a *AppKey) FailOpens(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failOpens = n
}

// LastQuery returns the Query of the most recent chat_query.
func (a *AppKey) LastQuery() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastQuery
}

// TypedEvents encodes alternating event/answer pairs as
// {"event": ..., "answer": ...} payloads.
func TypedEvents(pairs ...string) []string {
	out := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		b, _ := json.Marshal(map[string]string{"event": pairs[i], "answer": pairs[i+1]})
		out = append(out, string(b))
	}
	return out
}

type appKeyBody struct {
	AppKey            string `json:"AppKey"`
	AppConversationID string `json:"AppConversationID"`
	Query             string `json:"Query"`
}

func (a *AppKey) decode(w http.ResponseWriter, r *http.Request) (*appKeyBody, bool) {
	c, err := r.Cookie("app-visitor-key")
	if err != nil || c.Value != a.VisitorKey {
		w.WriteHeader(http.StatusForbidden)
		return nil, false
	}
	var body appKeyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AppKey != a.AppKey {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	return &body, true
}

func (a *AppKey) handleCreate(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.decode(w, r); !ok {
		return
	}

	a.mu.Lock()
	if a.failOpens > 0 {
		a.failOpens--
		a.mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	a.nextID++
	id := fmt.Sprintf("conv-%d", a.nextID)
	a.live[id] = true
	a.mu.Unlock()

	a.Opens.Add(1)
	writeJSON(w, map[string]any{"Conversation": map[string]any{"AppConversationID": id}})
}

func (a *AppKey) handleDelete(w http.ResponseWriter, r *http.Request) {
	body, ok := a.decode(w, r)
	if !ok {
		return
	}
	a.mu.Lock()
	delete(a.live, body.AppConversationID)
	a.mu.Unlock()

	a.Closes.Add(1)
	writeJSON(w, map[string]any{})
}

func (a *AppKey) handleList(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.decode(w, r); !ok {
		return
	}
	list := []map[string]string{}
	for _, id := range a.Live() {
		list = append(list, map[string]string{"AppConversationID": id})
	}
	writeJSON(w, map[string]any{"ConversationList": list})
}

func (a *AppKey) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, ok := a.decode(w, r)
	if !ok {
		return
	}

	a.mu.Lock()
	known := a.live[body.AppConversationID]
	a.lastQuery = body.Query
	events := append([]string(nil), a.events...)
	delay := a.eventDelay
	a.mu.Unlock()

	if !known {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	a.Streams.Add(1)
	streamEvents(w, r, events, delay)
}
