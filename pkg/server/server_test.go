package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"teclab/bitgate/internal/backendtest"
	"teclab/bitgate/pkg/config"
	"teclab/bitgate/pkg/proxy/types"
	"teclab/bitgate/pkg/usage"
)

const testAPIKey = "sk-test"

type fixture struct {
	t       *testing.T
	base    string
	login   *backendtest.UnifiedLogin
	agent   *backendtest.AppKey
	cfg     *config.Config
	cancel  context.CancelFunc
	errc    chan error
	stopped bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	login := backendtest.NewUnifiedLogin(t)
	login.SetEvents(backendtest.AnswerEvents("<think>", "reasoning-a", "</think>", "answer-a")...)
	agent := backendtest.NewAppKey(t)
	agent.SetEvents(backendtest.TypedEvents("think_message", "why", "message", "be", "message", "cause")...)
	agent.Seed("stale-1")

	cfg := config.Default()
	cfg.Models = map[string]config.ModelConfig{
		"ibit": {
			Type:     config.TypeUnifiedLogin,
			BaseURL:  login.Server.URL,
			LoginURL: login.Server.URL + "/authserver/login",
			Credentials: config.CredentialsConfig{
				Username: login.Username,
				Password: login.Password,
			},
		},
		"bit-agent": {
			Type:    config.TypeAppKey,
			BaseURL: agent.Server.URL,
			Credentials: config.CredentialsConfig{
				AppKey:     agent.AppKey,
				VisitorKey: agent.VisitorKey,
			},
		},
	}
	config.ApplyDefaults(cfg)
	cfg.Proxy.APIKey = testAPIKey
	cfg.Proxy.ShutdownTimeout = 5 * time.Second
	cfg.Usage.Path = filepath.Join(t.TempDir(), "usage.db")
	cfg.Usage.Statistics.Enabled = false

	srv, err := New(cfg, WithVersion("1.2.3", "abc", "now"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &fixture{
		t:      t,
		base:   "http://" + ln.Addr().String(),
		login:  login,
		agent:  agent,
		cfg:    cfg,
		cancel: cancel,
		errc:   make(chan error, 1),
	}
	go func() { f.errc <- srv.Serve(ctx, ln) }()
	t.Cleanup(f.stop)
	return f
}

// stop shuts the server down and returns its Serve error.
func (f *fixture) stop() {
	if f.stopped {
		return
	}
	f.stopped = true
	f.cancel()
	select {
	case err := <-f.errc:
		if err != nil {
			f.t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		f.t.Error("server did not stop")
	}
}

func (f *fixture) do(method, path, body string, auth bool) *http.Response {
	f.t.Helper()
	req, err := http.NewRequest(method, f.base+path, strings.NewReader(body))
	if err != nil {
		f.t.Fatalf("new request: %v", err)
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		f.t.Fatalf("%s %s: %v", method, path, err)
	}
	f.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_Models(t *testing.T) {
	f := newFixture(t)

	if resp := f.do(http.MethodGet, "/v1/models", "", false); resp.StatusCode != http.StatusForbidden {
		t.Errorf("without key: status = %d, want 403", resp.StatusCode)
	}

	resp := f.do(http.MethodGet, "/v1/models", "", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	var list types.ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Data) != 2 || list.Data[0].ID != "bit-agent" || list.Data[1].ID != "ibit" {
		t.Errorf("models = %+v", list.Data)
	}
	if list.Data[0].OwnedBy != "teclab" {
		t.Errorf("owned_by = %q", list.Data[0].OwnedBy)
	}
}

func TestServer_InitClearsStaleConversations(t *testing.T) {
	f := newFixture(t)

	// Any request waits for initialization to finish.
	f.do(http.MethodGet, "/health", "", false)

	for _, id := range f.agent.Live() {
		if id == "stale-1" {
			t.Error("stale conversation survived initialization")
		}
	}
	if f.login.Logins.Load() != 1 {
		t.Errorf("logins = %d, want 1", f.login.Logins.Load())
	}
}

func TestServer_ChatCompletion(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodPost, "/v1/chat/completions",
		`{"model":"ibit","messages":[{"role":"user","content":"hello"}]}`, true)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, b)
	}

	var out types.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg := out.Choices[0].Message
	if msg.Content != "answer-a" || msg.ReasoningContent != "reasoning-a" {
		t.Errorf("message = %+v", msg)
	}
	if got := f.login.LastQuery(); got != "hello" {
		t.Errorf("upstream query = %q, want %q", got, "hello")
	}
}

func TestServer_ChatCompletionStream(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodPost, "/v1/chat/completions",
		`{"model":"bit-agent","stream":true,"messages":[{"role":"user","content":"why?"}]}`, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var frames []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	if len(frames) == 0 || frames[len(frames)-1] != "[DONE]" {
		t.Fatalf("frames = %q", frames)
	}

	var content, reasoning strings.Builder
	for _, fr := range frames[:len(frames)-1] {
		var chunk types.ChatCompletionStreamChunk
		if err := json.Unmarshal([]byte(fr), &chunk); err != nil {
			t.Fatalf("decode %q: %v", fr, err)
		}
		content.WriteString(chunk.Choices[0].Delta.Content)
		reasoning.WriteString(chunk.Choices[0].Delta.ReasoningContent)
	}
	if content.String() != "because" || reasoning.String() != "why" {
		t.Errorf("content %q reasoning %q", content.String(), reasoning.String())
	}
}

func TestServer_UnknownModel(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodPost, "/v1/chat/completions",
		`{"model":"gpt-9","messages":[{"role":"user","content":"hi"}]}`, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body types.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != types.CodeModelNotFound {
		t.Errorf("code = %q", body.Error.Code)
	}
}

func TestServer_OperationalEndpoints(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/health", "/ready", "/version"} {
		if resp := f.do(http.MethodGet, path, "", false); resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d", path, resp.StatusCode)
		}
	}

	f.do(http.MethodPost, "/v1/chat/completions",
		`{"model":"ibit","messages":[{"role":"user","content":"hello"}]}`, true)

	resp := f.do(http.MethodGet, "/metrics", "", false)
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "bitgate_gateway_turns_total") {
		t.Error("turn metric missing from /metrics")
	}
}

func TestServer_UsageRecordedAndFlushedOnShutdown(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		resp := f.do(http.MethodPost, "/v1/chat/completions",
			`{"model":"ibit","messages":[{"role":"user","content":"hello"}]}`, true)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	f.stop()

	store, err := usage.Open(f.cfg.Usage)
	if err != nil {
		t.Fatalf("reopen ledger: %v", err)
	}
	defer store.Close()

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if len(stats) != 1 || stats[0].Model != "ibit" || stats[0].Calls != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats[0].TotalPrice <= 0 {
		t.Errorf("total price = %v, want > 0", stats[0].TotalPrice)
	}
}
