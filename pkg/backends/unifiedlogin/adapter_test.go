package unifiedlogin

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"teclab/bitgate/internal/backendtest"
	"teclab/bitgate/pkg/backends"
)

func newBackend(t *testing.T, fake *backendtest.UnifiedLogin) *Backend {
	t.Helper()
	b, err := New(fake.Config("ibit"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(backends.BackendConfig{Name: "ibit", Credentials: backends.Credentials{Username: "u"}})
	var cfgErr *backends.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "credentials.password" {
		t.Fatalf("expected password ConfigError, got %v", err)
	}
}

func TestBackend_InitLogsIn(t *testing.T) {
	fake := backendtest.NewUnifiedLogin(t)
	b := newBackend(t, fake)

	if err := b.Init(context.Background()); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if fake.Logins.Load() != 1 {
		t.Errorf("expected 1 login, got %d", fake.Logins.Load())
	}
	ac := b.AuthContext()
	if ac == nil || ac.Token != "badge+1/x=" {
		t.Fatalf("unexpected auth context %+v", ac)
	}
	if got := ac.Headers["badge"]; got != "badge%2B1/x%3D" {
		t.Errorf("badge header = %q", got)
	}
	if ac.Cookies[BadgeCookie] != ac.Token {
		t.Error("badge cookie does not match token")
	}
	if b.AuthGeneration() != 1 {
		t.Errorf("expected generation 1, got %d", b.AuthGeneration())
	}
}

func TestBackend_WrongPasswordIsAuthError(t *testing.T) {
	fake := backendtest.NewUnifiedLogin(t)
	cfg := fake.Config("ibit")
	cfg.Credentials.Password = "wrong"
	b, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	err = b.Init(context.Background())
	var authErr *backends.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if fake.Logins.Load() != 0 {
		t.Errorf("expected no successful login, got %d", fake.Logins.Load())
	}
}

func TestBackend_SessionRoundTrip(t *testing.T) {
	fake := backendtest.NewUnifiedLogin(t)
	fake.SetEvents(backendtest.AnswerEvents("<think>", "r", "</think>", "a")...)
	b := newBackend(t, fake)
	ctx := context.Background()

	if err := b.Init(ctx); err != nil {
		t.Fatal(err)
	}

	h, err := b.OpenSession(ctx)
	if err != nil {
		t.Fatalf("OpenSession() error: %v", err)
	}
	if h != "101" {
		t.Errorf("expected handle 101, got %q", h)
	}

	turn := &backends.Turn{
		Query:   "question",
		History: []backends.Message{{Role: "user", Content: "q0"}, {Role: "assistant", Content: "a0"}},
	}
	stream, err := b.StreamQuery(ctx, turn, h)
	if err != nil {
		t.Fatalf("StreamQuery() error: %v", err)
	}

	d := b.NewDemuxer()
	var reasoning, content string
	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if f, ok := d.Classify(ev); ok {
			if f.Kind == backends.KindReasoning {
				reasoning += f.Text
			} else {
				content += f.Text
			}
		}
	}
	_ = stream.Close()
	b.CloseSession(ctx, h)

	if reasoning != "r" || content != "a" {
		t.Errorf("got reasoning %q content %q", reasoning, content)
	}
	q := fake.LastQuery()
	if !strings.HasPrefix(q, backends.HistoryPreamble) || !strings.HasSuffix(q, "question") {
		t.Errorf("history not folded into query: %q", q)
	}
	if ids := fake.ClosedIDs(); len(ids) != 1 || ids[0] != 101 {
		t.Errorf("expected dialogue 101 deleted, got %v", ids)
	}
}

func TestBackend_ExpiredBadgeIsRejectedSessionError(t *testing.T) {
	fake := backendtest.NewUnifiedLogin(t)
	b := newBackend(t, fake)
	if err := b.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	fake.Expire()

	_, err := b.OpenSession(context.Background())
	var sessErr *backends.SessionError
	if !errors.As(err, &sessErr) {
		t.Fatalf("expected SessionError, got %v", err)
	}
	if !sessErr.IsRejected() {
		t.Error("expected rejected session error")
	}
}

func TestBackend_CloseSessionSwallowsErrors(t *testing.T) {
	fake := backendtest.NewUnifiedLogin(t)
	b := newBackend(t, fake)
	// Not authenticated: delete is rejected, but must not panic or block.
	b.CloseSession(context.Background(), "5")
	b.CloseSession(context.Background(), "")
	if fake.Closes.Load() != 0 {
		t.Errorf("expected no acknowledged deletes, got %d", fake.Closes.Load())
	}
}

func TestBackend_StreamQueryRequiresHandle(t *testing.T) {
	fake := backendtest.NewUnifiedLogin(t)
	b := newBackend(t, fake)
	_, err := b.StreamQuery(context.Background(), &backends.Turn{Query: "x"}, "")
	if !errors.Is(err, backends.ErrEmptyHandle) {
		t.Fatalf("expected ErrEmptyHandle, got %v", err)
	}
}

func TestQuote(t *testing.T) {
	if got := quote("a+b/c=d e"); got != "a%2Bb/c%3Dd%20e" {
		t.Errorf("quote() = %q", got)
	}
}
