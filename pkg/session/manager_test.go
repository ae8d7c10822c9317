package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"

	"teclab/bitgate/internal/backendtest"
	"teclab/bitgate/pkg/backends"
	"teclab/bitgate/pkg/backends/unifiedlogin"
)

func fastRetry() Option {
	return WithRetryPolicy(RetryPolicy{MaxAttempts: 3, InitialInterval: 10 * time.Millisecond, MaxInterval: 20 * time.Millisecond})
}

func newUnified(t *testing.T) (*backendtest.UnifiedLogin, *unifiedlogin.Backend) {
	t.Helper()
	fake := backendtest.NewUnifiedLogin(t)
	b, err := unifiedlogin.New(fake.Config("ibit"))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return fake, b
}

func drain(t *testing.T, s backends.EventStream) int {
	t.Helper()
	n := 0
	for {
		_, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return n
		}
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
}

func TestManager_DoClosesAfterConsume(t *testing.T) {
	fake, b := newUnified(t)
	fake.SetEvents(backendtest.AnswerEvents("a", "b")...)
	m := NewManager(b, fastRetry())

	err := m.Do(context.Background(), &backends.Turn{Query: "q"}, func(s backends.EventStream) error {
		if fake.Closes.Load() != 0 {
			t.Error("session closed before the stream was consumed")
		}
		if n := drain(t, s); n != 2 {
			t.Errorf("expected 2 events, got %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if fake.Opens.Load() != 1 || fake.Closes.Load() != 1 {
		t.Errorf("opens=%d closes=%d, want 1/1", fake.Opens.Load(), fake.Closes.Load())
	}
}

func TestManager_DoClosesOnError(t *testing.T) {
	fake, b := newUnified(t)
	m := NewManager(b, fastRetry())

	boom := errors.New("client went away")
	err := m.Do(context.Background(), &backends.Turn{Query: "q"}, func(s backends.EventStream) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if fake.Closes.Load() != 1 {
		t.Errorf("expected session closed, got %d closes", fake.Closes.Load())
	}
}

func TestManager_DoClosesWhenContextCancelled(t *testing.T) {
	fake, b := newUnified(t)
	fake.SetEvents(backendtest.AnswerEvents("a", "b", "c")...)
	fake.SetEventDelay(50 * time.Millisecond)
	m := NewManager(b, fastRetry())

	ctx, cancel := context.WithCancel(context.Background())
	err := m.Do(ctx, &backends.Turn{Query: "q"}, func(s backends.EventStream) error {
		cancel()
		_, err := s.Next(ctx)
		return err
	})
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if fake.Closes.Load() != 1 {
		t.Errorf("expected best-effort close after abandonment, got %d", fake.Closes.Load())
	}
}

func TestManager_OpenReauthenticatesOnExpiry(t *testing.T) {
	fake, b := newUnified(t)
	m := NewManager(b, fastRetry())
	fake.Expire()

	h, err := m.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if h == "" {
		t.Fatal("expected a handle")
	}
	if fake.Logins.Load() != 2 {
		t.Errorf("expected 2 logins (init + refresh), got %d", fake.Logins.Load())
	}
}

func TestManager_ConcurrentExpiryOneHandshake(t *testing.T) {
	fake, b := newUnified(t)
	fake.LoginDelay = 50 * time.Millisecond
	m := NewManager(b, fastRetry())
	fake.Expire()

	var wg sync.WaitGroup
	var failures int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Open(context.Background()); err != nil {
				atomic.AddInt32(&failures, 1)
				t.Errorf("Open() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if failures != 0 {
		t.Fatalf("%d turns failed", failures)
	}
	if got := fake.Logins.Load(); got != 2 {
		t.Errorf("expected exactly one refresh handshake (2 logins total), got %d", got)
	}
}

func TestManager_OpenExhaustionIsAuthError(t *testing.T) {
	fake, b := newUnified(t)
	fake.FailOpens(100)
	m := NewManager(b, fastRetry())

	_, err := m.Open(context.Background())
	var authErr *backends.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	var sessErr *backends.SessionError
	if !errors.As(err, &sessErr) {
		t.Error("expected the last SessionError to be wrapped")
	}
	// Re-authentication runs between attempts, not after the last one.
	if got := fake.Logins.Load(); got != 3 {
		t.Errorf("expected 3 logins (init + 2 refreshes), got %d", got)
	}
}

type stubBackend struct {
	backends.Backend
	openErr   error
	reauthErr error
	opens     int32
	reauths   int32
}

func (s *stubBackend) Name() string           { return "stub" }
func (s *stubBackend) AuthGeneration() uint64 { return 0 }
func (s *stubBackend) OpenSession(context.Context) (backends.SessionHandle, error) {
	atomic.AddInt32(&s.opens, 1)
	return "", s.openErr
}
func (s *stubBackend) Reauthenticate(context.Context, uint64) error {
	atomic.AddInt32(&s.reauths, 1)
	return s.reauthErr
}

func TestManager_ReauthFailureEscalates(t *testing.T) {
	stub := &stubBackend{
		openErr:   &backends.SessionError{Backend: "stub", Op: "open", StatusCode: 401},
		reauthErr: &backends.AuthError{Backend: "stub", Message: "bad password"},
	}
	m := NewManager(stub, fastRetry())

	_, err := m.Open(context.Background())
	var authErr *backends.AuthError
	if !errors.As(err, &authErr) || authErr.Message != "bad password" {
		t.Fatalf("expected handshake AuthError, got %v", err)
	}
	if stub.opens != 1 || stub.reauths != 1 {
		t.Errorf("opens=%d reauths=%d, want 1/1", stub.opens, stub.reauths)
	}
}

func TestManager_NonSessionErrorNotRetried(t *testing.T) {
	stub := &stubBackend{openErr: context.DeadlineExceeded}
	m := NewManager(stub, fastRetry())

	_, err := m.Open(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if stub.opens != 1 || stub.reauths != 0 {
		t.Errorf("opens=%d reauths=%d, want 1/0", stub.opens, stub.reauths)
	}
}

func TestManager_RejectedCredentialsRetried(t *testing.T) {
	stub := &stubBackend{openErr: &backends.AuthError{Backend: "stub", Message: "badge expired"}}
	m := NewManager(stub, fastRetry())

	_, err := m.Open(context.Background())
	var authErr *backends.AuthError
	if !errors.As(err, &authErr) || authErr.Cause == nil {
		t.Fatalf("expected exhaustion AuthError wrapping the last failure, got %v", err)
	}
	if stub.opens != 3 || stub.reauths != 2 {
		t.Errorf("opens=%d reauths=%d, want 3/2", stub.opens, stub.reauths)
	}
}

func TestManager_ExpiredOpenSucceedsAfterRefresh(t *testing.T) {
	fake, b := newUnified(t)
	m := NewManager(b, fastRetry())
	fake.Expire()

	opensBefore := fake.Opens.Load()
	turn := &backends.Turn{Query: "hello"}
	err := m.Do(context.Background(), turn, func(s backends.EventStream) error {
		drain(t, s)
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if fake.Opens.Load() <= opensBefore {
		t.Error("expected a dialogue to be opened after the refresh")
	}
	if fake.Streams.Load() != 1 {
		t.Errorf("streams = %d, want 1", fake.Streams.Load())
	}
}

func TestManager_SingleAttemptErrorUnwrapped(t *testing.T) {
	stub := &stubBackend{openErr: context.DeadlineExceeded}
	m := NewManager(stub, WithRetryPolicy(RetryPolicy{MaxAttempts: 1}))

	_, err := m.Open(context.Background())
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		t.Errorf("retry wrapper leaked: %v", err)
	}
	if err != context.DeadlineExceeded {
		t.Errorf("Open() error = %v, want the backend error itself", err)
	}
}
