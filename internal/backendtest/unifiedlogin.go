// Package backendtest provides httptest fakes of both upstream protocols.
package backendtest

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"teclab/bitgate/pkg/backends"
)

const loginPage = `<!DOCTYPE html>
<html><body>
<form id="pwdFromId" action="/authserver/login" method="post">
<input id="username" name="username" type="text"/>
<input id="password" type="password"/>
<input type="hidden" name="execution" value="e1s1"/>
<input type="hidden" name="_eventId" value="submit"/>
<input type="hidden" id="pwdEncryptSalt" value="%s"/>
</form>
%s
</body></html>`

// UnifiedLogin fakes the identity provider and the unified-login upstream
// on one server.
type UnifiedLogin struct {
	Server   *httptest.Server
	Username string
	Password string
	Salt     string

	Logins  atomic.Int32
	Opens   atomic.Int32
	Closes  atomic.Int32
	Streams atomic.Int32

	// LoginDelay slows down every successful login.
	LoginDelay time.Duration

	mu         sync.Mutex
	badge      string
	nextID     int
	failOpens  int
	events     []string
	lastQuery  string
	closedIDs  []int
	eventDelay time.Duration
}

// NewUnifiedLogin starts a fake accepting user/secret.
func NewUnifiedLogin(t testing.TB) *UnifiedLogin {
	t.Helper()
	u := &UnifiedLogin{Username: "user", Password: "secret", Salt: "0123456789abcdef", nextID: 100}

	mux := http.NewServeMux()
	mux.HandleFunc("/authserver/login", u.handleLogin)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/proxy/v1/dialogue", u.handleDialogue)
	mux.HandleFunc("/proxy/v1/chat/stream/private/kb", u.handleStream)

	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Server.Close)
	return u
}

// Config returns a backend configuration pointing at the fake.
func (u *UnifiedLogin) Config(name string) backends.BackendConfig {
	return backends.BackendConfig{
		Name:     name,
		Type:     backends.TypeUnifiedLogin,
		BaseURL:  u.Server.URL,
		LoginURL: u.Server.URL + "/authserver/login",
		Credentials: backends.Credentials{
			Username: u.Username,
			Password: u.Password,
		},
		Timeout:           5 * time.Second,
		StreamIdleTimeout: 5 * time.Second,
	}
}

// SetEvents sets the raw data payloads streamed for every query.
func (u *UnifiedLogin) SetEvents(payloads ...string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.events = payloads
}

// SetEventDelay sets a pause between streamed events.
func (u *UnifiedLogin) SetEventDelay(d time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.eventDelay = d
}

// Expire invalidates the current badge.
func (u *UnifiedLogin) Expire() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.badge = ""
}

// FailOpens makes the next n dialogue creations fail with a 500.
func (u *UnifiedLogin) FailOpens(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failOpens = n
}

// LastQuery returns the query text of the most recent stream request.
func (u *UnifiedLogin) LastQuery() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastQuery
}

// ClosedIDs returns the dialogue ids deleted so far.
func (u *UnifiedLogin) ClosedIDs() []int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]int(nil), u.closedIDs...)
}

func (u *UnifiedLogin) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		fmt.Fprintf(w, loginPage, u.Salt, "")
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("execution") != "e1s1" || r.PostForm.Get("username") != u.Username ||
		decryptPassword(r.PostForm.Get("password"), u.Salt) != u.Password {
		fmt.Fprintf(w, loginPage, u.Salt, `<span id="showErrorTip">invalid credentials</span>`)
		return
	}

	if u.LoginDelay > 0 {
		time.Sleep(u.LoginDelay)
	}
	n := u.Logins.Add(1)
	badge := fmt.Sprintf("badge+%d/x=", n)

	u.mu.Lock()
	u.badge = badge
	u.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "badge_2", Value: badge, Path: "/"})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (u *UnifiedLogin) authorized(r *http.Request) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	c, err := r.Cookie("badge_2")
	if err != nil || u.badge == "" || c.Value != u.badge {
		return false
	}
	return r.Header.Get("badge") != "" && r.Header.Get("Xdomain-Client") == "web_user"
}

func (u *UnifiedLogin) handleDialogue(w http.ResponseWriter, r *http.Request) {
	if !u.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"badge expired"}`))
		return
	}

	switch r.Method {
	case http.MethodPost:
		u.mu.Lock()
		if u.failOpens > 0 {
			u.failOpens--
			u.mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"busy"}`))
			return
		}
		u.nextID++
		id := u.nextID
		u.mu.Unlock()

		u.Opens.Add(1)
		writeJSON(w, map[string]any{"data": map[string]any{"id": id}})

	case http.MethodDelete:
		var body struct {
			IDs []int `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		u.mu.Lock()
		u.closedIDs = append(u.closedIDs, body.IDs...)
		u.mu.Unlock()

		u.Closes.Add(1)
		writeJSON(w, map[string]any{"data": map[string]any{"success": true}})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (u *UnifiedLogin) handleStream(w http.ResponseWriter, r *http.Request) {
	if !u.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var body struct {
		Query      string `json:"query"`
		DialogueID int    `json:"dialogue_id"`
		Stream     bool   `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DialogueID == 0 || !body.Stream {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	u.mu.Lock()
	u.lastQuery = body.Query
	events := append([]string(nil), u.events...)
	delay := u.eventDelay
	u.mu.Unlock()

	u.Streams.Add(1)
	streamEvents(w, r, events, delay)
}

// AnswerEvents encodes each text as a {"answer": text} payload.
func AnswerEvents(texts ...string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		b, _ := json.Marshal(map[string]string{"answer": t})
		out[i] = string(b)
	}
	return out
}

func streamEvents(w http.ResponseWriter, r *http.Request, payloads []string, delay time.Duration) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for _, p := range payloads {
		if delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}
		fmt.Fprintf(w, "data: %s\n\n", p)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// decryptPassword reverses the login page encryption. The IV only affects
// the first block, which lies inside the discarded random prefix.
func decryptPassword(encoded, salt string) string {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return ""
	}
	block, err := aes.NewCipher([]byte(salt))
	if err != nil {
		return ""
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, raw)

	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize || !bytes.HasSuffix(out, bytes.Repeat([]byte{byte(pad)}, pad)) {
		return ""
	}
	out = out[:len(out)-pad]
	if len(out) < 64 {
		return ""
	}
	return string(out[64:])
}
