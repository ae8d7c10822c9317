package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"teclab/bitgate/pkg/backends"
	"teclab/bitgate/pkg/proxy/types"
)

func newRequest(t *testing.T, body interface{}) *http.Request {
	t.Helper()
	var buf []byte
	switch b := body.(type) {
	case string:
		buf = []byte(b)
	default:
		var err error
		buf, err = json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	return httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(buf))
}

func TestParseChatCompletionRequest(t *testing.T) {
	temp := 0.7
	badTemp := 3.0

	tests := []struct {
		name      string
		body      interface{}
		wantCode  string
		wantParam string
	}{
		{
			name: "string content",
			body: types.ChatCompletionRequest{
				Model:    "ibit",
				Messages: []types.Message{{Role: "user", Content: "hello"}},
			},
		},
		{
			name: "system prompt and history",
			body: types.ChatCompletionRequest{
				Model: "ibit",
				Messages: []types.Message{
					{Role: "system", Content: "be brief"},
					{Role: "user", Content: "a"},
					{Role: "assistant", Content: "b"},
					{Role: "user", Content: "c"},
				},
				Temperature: &temp,
			},
		},
		{
			name:      "missing model",
			body:      types.ChatCompletionRequest{Messages: []types.Message{{Role: "user", Content: "hi"}}},
			wantCode:  types.CodeMissingField,
			wantParam: "model",
		},
		{
			name:      "empty messages",
			body:      types.ChatCompletionRequest{Model: "ibit"},
			wantCode:  types.CodeMissingField,
			wantParam: "messages",
		},
		{
			name: "unknown role",
			body: types.ChatCompletionRequest{
				Model:    "ibit",
				Messages: []types.Message{{Role: "tool", Content: "x"}},
			},
			wantCode:  types.CodeInvalidValue,
			wantParam: "messages[0].role",
		},
		{
			name:      "numeric content",
			body:      `{"model":"ibit","messages":[{"role":"user","content":42}]}`,
			wantCode:  types.CodeInvalidValue,
			wantParam: "messages[0].content",
		},
		{
			name: "temperature out of range",
			body: types.ChatCompletionRequest{
				Model:       "ibit",
				Messages:    []types.Message{{Role: "user", Content: "hi"}},
				Temperature: &badTemp,
			},
			wantCode:  types.CodeInvalidValue,
			wantParam: "temperature",
		},
		{
			name:      "invalid JSON",
			body:      `{"model":`,
			wantCode:  types.CodeInvalidJSON,
			wantParam: "body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseChatCompletionRequest(newRequest(t, tt.body), 0)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if req == nil {
					t.Fatal("expected request")
				}
				return
			}

			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("expected *RequestError, got %v", err)
			}
			if reqErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", reqErr.Code, tt.wantCode)
			}
			if reqErr.Param != tt.wantParam {
				t.Errorf("param = %q, want %q", reqErr.Param, tt.wantParam)
			}
		})
	}
}

func TestParseChatCompletionRequest_TooLarge(t *testing.T) {
	body := `{"model":"ibit","messages":[{"role":"user","content":"` + strings.Repeat("x", 200) + `"}]}`

	_, err := ParseChatCompletionRequest(newRequest(t, body), 64)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Code != types.CodeRequestTooLarge {
		t.Fatalf("expected request_too_large, got %v", err)
	}

	if _, err := ParseChatCompletionRequest(newRequest(t, body), int64(len(body))); err != nil {
		t.Fatalf("body at the limit rejected: %v", err)
	}
}

func TestTurnMessages_Multimodal(t *testing.T) {
	body := `{"model":"ibit","messages":[
		{"role":"system","content":"sys"},
		{"role":"user","content":[
			{"type":"text","text":"what is"},
			{"type":"image_url","image_url":{"url":"data:image/png;base64,AAAA"}},
			{"type":"text","text":"this?"}
		]}
	]}`

	req, err := ParseChatCompletionRequest(newRequest(t, body), 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	got := TurnMessages(req)
	want := []backends.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "what is this?"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer sk-123", "sk-123"},
		{"bearer  sk-123 ", "sk-123"},
		{"Basic abc", ""},
		{"sk-123", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
		if tt.header != "" {
			r.Header.Set(AuthorizationHeader, tt.header)
		}
		if got := ExtractAPIKey(r); got != tt.want {
			t.Errorf("ExtractAPIKey(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
