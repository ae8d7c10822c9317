package config

import "testing"

func TestHasCredentials(t *testing.T) {
	tests := []struct {
		name  string
		model ModelConfig
		want  bool
	}{
		{"unified login complete", ModelConfig{Type: TypeUnifiedLogin, Credentials: CredentialsConfig{Username: "u", Password: "p"}}, true},
		{"unified login missing password", ModelConfig{Type: TypeUnifiedLogin, Credentials: CredentialsConfig{Username: "u"}}, false},
		{"app key complete", ModelConfig{Type: TypeAppKey, Credentials: CredentialsConfig{AppKey: "a", VisitorKey: "v"}}, true},
		{"app key with login creds only", ModelConfig{Type: TypeAppKey, Credentials: CredentialsConfig{Username: "u", Password: "p"}}, false},
		{"unknown type", ModelConfig{Type: "other", Credentials: CredentialsConfig{AppKey: "a", VisitorKey: "v"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.model.HasCredentials(); got != tt.want {
				t.Errorf("HasCredentials() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestActiveModels(t *testing.T) {
	cfg := Default()
	m := cfg.Models["deepseek-r1"]
	m.Credentials = CredentialsConfig{AppKey: "a", VisitorKey: "v"}
	cfg.Models["deepseek-r1"] = m

	active := cfg.ActiveModels()
	if len(active) != 1 {
		t.Fatalf("expected 1 active model, got %d", len(active))
	}
	if _, ok := active["deepseek-r1"]; !ok {
		t.Error("expected deepseek-r1 to be active")
	}
	if _, ok := active["ibit"]; ok {
		t.Error("ibit has no credentials and must be skipped")
	}
}
