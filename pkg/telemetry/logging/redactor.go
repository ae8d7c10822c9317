package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redactor masks credentials in log attributes. Values under sensitive
// keys are replaced outright; other string values are scanned for bearer
// tokens, cookie assignments and password fields.
type Redactor struct {
	keys     []string
	patterns []redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// sensitiveKeys are matched as substrings of lower-cased attribute keys.
var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"secret", "access_token", "api_key", "apikey",
	"app_key", "appkey", "visitor_key",
	"badge", "cookie", "authorization",
}

// NewRedactor creates a Redactor with the built-in rules.
func NewRedactor() *Redactor {
	return &Redactor{
		keys: sensitiveKeys,
		patterns: []redactPattern{
			{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`), "Bearer ***"},
			{regexp.MustCompile(`(badge_2|app-visitor-key)=[^;\s]+`), "$1=***"},
			{regexp.MustCompile(`(?i)(password|passwd|pwd)([:=])\s*[^\s&]+`), "$1$2***"},
			{regexp.MustCompile(`sk-[a-zA-Z0-9]{6,}`), "sk-***"},
		},
	}
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return a
	}
	if r.isSensitiveKey(a.Key) {
		return slog.String(a.Key, Mask(a.Value.String()))
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	}
	return a
}

// RedactString masks credentials embedded in value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// isSensitiveKey checks if a key name indicates sensitive data.
func (r *Redactor) isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range r.keys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// Mask hides a secret, keeping a short prefix for identification.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***"
}
