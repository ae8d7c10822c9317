package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	cause := errors.New("address in use")

	tests := []struct {
		err  error
		want string
	}{
		{NewConfigError("proxy.listen_address", "missing"), "config error in proxy.listen_address: missing"},
		{NewCommandError("serve", cause), "command serve failed: address in use"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}

	if !errors.Is(NewCommandError("serve", cause), cause) {
		t.Error("CommandError must unwrap to its cause")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", NewConfigError("format", "bad"), ExitConfigError},
		{"wrapped config", fmt.Errorf("load: %w", NewConfigError("models", "none")), ExitConfigError},
		{"command", NewCommandError("serve", errors.New("boom")), ExitFailure},
		{"plain", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
