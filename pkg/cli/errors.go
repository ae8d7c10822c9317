package cli

import (
	"errors"
	"fmt"
)

// Exit codes returned by the bitgate binary.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfigError = 2
)

// ConfigError represents an error in configuration or flags.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfigError
	}
	return ExitFailure
}
