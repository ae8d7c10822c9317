package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"teclab/bitgate/pkg/config"
)

// LogFormat represents the output format for logs.
type LogFormat string

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON LogFormat = "json"
	// FormatText outputs logs in logfmt-style text.
	FormatText LogFormat = "text"
)

// New builds a slog.Logger from cfg writing to w (os.Stdout when nil).
// Records carry the request id and model stored in their context, and
// secrets are masked when cfg.RedactSecrets is set.
func New(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	format, err := parseFormat(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("invalid log format: %w", err)
	}
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}
	if cfg.RedactSecrets {
		opts.ReplaceAttr = NewRedactor().ReplaceAttr
	}

	var handler slog.Handler
	switch format {
	case FormatText:
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(&contextHandler{next: handler}), nil
}

// Setup builds a logger from cfg and installs it as the slog default.
func Setup(cfg config.LoggingConfig) (*slog.Logger, error) {
	logger, err := New(cfg, nil)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// parseLevel parses a log level string into slog.Level.
func parseLevel(levelStr string) (slog.Level, error) {
	switch levelStr {
	case "debug", "DEBUG":
		return slog.LevelDebug, nil
	case "info", "INFO", "":
		return slog.LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn, nil
	case "error", "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", levelStr)
	}
}

// parseFormat parses a log format string into LogFormat.
func parseFormat(formatStr string) (LogFormat, error) {
	switch formatStr {
	case "json", "JSON", "":
		return FormatJSON, nil
	case "text", "TEXT":
		return FormatText, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format: %s", formatStr)
	}
}
