// Package logging builds the gateway's log/slog logger.
//
// New returns a JSON or text logger configured from config.LoggingConfig.
// Records logged with the *Context methods pick up the request id and
// model stored by WithRequestID and WithModel, so handlers and the
// orchestrator do not thread those fields by hand:
//
//	logger, _ := logging.Setup(cfg.Telemetry.Logging)
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.InfoContext(ctx, "turn completed", "duration_ms", 1234)
//
// With redaction enabled, attributes whose keys look like credentials
// (password, app_key, visitor_key, badge, cookie, authorization)
// are masked, and bearer tokens or cookie assignments inside other string
// values are replaced.
package logging
