// Package usage records estimated token usage and price per turn.
//
// The orchestrator calls Recorder.RecordUsage after every turn. Tokens are
// estimated with a character heuristic (Estimator), priced per million
// tokens from the model configuration (PriceBook), and written
// asynchronously to a Store. Two SQLite drivers are supported: "sqlite"
// (modernc.org/sqlite, no cgo) and "sqlite3" (mattn/go-sqlite3). The
// Reporter logs a summary table on a fixed interval and prunes old ledger
// rows on a cron schedule; ConfigWatcher reloads prices when the config
// file changes.
package usage
