package usage

import (
	"context"
	"fmt"
	"time"
)

// Record is one ledger row: the estimated usage of a single turn.
type Record struct {
	ID           string
	Time         time.Time
	ModelID      string
	ModelName    string
	InputTokens  int
	OutputTokens int
	Price        float64
	Currency     string
}

// ModelStats are the cumulative totals of one model, keyed by display name.
type ModelStats struct {
	Model        string  `json:"model"`
	Calls        int64   `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalPrice   float64 `json:"total_price"`
}

// TotalTokens returns input plus output tokens.
func (s ModelStats) TotalTokens() int64 {
	return s.InputTokens + s.OutputTokens
}

// Summary aggregates the per-model totals.
type Summary struct {
	Models     []ModelStats `json:"models"`
	Calls      int64        `json:"calls"`
	TotalPrice float64      `json:"total_price"`
	Currency   string       `json:"currency"`
}

// Summarize builds a Summary from per-model totals.
func Summarize(stats []ModelStats, currency string) Summary {
	s := Summary{Models: stats, Currency: currency}
	for _, m := range stats {
		s.Calls += m.Calls
		s.TotalPrice += m.TotalPrice
	}
	return s
}

// Store persists ledger rows and per-model totals. Totals survive pruning
// of old rows.
type Store interface {
	// Append writes r and adds it to the totals of r.ModelName.
	Append(ctx context.Context, r Record) error

	// Stats returns per-model totals sorted by model name.
	Stats(ctx context.Context) ([]ModelStats, error)

	// Prune deletes ledger rows older than before and returns the count.
	Prune(ctx context.Context, before time.Time) (int64, error)

	// Close releases the store.
	Close() error
}

// StorageError represents an error from the ledger backend.
type StorageError struct {
	Backend   string // "sqlite", "sqlite3" or "memory"
	Operation string // "open", "append", "stats", "prune", ...
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("usage storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

func newStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}
