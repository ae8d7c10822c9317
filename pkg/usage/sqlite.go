package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // driver "sqlite3"
	_ "modernc.org/sqlite"          // driver "sqlite"
)

const usageSchema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id TEXT PRIMARY KEY,
	recorded_at INTEGER NOT NULL,
	model_id TEXT NOT NULL,
	model_name TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	price REAL NOT NULL,
	currency TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_records_recorded_at ON usage_records(recorded_at);

CREATE TABLE IF NOT EXISTS usage_totals (
	model_name TEXT PRIMARY KEY,
	calls INTEGER NOT NULL DEFAULT 0,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	total_price REAL NOT NULL DEFAULT 0
);
`

// SQLiteStore is a Store backed by a SQLite file. Driver "sqlite" is the
// pure Go modernc.org/sqlite; "sqlite3" is the cgo mattn/go-sqlite3.
type SQLiteStore struct {
	db        *sql.DB
	driver    string
	closeOnce sync.Once
}

// NewSQLiteStore opens (creating if needed) the ledger at path.
func NewSQLiteStore(driver, path string, busyTimeout time.Duration) (*SQLiteStore, error) {
	if path == "" {
		return nil, newStorageError(driver, "open", fmt.Errorf("path cannot be empty"))
	}
	if driver != "sqlite" && driver != "sqlite3" {
		return nil, newStorageError(driver, "open", fmt.Errorf("unknown driver %q", driver))
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, newStorageError(driver, "open", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, newStorageError(driver, "open", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db, driver: driver}
	if err := s.configure(busyTimeout); err != nil {
		db.Close()
		return nil, newStorageError(driver, "configure", err)
	}
	if _, err := db.Exec(usageSchema); err != nil {
		db.Close()
		return nil, newStorageError(driver, "schema", err)
	}
	return s, nil
}

func (s *SQLiteStore) configure(busyTimeout time.Duration) error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return nil
}

// Append inserts the row and updates the model totals in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, r Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newStorageError(s.driver, "append", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_records (id, recorded_at, model_id, model_name, input_tokens, output_tokens, price, currency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Time.UnixNano(), r.ModelID, r.ModelName, r.InputTokens, r.OutputTokens, r.Price, r.Currency)
	if err != nil {
		return newStorageError(s.driver, "append", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_totals (model_name, calls, input_tokens, output_tokens, total_price)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT(model_name) DO UPDATE SET
			calls = calls + 1,
			input_tokens = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens,
			total_price = total_price + excluded.total_price`,
		r.ModelName, r.InputTokens, r.OutputTokens, r.Price)
	if err != nil {
		return newStorageError(s.driver, "append", err)
	}

	if err := tx.Commit(); err != nil {
		return newStorageError(s.driver, "append", err)
	}
	return nil
}

// Stats returns per-model totals sorted by model name.
func (s *SQLiteStore) Stats(ctx context.Context) ([]ModelStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model_name, calls, input_tokens, output_tokens, total_price
		FROM usage_totals ORDER BY model_name`)
	if err != nil {
		return nil, newStorageError(s.driver, "stats", err)
	}
	defer rows.Close()

	var stats []ModelStats
	for rows.Next() {
		var m ModelStats
		if err := rows.Scan(&m.Model, &m.Calls, &m.InputTokens, &m.OutputTokens, &m.TotalPrice); err != nil {
			return nil, newStorageError(s.driver, "stats", err)
		}
		stats = append(stats, m)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError(s.driver, "stats", err)
	}
	return stats, nil
}

// Prune deletes ledger rows older than before. Totals are kept.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM usage_records WHERE recorded_at < ?`, before.UnixNano())
	if err != nil {
		return 0, newStorageError(s.driver, "prune", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, newStorageError(s.driver, "prune", err)
	}
	return n, nil
}

// Count returns the number of ledger rows.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage_records`).Scan(&n); err != nil {
		return 0, newStorageError(s.driver, "count", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}
