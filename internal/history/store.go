package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Outcome labels stored in the ledger.
const (
	OutcomeSuccess = "success"
	OutcomeSkip    = "skip"
	OutcomeRetry   = "retry"
	OutcomeFatal   = "fatal"
)

// Entry is one recorded dispatch.
type Entry struct {
	RunID     string
	Stage     string
	Root      string
	Outcome   string
	Kind      string
	Detail    string
	Duration  time.Duration
	CreatedAt time.Time
}

// StageSummary aggregates entries for one stage.
type StageSummary struct {
	Stage     string
	Successes int
	Skips     int
	Retries   int
	Fatals    int
	LastAt    time.Time
}

// Store manages the ledger backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to <dir>/history.db.
func Open(ctx context.Context, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}

	dbPath := filepath.Join(dir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Record inserts one entry. A zero CreatedAt is stamped with the current time.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_events (run_id, stage, root, outcome, kind, detail, duration_ms, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Stage,
		entry.Root,
		entry.Outcome,
		nullableString(entry.Kind),
		nullableString(entry.Detail),
		entry.Duration.Milliseconds(),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// Summary aggregates outcomes per stage, ordered by stage name.
func (s *Store) Summary(ctx context.Context) ([]StageSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT stage,
               SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END),
               SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END),
               SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END),
               SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END),
               MAX(created_at)
        FROM stage_events
        GROUP BY stage
        ORDER BY stage`,
		OutcomeSuccess, OutcomeSkip, OutcomeRetry, OutcomeFatal)
	if err != nil {
		return nil, fmt.Errorf("query history summary: %w", err)
	}
	defer rows.Close()

	var out []StageSummary
	for rows.Next() {
		var sum StageSummary
		var last string
		if err := rows.Scan(&sum.Stage, &sum.Successes, &sum.Skips, &sum.Retries, &sum.Fatals, &last); err != nil {
			return nil, fmt.Errorf("scan history summary: %w", err)
		}
		sum.LastAt = parseTime(last)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Recent returns up to limit newest entries, optionally filtered by stage.
func (s *Store) Recent(ctx context.Context, stage string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT run_id, stage, root, outcome, kind, detail, duration_ms, created_at FROM stage_events`
	args := []any{}
	if stage != "" {
		query += ` WHERE stage = ?`
		args = append(args, stage)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			entry      Entry
			kind       sql.NullString
			detail     sql.NullString
			durationMS int64
			created    string
		)
		if err := rows.Scan(&entry.RunID, &entry.Stage, &entry.Root, &entry.Outcome, &kind, &detail, &durationMS, &created); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.Kind = kind.String
		entry.Detail = detail.String
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entry.CreatedAt = parseTime(created)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTime(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}
