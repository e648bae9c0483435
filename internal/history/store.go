// ABOUTME: SQLite-backed call history using modernc.org/sqlite
// ABOUTME: Records tool invocations and serves the self-improvement queries

package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a history entry does not exist.
var ErrNotFound = errors.New("history entry not found")

// Entry is one recorded tool invocation.
type Entry struct {
	ID         string         `json:"id"`
	Tool       string         `json:"tool"`
	Category   string         `json:"category"`
	RequestID  string         `json:"request_id,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
	OK         bool           `json:"ok"`
	ErrorCode  int            `json:"error_code,omitempty"`
	ErrorText  string         `json:"error_text,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// Filter narrows List results. Zero values are ignored.
type Filter struct {
	Since      time.Time
	Until      time.Time
	Tool       string
	Category   string
	OnlyErrors bool
	Keyword    string
	Limit      int
}

// ToolAggregate summarizes recorded calls for one tool.
type ToolAggregate struct {
	Tool           string    `json:"tool"`
	Calls          int64     `json:"calls"`
	Errors         int64     `json:"errors"`
	MeanDurationMS float64   `json:"mean_duration_ms"`
	LastCalled     time.Time `json:"last_called"`
}

// Summary aggregates the whole history table.
type Summary struct {
	TotalCalls  int64      `json:"total_calls"`
	TotalErrors int64      `json:"total_errors"`
	FirstCall   *time.Time `json:"first_call,omitempty"`
	LastCall    *time.Time `json:"last_call,omitempty"`
}

// Store persists tool call history in SQLite.
type Store struct {
	db      *sql.DB
	maxRows int
	logger  *slog.Logger
}

// New opens (or creates) the history database at the given path.
// Use ":memory:" for an in-memory store. maxRows <= 0 disables eviction.
func New(path string, maxRows int) (*Store, error) {
	logger := slog.Default().With("component", "history")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, maxRows: maxRows, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("history store initialized", "path", path, "max_rows", maxRows)
	return s, nil
}

// createSchema creates the history table if it doesn't exist
func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS call_history (
			id          TEXT PRIMARY KEY,
			tool        TEXT NOT NULL,
			category    TEXT NOT NULL,
			request_id  TEXT,
			started_at  TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			ok          INTEGER NOT NULL,
			error_code  INTEGER NOT NULL DEFAULT 0,
			error_text  TEXT,
			detail_json TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_history_started ON call_history(started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_history_tool ON call_history(tool);
		CREATE INDEX IF NOT EXISTS idx_history_ok ON call_history(ok);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	s.logger.Info("closing history store")
	return s.db.Close()
}

// Append records one tool invocation. An ID is assigned if missing.
// When the row cap is exceeded, the oldest rows are evicted.
func (s *Store) Append(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now().UTC()
	}

	var detailJSON any
	if len(entry.Detail) > 0 {
		raw, err := json.Marshal(entry.Detail)
		if err != nil {
			return fmt.Errorf("marshaling detail: %w", err)
		}
		detailJSON = string(raw)
	}

	query := `
		INSERT INTO call_history (id, tool, category, request_id, started_at, duration_ms, ok, error_code, error_text, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Tool,
		entry.Category,
		nullString(entry.RequestID),
		entry.StartedAt.UTC().Format(time.RFC3339Nano),
		entry.DurationMS,
		boolToInt(entry.OK),
		entry.ErrorCode,
		nullString(entry.ErrorText),
		detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}

	if s.maxRows > 0 {
		if err := s.evict(ctx); err != nil {
			s.logger.Warn("history eviction failed", "error", err)
		}
	}

	s.logger.Debug("recorded call", "tool", entry.Tool, "ok", entry.OK, "duration_ms", entry.DurationMS)
	return nil
}

// evict removes the oldest rows beyond the configured cap.
func (s *Store) evict(ctx context.Context) error {
	query := `
		DELETE FROM call_history
		WHERE id IN (
			SELECT id FROM call_history
			ORDER BY started_at DESC
			LIMIT -1 OFFSET ?
		)
	`
	_, err := s.db.ExecContext(ctx, query, s.maxRows)
	return err
}

// List returns entries matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Entry, error) {
	query := `
		SELECT id, tool, category, request_id, started_at, duration_ms, ok, error_code, error_text, detail_json
		FROM call_history
		WHERE 1=1
	`
	var args []any

	if !filter.Since.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if !filter.Until.IsZero() {
		query += " AND started_at <= ?"
		args = append(args, filter.Until.UTC().Format(time.RFC3339Nano))
	}
	if filter.Tool != "" {
		query += " AND tool = ?"
		args = append(args, filter.Tool)
	}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}
	if filter.OnlyErrors {
		query += " AND ok = 0"
	}
	if filter.Keyword != "" {
		query += " AND (error_text LIKE ? OR detail_json LIKE ?)"
		pattern := "%" + filter.Keyword + "%"
		args = append(args, pattern, pattern)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var entry Entry
	var startedAtStr string
	var okInt int
	var requestID, errorText, detailJSON sql.NullString

	if err := rows.Scan(
		&entry.ID,
		&entry.Tool,
		&entry.Category,
		&requestID,
		&startedAtStr,
		&entry.DurationMS,
		&okInt,
		&entry.ErrorCode,
		&errorText,
		&detailJSON,
	); err != nil {
		return nil, fmt.Errorf("scanning history row: %w", err)
	}

	startedAt, err := time.Parse(time.RFC3339Nano, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	entry.StartedAt = startedAt
	entry.OK = okInt != 0
	if requestID.Valid {
		entry.RequestID = requestID.String
	}
	if errorText.Valid {
		entry.ErrorText = errorText.String
	}
	if detailJSON.Valid && detailJSON.String != "" {
		if err := json.Unmarshal([]byte(detailJSON.String), &entry.Detail); err != nil {
			return nil, fmt.Errorf("parsing detail: %w", err)
		}
	}
	return &entry, nil
}

// ToolAggregates returns per-tool call statistics since the given time.
// A zero since covers everything.
func (s *Store) ToolAggregates(ctx context.Context, since time.Time) ([]ToolAggregate, error) {
	query := `
		SELECT tool,
		       COUNT(*) AS calls,
		       SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END) AS errors,
		       AVG(duration_ms) AS mean_duration,
		       MAX(started_at) AS last_called
		FROM call_history
		WHERE started_at >= ?
		GROUP BY tool
		ORDER BY calls DESC
	`
	sinceStr := since.UTC().Format(time.RFC3339Nano)
	if since.IsZero() {
		sinceStr = ""
	}

	rows, err := s.db.QueryContext(ctx, query, sinceStr)
	if err != nil {
		return nil, fmt.Errorf("querying aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []ToolAggregate
	for rows.Next() {
		var a ToolAggregate
		var lastCalledStr string
		if err := rows.Scan(&a.Tool, &a.Calls, &a.Errors, &a.MeanDurationMS, &lastCalledStr); err != nil {
			return nil, fmt.Errorf("scanning aggregate row: %w", err)
		}
		a.LastCalled, err = time.Parse(time.RFC3339Nano, lastCalledStr)
		if err != nil {
			return nil, fmt.Errorf("parsing last_called: %w", err)
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

// Summarize returns the overall history summary.
func (s *Store) Summarize(ctx context.Context) (*Summary, error) {
	query := `
		SELECT COUNT(*),
		       SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END),
		       MIN(started_at),
		       MAX(started_at)
		FROM call_history
	`

	var sum Summary
	var totalErrors sql.NullInt64
	var first, last sql.NullString
	if err := s.db.QueryRowContext(ctx, query).Scan(&sum.TotalCalls, &totalErrors, &first, &last); err != nil {
		return nil, fmt.Errorf("querying summary: %w", err)
	}
	if totalErrors.Valid {
		sum.TotalErrors = totalErrors.Int64
	}
	if first.Valid {
		t, err := time.Parse(time.RFC3339Nano, first.String)
		if err != nil {
			return nil, fmt.Errorf("parsing first_call: %w", err)
		}
		sum.FirstCall = &t
	}
	if last.Valid {
		t, err := time.Parse(time.RFC3339Nano, last.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_call: %w", err)
		}
		sum.LastCall = &t
	}
	return &sum, nil
}

// Prune deletes entries older than the cutoff and reports how many were removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM call_history WHERE started_at < ?`,
		olderThan.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned history entries", "count", n)
	}
	return n, nil
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
