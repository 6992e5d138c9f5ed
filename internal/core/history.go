package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Load history status values.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// HistoryEntry is one recorded load attempt. It carries enough of the
// connection to identify the destination but never the password.
type HistoryEntry struct {
	ID          string         `json:"id"`
	FileName    string         `json:"fileName"`
	Kind        DBKind         `json:"kind"`
	Host        string         `json:"host"`
	Database    string         `json:"database"`
	TableName   string         `json:"table"`
	Policy      ConflictPolicy `json:"policy"`
	Columns     []string       `json:"columns"`
	RowsWritten int            `json:"rowsWritten"`
	Status      string         `json:"status"`
	Error       string         `json:"error,omitempty"`
	ClientIP    string         `json:"clientIp,omitempty"`
	UserAgent   string         `json:"userAgent,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	Duration    time.Duration  `json:"duration"`
}

const historySchema = `
CREATE TABLE IF NOT EXISTS load_history (
	id            TEXT PRIMARY KEY,
	file_name     TEXT NOT NULL,
	db_kind       TEXT NOT NULL,
	host          TEXT NOT NULL,
	database_name TEXT NOT NULL,
	table_name    TEXT NOT NULL,
	policy        TEXT NOT NULL,
	columns       TEXT NOT NULL,
	rows_written  INTEGER NOT NULL,
	status        TEXT NOT NULL,
	error         TEXT NOT NULL,
	ip            TEXT NOT NULL,
	user_agent    TEXT NOT NULL,
	started_at    INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS load_history_started_at ON load_history (started_at);
`

// HistoryStore keeps load history in a local SQLite file.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore opens (creating if needed) the history database at path.
func NewHistoryStore(ctx context.Context, path string) (*HistoryStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

// Record stores one load attempt.
func (h *HistoryStore) Record(ctx context.Context, e HistoryEntry) error {
	cols, err := json.Marshal(e.Columns)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO load_history (
			id, file_name, db_kind, host, database_name, table_name, policy, columns,
			rows_written, status, error, ip, user_agent, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.FileName, string(e.Kind), e.Host, e.Database, e.TableName, string(e.Policy), string(cols),
		e.RowsWritten, e.Status, e.Error, e.ClientIP, e.UserAgent,
		e.StartedAt.UnixMilli(), e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record load %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (h *HistoryStore) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT id, file_name, db_kind, host, database_name, table_name, policy, columns,
			rows_written, status, error, ip, user_agent, started_at, duration_ms
		FROM load_history
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			e                  HistoryEntry
			kind, policy, cols string
			startedMs, durMs   int64
		)
		if err := rows.Scan(
			&e.ID, &e.FileName, &kind, &e.Host, &e.Database, &e.TableName, &policy, &cols,
			&e.RowsWritten, &e.Status, &e.Error, &e.ClientIP, &e.UserAgent, &startedMs, &durMs,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Kind = DBKind(kind)
		e.Policy = ConflictPolicy(policy)
		if err := json.Unmarshal([]byte(cols), &e.Columns); err != nil {
			return nil, fmt.Errorf("decode columns of %s: %w", e.ID, err)
		}
		e.StartedAt = time.UnixMilli(startedMs).UTC()
		e.Duration = time.Duration(durMs) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return entries, nil
}

// Prune deletes entries that started before cutoff.
func (h *HistoryStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, "DELETE FROM load_history WHERE started_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func (h *HistoryStore) Close() error {
	return h.db.Close()
}
