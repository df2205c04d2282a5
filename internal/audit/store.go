// Package audit persists per-request terminal outcomes to SQLite. The log
// holds states and error kinds only; message bodies are never stored.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"groundbot/internal/domain"

	_ "modernc.org/sqlite"
)

// Store implements domain.AuditStore using SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		id              TEXT PRIMARY KEY,
		channel         TEXT NOT NULL,
		conversation_id TEXT,
		event_id        TEXT,
		state           TEXT NOT NULL,
		error_kind      TEXT,
		latency_ms      INTEGER DEFAULT 0,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_requests_time ON requests(created_at);
	CREATE INDEX IF NOT EXISTS idx_requests_state ON requests(state, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) RecordOutcome(ctx context.Context, out domain.RequestOutcome) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (id, channel, conversation_id, event_id, state, error_kind, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.Channel, out.ConversationID, out.EventID,
		string(out.State), out.ErrorKind, out.LatencyMS, out.CreatedAt,
	)
	return err
}

func (s *Store) RecentOutcomes(ctx context.Context, limit int) ([]domain.RequestOutcome, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, conversation_id, event_id, state, error_kind, latency_ms, created_at
		 FROM requests ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []domain.RequestOutcome
	for rows.Next() {
		var out domain.RequestOutcome
		var state string
		if err := rows.Scan(&out.ID, &out.Channel, &out.ConversationID, &out.EventID,
			&state, &out.ErrorKind, &out.LatencyMS, &out.CreatedAt); err != nil {
			return nil, err
		}
		out.State = domain.State(state)
		outcomes = append(outcomes, out)
	}
	return outcomes, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
