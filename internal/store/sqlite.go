package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/worldlog/internal/domain"
	_ "modernc.org/sqlite"
)

// DefaultListLimit caps ListSessions when no positive limit is given.
const DefaultListLimit = 50

// SQLiteStore implements Archive using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Archive.
var _ Archive = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed archive.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS archived_sessions (
		id TEXT PRIMARY KEY,
		ended_at INTEGER NOT NULL,
		entry_count INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_archived_sessions_ended ON archived_sessions(ended_at);

	CREATE TABLE IF NOT EXISTS archived_entries (
		session_id TEXT NOT NULL REFERENCES archived_sessions(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		user_text TEXT NOT NULL,
		host_text TEXT NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSession stores a session and its entries in one transaction.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.ArchivedSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("failed to roll back archive transaction", "error", rbErr)
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO archived_sessions (id, ended_at, entry_count) VALUES (?, ?, ?)`,
		session.ID, session.EndedAt.Unix(), len(session.Entries),
	)
	if err != nil {
		return fmt.Errorf("insert archived session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO archived_entries (session_id, seq, user_text, host_text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare entry insert: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			slog.Warn("failed to close entry statement", "error", closeErr)
		}
	}()

	for i, e := range session.Entries {
		if _, err := stmt.ExecContext(ctx, session.ID, i, e.User, e.Host); err != nil {
			return fmt.Errorf("insert archived entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	session.EntryCount = len(session.Entries)
	return nil
}

// ListSessions returns the most recently ended sessions without their entries.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*domain.ArchivedSession, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ended_at, entry_count
		FROM archived_sessions
		ORDER BY ended_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query archived sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close archived sessions rows", "error", closeErr)
		}
	}()

	sessions := []*domain.ArchivedSession{}
	for rows.Next() {
		var session domain.ArchivedSession
		var endedAt int64
		if err := rows.Scan(&session.ID, &endedAt, &session.EntryCount); err != nil {
			return nil, fmt.Errorf("scan archived session row: %w", err)
		}
		session.EndedAt = time.Unix(endedAt, 0).UTC()
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived sessions: %w", err)
	}
	return sessions, nil
}

// GetSession returns one archived session with its entries.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.ArchivedSession, error) {
	var session domain.ArchivedSession
	var endedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, ended_at, entry_count FROM archived_sessions WHERE id = ?`, id,
	).Scan(&session.ID, &endedAt, &session.EntryCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan archived session: %w", err)
	}
	session.EndedAt = time.Unix(endedAt, 0).UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_text, host_text FROM archived_entries WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query archived entries: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close archived entries rows", "error", closeErr)
		}
	}()

	session.Entries = []domain.HistoryEntry{}
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.User, &e.Host); err != nil {
			return nil, fmt.Errorf("scan archived entry: %w", err)
		}
		session.Entries = append(session.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived entries: %w", err)
	}
	return &session, nil
}
