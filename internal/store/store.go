// Package store persists sessions, prompts, workspace governance, and the
// hash-chained audit ledger in a single SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Filename is the default database file name under the config directory.
const Filename = "atlasbridge.db"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    tool        TEXT NOT NULL,
    command     TEXT NOT NULL,
    cwd         TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    pid         INTEGER,
    started_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
    ended_at    TEXT,
    exit_code   INTEGER,
    label       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS prompts (
    id               TEXT PRIMARY KEY,
    session_id       TEXT NOT NULL REFERENCES sessions(id),
    prompt_type      TEXT NOT NULL,
    confidence       TEXT NOT NULL,
    excerpt          TEXT NOT NULL,
    status           TEXT NOT NULL DEFAULT 'awaiting_reply',
    nonce            TEXT NOT NULL,
    nonce_used       INTEGER NOT NULL DEFAULT 0,
    expires_at       TEXT NOT NULL,
    channel_identity TEXT,
    reply_value      TEXT,
    created_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
    resolved_at      TEXT
);

CREATE TABLE IF NOT EXISTS workspace_trust (
    id                     TEXT PRIMARY KEY,
    path                   TEXT NOT NULL,
    path_hash              TEXT NOT NULL UNIQUE,
    trusted                INTEGER NOT NULL DEFAULT 0,
    actor                  TEXT NOT NULL DEFAULT 'unknown',
    channel                TEXT NOT NULL DEFAULT '',
    session_id             TEXT NOT NULL DEFAULT '',
    granted_at             TEXT,
    revoked_at             TEXT,
    trust_expires_at       TEXT,
    profile_name           TEXT,
    autonomy_default       TEXT,
    model_tier             TEXT,
    tool_allowlist_profile TEXT,
    posture_notes          TEXT,
    created_at             TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
    updated_at             TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE TABLE IF NOT EXISTS workspace_scan_artifacts (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    workspace_id      TEXT NOT NULL,
    ruleset_version   TEXT NOT NULL,
    inputs_hash       TEXT NOT NULL,
    risk_tags         TEXT NOT NULL,
    file_count        INTEGER NOT NULL,
    suggested_profile TEXT,
    raw_results       TEXT NOT NULL,
    created_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
    UNIQUE(workspace_id, inputs_hash)
);

CREATE TABLE IF NOT EXISTS audit_events (
    id         TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    payload    TEXT NOT NULL,
    prev_hash  TEXT NOT NULL DEFAULT '',
    hash       TEXT NOT NULL,
    timestamp  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
`

// Store wraps the SQLite database. A single connection is pinned so that
// multi-statement sequences (archival via ATTACH) stay on one handle.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Path() string { return s.path }

// nowUTC returns the canonical timestamp format used across all tables.
// RFC 3339 in UTC sorts lexicographically, which the expiry and archival
// comparisons rely on.
func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// CreateSession records a supervised CLI session.
func (s *Store) CreateSession(ctx context.Context, id, tool, command, cwd, label string, pid int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, tool, command, cwd, status, pid, started_at, label)
		VALUES (?, ?, ?, ?, 'running', ?, ?, ?)`,
		id, tool, command, cwd, pid, nowUTC(), label)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// EndSession marks a session finished with its exit code.
func (s *Store) EndSession(ctx context.Context, id string, exitCode int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = 'ended', ended_at = ?, exit_code = ? WHERE id = ?`,
		nowUTC(), exitCode, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// Session is one supervised CLI session row.
type Session struct {
	ID        string
	Tool      string
	Command   string
	Cwd       string
	Status    string
	PID       sql.NullInt64
	StartedAt string
	EndedAt   sql.NullString
	ExitCode  sql.NullInt64
	Label     string
}

// SessionsForWorkspace returns sessions whose cwd is at or under the
// workspace path, newest first.
func (s *Store) SessionsForWorkspace(ctx context.Context, workspacePath string, limit int) ([]Session, error) {
	cp, err := CanonicalPath(workspacePath)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tool, command, cwd, status, pid, started_at, ended_at, exit_code, label
		  FROM sessions
		 WHERE cwd = ? OR cwd LIKE ?
		 ORDER BY started_at DESC
		 LIMIT ?`,
		cp, cp+"/%", limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Tool, &sess.Command, &sess.Cwd, &sess.Status,
			&sess.PID, &sess.StartedAt, &sess.EndedAt, &sess.ExitCode, &sess.Label); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
