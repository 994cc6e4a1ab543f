package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
)

// AuditEvent is one row of the hash-chained audit ledger.
type AuditEvent struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
	Timestamp string         `json:"timestamp"`
}

// auditHash chains one event to its predecessor. The payload participates
// in canonical JSON form so key order never affects the digest.
func auditHash(prevHash, eventID, eventType string, payloadJSON []byte) string {
	canonical, err := jcs.Transform(payloadJSON)
	if err != nil {
		canonical = payloadJSON
	}
	sum := sha256.Sum256([]byte(prevHash + eventID + eventType + string(canonical)))
	return hex.EncodeToString(sum[:])
}

// AppendAuditEvent appends one event to the ledger, chained to the most
// recent row. The payload must already be free of secrets and raw message
// bodies; the store does not redact.
func (s *Store) AppendAuditEvent(ctx context.Context, eventID, eventType string, payload map[string]any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}

	var prevHash string
	row := s.db.QueryRowContext(ctx,
		`SELECT hash FROM audit_events ORDER BY rowid DESC LIMIT 1`)
	if err := row.Scan(&prevHash); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("append audit event: %w", err)
	}

	hash := auditHash(prevHash, eventID, eventType, payloadJSON)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, event_type, payload, prev_hash, hash, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		eventID, eventType, string(payloadJSON), prevHash, hash, nowUTC())
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// RecentAuditEvents returns up to limit events, newest first.
func (s *Store) RecentAuditEvents(ctx context.Context, limit int) ([]AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, payload, prev_hash, hash, timestamp
		  FROM audit_events ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var payloadJSON string
		if err := rows.Scan(&e.ID, &e.EventType, &payloadJSON, &e.PrevHash, &e.Hash, &e.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
			e.Payload = map[string]any{"raw": payloadJSON}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountAuditEvents returns the ledger row count.
func (s *Store) CountAuditEvents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM audit_events`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS archive.audit_events (
    id         TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    payload    TEXT NOT NULL,
    prev_hash  TEXT NOT NULL DEFAULT '',
    hash       TEXT NOT NULL,
    timestamp  TEXT NOT NULL
)`

// ArchiveAuditEvents moves events older than cutoff (RFC 3339 UTC) into a
// separate SQLite archive. Events are moved, never deleted: the copy and
// the delete happen in one transaction. Returns the number of rows moved.
// When nothing is older than the cutoff, no archive file is created.
func (s *Store) ArchiveAuditEvents(ctx context.Context, archivePath, cutoff string) (int, error) {
	var pending int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM audit_events WHERE timestamp < ?`, cutoff).Scan(&pending)
	if err != nil {
		return 0, fmt.Errorf("archive audit events: %w", err)
	}
	if pending == 0 {
		return 0, nil
	}
	return s.moveAuditEvents(ctx, archivePath,
		`INSERT INTO archive.audit_events
		 SELECT id, event_type, payload, prev_hash, hash, timestamp
		   FROM main.audit_events WHERE timestamp < ?`,
		`DELETE FROM main.audit_events WHERE timestamp < ?`,
		cutoff)
}

// ArchiveAuditEventsByCount keeps the newest maxRows events and moves the
// rest to the archive, oldest first. No file is created when the ledger is
// within the cap.
func (s *Store) ArchiveAuditEventsByCount(ctx context.Context, archivePath string, maxRows int) (int, error) {
	total, err := s.CountAuditEvents(ctx)
	if err != nil {
		return 0, err
	}
	excess := total - maxRows
	if excess <= 0 {
		return 0, nil
	}
	// rowid breaks timestamp ties so the copy and the delete are guaranteed
	// to select the same rows.
	return s.moveAuditEvents(ctx, archivePath,
		`INSERT INTO archive.audit_events
		 SELECT id, event_type, payload, prev_hash, hash, timestamp
		   FROM main.audit_events
		  ORDER BY timestamp ASC, rowid ASC LIMIT ?`,
		`DELETE FROM main.audit_events WHERE id IN (
		     SELECT id FROM main.audit_events ORDER BY timestamp ASC, rowid ASC LIMIT ?)`,
		excess)
}

// moveAuditEvents attaches the archive database and runs the copy and
// delete atomically on the pinned connection.
func (s *Store) moveAuditEvents(ctx context.Context, archivePath, insertSQL, deleteSQL string, arg any) (int, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("archive audit events: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `ATTACH DATABASE ? AS archive`, archivePath); err != nil {
		return 0, fmt.Errorf("attach archive: %w", err)
	}
	defer conn.ExecContext(ctx, `DETACH DATABASE archive`)

	if _, err := conn.ExecContext(ctx, archiveSchema); err != nil {
		return 0, fmt.Errorf("create archive table: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return 0, fmt.Errorf("archive audit events: %w", err)
	}
	res, err := conn.ExecContext(ctx, insertSQL, arg)
	if err != nil {
		conn.ExecContext(ctx, `ROLLBACK`)
		return 0, fmt.Errorf("copy to archive: %w", err)
	}
	moved, err := res.RowsAffected()
	if err != nil {
		conn.ExecContext(ctx, `ROLLBACK`)
		return 0, err
	}
	if _, err := conn.ExecContext(ctx, deleteSQL, arg); err != nil {
		conn.ExecContext(ctx, `ROLLBACK`)
		return 0, fmt.Errorf("delete archived rows: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		return 0, fmt.Errorf("archive audit events: %w", err)
	}
	return int(moved), nil
}
