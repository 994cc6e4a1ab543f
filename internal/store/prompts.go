package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PromptRow is one detected prompt as stored.
type PromptRow struct {
	ID              string
	SessionID       string
	PromptType      string
	Confidence      string
	Excerpt         string
	Status          string
	Nonce           string
	NonceUsed       bool
	ExpiresAt       string
	ChannelIdentity sql.NullString
	ReplyValue      sql.NullString
	CreatedAt       string
	ResolvedAt      sql.NullString
}

// SavePrompt records a newly detected prompt in awaiting_reply status.
// The excerpt must already be sanitized and truncated by the caller.
func (s *Store) SavePrompt(ctx context.Context, id, sessionID, promptType, confidence, excerpt, nonce, expiresAt string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompts (id, session_id, prompt_type, confidence, excerpt,
		                     status, nonce, nonce_used, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, 'awaiting_reply', ?, 0, ?, ?)`,
		id, sessionID, promptType, confidence, excerpt, nonce, expiresAt, nowUTC())
	if err != nil {
		return fmt.Errorf("save prompt: %w", err)
	}
	return nil
}

// GetPrompt returns the prompt row, or nil if unknown.
func (s *Store) GetPrompt(ctx context.Context, id string) (*PromptRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, prompt_type, confidence, excerpt, status,
		       nonce, nonce_used, expires_at, channel_identity, reply_value,
		       created_at, resolved_at
		  FROM prompts WHERE id = ?`, id)

	var p PromptRow
	err := row.Scan(&p.ID, &p.SessionID, &p.PromptType, &p.Confidence, &p.Excerpt,
		&p.Status, &p.Nonce, &p.NonceUsed, &p.ExpiresAt, &p.ChannelIdentity,
		&p.ReplyValue, &p.CreatedAt, &p.ResolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt: %w", err)
	}
	return &p, nil
}

// DecidePrompt is the atomic injection guard. Every precondition lives in
// the WHERE clause of a single UPDATE, so exactly one caller can ever win:
//
//   - the prompt exists and is still awaiting_reply
//   - the nonce matches and has not been consumed
//   - the prompt has not expired
//
// Returns 1 when the caller won the decide, 0 when any precondition failed.
// Callers must treat 0 as a hard rejection, never retry with force.
func (s *Store) DecidePrompt(ctx context.Context, promptID, newStatus, channelIdentity, replyValue, nonce string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE prompts
		   SET status = ?,
		       channel_identity = ?,
		       reply_value = ?,
		       nonce_used = 1,
		       resolved_at = ?
		 WHERE id = ?
		   AND status = 'awaiting_reply'
		   AND nonce = ?
		   AND nonce_used = 0
		   AND expires_at > ?`,
		newStatus, channelIdentity, replyValue, nowUTC(), promptID, nonce, nowUTC())
	if err != nil {
		return 0, fmt.Errorf("decide prompt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("decide prompt: %w", err)
	}
	return n, nil
}

// UpdatePromptStatus moves a prompt to a new status without the nonce guard.
// Used for engine-driven transitions (injected, resolved, failed) after the
// decide has already been won.
func (s *Store) UpdatePromptStatus(ctx context.Context, promptID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE prompts SET status = ? WHERE id = ?`, status, promptID)
	if err != nil {
		return fmt.Errorf("update prompt status: %w", err)
	}
	return nil
}

// ExpirePrompts marks every overdue awaiting_reply prompt expired and
// returns the IDs that were transitioned.
func (s *Store) ExpirePrompts(ctx context.Context) ([]string, error) {
	now := nowUTC()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM prompts
		 WHERE status = 'awaiting_reply' AND expires_at <= ?`, now)
	if err != nil {
		return nil, fmt.Errorf("expire prompts: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE prompts SET status = 'expired', resolved_at = ?
		 WHERE status = 'awaiting_reply' AND expires_at <= ?`, now, now)
	if err != nil {
		return nil, fmt.Errorf("expire prompts: %w", err)
	}
	return ids, nil
}
