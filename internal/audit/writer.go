// Package audit writes governance events to the hash-chained ledger.
// Payloads never contain raw message bodies: every excerpt goes through
// SafeExcerpt and every body is reduced to its SHA-256 hash.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"github.com/google/uuid"

	"github.com/atlasbridge/atlasbridge/internal/redact"
	"github.com/atlasbridge/atlasbridge/internal/store"
)

// maxExcerptChars caps how much of a message body may appear in the ledger.
const maxExcerptChars = 20

// MessageHash returns the SHA-256 hex digest of a message body.
func MessageHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// SafeExcerpt reduces a message body to an audit-safe excerpt. Password
// input always wins over every other option, then rate limiting; otherwise
// the body is token-redacted and truncated.
func SafeExcerpt(body string, isPassword, isRateLimited bool) string {
	if isPassword {
		return "[REDACTED]"
	}
	if isRateLimited {
		return "[rate limited]"
	}
	excerpt := redact.Redact(body)
	// Truncate on runes so a multi-byte character is never split.
	if runes := []rune(excerpt); len(runes) > maxExcerptChars {
		excerpt = string(runes[:maxExcerptChars])
	}
	return excerpt
}

// Writer is the audit facade over the store ledger. Writes are best-effort:
// a failed append is logged and swallowed so audit trouble never blocks the
// decision pipeline.
type Writer struct {
	store *store.Store
}

func NewWriter(s *store.Store) *Writer {
	return &Writer{store: s}
}

func (w *Writer) append(ctx context.Context, eventType string, payload map[string]any) {
	payload = redact.RedactMap(payload)
	if err := w.store.AppendAuditEvent(ctx, uuid.NewString(), eventType, payload); err != nil {
		slog.Error("audit_append_failed", "event_type", eventType, "error", err)
	}
}

// SessionStarted records the start of a supervised CLI session. Command
// arguments are redacted before persisting.
func (w *Writer) SessionStarted(ctx context.Context, sessionID, tool string, command []string) {
	args := redact.RedactArgs(command)
	cmd := make([]any, len(args))
	for i, a := range args {
		cmd[i] = a
	}
	w.append(ctx, "session_started", map[string]any{
		"session_id": sessionID,
		"tool":       tool,
		"command":    cmd,
	})
}

// SessionEnded records session termination with its exit code.
func (w *Writer) SessionEnded(ctx context.Context, sessionID string, exitCode int) {
	w.append(ctx, "session_ended", map[string]any{
		"session_id": sessionID,
		"exit_code":  exitCode,
	})
}

// PromptDetected records a classified prompt. Only type and confidence are
// persisted here; the sanitized excerpt lives on the prompt row.
func (w *Writer) PromptDetected(ctx context.Context, sessionID, promptID, promptType, confidence string) {
	w.append(ctx, "prompt_detected", map[string]any{
		"session_id":  sessionID,
		"prompt_id":   promptID,
		"prompt_type": promptType,
		"confidence":  confidence,
	})
}

// ReplyReceived records a reply that won the injection guard.
func (w *Writer) ReplyReceived(ctx context.Context, sessionID, promptID, channelIdentity, replyValue, nonce string) {
	w.append(ctx, "reply_received", map[string]any{
		"session_id":       sessionID,
		"prompt_id":        promptID,
		"channel_identity": channelIdentity,
		"reply_hash":       MessageHash(replyValue),
		"reply_excerpt":    SafeExcerpt(replyValue, false, false),
		"nonce":            nonce,
	})
}

// ReplyInjected records a reply delivered to the CLI session.
func (w *Writer) ReplyInjected(ctx context.Context, sessionID, promptID string) {
	w.append(ctx, "reply_injected", map[string]any{
		"session_id": sessionID,
		"prompt_id":  promptID,
	})
}

// PromptExpired records a prompt that timed out before any reply won.
func (w *Writer) PromptExpired(ctx context.Context, sessionID, promptID string) {
	w.append(ctx, "prompt_expired", map[string]any{
		"session_id": sessionID,
		"prompt_id":  promptID,
	})
}

// AutopilotDecision records a policy decision alongside the decision trace.
func (w *Writer) AutopilotDecision(ctx context.Context, sessionID, promptID, actionType, ruleID, policyHash string) {
	w.append(ctx, "autopilot_decision", map[string]any{
		"session_id":      sessionID,
		"prompt_id":       promptID,
		"action_type":     actionType,
		"matched_rule_id": ruleID,
		"policy_hash":     policyHash,
	})
}

// MessageOptions carries the per-message flags for gate events.
type MessageOptions struct {
	IsPassword    bool
	IsRateLimited bool
}

// ChannelMessageAccepted records a gate accept. The raw body is reduced to
// hash plus safe excerpt before it reaches the ledger.
func (w *Writer) ChannelMessageAccepted(ctx context.Context, sessionID, promptID, channel, userID, body, conversationState, acceptType string, opts MessageOptions) {
	w.append(ctx, "channel_message_accepted", map[string]any{
		"session_id":         sessionID,
		"prompt_id":          promptID,
		"channel":            channel,
		"user_id":            userID,
		"conversation_state": conversationState,
		"accept_type":        acceptType,
		"message_hash":       MessageHash(body),
		"message_excerpt":    SafeExcerpt(body, opts.IsPassword, opts.IsRateLimited),
	})
}

// ChannelMessageRejected records a gate reject with its reason code.
func (w *Writer) ChannelMessageRejected(ctx context.Context, sessionID, promptID, channel, userID, body, conversationState, reasonCode string, opts MessageOptions) {
	w.append(ctx, "channel_message_rejected", map[string]any{
		"session_id":         sessionID,
		"prompt_id":          promptID,
		"channel":            channel,
		"user_id":            userID,
		"conversation_state": conversationState,
		"reason_code":        reasonCode,
		"message_hash":       MessageHash(body),
		"message_excerpt":    SafeExcerpt(body, opts.IsPassword, opts.IsRateLimited),
	})
}

// WorkspaceTrustChanged records a trust grant or revocation.
func (w *Writer) WorkspaceTrustChanged(ctx context.Context, path, action, actor, channel string) {
	w.append(ctx, "workspace_trust_changed", map[string]any{
		"path":    path,
		"action":  action,
		"actor":   actor,
		"channel": channel,
	})
}
