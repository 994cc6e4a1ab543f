package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), Filename))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.CreateSession(context.Background(), "sess-001", "claude", "[]", "", "", 0); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func expiresIn(d time.Duration) string {
	return time.Now().UTC().Add(d).Format(time.RFC3339Nano)
}

func savePrompt(t *testing.T, s *Store, expiresInSeconds int) {
	t.Helper()
	err := s.SavePrompt(context.Background(), "prompt-001", "sess-001",
		"yes_no", "high", "Continue? [y/N]", "nonce-abc",
		expiresIn(time.Duration(expiresInSeconds)*time.Second))
	if err != nil {
		t.Fatalf("save prompt: %v", err)
	}
}

func TestDecidePromptSuccess(t *testing.T) {
	s := newTestStore(t)
	savePrompt(t, s, 300)

	n, err := s.DecidePrompt(context.Background(), "prompt-001", "reply_received", "tg:123", "y", "nonce-abc")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("valid decide returned %d, want 1", n)
	}
}

func TestDecidePromptDuplicateNonceRejected(t *testing.T) {
	s := newTestStore(t)
	savePrompt(t, s, 300)
	ctx := context.Background()

	first, _ := s.DecidePrompt(ctx, "prompt-001", "reply_received", "tg:123", "y", "nonce-abc")
	if first != 1 {
		t.Fatalf("first decide returned %d, want 1", first)
	}
	second, _ := s.DecidePrompt(ctx, "prompt-001", "reply_received", "tg:123", "y", "nonce-abc")
	if second != 0 {
		t.Fatalf("duplicate nonce replay returned %d, want 0", second)
	}
}

func TestDecidePromptExpiredRejected(t *testing.T) {
	s := newTestStore(t)
	savePrompt(t, s, -10)

	n, _ := s.DecidePrompt(context.Background(), "prompt-001", "reply_received", "tg:123", "y", "nonce-abc")
	if n != 0 {
		t.Fatalf("expired prompt decide returned %d, want 0", n)
	}
}

func TestDecidePromptWrongNonceRejected(t *testing.T) {
	s := newTestStore(t)
	savePrompt(t, s, 300)

	n, _ := s.DecidePrompt(context.Background(), "prompt-001", "reply_received", "tg:123", "y", "wrong-nonce")
	if n != 0 {
		t.Fatalf("wrong nonce decide returned %d, want 0", n)
	}
}

func TestDecidePromptUnknownIDRejected(t *testing.T) {
	s := newTestStore(t)

	n, _ := s.DecidePrompt(context.Background(), "nonexistent-id", "reply_received", "tg:123", "y", "nonce-abc")
	if n != 0 {
		t.Fatalf("unknown prompt decide returned %d, want 0", n)
	}
}

func TestDecidePromptWrongStatusRejected(t *testing.T) {
	s := newTestStore(t)
	savePrompt(t, s, 300)
	ctx := context.Background()

	if err := s.UpdatePromptStatus(ctx, "prompt-001", "resolved"); err != nil {
		t.Fatal(err)
	}
	n, _ := s.DecidePrompt(ctx, "prompt-001", "reply_received", "tg:123", "y", "nonce-abc")
	if n != 0 {
		t.Fatalf("non-awaiting prompt decide returned %d, want 0", n)
	}
}

func TestDecidePromptMarksNonceUsed(t *testing.T) {
	s := newTestStore(t)
	savePrompt(t, s, 300)
	ctx := context.Background()

	s.DecidePrompt(ctx, "prompt-001", "reply_received", "tg:123", "y", "nonce-abc")

	p, err := s.GetPrompt(ctx, "prompt-001")
	if err != nil || p == nil {
		t.Fatalf("get prompt: %v", err)
	}
	if !p.NonceUsed {
		t.Error("nonce_used not set after successful decide")
	}
	if !p.ResolvedAt.Valid {
		t.Error("resolved_at not set after successful decide")
	}
	if p.ChannelIdentity.String != "tg:123" {
		t.Errorf("channel_identity = %q, want tg:123", p.ChannelIdentity.String)
	}
	if p.ReplyValue.String != "y" {
		t.Errorf("reply_value = %q, want y", p.ReplyValue.String)
	}
}

func TestGetPromptUnknownReturnsNil(t *testing.T) {
	s := newTestStore(t)
	p, err := s.GetPrompt(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Error("unknown prompt should return nil")
	}
}

func TestExpirePrompts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SavePrompt(ctx, "overdue", "sess-001", "yes_no", "high", "x", "n1", expiresIn(-time.Minute))
	s.SavePrompt(ctx, "live", "sess-001", "yes_no", "high", "x", "n2", expiresIn(time.Hour))

	ids, err := s.ExpirePrompts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "overdue" {
		t.Fatalf("expired ids = %v, want [overdue]", ids)
	}

	p, _ := s.GetPrompt(ctx, "overdue")
	if p.Status != "expired" {
		t.Errorf("overdue status = %q, want expired", p.Status)
	}
	live, _ := s.GetPrompt(ctx, "live")
	if live.Status != "awaiting_reply" {
		t.Errorf("live status = %q, want awaiting_reply", live.Status)
	}
}
