package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Trust is consent for local file/tool access. Posture is the explicit
// governance binding (profile, autonomy default, model tier). Trust must
// never implicitly expand permissions: posture controls permissions via
// policy evaluation.

// CanonicalPath resolves symlinks and returns the absolute path, so path
// variations map to one trust record.
func CanonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Path may not exist yet; the absolute form is still canonical.
		return abs, nil
	}
	return resolved, nil
}

func hashPath(path string) string {
	canonical, err := CanonicalPath(path)
	if err != nil {
		canonical = path
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// ParseTTL parses a TTL string like "30m", "8h", or "7d".
func ParseTTL(ttl string) (time.Duration, error) {
	ttl = strings.ToLower(strings.TrimSpace(ttl))
	if ttl == "" {
		return 0, errors.New("ttl must not be empty")
	}
	suffix := ttl[len(ttl)-1]
	value, err := strconv.Atoi(ttl[:len(ttl)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid ttl format %q: expected <number><m|h|d>", ttl)
	}
	if value <= 0 {
		return 0, fmt.Errorf("ttl value must be positive, got %d", value)
	}
	switch suffix {
	case 'm':
		return time.Duration(value) * time.Minute, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown ttl suffix %q: use m, h, or d", string(suffix))
	}
}

// BuildTrustPrompt returns the yes/no trust question for a workspace path.
// The text never contains terminal semantics (Enter, Esc, arrow keys) so it
// is safe to relay over any channel.
func BuildTrustPrompt(path string) string {
	return fmt.Sprintf("Trust workspace %s for local file/tool access?\nReply: yes or no", path)
}

// NormalizeTrustReply maps a channel reply to a trust decision. The second
// return is false when the reply is ambiguous.
func NormalizeTrustReply(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "y":
		return true, true
	case "no", "n":
		return false, true
	}
	return false, false
}

// GrantOptions carries the optional attribution and TTL for a trust grant.
// TTL and TTLSeconds are mutually exclusive.
type GrantOptions struct {
	Actor      string
	Channel    string
	SessionID  string
	TTL        string
	TTLSeconds int
}

// GrantTrust records a trust grant for path. Idempotent: re-granting
// refreshes attribution and expiry on the existing record.
func (s *Store) GrantTrust(ctx context.Context, path string, opts GrantOptions) error {
	if opts.TTL != "" && opts.TTLSeconds > 0 {
		return errors.New("cannot specify both ttl and ttl_seconds")
	}
	actor := opts.Actor
	if actor == "" {
		actor = "unknown"
	}

	var expiresAt sql.NullString
	switch {
	case opts.TTL != "":
		d, err := ParseTTL(opts.TTL)
		if err != nil {
			return err
		}
		expiresAt = sql.NullString{String: time.Now().UTC().Add(d).Format(time.RFC3339Nano), Valid: true}
	case opts.TTLSeconds > 0:
		expiresAt = sql.NullString{
			String: time.Now().UTC().Add(time.Duration(opts.TTLSeconds) * time.Second).Format(time.RFC3339Nano),
			Valid:  true,
		}
	}

	canonical, err := CanonicalPath(path)
	if err != nil {
		return err
	}
	now := nowUTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workspace_trust
		    (id, path, path_hash, trusted, actor, channel, session_id,
		     granted_at, revoked_at, trust_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?, NULL, ?, ?, ?)
		ON CONFLICT(path_hash) DO UPDATE SET
		    trusted          = 1,
		    actor            = excluded.actor,
		    channel          = excluded.channel,
		    session_id       = excluded.session_id,
		    granted_at       = excluded.granted_at,
		    revoked_at       = NULL,
		    trust_expires_at = excluded.trust_expires_at,
		    updated_at       = excluded.updated_at`,
		uuid.NewString(), canonical, hashPath(path), actor, opts.Channel, opts.SessionID,
		now, expiresAt, now, now)
	if err != nil {
		return fmt.Errorf("grant trust: %w", err)
	}
	slog.Info("workspace_trust_granted",
		"path", canonical, "actor", actor, "channel", opts.Channel, "expires_at", expiresAt.String)
	return nil
}

// RevokeTrust records a trust revocation for path. The record is kept for
// audit; only the trusted bit flips.
func (s *Store) RevokeTrust(ctx context.Context, path string) error {
	now := nowUTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE workspace_trust
		   SET trusted = 0, revoked_at = ?, trust_expires_at = NULL, updated_at = ?
		 WHERE path_hash = ?`,
		now, now, hashPath(path))
	if err != nil {
		return fmt.Errorf("revoke trust: %w", err)
	}
	slog.Info("workspace_trust_revoked", "path", path)
	return nil
}

// DeleteWorkspace permanently removes the trust record for path. Returns
// true when a record existed.
func (s *Store) DeleteWorkspace(ctx context.Context, path string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM workspace_trust WHERE path_hash = ?`, hashPath(path))
	if err != nil {
		return false, fmt.Errorf("delete workspace: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		slog.Info("workspace_deleted", "path", path)
	}
	return n > 0, nil
}

// trustExpired reports whether an expiry timestamp is set and in the past.
// Unparseable timestamps never expire trust.
func trustExpired(expiresAt sql.NullString) bool {
	if !expiresAt.Valid || expiresAt.String == "" {
		return false
	}
	exp, err := time.Parse(time.RFC3339Nano, expiresAt.String)
	if err != nil {
		exp, err = time.Parse(time.RFC3339, expiresAt.String)
		if err != nil {
			return false
		}
	}
	return time.Now().UTC().After(exp)
}

// GetTrust reports whether path is currently trusted. Read-only: TTL expiry
// is checked at read time, never written back.
func (s *Store) GetTrust(ctx context.Context, path string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT trusted, trust_expires_at FROM workspace_trust WHERE path_hash = ?`,
		hashPath(path))
	var trusted bool
	var expiresAt sql.NullString
	err := row.Scan(&trusted, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get trust: %w", err)
	}
	if !trusted {
		return false, nil
	}
	if trustExpired(expiresAt) {
		return false, nil
	}
	return true, nil
}

// AutonomyDefaults are the modes a posture binding may select.
var validAutonomyDefaults = map[string]bool{"OFF": true, "ASSIST": true, "FULL": true}

// Posture is the governance binding attached to a workspace record.
// Only these fields may be set via SetPosture; zero-value fields are
// left untouched.
type Posture struct {
	ProfileName          *string
	AutonomyDefault      *string
	ModelTier            *string
	ToolAllowlistProfile *string
	PostureNotes         *string
}

// SetPosture updates posture fields on a workspace record. AutonomyDefault
// is uppercased and must be one of OFF, ASSIST, FULL.
func (s *Store) SetPosture(ctx context.Context, workspaceID string, p Posture) error {
	var sets []string
	var args []any

	add := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *v)
		}
	}
	if p.AutonomyDefault != nil && *p.AutonomyDefault != "" {
		mode := strings.ToUpper(*p.AutonomyDefault)
		if !validAutonomyDefaults[mode] {
			return fmt.Errorf("invalid autonomy_default %q: valid values are ASSIST, FULL, OFF", mode)
		}
		p.AutonomyDefault = &mode
	}
	add("profile_name", p.ProfileName)
	add("autonomy_default", p.AutonomyDefault)
	add("model_tier", p.ModelTier)
	add("tool_allowlist_profile", p.ToolAllowlistProfile)
	add("posture_notes", p.PostureNotes)
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, nowUTC(), workspaceID)

	_, err := s.db.ExecContext(ctx,
		"UPDATE workspace_trust SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("set posture: %w", err)
	}
	slog.Info("workspace_posture_updated", "workspace_id", workspaceID)
	return nil
}

// PostureView is the read side of a posture binding.
type PostureView struct {
	WorkspaceID          string
	Path                 string
	ProfileName          sql.NullString
	AutonomyDefault      sql.NullString
	ModelTier            sql.NullString
	ToolAllowlistProfile sql.NullString
	PostureNotes         sql.NullString
}

// GetPosture returns the posture binding for a workspace, or nil if the
// workspace is unknown.
func (s *Store) GetPosture(ctx context.Context, workspaceID string) (*PostureView, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, profile_name, autonomy_default, model_tier,
		       tool_allowlist_profile, posture_notes
		  FROM workspace_trust WHERE id = ?`, workspaceID)
	var v PostureView
	err := row.Scan(&v.WorkspaceID, &v.Path, &v.ProfileName, &v.AutonomyDefault,
		&v.ModelTier, &v.ToolAllowlistProfile, &v.PostureNotes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get posture: %w", err)
	}
	return &v, nil
}

// WorkspaceContext is the structured payload the policy evaluator receives.
type WorkspaceContext struct {
	WorkspaceID          string
	CanonicalPath        string
	Trusted              bool
	TrustExpiresAt       string
	ProfileName          string
	AutonomyDefault      string
	ModelTier            string
	ToolAllowlistProfile string
}

// GetWorkspaceContext returns the trust and posture context for path.
// Unknown workspaces yield an untrusted context with the canonical path
// filled in.
func (s *Store) GetWorkspaceContext(ctx context.Context, path string) (WorkspaceContext, error) {
	canonical, err := CanonicalPath(path)
	if err != nil {
		return WorkspaceContext{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, trusted, trust_expires_at, profile_name, autonomy_default,
		       model_tier, tool_allowlist_profile
		  FROM workspace_trust WHERE path_hash = ?`, hashPath(path))

	var (
		id                                         string
		trusted                                    bool
		expiresAt, profile, autonomy, tier, toolAL sql.NullString
	)
	err = row.Scan(&id, &trusted, &expiresAt, &profile, &autonomy, &tier, &toolAL)
	if errors.Is(err, sql.ErrNoRows) {
		return WorkspaceContext{CanonicalPath: canonical}, nil
	}
	if err != nil {
		return WorkspaceContext{}, fmt.Errorf("workspace context: %w", err)
	}
	if trusted && trustExpired(expiresAt) {
		trusted = false
	}
	return WorkspaceContext{
		WorkspaceID:          id,
		CanonicalPath:        canonical,
		Trusted:              trusted,
		TrustExpiresAt:       expiresAt.String,
		ProfileName:          profile.String,
		AutonomyDefault:      autonomy.String,
		ModelTier:            tier.String,
		ToolAllowlistProfile: toolAL.String,
	}, nil
}

// WorkspaceRecord is the full trust row with the effective trust state
// computed at read time.
type WorkspaceRecord struct {
	ID                   string
	Path                 string
	PathHash             string
	Trusted              bool
	TrustExpired         bool
	Actor                string
	Channel              string
	SessionID            string
	GrantedAt            sql.NullString
	RevokedAt            sql.NullString
	TrustExpiresAt       sql.NullString
	ProfileName          sql.NullString
	AutonomyDefault      sql.NullString
	ModelTier            sql.NullString
	ToolAllowlistProfile sql.NullString
	PostureNotes         sql.NullString
	CreatedAt            string
	UpdatedAt            string
}

// EffectivelyTrusted folds TTL expiry into the trusted bit.
func (w WorkspaceRecord) EffectivelyTrusted() bool {
	return w.Trusted && !w.TrustExpired
}

const workspaceColumns = `id, path, path_hash, trusted, actor, channel, session_id,
	granted_at, revoked_at, trust_expires_at, profile_name, autonomy_default,
	model_tier, tool_allowlist_profile, posture_notes, created_at, updated_at`

func scanWorkspace(row interface{ Scan(...any) error }) (WorkspaceRecord, error) {
	var w WorkspaceRecord
	err := row.Scan(&w.ID, &w.Path, &w.PathHash, &w.Trusted, &w.Actor, &w.Channel,
		&w.SessionID, &w.GrantedAt, &w.RevokedAt, &w.TrustExpiresAt, &w.ProfileName,
		&w.AutonomyDefault, &w.ModelTier, &w.ToolAllowlistProfile, &w.PostureNotes,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return w, err
	}
	w.TrustExpired = w.Trusted && trustExpired(w.TrustExpiresAt)
	return w, nil
}

// ListWorkspaces returns all trust records, newest first.
func (s *Store) ListWorkspaces(ctx context.Context) ([]WorkspaceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+workspaceColumns+" FROM workspace_trust ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var out []WorkspaceRecord
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetWorkspaceStatus returns the full trust record for path, or nil if the
// workspace is unknown.
func (s *Store) GetWorkspaceStatus(ctx context.Context, path string) (*WorkspaceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+workspaceColumns+" FROM workspace_trust WHERE path_hash = ?", hashPath(path))
	w, err := scanWorkspace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("workspace status: %w", err)
	}
	return &w, nil
}

// GetWorkspaceByID returns a trust record by its ID, or nil if unknown.
func (s *Store) GetWorkspaceByID(ctx context.Context, workspaceID string) (*WorkspaceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+workspaceColumns+" FROM workspace_trust WHERE id = ?", workspaceID)
	w, err := scanWorkspace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("workspace by id: %w", err)
	}
	return &w, nil
}
