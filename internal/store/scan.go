package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScannerRulesetVersion is bumped whenever the risk patterns change, so
// artifacts from different rulesets never dedup against each other.
const ScannerRulesetVersion = "1.0.0"

const defaultScanMaxFiles = 5000

// riskPatterns maps a risk tag to filename substrings that indicate it.
var riskPatterns = map[string][]string{
	"iac": {
		"terraform", ".tf", "ansible", "playbook", "docker-compose",
		"dockerfile", "k8s", "kubernetes", "helm", "cloudformation",
		".cdk.", "pulumi",
	},
	"secrets_present": {
		".env", ".env.local", ".env.production", "credentials", "secrets",
		".pem", ".key", ".p12", ".pfx", "service-account", "serviceaccount",
		"id_rsa", "id_ed25519",
	},
	"deployment": {
		"deploy", "ci/cd", ".github/workflows", ".gitlab-ci", "jenkinsfile",
		"procfile", "serverless", "fly.toml", "railway.json", "vercel.json",
		"netlify.toml",
	},
}

// riskTagOrder keeps tag output deterministic across runs.
var riskTagOrder = []string{"iac", "secrets_present", "deployment"}

// ScanArtifact is the stored result of one advisory workspace scan.
type ScanArtifact struct {
	WorkspaceID      string         `json:"workspace_id"`
	RulesetVersion   string         `json:"ruleset_version"`
	InputsHash       string         `json:"inputs_hash"`
	RiskTags         []string       `json:"risk_tags"`
	FileCount        int            `json:"file_count"`
	SuggestedProfile string         `json:"suggested_profile,omitempty"`
	RawResults       map[string]any `json:"raw_results"`
}

// scanInputsHash is a deterministic digest of the scan inputs, used to
// dedup identical scans.
func scanInputsHash(fileListing []string, rulesetVersion string) string {
	sorted := append([]string(nil), fileListing...)
	sort.Strings(sorted)
	payload, _ := json.Marshal(map[string]any{
		"files":           sorted,
		"ruleset_version": rulesetVersion,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16]
}

// ScanWorkspace runs a deterministic advisory classification scan over the
// workspace file listing, bounded to maxFiles entries (0 uses the default).
// The result is stored as an artifact keyed by (workspace_id, inputs_hash),
// so rescanning an unchanged workspace returns the existing artifact.
//
// Advisory only: scanning never changes posture or trust.
func (s *Store) ScanWorkspace(ctx context.Context, workspacePath string, maxFiles int) (*ScanArtifact, error) {
	if maxFiles <= 0 {
		maxFiles = defaultScanMaxFiles
	}
	canonical, err := CanonicalPath(workspacePath)
	if err != nil {
		return nil, err
	}

	listing := collectFileListing(canonical, maxFiles)
	inputsHash := scanInputsHash(listing, ScannerRulesetVersion)

	var workspaceID string
	row := s.db.QueryRowContext(ctx,
		`SELECT id FROM workspace_trust WHERE path_hash = ?`, hashPath(workspacePath))
	if err := row.Scan(&workspaceID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}

	if workspaceID != "" {
		existing, err := s.getScanArtifact(ctx, workspaceID, inputsHash)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	riskTags, matched := classifyListing(listing)
	suggested := suggestProfile(riskTags)

	raw := map[string]any{
		"file_count":       len(listing),
		"risk_tags":        riskTags,
		"matched_patterns": matched,
	}
	artifact := &ScanArtifact{
		WorkspaceID:      workspaceID,
		RulesetVersion:   ScannerRulesetVersion,
		InputsHash:       inputsHash,
		RiskTags:         riskTags,
		FileCount:        len(listing),
		SuggestedProfile: suggested,
		RawResults:       raw,
	}

	if workspaceID != "" {
		tagsJSON, _ := json.Marshal(riskTags)
		rawJSON, _ := json.Marshal(raw)
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO workspace_scan_artifacts
			    (workspace_id, ruleset_version, inputs_hash, risk_tags,
			     file_count, suggested_profile, raw_results, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(workspace_id, inputs_hash) DO NOTHING`,
			workspaceID, ScannerRulesetVersion, inputsHash, string(tagsJSON),
			len(listing), suggested, string(rawJSON), nowUTC())
		if err != nil {
			return nil, fmt.Errorf("store scan artifact: %w", err)
		}
	}
	return artifact, nil
}

func (s *Store) getScanArtifact(ctx context.Context, workspaceID, inputsHash string) (*ScanArtifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT workspace_id, ruleset_version, inputs_hash, risk_tags,
		       file_count, suggested_profile, raw_results
		  FROM workspace_scan_artifacts
		 WHERE workspace_id = ? AND inputs_hash = ?`, workspaceID, inputsHash)

	var a ScanArtifact
	var tagsJSON, rawJSON string
	var suggested sql.NullString
	err := row.Scan(&a.WorkspaceID, &a.RulesetVersion, &a.InputsHash,
		&tagsJSON, &a.FileCount, &suggested, &rawJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scan artifact: %w", err)
	}
	a.SuggestedProfile = suggested.String
	if err := json.Unmarshal([]byte(tagsJSON), &a.RiskTags); err != nil {
		a.RiskTags = nil
	}
	if err := json.Unmarshal([]byte(rawJSON), &a.RawResults); err != nil {
		a.RawResults = nil
	}
	return &a, nil
}

// collectFileListing walks the workspace and returns up to maxFiles
// relative paths. Unreadable subtrees are skipped, not fatal.
func collectFileListing(root string, maxFiles int) []string {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil
	}
	var listing []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		listing = append(listing, rel)
		if len(listing) >= maxFiles {
			return filepath.SkipAll
		}
		return nil
	})
	return listing
}

// classifyListing matches the listing against the risk patterns. The second
// return maps each found tag to the patterns that matched.
func classifyListing(listing []string) ([]string, map[string][]string) {
	lower := make([]string, len(listing))
	for i, f := range listing {
		lower[i] = strings.ToLower(f)
	}
	joined := strings.Join(lower, "\n")

	var tags []string
	matched := map[string][]string{}
	for _, tag := range riskTagOrder {
		var hits []string
		for _, pattern := range riskPatterns[tag] {
			if strings.Contains(joined, pattern) {
				hits = append(hits, pattern)
			}
		}
		if len(hits) > 0 {
			tags = append(tags, tag)
			matched[tag] = hits
		}
	}
	if len(tags) == 0 {
		tags = []string{"unknown"}
	}
	return tags, matched
}

// suggestProfile maps risk tags to an advisory posture profile. The
// suggestion is never applied automatically.
func suggestProfile(riskTags []string) string {
	has := func(tag string) bool {
		for _, t := range riskTags {
			if t == tag {
				return true
			}
		}
		return false
	}
	switch {
	case has("secrets_present") && has("deployment"):
		return "read_only_analysis"
	case has("deployment") || has("iac"):
		return "plan_only"
	case has("secrets_present"):
		return "safe_refactor"
	}
	return ""
}
