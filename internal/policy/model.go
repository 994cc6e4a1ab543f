package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/atlasbridge/atlasbridge/internal/prompt"
)

type AutonomyMode string

const (
	ModeOff    AutonomyMode = "off"
	ModeAssist AutonomyMode = "assist"
	ModeFull   AutonomyMode = "full"
)

func (m AutonomyMode) Valid() bool {
	switch m {
	case ModeOff, ModeAssist, ModeFull:
		return true
	}
	return false
}

type ActionType string

const (
	ActionAutoReply    ActionType = "auto_reply"
	ActionDeny         ActionType = "deny"
	ActionRequireHuman ActionType = "require_human"
)

// Action is the tagged variant a rule resolves to. Value is only meaningful
// for auto_reply; Message only for require_human.
type Action struct {
	Type    ActionType `yaml:"type" json:"type"`
	Value   string     `yaml:"value,omitempty" json:"value,omitempty"`
	Message string     `yaml:"message,omitempty" json:"message,omitempty"`
}

func AutoReply(value string) Action      { return Action{Type: ActionAutoReply, Value: value} }
func Deny() Action                       { return Action{Type: ActionDeny} }
func RequireHuman(message string) Action { return Action{Type: ActionRequireHuman, Message: message} }

// MatchCriteria are optional predicates; a rule matches iff every populated
// criterion holds.
type MatchCriteria struct {
	PromptTypes      []prompt.PromptType `yaml:"prompt_type,omitempty" json:"prompt_type,omitempty"`
	MinConfidence    prompt.Confidence   `yaml:"min_confidence,omitempty" json:"min_confidence,omitempty"`
	WorkspaceTrusted *bool               `yaml:"workspace_trusted,omitempty" json:"workspace_trusted,omitempty"`
	WorkspaceProfile string              `yaml:"workspace_profile,omitempty" json:"workspace_profile,omitempty"`
}

type Rule struct {
	ID     string        `yaml:"id" json:"id"`
	Match  MatchCriteria `yaml:"match" json:"match"`
	Action Action        `yaml:"action" json:"action"`
}

// DefaultAction is the restricted fallback action set. auto_reply is never
// a fallback; Validate enforces this at construction time.
type DefaultAction string

const (
	DefaultRequireHuman DefaultAction = "require_human"
	DefaultDeny         DefaultAction = "deny"
)

type Defaults struct {
	NoMatch       DefaultAction `yaml:"no_match" json:"no_match"`
	LowConfidence DefaultAction `yaml:"low_confidence" json:"low_confidence"`
}

func (d Defaults) validate() error {
	for name, v := range map[string]DefaultAction{"no_match": d.NoMatch, "low_confidence": d.LowConfidence} {
		if v != DefaultRequireHuman && v != DefaultDeny {
			return fmt.Errorf("defaults.%s must be require_human or deny, got %q", name, v)
		}
	}
	return nil
}

type Policy struct {
	Name          string       `yaml:"name" json:"name"`
	PolicyVersion string       `yaml:"policy_version" json:"policy_version"`
	AutonomyMode  AutonomyMode `yaml:"autonomy_mode" json:"autonomy_mode"`
	Rules         []Rule       `yaml:"rules" json:"rules"`
	Defaults      Defaults     `yaml:"defaults" json:"defaults"`
}

// Validate checks the policy's structural invariants: a known autonomy mode,
// safe defaults, unique rule ids, and well-formed actions.
func (p *Policy) Validate() error {
	if !p.AutonomyMode.Valid() {
		return fmt.Errorf("invalid autonomy_mode %q (valid: off, assist, full)", p.AutonomyMode)
	}
	if err := p.Defaults.validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(p.Rules))
	for i, r := range p.Rules {
		if r.ID == "" {
			return fmt.Errorf("rule %d has no id", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		switch r.Action.Type {
		case ActionAutoReply, ActionDeny, ActionRequireHuman:
		default:
			return fmt.Errorf("rule %q has invalid action type %q", r.ID, r.Action.Type)
		}
		if r.Match.MinConfidence != "" && !r.Match.MinConfidence.Valid() {
			return fmt.Errorf("rule %q has invalid min_confidence %q", r.ID, r.Match.MinConfidence)
		}
	}
	return nil
}

// Hash returns the SHA-256 hex digest of the policy's canonical JSON form.
// Decisions carry this so a trace entry pins the exact policy that made it.
func (p *Policy) Hash() string {
	raw, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		canonical = raw
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Decision is the immutable result of one policy evaluation. Mode
// enforcement (off never acts on auto_reply) is the consuming engine's
// responsibility; the decision just carries AutonomyMode for it.
type Decision struct {
	PromptID       string            `json:"prompt_id"`
	SessionID      string            `json:"session_id"`
	PolicyHash     string            `json:"policy_hash"`
	MatchedRuleID  string            `json:"matched_rule_id,omitempty"`
	ActionType     ActionType        `json:"action_type"`
	ActionValue    string            `json:"action_value,omitempty"`
	Explanation    string            `json:"explanation"`
	Confidence     prompt.Confidence `json:"confidence"`
	PromptType     prompt.PromptType `json:"prompt_type"`
	AutonomyMode   AutonomyMode      `json:"autonomy_mode"`
	IdempotencyKey string            `json:"idempotency_key"`
}

// idempotencyKey derives a stable identifier for duplicate-processing
// guards. Same inputs always produce the same key.
func idempotencyKey(promptID, sessionID, policyHash string, action ActionType, ruleID string) string {
	sum := sha256.Sum256([]byte(promptID + "|" + sessionID + "|" + policyHash + "|" + string(action) + "|" + ruleID))
	return hex.EncodeToString(sum[:])[:32]
}
