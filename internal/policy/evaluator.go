package policy

import (
	"fmt"

	"github.com/atlasbridge/atlasbridge/internal/prompt"
)

// EvalInput carries the facts about one prompt that the evaluator matches
// rules against. WorkspaceTrusted is nil when no workspace context is known.
type EvalInput struct {
	PromptText       string
	PromptType       prompt.PromptType
	Confidence       prompt.Confidence
	PromptID         string
	SessionID        string
	WorkspaceTrusted *bool
	WorkspaceProfile string
}

// Evaluate maps a prompt plus workspace facts to a Decision. It is a pure
// function: rules are tried in declared order, the first match wins, and
// the defaults apply when nothing matches (low_confidence for low-confidence
// prompts, no_match otherwise).
//
// Evaluate is mode-agnostic: a matching auto_reply rule returns auto_reply
// even under autonomy mode off. The engine consuming the decision inspects
// AutonomyMode and must escalate instead of acting when the mode is off.
func Evaluate(p *Policy, in EvalInput) Decision {
	hash := p.Hash()
	for _, rule := range p.Rules {
		if !ruleMatches(rule, in) {
			continue
		}
		d := Decision{
			PromptID:      in.PromptID,
			SessionID:     in.SessionID,
			PolicyHash:    hash,
			MatchedRuleID: rule.ID,
			ActionType:    rule.Action.Type,
			Confidence:    in.Confidence,
			PromptType:    in.PromptType,
			AutonomyMode:  p.AutonomyMode,
		}
		switch rule.Action.Type {
		case ActionAutoReply:
			d.ActionValue = rule.Action.Value
			d.Explanation = fmt.Sprintf("rule %q matched: auto-reply %q", rule.ID, rule.Action.Value)
		case ActionDeny:
			d.Explanation = fmt.Sprintf("rule %q matched: deny", rule.ID)
		case ActionRequireHuman:
			msg := rule.Action.Message
			if msg == "" {
				msg = "escalate to a human"
			}
			d.Explanation = fmt.Sprintf("rule %q matched: %s", rule.ID, msg)
		}
		d.IdempotencyKey = idempotencyKey(in.PromptID, in.SessionID, hash, d.ActionType, rule.ID)
		return d
	}

	fallback := p.Defaults.NoMatch
	reason := "no rule matched"
	if in.Confidence == prompt.ConfidenceLow {
		fallback = p.Defaults.LowConfidence
		reason = "no rule matched (low confidence)"
	}
	d := Decision{
		PromptID:     in.PromptID,
		SessionID:    in.SessionID,
		PolicyHash:   hash,
		ActionType:   ActionType(fallback),
		Explanation:  fmt.Sprintf("%s; default %s applied", reason, fallback),
		Confidence:   in.Confidence,
		PromptType:   in.PromptType,
		AutonomyMode: p.AutonomyMode,
	}
	d.IdempotencyKey = idempotencyKey(in.PromptID, in.SessionID, hash, d.ActionType, "")
	return d
}

func ruleMatches(rule Rule, in EvalInput) bool {
	if len(rule.Match.PromptTypes) > 0 {
		found := false
		for _, pt := range rule.Match.PromptTypes {
			if pt == in.PromptType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if rule.Match.MinConfidence != "" && !in.Confidence.AtLeast(rule.Match.MinConfidence) {
		return false
	}
	if rule.Match.WorkspaceTrusted != nil {
		if in.WorkspaceTrusted == nil || *in.WorkspaceTrusted != *rule.Match.WorkspaceTrusted {
			return false
		}
	}
	if rule.Match.WorkspaceProfile != "" && rule.Match.WorkspaceProfile != in.WorkspaceProfile {
		return false
	}
	return true
}
