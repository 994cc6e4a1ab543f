package policy

import (
	"strings"
	"testing"

	"github.com/atlasbridge/atlasbridge/internal/prompt"
)

func testPolicy(mode AutonomyMode, rules ...Rule) *Policy {
	return &Policy{
		Name:          "escalation-test",
		PolicyVersion: "0",
		AutonomyMode:  mode,
		Rules:         rules,
		Defaults:      Defaults{NoMatch: DefaultRequireHuman, LowConfidence: DefaultRequireHuman},
	}
}

func evalWith(p *Policy, conf prompt.Confidence, pt prompt.PromptType) Decision {
	return Evaluate(p, EvalInput{
		PromptText: "Continue? [y/n]",
		PromptType: pt,
		Confidence: conf,
		PromptID:   "esc-test",
		SessionID:  "esc-session",
	})
}

var yesNoHighRule = Rule{
	ID:     "allow-yes-no",
	Match:  MatchCriteria{PromptTypes: []prompt.PromptType{prompt.TypeYesNo}, MinConfidence: prompt.ConfidenceHigh},
	Action: AutoReply("y"),
}

func TestOffModeNoRulesEscalates(t *testing.T) {
	for _, conf := range []prompt.Confidence{prompt.ConfidenceHigh, prompt.ConfidenceMedium, prompt.ConfidenceLow} {
		d := evalWith(testPolicy(ModeOff), conf, prompt.TypeYesNo)
		if d.ActionType != ActionRequireHuman {
			t.Errorf("off mode, %s confidence: action = %s, want require_human", conf, d.ActionType)
		}
	}
}

func TestOffModeEvaluatorIsModeAgnostic(t *testing.T) {
	// The evaluator evaluates rules regardless of mode; off-mode enforcement
	// happens in the engine, which reads AutonomyMode off the decision.
	d := evalWith(testPolicy(ModeOff, yesNoHighRule), prompt.ConfidenceHigh, prompt.TypeYesNo)
	if d.ActionType != ActionAutoReply {
		t.Fatalf("action = %s, want auto_reply (mode-agnostic evaluator)", d.ActionType)
	}
	if d.AutonomyMode != ModeOff {
		t.Errorf("decision must carry mode off for the engine, got %s", d.AutonomyMode)
	}
}

func TestAssistModeMatchingRuleAutoHandles(t *testing.T) {
	d := evalWith(testPolicy(ModeAssist, yesNoHighRule), prompt.ConfidenceHigh, prompt.TypeYesNo)
	if d.ActionType != ActionAutoReply || d.ActionValue != "y" {
		t.Errorf("decision = %s/%q, want auto_reply/y", d.ActionType, d.ActionValue)
	}
	if d.MatchedRuleID != "allow-yes-no" {
		t.Errorf("matched rule = %q, want allow-yes-no", d.MatchedRuleID)
	}
}

func TestAssistModeNoMatchingRuleEscalates(t *testing.T) {
	d := evalWith(testPolicy(ModeAssist, yesNoHighRule), prompt.ConfidenceHigh, prompt.TypeFreeText)
	if d.ActionType != ActionRequireHuman {
		t.Errorf("action = %s, want require_human", d.ActionType)
	}
}

func TestLowConfidenceBelowRuleThresholdEscalates(t *testing.T) {
	d := evalWith(testPolicy(ModeFull, yesNoHighRule), prompt.ConfidenceLow, prompt.TypeYesNo)
	if d.ActionType != ActionRequireHuman {
		t.Errorf("action = %s, want require_human", d.ActionType)
	}
}

func TestFullModeMediumConfidenceRule(t *testing.T) {
	rule := Rule{
		ID:     "r-med",
		Match:  MatchCriteria{PromptTypes: []prompt.PromptType{prompt.TypeYesNo}, MinConfidence: prompt.ConfidenceMedium},
		Action: AutoReply("y"),
	}
	d := evalWith(testPolicy(ModeFull, rule), prompt.ConfidenceMedium, prompt.TypeYesNo)
	if d.ActionType != ActionAutoReply {
		t.Errorf("action = %s, want auto_reply", d.ActionType)
	}
}

func TestDenyRuleHonored(t *testing.T) {
	rule := Rule{
		ID:     "deny-all",
		Match:  MatchCriteria{PromptTypes: []prompt.PromptType{prompt.TypeYesNo}},
		Action: Deny(),
	}
	for _, mode := range []AutonomyMode{ModeAssist, ModeFull} {
		d := evalWith(testPolicy(mode, rule), prompt.ConfidenceHigh, prompt.TypeYesNo)
		if d.ActionType != ActionDeny {
			t.Errorf("mode %s: action = %s, want deny", mode, d.ActionType)
		}
	}
}

func TestRequireHumanRuleAlwaysEscalates(t *testing.T) {
	rule := Rule{
		ID:     "escalate",
		Match:  MatchCriteria{PromptTypes: []prompt.PromptType{prompt.TypeYesNo}},
		Action: RequireHuman(""),
	}
	for _, mode := range []AutonomyMode{ModeAssist, ModeFull} {
		d := evalWith(testPolicy(mode, rule), prompt.ConfidenceHigh, prompt.TypeYesNo)
		if d.ActionType != ActionRequireHuman {
			t.Errorf("mode %s: action = %s, want require_human", mode, d.ActionType)
		}
	}
}

func TestFirstMatchWins(t *testing.T) {
	first := Rule{
		ID:     "first",
		Match:  MatchCriteria{PromptTypes: []prompt.PromptType{prompt.TypeYesNo}},
		Action: AutoReply("n"),
	}
	second := Rule{
		ID:     "second",
		Match:  MatchCriteria{PromptTypes: []prompt.PromptType{prompt.TypeYesNo}},
		Action: Deny(),
	}
	d := evalWith(testPolicy(ModeFull, first, second), prompt.ConfidenceHigh, prompt.TypeYesNo)
	if d.MatchedRuleID != "first" || d.ActionType != ActionAutoReply {
		t.Errorf("decision = %s/%s, want first/auto_reply", d.MatchedRuleID, d.ActionType)
	}
}

func TestNoMatchDefaultDeny(t *testing.T) {
	p := testPolicy(ModeFull)
	p.Defaults.NoMatch = DefaultDeny
	d := evalWith(p, prompt.ConfidenceHigh, prompt.TypeYesNo)
	if d.ActionType != ActionDeny {
		t.Errorf("action = %s, want deny", d.ActionType)
	}
	if !strings.Contains(d.Explanation, "no rule matched") {
		t.Errorf("fallback explanation must state no rule matched, got %q", d.Explanation)
	}
}

func TestLowConfidenceDefaultDeny(t *testing.T) {
	p := testPolicy(ModeFull, yesNoHighRule)
	p.Defaults.LowConfidence = DefaultDeny
	d := evalWith(p, prompt.ConfidenceLow, prompt.TypeYesNo)
	if d.ActionType != ActionDeny {
		t.Errorf("action = %s, want deny", d.ActionType)
	}
}

func TestFallbackNeverAutoReplies(t *testing.T) {
	// Empty-rule policy: every prompt type and confidence level must fall
	// back to require_human or deny, never auto_reply.
	p := testPolicy(ModeFull)
	types := []prompt.PromptType{prompt.TypeYesNo, prompt.TypeConfirmEnter, prompt.TypeMultipleChoice, prompt.TypeFreeText}
	confs := []prompt.Confidence{prompt.ConfidenceLow, prompt.ConfidenceMedium, prompt.ConfidenceHigh}
	for _, pt := range types {
		for _, conf := range confs {
			d := evalWith(p, conf, pt)
			if d.ActionType == ActionAutoReply {
				t.Errorf("%s/%s: fallback produced auto_reply", pt, conf)
			}
		}
	}
}

func TestWorkspaceTrustedCriterion(t *testing.T) {
	trusted := true
	rule := Rule{
		ID:     "trusted-only",
		Match:  MatchCriteria{PromptTypes: []prompt.PromptType{prompt.TypeYesNo}, WorkspaceTrusted: &trusted},
		Action: AutoReply("y"),
	}
	p := testPolicy(ModeFull, rule)

	in := EvalInput{PromptType: prompt.TypeYesNo, Confidence: prompt.ConfidenceHigh, PromptID: "p", SessionID: "s"}

	// No workspace context: criterion cannot hold.
	if d := Evaluate(p, in); d.ActionType != ActionRequireHuman {
		t.Errorf("nil workspace context: action = %s, want require_human", d.ActionType)
	}

	f := false
	in.WorkspaceTrusted = &f
	if d := Evaluate(p, in); d.ActionType != ActionRequireHuman {
		t.Errorf("untrusted workspace: action = %s, want require_human", d.ActionType)
	}

	tr := true
	in.WorkspaceTrusted = &tr
	if d := Evaluate(p, in); d.ActionType != ActionAutoReply {
		t.Errorf("trusted workspace: action = %s, want auto_reply", d.ActionType)
	}
}

func TestWorkspaceProfileCriterion(t *testing.T) {
	rule := Rule{
		ID:     "plan-only-deny",
		Match:  MatchCriteria{WorkspaceProfile: "plan_only"},
		Action: Deny(),
	}
	p := testPolicy(ModeFull, rule)
	in := EvalInput{PromptType: prompt.TypeYesNo, Confidence: prompt.ConfidenceHigh, PromptID: "p", SessionID: "s"}

	if d := Evaluate(p, in); d.ActionType != ActionRequireHuman {
		t.Errorf("no profile: action = %s, want require_human", d.ActionType)
	}
	in.WorkspaceProfile = "plan_only"
	if d := Evaluate(p, in); d.ActionType != ActionDeny {
		t.Errorf("matching profile: action = %s, want deny", d.ActionType)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	p := testPolicy(ModeFull, yesNoHighRule)
	a := evalWith(p, prompt.ConfidenceHigh, prompt.TypeYesNo)
	b := evalWith(p, prompt.ConfidenceHigh, prompt.TypeYesNo)
	if a.ActionType != b.ActionType || a.ActionValue != b.ActionValue || a.Explanation != b.Explanation {
		t.Errorf("repeated evaluation differs: %+v vs %+v", a, b)
	}
	if a.IdempotencyKey != b.IdempotencyKey {
		t.Errorf("idempotency key must be stable: %s vs %s", a.IdempotencyKey, b.IdempotencyKey)
	}
}

func TestDecisionAlwaysHasExplanation(t *testing.T) {
	cases := []*Policy{
		testPolicy(ModeFull, yesNoHighRule),
		testPolicy(ModeFull),
		testPolicy(ModeOff),
	}
	for _, p := range cases {
		for _, conf := range []prompt.Confidence{prompt.ConfidenceLow, prompt.ConfidenceHigh} {
			d := evalWith(p, conf, prompt.TypeYesNo)
			if d.Explanation == "" {
				t.Errorf("decision %+v has empty explanation", d)
			}
		}
	}
}
