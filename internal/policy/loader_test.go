package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/atlasbridge/atlasbridge/internal/prompt"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing policy file should fall back to default: %v", err)
	}
	if p.Name != "default" {
		t.Errorf("policy name = %q, want default", p.Name)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("default policy must validate: %v", err)
	}
}

func TestLoadValidDocument(t *testing.T) {
	doc := `
name: team-policy
policy_version: "3"
autonomy_mode: full
defaults:
  no_match: deny
  low_confidence: require_human
rules:
  - id: auto-yes
    match:
      prompt_type: [yes_no]
      min_confidence: high
      workspace_trusted: true
    action:
      type: auto_reply
      value: "y"
  - id: block-free-text
    match:
      prompt_type: [free_text]
    action:
      type: deny
`
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if p.AutonomyMode != ModeFull {
		t.Errorf("mode = %s, want full", p.AutonomyMode)
	}
	if len(p.Rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(p.Rules))
	}
	r := p.Rules[0]
	if r.Match.WorkspaceTrusted == nil || !*r.Match.WorkspaceTrusted {
		t.Error("workspace_trusted criterion not parsed")
	}
	if r.Action.Type != ActionAutoReply || r.Action.Value != "y" {
		t.Errorf("action = %+v, want auto_reply/y", r.Action)
	}
	if p.Defaults.NoMatch != DefaultDeny {
		t.Errorf("no_match default = %s, want deny", p.Defaults.NoMatch)
	}
}

func TestLoadRejectsAutoReplyDefault(t *testing.T) {
	doc := `
name: bad
autonomy_mode: full
defaults:
  no_match: auto_reply
  low_confidence: require_human
`
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("auto_reply default must be rejected at load time")
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("rules: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("invalid YAML must be an error")
	}
}

func TestLoadFillsSafeDefaults(t *testing.T) {
	doc := "name: sparse\n"
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.AutonomyMode != ModeAssist {
		t.Errorf("mode = %s, want assist", p.AutonomyMode)
	}
	if p.Defaults.NoMatch != DefaultRequireHuman || p.Defaults.LowConfidence != DefaultRequireHuman {
		t.Errorf("defaults = %+v, want require_human/require_human", p.Defaults)
	}
}

func TestDefaultPolicyEscalatesFreeText(t *testing.T) {
	p := DefaultPolicy()
	d := Evaluate(p, EvalInput{
		PromptType: prompt.TypeFreeText,
		Confidence: prompt.ConfidenceHigh,
		PromptID:   "p1",
		SessionID:  "s1",
	})
	if d.ActionType != ActionRequireHuman {
		t.Errorf("free text under default policy: action = %s, want require_human", d.ActionType)
	}
}
