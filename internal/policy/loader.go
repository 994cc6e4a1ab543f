package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/atlasbridge/atlasbridge/internal/prompt"
)

// Load reads a policy document from path. A missing file yields the
// built-in default policy; an invalid document is an error.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, err
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}

	if p.AutonomyMode == "" {
		p.AutonomyMode = ModeAssist
	}
	if p.Defaults.NoMatch == "" {
		p.Defaults.NoMatch = DefaultRequireHuman
	}
	if p.Defaults.LowConfidence == "" {
		p.Defaults.LowConfidence = DefaultRequireHuman
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy %s: %w", path, err)
	}
	return &p, nil
}

// DefaultPolicy is deliberately conservative: auto-replies happen only for
// high-confidence confirm prompts inside a trusted workspace, and free-text
// prompts always escalate.
func DefaultPolicy() *Policy {
	trusted := true
	return &Policy{
		Name:          "default",
		PolicyVersion: "1",
		AutonomyMode:  ModeAssist,
		Defaults: Defaults{
			NoMatch:       DefaultRequireHuman,
			LowConfidence: DefaultRequireHuman,
		},
		Rules: []Rule{
			{
				ID: "escalate-free-text",
				Match: MatchCriteria{
					PromptTypes: []prompt.PromptType{prompt.TypeFreeText},
				},
				Action: RequireHuman("free-text prompts always need a human"),
			},
			{
				ID: "trusted-confirm-enter",
				Match: MatchCriteria{
					PromptTypes:      []prompt.PromptType{prompt.TypeConfirmEnter},
					MinConfidence:    prompt.ConfidenceHigh,
					WorkspaceTrusted: &trusted,
				},
				Action: AutoReply(""),
			},
		},
	}
}
