package approval

import "testing"

// Test binaries run with stdin detached from a terminal, which is exactly
// the non-interactive case: the prompt must stay unanswered.
func TestAskNonInteractiveDefers(t *testing.T) {
	if IsInteractive() {
		t.Skip("stdin is a terminal")
	}
	res := Ask(Prompt{PromptText: "Continue? [y/N]", PromptType: "yes_no"})
	if res.Answered {
		t.Fatal("non-interactive Ask must not answer")
	}
	if res.UserAction != "defer_non_interactive" {
		t.Errorf("user action = %q", res.UserAction)
	}
	if res.Reply != "" {
		t.Errorf("reply = %q, want empty", res.Reply)
	}
}
