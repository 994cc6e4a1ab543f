package approval

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

type Result struct {
	Answered   bool
	Reply      string
	UserAction string
}

// Prompt is an escalated agent prompt awaiting a human decision at the
// local terminal.
type Prompt struct {
	PromptText  string
	PromptType  string
	Choices     []string
	Explanation string
}

func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Ask presents an escalated prompt to the local operator and returns their
// reply. In non-interactive contexts the prompt stays unanswered so it can
// expire or be answered via a channel; nothing is ever auto-approved.
func Ask(p Prompt) Result {
	if !IsInteractive() {
		return Result{
			Answered:   false,
			UserAction: "defer_non_interactive",
		}
	}

	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║              ⚠️  HUMAN DECISION REQUIRED                      ║")
	fmt.Fprintln(os.Stderr, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintf(os.Stderr, "Agent prompt (%s):\n  %s\n", p.PromptType, p.PromptText)
	fmt.Fprintln(os.Stderr, "")

	if p.Explanation != "" {
		fmt.Fprintf(os.Stderr, "Why escalated: %s\n", p.Explanation)
		fmt.Fprintln(os.Stderr, "")
	}

	if len(p.Choices) > 0 {
		fmt.Fprintln(os.Stderr, "Choices:")
		for i, choice := range p.Choices {
			fmt.Fprintf(os.Stderr, "  %d) %s\n", i+1, choice)
		}
		fmt.Fprintln(os.Stderr, "")
	}

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Fprint(os.Stderr, "Your reply (empty to skip): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return Result{
				Answered:   false,
				UserAction: "error_reading_input",
			}
		}

		input = strings.TrimSpace(input)
		if input == "" {
			return Result{
				Answered:   false,
				UserAction: "skip",
			}
		}
		return Result{
			Answered:   true,
			Reply:      input,
			UserAction: "reply",
		}
	}
}
