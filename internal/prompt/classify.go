package prompt

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// Block choice lines: "1) Staging", "2. Production", "a: Apple".
	blockChoiceRe = regexp.MustCompile(`^\s*(\d+|[a-zA-Z])[).:]\s+(.+)$`)

	// Inline delimited alternatives: "[fast/balanced/thorough]" or
	// "(quick, normal, careful)".
	inlineChoiceRe = regexp.MustCompile(`[\[(]([^\[\]()]+)[\])]`)

	yesNoRe        = regexp.MustCompile(`(?i)[\[(]\s*(y(es)?\s*/\s*no?)\s*[\])]`)
	confirmEnterRe = regexp.MustCompile(`(?i)press\s+(enter|return)`)
)

// ExtractChoices scans sanitized prompt text for a choice list and returns
// the choice labels in display order. Returns nil when the text is not a
// multiple-choice prompt, including the binary [y/n] case which belongs to
// yes/no classification.
func ExtractChoices(text string) []string {
	if choices := extractBlockChoices(text); len(choices) >= 2 {
		return choices
	}
	return extractInlineChoices(text)
}

func extractBlockChoices(text string) []string {
	var labels []string
	var choices []string
	for _, line := range strings.Split(text, "\n") {
		m := blockChoiceRe.FindStringSubmatch(StripANSI(line))
		if m == nil {
			// A non-matching line ends the block; keep the longest run seen.
			if len(choices) >= 2 && consecutiveLabels(labels) {
				return choices
			}
			labels = labels[:0]
			choices = choices[:0]
			continue
		}
		labels = append(labels, m[1])
		choices = append(choices, strings.TrimSpace(m[2]))
	}
	if len(choices) >= 2 && consecutiveLabels(labels) {
		return choices
	}
	return nil
}

// consecutiveLabels checks that numeric labels run exactly 1,2,3,... and
// letter labels run a,b,c,... (either case).
func consecutiveLabels(labels []string) bool {
	if len(labels) == 0 {
		return false
	}
	if labels[0][0] >= '0' && labels[0][0] <= '9' {
		for i, l := range labels {
			if l != strconv.Itoa(i+1) {
				return false
			}
		}
		return true
	}
	first := strings.ToLower(labels[0])
	if first != "a" {
		return false
	}
	for i, l := range labels {
		if strings.ToLower(l) != string(rune('a'+i)) {
			return false
		}
	}
	return true
}

func extractInlineChoices(text string) []string {
	stripped := StripANSI(text)
	for _, m := range inlineChoiceRe.FindAllStringSubmatch(stripped, -1) {
		inner := m[1]
		var parts []string
		switch {
		case strings.Contains(inner, "/"):
			parts = strings.Split(inner, "/")
		case strings.Contains(inner, ","):
			parts = strings.Split(inner, ",")
		default:
			continue
		}
		choices := make([]string, 0, len(parts))
		ok := true
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" || strings.ContainsAny(p, " \t") {
				ok = false
				break
			}
			choices = append(choices, p)
		}
		if !ok {
			continue
		}
		// Binary yes/no pairs are yes_no prompts, never multiple choice.
		if isYesNoPair(choices) {
			continue
		}
		if len(choices) >= 3 {
			return choices
		}
	}
	return nil
}

func isYesNoPair(choices []string) bool {
	if len(choices) != 2 {
		return false
	}
	a := strings.ToLower(choices[0])
	b := strings.ToLower(choices[1])
	return (a == "y" || a == "yes") && (b == "n" || b == "no")
}

// Classify infers the prompt type and a pattern-strength confidence for
// sanitized terminal text. Multiple choice wins when a choice list is
// present; explicit [y/n] markers and press-enter phrasing classify with
// high confidence; everything else is free text.
func Classify(text string) (PromptType, Confidence, []string) {
	if choices := ExtractChoices(text); len(choices) > 0 {
		return TypeMultipleChoice, ConfidenceHigh, choices
	}
	if yesNoRe.MatchString(text) {
		return TypeYesNo, ConfidenceHigh, nil
	}
	if confirmEnterRe.MatchString(text) {
		return TypeConfirmEnter, ConfidenceHigh, nil
	}
	trimmed := strings.TrimSpace(StripANSI(text))
	if strings.HasSuffix(trimmed, "?") {
		return TypeFreeText, ConfidenceMedium, nil
	}
	if strings.HasSuffix(trimmed, ":") {
		return TypeFreeText, ConfidenceMedium, nil
	}
	return TypeFreeText, ConfidenceLow, nil
}
