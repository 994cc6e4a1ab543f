// Package unicode detects hidden and deceptive Unicode in text that crosses
// a trust boundary: agent terminal output before classification, and channel
// replies before injection. Zero-width characters, bidi overrides, and tag
// characters can make a reply read "yes" to a human while carrying extra
// payload into the agent's terminal.
package unicode

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Finding is one hidden or deceptive character located in the input.
type Finding struct {
	Category  string `json:"category"`
	Codepoint string `json:"codepoint"`
	Position  int    `json:"position"`
}

// ScanResult reports hidden characters and carries a stripped copy of the
// input safe for display and injection.
type ScanResult struct {
	Clean    bool      `json:"clean"`
	Findings []Finding `json:"findings,omitempty"`
	Stripped string    `json:"stripped"`
}

// Scan walks the input and records every hidden or deceptive rune.
// Stripped is the input with those runes removed; tab, newline, and
// carriage return pass through untouched.
func Scan(input string) ScanResult {
	result := ScanResult{Clean: true}
	var kept strings.Builder

	for i := 0; i < len(input); {
		r, size := utf8.DecodeRuneInString(input[i:])
		if r == utf8.RuneError && size == 1 {
			result.Clean = false
			result.Findings = append(result.Findings, Finding{
				Category:  "invalid-utf8",
				Codepoint: fmt.Sprintf("0x%02X", input[i]),
				Position:  i,
			})
			i++
			continue
		}
		if cat := hiddenCategory(r); cat != "" {
			result.Clean = false
			result.Findings = append(result.Findings, Finding{
				Category:  cat,
				Codepoint: fmt.Sprintf("U+%04X", r),
				Position:  i,
			})
			i += size
			continue
		}
		kept.WriteRune(r)
		i += size
	}

	result.Stripped = kept.String()
	return result
}

// HasHidden reports whether the input contains any hidden or deceptive rune.
func HasHidden(input string) bool {
	return !Scan(input).Clean
}

// StripHidden removes hidden and deceptive runes from the input.
func StripHidden(input string) string {
	return Scan(input).Stripped
}

func hiddenCategory(r rune) string {
	switch {
	case isZeroWidth(r):
		return "zero-width"
	case isBidiControl(r):
		return "bidi-control"
	case r >= 0xE0001 && r <= 0xE007F:
		return "tag-char"
	case isUnsafeControl(r):
		return "control-char"
	}
	return ""
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200B', // ZERO WIDTH SPACE
		'\u200C', // ZERO WIDTH NON-JOINER
		'\u200D', // ZERO WIDTH JOINER
		'\u200E', // LEFT-TO-RIGHT MARK
		'\u200F', // RIGHT-TO-LEFT MARK
		'\u2060', // WORD JOINER
		'\u180E', // MONGOLIAN VOWEL SEPARATOR
		'\uFEFF': // ZERO WIDTH NO-BREAK SPACE (BOM)
		return true
	}
	return false
}

// isBidiControl matches the directional embedding, override, and isolate
// controls (U+202A..U+202E, U+2066..U+2069) that render displayed order
// differently from logical order.
func isBidiControl(r rune) bool {
	return (r >= '\u202A' && r <= '\u202E') || (r >= '\u2066' && r <= '\u2069')
}

func isUnsafeControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	if r <= 0x1F || r == 0x7F {
		return true
	}
	return r >= 0x80 && r <= 0x9F
}
