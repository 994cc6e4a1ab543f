package prompt

import (
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/atlasbridge/atlasbridge/internal/unicode"
)

// StripANSI removes all terminal escape sequences (CSI including private-mode
// set/reset, OSC with BEL or ST terminators, charset designators) and literal
// carriage returns from text.
func StripANSI(text string) string {
	stripped := ansi.Strip(text)
	return strings.ReplaceAll(stripped, "\r", "")
}

// IsMeaningful reports whether text still carries human-relevant content
// after stripping. Pure ANSI remnants, whitespace, and bare punctuation are
// not meaningful; a real prompt always has at least three characters and an
// alphanumeric run.
func IsMeaningful(text string) bool {
	cleaned := strings.TrimSpace(StripANSI(text))
	if len(cleaned) < 3 {
		return false
	}
	for _, r := range cleaned {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return true
		}
	}
	return false
}

// SanitizeTerminalOutput collapses carriage-return line overwrites and strips
// escape sequences and hidden Unicode. Overwrite collapse happens per line:
// "old\rnew" keeps only "new", matching what a terminal would display.
func SanitizeTerminalOutput(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		// Strip first so a CR inside an escape sequence cannot split the line.
		line = ansi.Strip(line)
		if idx := strings.LastIndexByte(line, '\r'); idx >= 0 {
			line = line[idx+1:]
		}
		lines[i] = unicode.StripHidden(line)
	}
	return strings.Join(lines, "\n")
}
