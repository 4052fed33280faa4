package views

import (
	"strings"
	"unicode"

	"github.com/rivo/tview"
)

// sanitizeForTerminal drops codepoints that break tcell layout or let a
// message rewrite the screen: emoji modifiers and joiners (which tcell
// measures wrong), bidi overrides, and control characters other than
// newline and tab.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !isProblematicRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	// Skin tone modifiers.
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	// Zero Width Joiner.
	case r == 0x200D:
		return true
	// Variation Selectors.
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	// Variation Selectors Supplement.
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	// Bidi embeddings, overrides and isolates.
	case r >= 0x202A && r <= 0x202E, r >= 0x2066 && r <= 0x2069:
		return true
	case r == '\n' || r == '\t':
		return false
	case unicode.IsControl(r):
		return true
	default:
		return false
	}
}

// clean prepares user text for a dynamic-color tview widget.
func clean(s string) string {
	return tview.Escape(sanitizeForTerminal(s))
}
