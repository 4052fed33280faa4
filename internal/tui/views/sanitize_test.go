package views

import "testing"

func TestSanitizeForTerminal(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "hola, ¿qué tal?", "hola, ¿qué tal?"},
		{"skin tone", "\U0001F44D\U0001F3FB", "\U0001F44D"},
		{"zwj family", "\U0001F468\u200d\U0001F469", "\U0001F468\U0001F469"},
		{"variation selector", "\u2764\ufe0f", "\u2764"},
		{"bidi override", "abc\u202edef", "abcdef"},
		{"escape sequence", "a\x1b[2Jb", "a[2Jb"},
		{"keeps newline and tab", "a\n\tb", "a\n\tb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeForTerminal(tt.in); got != tt.want {
				t.Errorf("sanitizeForTerminal(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestClean(t *testing.T) {
	if got := clean("[red]hi\u200d"); got != "[red[]hi" {
		t.Errorf("clean = %q", got)
	}
}
