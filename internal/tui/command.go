package tui

import "strings"

// commandNames are offered as completions in the command prompt.
var commandNames = []string{
	"accept", "decline", "help", "logout", "open", "propose", "quit", "start", "status",
}

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// Split returns the first n-1 whitespace separated arguments followed by
// the rest of the line. Missing arguments are empty.
func (c Command) Split(n int) []string {
	out := make([]string, n)
	rest := c.Args
	for i := 0; i < n-1; i++ {
		rest = strings.TrimSpace(rest)
		word, tail, _ := strings.Cut(rest, " ")
		out[i] = word
		rest = tail
	}
	if n > 0 {
		out[n-1] = strings.TrimSpace(rest)
	}
	return out
}
