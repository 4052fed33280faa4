package ui

import (
	"slices"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode selects what a submitted prompt means.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
)

const historySize = 50

// Prompt is the command and filter input bar. Commands are completed from
// the registered names and remembered for Up/Down recall.
type Prompt struct {
	*tview.InputField
	mode     PromptMode
	commands []string
	history  *History
	onSubmit func(mode PromptMode, text string)
	onCancel func()
}

// NewPrompt creates a new prompt bar.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	p := &Prompt{
		InputField: input,
		history:    NewHistory(historySize),
	}
	input.SetAutocompleteFunc(p.complete)
	input.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if p.mode != PromptCommand {
			return ev
		}
		switch ev.Key() {
		case tcell.KeyUp:
			p.SetText(p.history.Prev())
			return nil
		case tcell.KeyDown:
			p.SetText(p.history.Next())
			return nil
		}
		return ev
	})
	input.SetDoneFunc(func(key tcell.Key) {
		text := strings.TrimSpace(p.GetText())
		p.SetText("")
		switch key {
		case tcell.KeyEnter:
			if p.mode == PromptCommand {
				p.history.Add(text)
			}
			if p.onSubmit != nil && (text != "" || p.mode == PromptFilter) {
				p.onSubmit(p.mode, text)
				return
			}
			fallthrough
		case tcell.KeyEscape:
			if p.onCancel != nil {
				p.onCancel()
			}
		}
	})
	return p
}

// SetCommands sets the names offered as completions in command mode.
func (p *Prompt) SetCommands(names []string) {
	p.commands = slices.Sorted(slices.Values(names))
}

// SetOnSubmit sets the callback for Enter. An empty filter is submitted so
// it can clear the filter; an empty command cancels.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

// SetOnCancel sets the callback for Esc.
func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// Activate prepares the prompt for mode.
func (p *Prompt) Activate(mode PromptMode) {
	p.mode = mode
	p.SetText("")
	p.history.Rewind()
	if mode == PromptFilter {
		p.SetLabel("/")
		p.SetTitle(" Filter ")
		return
	}
	p.SetLabel(":")
	p.SetTitle(" Command ")
}

// Mode returns the current mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}

func (p *Prompt) complete(text string) []string {
	if p.mode != PromptCommand || text == "" || strings.Contains(text, " ") {
		return nil
	}
	var out []string
	for _, name := range p.commands {
		if strings.HasPrefix(name, text) && name != text {
			out = append(out, name)
		}
	}
	return out
}

// History is a bounded list of submitted commands with a recall cursor.
type History struct {
	max     int
	entries []string
	cursor  int
}

// NewHistory creates a history keeping the last max entries.
func NewHistory(max int) *History {
	return &History{max: max}
}

// Add records text unless it is empty or repeats the latest entry. The
// cursor moves past the end.
func (h *History) Add(text string) {
	if text != "" && (len(h.entries) == 0 || h.entries[len(h.entries)-1] != text) {
		h.entries = append(h.entries, text)
		if len(h.entries) > h.max {
			h.entries = h.entries[len(h.entries)-h.max:]
		}
	}
	h.Rewind()
}

// Rewind moves the cursor past the newest entry.
func (h *History) Rewind() {
	h.cursor = len(h.entries)
}

// Prev steps back and returns the entry under the cursor. It stops at the
// oldest entry.
func (h *History) Prev() string {
	if len(h.entries) == 0 {
		return ""
	}
	h.cursor = max(h.cursor-1, 0)
	return h.entries[h.cursor]
}

// Next steps forward. Past the newest entry it returns "".
func (h *History) Next() string {
	h.cursor = min(h.cursor+1, len(h.entries))
	if h.cursor == len(h.entries) {
		return ""
	}
	return h.entries[h.cursor]
}
