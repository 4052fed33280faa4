package ui

import (
	"slices"

	"github.com/rivo/tview"
)

// Pages is a page stack over tview.Pages. A name appears at most once: pushing
// a page already on the stack rewinds to it.
type Pages struct {
	*tview.Pages
	stack    []string
	onChange func(stack []string)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange sets a callback that fires with a copy of the stack after every
// change.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

// Push shows name on top of the stack. Pages above an earlier occurrence of
// name are dropped.
func (p *Pages) Push(name string) {
	if i := slices.Index(p.stack, name); i >= 0 {
		p.truncate(i + 1)
		return
	}
	if top := p.Current(); top != "" {
		p.HidePage(top)
	}
	p.stack = append(p.stack, name)
	p.show(name)
}

// Pop removes the top page and returns its name. The bottom page is never
// popped; Pop returns "" instead.
func (p *Pages) Pop() string {
	if len(p.stack) <= 1 {
		return ""
	}
	top := p.Current()
	p.truncate(len(p.stack) - 1)
	return top
}

// Current returns the top page, or "".
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Stack returns a copy of the stack, bottom first.
func (p *Pages) Stack() []string {
	return slices.Clone(p.stack)
}

// Depth returns the stack depth.
func (p *Pages) Depth() int {
	return len(p.stack)
}

// Reset replaces the stack with the single page name.
func (p *Pages) Reset(name string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.show(name)
}

func (p *Pages) truncate(n int) {
	for _, name := range p.stack[n:] {
		p.HidePage(name)
	}
	p.stack = p.stack[:n]
	p.show(p.Current())
}

func (p *Pages) show(name string) {
	p.ShowPage(name)
	p.SendToFront(name)
	if p.onChange != nil {
		p.onChange(p.Stack())
	}
}
