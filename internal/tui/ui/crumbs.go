package ui

import (
	"strings"

	"github.com/rivo/tview"
)

// Crumbs is the breadcrumb bar for the page stack.
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

// NewCrumbs creates a new breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &Crumbs{TextView: tv, theme: theme}
}

// Update renders names as a trail. detail, when set, is appended to the last
// crumb, e.g. the counterpart of the open thread.
func (c *Crumbs) Update(names []string, detail string) {
	c.Clear()
	if len(names) == 0 {
		return
	}
	var sb strings.Builder
	last := len(names) - 1
	for i, name := range names {
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == last {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
			if detail != "" {
				name += ": " + detail
			}
		}
		if i > 0 {
			sb.WriteString(" > ")
		}
		sb.WriteString("[" + Tag(fg) + ":" + Tag(bg) + ":" + attr + "] " + tview.Escape(name) + " [-:-:-]")
	}
	_, _ = c.Write([]byte(sb.String()))
}
