package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// menuRows is the number of hints per column.
const menuRows = 5

// Menu shows the current page's shortcuts, column by column.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a new menu hint panel.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)
	return &Menu{TextView: tv, theme: theme}
}

// Update renders hints top to bottom, then left to right.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = m.Write([]byte(layoutHints(hints, m.theme)))
}

func layoutHints(hints []MenuHint, theme *Theme) string {
	if len(hints) == 0 {
		return ""
	}
	width := 0
	for _, h := range hints {
		width = max(width, len(h.Key)+len(h.Description)+3)
	}
	rows := min(menuRows, len(hints))
	lines := make([]string, rows)
	for i, h := range hints {
		kc := theme.MenuKeyColor
		if h.Numeric {
			kc = theme.NumericKeyColor
		}
		cell := fmt.Sprintf("[%s::b]<%s>[-:-:-] %s", Tag(kc), tview.Escape(h.Key), h.Description)
		pad := width - len(h.Key) - len(h.Description) - 3
		lines[i%rows] += cell + strings.Repeat(" ", pad+2)
	}
	return strings.Join(lines, "\n")
}
