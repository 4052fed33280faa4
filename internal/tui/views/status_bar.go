package views

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/rentchat/internal/status"
	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays the session, the viewer and the realtime links.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	session string
	user    string
	unread  int
	links   map[string]status.State
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme}
}

// SetSession updates the session and viewer display.
func (sb *StatusBar) SetSession(name, user string) {
	sb.session = name
	sb.user = user
	sb.render()
}

// SetUnread updates the total unread counter.
func (sb *StatusBar) SetUnread(n int) {
	sb.unread = n
	sb.render()
}

// SetLinks updates the realtime link indicators.
func (sb *StatusBar) SetLinks(links map[string]status.State) {
	sb.links = links
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	names := make([]string, 0, len(sb.links))
	for name := range sb.links {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %s", sb.linkDot(sb.links[name]), name))
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | unread %d | %s | %s",
		clean(sb.session), clean(sb.user), sb.unread, strings.Join(parts, " "), time.Now().Format("15:04"))
	_, _ = fmt.Fprint(sb, line)
}

func (sb *StatusBar) linkDot(s status.State) string {
	switch s {
	case status.Live:
		return ui.Paint(sb.theme.OnlineColor, "●")
	case status.Connecting, status.Reconnecting:
		return ui.Paint(sb.theme.LinkBusyColor, "●")
	}
	return ui.Paint(sb.theme.OfflineColor, "●")
}
