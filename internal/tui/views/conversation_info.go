package views

import (
	"fmt"

	"github.com/matheus3301/rentchat/internal/share"
	"github.com/matheus3301/rentchat/internal/tui/model"
	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo displays detailed information about a conversation and a
// QR code that opens it on another device.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// FocusTarget implements Component.
func (ci *ConversationInfo) FocusTarget() tview.Primitive { return ci }

// Hints implements Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// Update renders the details of row.
func (ci *ConversationInfo) Update(row model.ConversationRow, subjectID string) {
	ci.Clear()

	fg := ui.Tag(ci.theme.FgColor)
	ct := ui.Tag(ci.theme.CounterColor)

	presence := clean(row.LastSeen)
	if row.Online {
		presence = ui.Paint(ci.theme.OnlineColor, "online")
	}
	if presence == "" {
		presence = "-"
	}
	last := row.Time
	if last == "" {
		last = "-"
	}

	_, _ = fmt.Fprintf(ci,
		"\n [%s::b]With:[-:-:-]         [%s]%s[-]\n"+
			" [%s::b]Presence:[-:-:-]     [%s]%s[-]\n"+
			" [%s::b]Listing:[-:-:-]      [%s]%s[-]\n"+
			" [%s::b]Status:[-:-:-]       [%s]%s[-]\n"+
			" [%s::b]Unread:[-:-:-]       [%s]%d[-]\n"+
			" [%s::b]Last Message:[-:-:-] [%s]%s %s[-]\n"+
			" [%s::b]ID:[-:-:-]           [%s]%s[-]\n\n",
		fg, ct, clean(row.Counterpart),
		fg, ct, presence,
		fg, ct, clean(row.Title),
		fg, ct, row.Status,
		fg, ct, row.Unread,
		fg, ct, last, clean(row.Preview),
		fg, ct, row.ID,
	)

	link := share.Link(row.ID, subjectID)
	qr, err := share.QR(link, "  ")
	if err != nil {
		_, _ = fmt.Fprintf(ci, "  (QR generation failed: %s)\n", clean(err.Error()))
	} else {
		_, _ = fmt.Fprintf(ci, "  Scan to open on another device:\n\n%s\n  [::d]%s[-:-:-]", qr, clean(link))
	}
	ci.SetTitle(fmt.Sprintf(" %s Details ", clean(row.Counterpart)))
	ci.ScrollToBeginning()
}
