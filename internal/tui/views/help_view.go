package views

import (
	"fmt"

	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// FocusTarget implements Component.
func (hv *HelpView) FocusTarget() tview.Primitive { return hv }

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

func (hv *HelpView) render() {
	kc := ui.Tag(hv.theme.MenuKeyColor)
	key := func(k string) string { return fmt.Sprintf("[%s]%s[-:-:-]", kc, tview.Escape(k)) }

	help := fmt.Sprintf(`
  [::b]Global Keys[-:-:-]

  %s      Command mode        %s    Cancel / Go back
  %s      Filter mode         %s      Help
  %s      Quit                %s Quit immediately

  [::b]Conversation List[-:-:-]

  %s  Open conversation   %s    Jump to Nth conversation
  %s      Clear filter

  [::b]Message Thread[-:-:-]

  %s      Focus composer      %s      Show conversation details and QR
  %s    Exit composer       %s  Send message (in composer)

  [::b]Commands (: mode)[-:-:-]

  %s   Start a conversation (clients only)
  %s                        Move the open conversation (owners only)
  %s                     Send a proposal
  %s / %s   Answer a proposal
  %s                          Open the Nth conversation
  %s                           Sign out and clear local state
  %s / %s  %s / %s
`,
		key(":"), key("Esc"),
		key("/"), key("?"),
		key("q"), key("Ctrl-C"),
		key("Enter"), key("1-9"),
		key("0"),
		key("i"), key("d"),
		key("Esc"), key("Enter"),
		key(":start <owner-id> <listing-id> [title]"),
		key(":status active|archived|closed"),
		key(":propose <text>"),
		key(":accept <proposal-id> [note]"), key(":decline ..."),
		key(":open <n>"),
		key(":logout"),
		key(":help"), key(":h"), key(":quit"), key(":q"),
	)

	_, _ = fmt.Fprint(hv, help)
}
