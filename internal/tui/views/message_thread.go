package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/rentchat/internal/chat"
	"github.com/matheus3301/rentchat/internal/tui/model"
	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays messages and a composer for the open conversation.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	title    string
	onSend   func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			text := composer.GetText()
			if text != "" {
				mt.onSend(text)
				composer.SetText("")
			}
		}
	})

	return mt
}

// Name implements Component.
func (mt *MessageThread) Name() string { return "Thread" }

// Title returns the counterpart shown in the header.
func (mt *MessageThread) Title() string { return mt.title }

// FocusTarget implements Component.
func (mt *MessageThread) FocusTarget() tview.Primitive { return mt.messages }

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "d", Description: "Details"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// SetHeader updates the title with the counterpart and their presence.
func (mt *MessageThread) SetHeader(name, lastSeen string, online bool) {
	mt.title = name
	presence := ui.Paint(mt.theme.OfflineColor, clean(lastSeen))
	if online {
		presence = ui.Paint(mt.theme.OnlineColor, "online")
	}
	if lastSeen == "" && !online {
		presence = ""
	}
	mt.messages.SetTitle(fmt.Sprintf(" %s %s ", clean(name), presence))
}

// SetOnSend sets the callback when a message is sent.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// RestoreDraft puts text back into the composer after a failed send, unless
// the user has started typing something else.
func (mt *MessageThread) RestoreDraft(text string) {
	if mt.composer.GetText() != "" {
		return
	}
	mt.composer.SetText(text)
}

// Update re-renders the thread.
func (mt *MessageThread) Update(lines []model.MessageLine, loading bool) {
	mt.messages.Clear()
	if loading && len(lines) == 0 {
		_, _ = fmt.Fprint(mt.messages, "[::d]Loading...[-:-:-]")
		return
	}
	for _, l := range lines {
		sender := clean(l.Sender)
		if l.Own {
			sender = ui.Paint(mt.theme.OwnColor, sender)
		}
		body := clean(l.Body)
		if l.Kind == chat.KindProposal || l.Kind == chat.KindProposalResponse {
			body = ui.Paint(mt.theme.ProposalColor, body)
		}
		_, _ = fmt.Fprintf(mt.messages, "[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
			sender, l.Time, mt.deliveryMark(l.Delivery), body)
	}
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) deliveryMark(d chat.Delivery) string {
	switch d {
	case chat.DeliverySending:
		return " …"
	case chat.DeliverySent:
		return " ✓"
	case chat.DeliveryDelivered:
		return " ✓✓"
	case chat.DeliveryRead:
		return " " + ui.Paint(mt.theme.ReadColor, "✓✓")
	case chat.DeliveryFailed:
		return " " + ui.Paint(mt.theme.FailedColor, "!")
	}
	return ""
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
