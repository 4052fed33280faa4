package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/rentchat/internal/tui/model"
	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationList is the main conversation table.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	rows    []model.ConversationRow
	visible []model.ConversationRow
	filter  string
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
	}
}

// Name implements Component.
func (cl *ConversationList) Name() string { return "Conversations" }

// FocusTarget implements Component.
func (cl *ConversationList) FocusTarget() tview.Primitive { return cl }

// Hints implements Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// Update refreshes the table, keeping the selected conversation selected.
func (cl *ConversationList) Update(rows []model.ConversationRow) {
	selected := cl.SelectedConversation()
	cl.rows = rows
	cl.render()
	if selected == "" {
		return
	}
	for i, r := range cl.visible {
		if r.ID == selected {
			cl.Select(i+1, 0)
			return
		}
	}
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

// ClearFilter clears the active filter.
func (cl *ConversationList) ClearFilter() {
	cl.filter = ""
	cl.render()
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" WITH", 1},
		{" LISTING", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" STATUS", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		cl.SetCell(0, col, cell)
	}

	cl.visible = model.Filter(cl.rows, cl.filter)
	for i, r := range cl.visible {
		row := i + 1
		name := clean(r.Counterpart)
		if r.Unread > 0 {
			name = ui.Paint(cl.theme.UnreadColor, fmt.Sprintf("(%d)", r.Unread)) + " " + name
		}
		dot := ui.Paint(cl.theme.OfflineColor, "○") + " "
		if r.Online {
			dot = ui.Paint(cl.theme.OnlineColor, "●") + " "
		}
		fg := cl.theme.FgColor
		if r.Active {
			fg = cl.theme.CounterColor
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+dot+name).SetExpansion(1).SetTextColor(fg))
		cl.SetCell(row, 1, tview.NewTableCell(" "+clean(r.Title)).SetExpansion(1).SetTextColor(fg))
		cl.SetCell(row, 2, tview.NewTableCell(" "+clean(r.Preview)).SetExpansion(2).SetTextColor(fg))
		cl.SetCell(row, 3, tview.NewTableCell(r.Time).SetTextColor(fg).SetAlign(tview.AlignRight))
		cl.SetCell(row, 4, tview.NewTableCell(" "+string(r.Status)).SetTextColor(fg).SetAlign(tview.AlignRight))
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", len(cl.visible), len(cl.rows), clean(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.rows)))
	}
}

// SelectedConversation returns the id of the selected row.
func (cl *ConversationList) SelectedConversation() string {
	row, _ := cl.GetSelection()
	return cl.ConversationByIndex(row)
}

// ConversationByIndex returns the id of the Nth visible conversation
// (1-based).
func (cl *ConversationList) ConversationByIndex(n int) string {
	if n < 1 || n > len(cl.visible) {
		return ""
	}
	return cl.visible[n-1].ID
}
