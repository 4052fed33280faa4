// Package model turns chat state into rows the views render.
package model

import (
	"strings"
	"time"

	"github.com/matheus3301/rentchat/internal/backend"
	"github.com/matheus3301/rentchat/internal/chat"
)

// Presence is what the shell shows about a counterpart. *profile.Cache
// satisfies it.
type Presence interface {
	IsOnline(userID string) bool
	LastSeenText(userID string) string
}

// ConversationRow is one line of the conversation list.
type ConversationRow struct {
	ID          string
	Title       string
	Counterpart string
	Preview     string
	Time        string
	Unread      int
	Online      bool
	LastSeen    string
	Status      chat.Status
	Active      bool
}

// ConversationRows builds the list rows in store order.
func ConversationRows(convs []chat.Conversation, viewer chat.Viewer, activeID string, p Presence, now time.Time) []ConversationRow {
	rows := make([]ConversationRow, 0, len(convs))
	for _, c := range convs {
		other := chat.Other(c, viewer)
		name := other.Name
		if name == "" {
			name = other.UserID
		}
		title := c.ResourceTitle
		if title == "" {
			title = c.ResourceID
		}
		row := ConversationRow{
			ID:          c.ID,
			Title:       title,
			Counterpart: name,
			Preview:     c.LastMessage,
			Time:        FormatTime(c.LastMessageAt, now),
			Unread:      chat.Unread(c, viewer),
			Status:      c.Status,
			Active:      c.ID == activeID,
		}
		if p != nil && other.UserID != "" {
			row.Online = p.IsOnline(other.UserID)
			row.LastSeen = p.LastSeenText(other.UserID)
		}
		rows = append(rows, row)
	}
	return rows
}

// Filter keeps the rows whose counterpart, title or preview contain q,
// ignoring case.
func Filter(rows []ConversationRow, q string) []ConversationRow {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return rows
	}
	var out []ConversationRow
	for _, r := range rows {
		for _, s := range []string{r.Counterpart, r.Title, r.Preview} {
			if strings.Contains(strings.ToLower(s), q) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// MessageLine is one rendered message.
type MessageLine struct {
	ID       string
	Sender   string
	Body     string
	Time     string
	Own      bool
	Kind     chat.Kind
	Delivery chat.Delivery
}

// MessageLines builds the thread of conv, oldest first.
func MessageLines(msgs []chat.Message, conv chat.Conversation, viewer chat.Viewer, now time.Time) []MessageLine {
	lines := make([]MessageLine, 0, len(msgs))
	for _, m := range msgs {
		own := m.SenderUserID == viewer.UserID
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderUserID
		}
		if own {
			sender = "You"
		}
		lines = append(lines, MessageLine{
			ID:       m.ID,
			Sender:   sender,
			Body:     messageBody(m),
			Time:     FormatTime(m.CreatedAt, now),
			Own:      own,
			Kind:     m.Kind,
			Delivery: chat.DeliveryStatus(m, conv, viewer),
		})
	}
	return lines
}

func messageBody(m chat.Message) string {
	switch m.Kind {
	case chat.KindProposal:
		return "[proposal " + m.ID + "] " + m.Body
	case chat.KindProposalResponse:
		verdict := "declined"
		if accepted, _ := m.Payload["accepted"].(bool); accepted {
			verdict = "accepted"
		}
		id, _ := m.Payload["proposalId"].(string)
		return "[" + verdict + " " + id + "] " + m.Body
	}
	return m.Body
}

// FormatTime shows the clock for today and the date otherwise.
func FormatTime(stamp string, now time.Time) string {
	t := backend.ParseTime(stamp)
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
