package model

import (
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/chat"
)

type fakePresence map[string]bool

func (f fakePresence) IsOnline(id string) bool { return f[id] }
func (f fakePresence) LastSeenText(id string) string {
	if f[id] {
		return "online"
	}
	return "5 minutes ago"
}

var (
	now    = time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)
	viewer = chat.Viewer{UserID: "A", Name: "Ana", Role: chat.RoleClient}
)

func TestConversationRows(t *testing.T) {
	convs := []chat.Conversation{
		{ID: "c1", ClientUserID: "A", OwnerUserID: "B", OwnerName: "Bruno", ResourceTitle: "Loft",
			LastMessage: "hi", LastMessageAt: "2026-05-10T14:30:00Z", ClientUnread: 2, Status: chat.StatusActive},
		{ID: "c2", ClientUserID: "A", OwnerUserID: "C", ResourceID: "house-9",
			LastMessageAt: "2026-05-01T09:00:00Z", Status: chat.StatusArchived},
	}
	rows := ConversationRows(convs, viewer, "c2", fakePresence{"B": true}, now)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	r := rows[0]
	if r.Counterpart != "Bruno" || r.Title != "Loft" || r.Unread != 2 || !r.Online || r.Time != "14:30" || r.Active {
		t.Errorf("row 0 = %+v", r)
	}
	r = rows[1]
	if r.Counterpart != "C" || r.Title != "house-9" || r.Online || r.LastSeen != "5 minutes ago" || r.Time != "05/01" || !r.Active {
		t.Errorf("row 1 = %+v", r)
	}

	if rows := ConversationRows(convs, viewer, "", nil, now); rows[0].Online || rows[0].LastSeen != "" {
		t.Errorf("nil presence row = %+v", rows[0])
	}
}

func TestFilter(t *testing.T) {
	rows := []ConversationRow{
		{ID: "1", Counterpart: "Bruno", Title: "Loft"},
		{ID: "2", Counterpart: "Carla", Preview: "See you at the LOFT"},
		{ID: "3", Counterpart: "Dora", Title: "Cabin"},
	}
	tests := []struct {
		q    string
		want []string
	}{
		{"", []string{"1", "2", "3"}},
		{"loft", []string{"1", "2"}},
		{"  dora ", []string{"3"}},
		{"zzz", nil},
	}
	for _, tt := range tests {
		got := Filter(rows, tt.q)
		var ids []string
		for _, r := range got {
			ids = append(ids, r.ID)
		}
		if len(ids) != len(tt.want) {
			t.Errorf("Filter(%q) = %v, want %v", tt.q, ids, tt.want)
			continue
		}
		for i := range ids {
			if ids[i] != tt.want[i] {
				t.Errorf("Filter(%q) = %v, want %v", tt.q, ids, tt.want)
				break
			}
		}
	}
}

func TestMessageLines(t *testing.T) {
	conv := chat.Conversation{ID: "c1", ClientUserID: "A", OwnerUserID: "B", OwnerUnread: 1}
	msgs := []chat.Message{
		{ID: "m1", ConversationID: "c1", SenderUserID: "B", SenderName: "Bruno", Body: "Hello", CreatedAt: "2026-05-10T10:00:00Z"},
		{ID: "m2", ConversationID: "c1", SenderUserID: "A", Body: "Hi", CreatedAt: "2026-05-10T10:01:00Z"},
		{ID: "p1", ConversationID: "c1", SenderUserID: "B", Kind: chat.KindProposal, Body: "200/night"},
		{ID: "r1", ConversationID: "c1", SenderUserID: "A", Kind: chat.KindProposalResponse, Body: "ok",
			Payload: map[string]any{"proposalId": "p1", "accepted": true}},
	}
	lines := MessageLines(msgs, conv, viewer, now)
	if lines[0].Sender != "Bruno" || lines[0].Own || lines[0].Delivery != chat.DeliveryNone {
		t.Errorf("line 0 = %+v", lines[0])
	}
	if lines[1].Sender != "You" || !lines[1].Own || lines[1].Delivery != chat.DeliveryDelivered || lines[1].Time != "10:01" {
		t.Errorf("line 1 = %+v", lines[1])
	}
	if lines[2].Body != "[proposal p1] 200/night" {
		t.Errorf("proposal body = %q", lines[2].Body)
	}
	if lines[3].Body != "[accepted p1] ok" {
		t.Errorf("response body = %q", lines[3].Body)
	}
}

func TestFormatTime(t *testing.T) {
	if got := FormatTime("", now); got != "" {
		t.Errorf("empty = %q", got)
	}
	if got := FormatTime("garbage", now); got != "" {
		t.Errorf("garbage = %q", got)
	}
	if got := FormatTime("2026-05-10T08:05:00Z", now); got != "08:05" {
		t.Errorf("today = %q", got)
	}
	if got := FormatTime("2025-12-31T08:05:00Z", now); got != "12/31" {
		t.Errorf("other day = %q", got)
	}
}
