package backend

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestDocumentMapRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d := Document{
		ID:         "c1",
		Collection: "conversations",
		CreatedAt:  created,
		Data:       map[string]any{"status": "active"},
	}

	back := DocumentFromMap(d.Map())
	if back.ID != "c1" || back.Collection != "conversations" {
		t.Errorf("identity = %q/%q, want c1/conversations", back.ID, back.Collection)
	}
	if !back.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", back.CreatedAt, created)
	}
	if !back.UpdatedAt.IsZero() {
		t.Errorf("UpdatedAt = %v, want zero", back.UpdatedAt)
	}
	if back.Data["status"] != "active" {
		t.Errorf("status = %v, want active", back.Data["status"])
	}
}

func TestDocumentDecode(t *testing.T) {
	d := Document{ID: "m1", Data: map[string]any{"body": "hi", "count": float64(3)}}
	var v struct {
		ID    string `json:"$id"`
		Body  string `json:"body"`
		Count int    `json:"count"`
	}
	if err := d.Decode(&v); err != nil {
		t.Fatal(err)
	}
	if v.ID != "m1" || v.Body != "hi" || v.Count != 3 {
		t.Errorf("decoded %+v", v)
	}
}

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       Query
		wantErr bool
	}{
		{"empty", Query{}, false},
		{"equal", Query{Equal: []Filter{Eq("ownerUserId", "u1")}}, false},
		{"reserved order", Query{OrderBy: "$createdAt"}, false},
		{"injection", Query{Equal: []Filter{Eq("a') OR 1=1 --", "x")}}, true},
		{"bad value", Query{Any: []Filter{Eq("a", []string{"x"})}}, true},
		{"negative limit", Query{Limit: -1}, true},
		{"bad order", Query{OrderBy: "a b"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("error %v does not wrap ErrInvalidQuery", err)
			}
		})
	}
}

func TestChannelNames(t *testing.T) {
	if got := CollectionChannel("messages"); got != "collections.messages.documents" {
		t.Errorf("CollectionChannel = %q", got)
	}
	if got := DocumentChannel("messages", "m1"); got != "collections.messages.documents.m1" {
		t.Errorf("DocumentChannel = %q", got)
	}
	if got := ConversationChannel("messages", "c1"); got != "collections.messages.conversations.c1" {
		t.Errorf("ConversationChannel = %q", got)
	}
	if got := EventName("messages", "m1", ActionCreate); got != "collections.messages.documents.m1.create" {
		t.Errorf("EventName = %q", got)
	}
}

func TestEventChannels(t *testing.T) {
	msg := Document{Collection: "messages", ID: "m1", Data: map[string]any{"conversationId": "c1"}}
	want := []string{"collections.messages.documents", "collections.messages.documents.m1", "collections.messages.conversations.c1"}
	if got := EventChannels(msg); !slices.Equal(got, want) {
		t.Errorf("EventChannels(message) = %v, want %v", got, want)
	}
	conv := Document{Collection: "conversations", ID: "c1", Data: map[string]any{"status": "active"}}
	if got := EventChannels(conv); len(got) != 2 {
		t.Errorf("EventChannels(conversation) = %v, want two channels", got)
	}
}

func TestFormatTimeSortsChronologically(t *testing.T) {
	a := time.Date(2026, 1, 1, 0, 0, 0, 100000000, time.UTC)
	b := time.Date(2026, 1, 1, 0, 0, 0, 120000000, time.UTC)
	if !(FormatTime(a) < FormatTime(b)) {
		t.Errorf("%q should sort before %q", FormatTime(a), FormatTime(b))
	}
	if got := ParseTime(FormatTime(b)); !got.Equal(b) {
		t.Errorf("ParseTime(FormatTime(b)) = %v, want %v", got, b)
	}
	if !ParseTime("yesterday").IsZero() {
		t.Error("ParseTime of garbage should be zero")
	}
}
