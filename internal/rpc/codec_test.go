package rpc

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/backend"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func TestQueryOverTheWire(t *testing.T) {
	q := backend.Query{
		Equal:   []backend.Filter{backend.Eq("status", "active"), backend.Eq("archived", false)},
		Any:     []backend.Filter{backend.Eq("clientUserId", "u1"), backend.Eq("ownerUserId", "u1")},
		OrderBy: "lastMessageAt",
		Desc:    true,
		Limit:   25,
		Offset:  50,
	}
	s, err := EncodeQuery("conversations", q)
	if err != nil {
		t.Fatal(err)
	}
	coll, got, err := DecodeQuery(s)
	if err != nil {
		t.Fatal(err)
	}
	if coll != "conversations" {
		t.Errorf("collection = %q", coll)
	}
	if got.OrderBy != "lastMessageAt" || !got.Desc || got.Limit != 25 || got.Offset != 50 {
		t.Errorf("query = %+v", got)
	}
	if len(got.Equal) != 2 || got.Equal[1].Value != false {
		t.Errorf("equal = %+v", got.Equal)
	}
	if len(got.Any) != 2 || got.Any[1].Field != "ownerUserId" {
		t.Errorf("any = %+v", got.Any)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("decoded query should validate: %v", err)
	}
}

func TestEncodeAcceptsTypedValues(t *testing.T) {
	s, err := Encode(map[string]any{"tags": []string{"a", "b"}, "n": int64(3)})
	if err != nil {
		t.Fatal(err)
	}
	m := Decode(s)
	if got := Strings(m, "tags"); len(got) != 2 || got[1] != "b" {
		t.Errorf("tags = %v", got)
	}
	if Int(m, "n") != 3 {
		t.Errorf("n = %v", m["n"])
	}
}

func TestDecodeIncrements(t *testing.T) {
	got, err := DecodeIncrements(map[string]any{"ownerUnread": float64(1)})
	if err != nil {
		t.Fatal(err)
	}
	if got["ownerUnread"] != 1 {
		t.Errorf("ownerUnread = %d", got["ownerUnread"])
	}
	if _, err := DecodeIncrements(map[string]any{"x": 1.5}); !errors.Is(err, backend.ErrInvalidQuery) {
		t.Errorf("fractional err = %v, want ErrInvalidQuery", err)
	}
	if _, err := DecodeIncrements(map[string]any{"x": "1"}); !errors.Is(err, backend.ErrInvalidQuery) {
		t.Errorf("string err = %v, want ErrInvalidQuery", err)
	}
}

func TestEventOverTheWire(t *testing.T) {
	ts := time.Date(2026, 4, 2, 10, 0, 0, 123, time.UTC)
	in := backend.RawEvent{
		ID:        "e1",
		Events:    []string{backend.EventName("messages", "m1", backend.ActionCreate)},
		Channels:  []string{backend.CollectionChannel("messages")},
		Timestamp: ts,
		Payload:   map[string]any{backend.AttrID: "m1", "body": "hi"},
	}
	s, err := EncodeEvent(in)
	if err != nil {
		t.Fatal(err)
	}
	out := DecodeEvent(s)
	if out.ID != "e1" || out.Events[0] != in.Events[0] || out.Channels[0] != in.Channels[0] {
		t.Errorf("event = %+v", out)
	}
	if !out.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", out.Timestamp, ts)
	}
	if out.Payload["body"] != "hi" {
		t.Errorf("payload = %v", out.Payload)
	}
}

func TestDecodeDocumentsRejectsMissingID(t *testing.T) {
	s, err := Encode(map[string]any{"documents": []any{map[string]any{"body": "x"}}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeDocuments(s); err == nil {
		t.Error("expected error for document without id")
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{fmt.Errorf("c/x: %w", backend.ErrNotFound), codes.NotFound},
		{fmt.Errorf("c/x: %w", backend.ErrConflict), codes.AlreadyExists},
		{fmt.Errorf("%w: field", backend.ErrInvalidQuery), codes.InvalidArgument},
		{ErrRateLimited, codes.ResourceExhausted},
		{errors.New("disk on fire"), codes.Internal},
	}
	for _, tt := range tests {
		st, _ := grpcstatus.FromError(ToStatus(tt.err))
		if st.Code() != tt.code {
			t.Errorf("ToStatus(%v) code = %s, want %s", tt.err, st.Code(), tt.code)
		}
	}

	back := FromStatus(ToStatus(fmt.Errorf("c/x: %w", backend.ErrConflict)))
	if !errors.Is(back, backend.ErrConflict) {
		t.Errorf("FromStatus lost ErrConflict: %v", back)
	}
	if back.Error() != "c/x: document already exists" {
		t.Errorf("message = %q", back.Error())
	}
	if ToStatus(nil) != nil || FromStatus(nil) != nil {
		t.Error("nil errors must map to nil")
	}
}

func TestChannels(t *testing.T) {
	got := Channels([]string{"b", "a", "b", " "})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Channels = %v, want [a b]", got)
	}
}
