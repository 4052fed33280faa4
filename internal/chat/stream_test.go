package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/backend"
	"github.com/matheus3301/rentchat/internal/backend/backendtest"
	"github.com/matheus3301/rentchat/internal/realtime"
	"github.com/matheus3301/rentchat/internal/status"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

type activityLog struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func (a *activityLog) ObserveActivity(userID string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seen == nil {
		a.seen = make(map[string]time.Time)
	}
	a.seen[userID] = at
}

func (a *activityLog) get(userID string) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	at, ok := a.seen[userID]
	return at, ok
}

func messageEvent(kind realtime.Kind, id, convID, sender, createdAt string) realtime.Event {
	return realtime.Event{
		Kind:       kind,
		Collection: "messages",
		Document: backend.Document{
			ID:        id,
			CreatedAt: backend.ParseTime(createdAt),
			Data: map[string]any{
				"conversationId": convID,
				"senderUserId":   sender,
				"senderName":     "Someone",
				"body":           "body of " + id,
			},
		},
	}
}

func messageIDs(msgs []Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

// switchedStream returns a stream on conversation c1 with an active
// subscription generation.
func switchedStream(t *testing.T, mem *backendtest.Memory, opts StreamOptions) (*MessageStream, uint64) {
	t.Helper()
	s := NewMessageStream(mem, mem, opts)
	s.SetViewer("A")
	if err := s.Switch(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Reset)
	waitFor(t, "subscription", func() bool { return mem.Subscribers(backend.ConversationChannel("messages", "c1")) == 1 })
	return s, 1
}

func TestInboundCreateIsDeduplicated(t *testing.T) {
	mem := backendtest.NewMemory()
	s, gen := switchedStream(t, mem, StreamOptions{})

	evt := messageEvent(realtime.Create, "m1", "c1", "B", "2026-01-01T00:00:01Z")
	for range 3 {
		s.handleEvent(gen, evt)
	}
	if ids := messageIDs(s.Messages()); len(ids) != 1 || ids[0] != "m1" {
		t.Errorf("messages = %v, want [m1]", ids)
	}
}

func TestInboundOutOfOrderIsSorted(t *testing.T) {
	mem := backendtest.NewMemory()
	s, gen := switchedStream(t, mem, StreamOptions{})

	s.handleEvent(gen, messageEvent(realtime.Create, "m3", "c1", "A", "2026-01-01T00:00:03Z"))
	s.handleEvent(gen, messageEvent(realtime.Create, "m1", "c1", "A", "2026-01-01T00:00:01Z"))
	s.handleEvent(gen, messageEvent(realtime.Create, "m2", "c1", "A", "2026-01-01T00:00:02Z"))

	ids := messageIDs(s.Messages())
	if len(ids) != 3 || ids[0] != "m1" || ids[1] != "m2" || ids[2] != "m3" {
		t.Errorf("messages = %v, want [m1 m2 m3]", ids)
	}
}

func TestInboundDeleteUpdateAndForeignConversation(t *testing.T) {
	mem := backendtest.NewMemory()
	s, gen := switchedStream(t, mem, StreamOptions{})

	s.handleEvent(gen, messageEvent(realtime.Create, "m1", "c1", "A", "2026-01-01T00:00:01Z"))
	s.handleEvent(gen, messageEvent(realtime.Create, "x1", "c2", "A", "2026-01-01T00:00:01Z"))

	edited := messageEvent(realtime.Update, "m1", "c1", "A", "2026-01-01T00:00:01Z")
	edited.Document.Data["body"] = "edited"
	s.handleEvent(gen, edited)
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Body != "body of m1" {
		t.Fatalf("messages = %+v", msgs)
	}

	s.handleEvent(gen, messageEvent(realtime.Delete, "m1", "c1", "A", "2026-01-01T00:00:01Z"))
	if n := len(s.Messages()); n != 0 {
		t.Errorf("messages after delete = %d", n)
	}
}

func TestInboundSideEffects(t *testing.T) {
	mem := backendtest.NewMemory()
	notes := backendtest.NewNotifier()
	activity := &activityLog{}
	s, gen := switchedStream(t, mem, StreamOptions{Notifier: notes, Activity: activity})

	var hooked []string
	s.OnInbound(func(m Message) { hooked = append(hooked, m.ID) })

	s.handleEvent(gen, messageEvent(realtime.Create, "own", "c1", "A", "2026-01-01T00:00:01Z"))
	s.handleEvent(gen, messageEvent(realtime.Create, "theirs", "c1", "B", "2026-01-01T00:00:02Z"))

	all := notes.All()
	if len(all) != 1 || all[0].MessageID != "theirs" || all[0].ConversationID != "c1" {
		t.Errorf("notifications = %+v", all)
	}
	if len(hooked) != 1 || hooked[0] != "theirs" {
		t.Errorf("inbound hook = %v", hooked)
	}
	at, ok := activity.get("B")
	if !ok || !at.Equal(backend.ParseTime("2026-01-01T00:00:02Z")) {
		t.Errorf("activity = %v, %v", at, ok)
	}
	if _, ok := activity.get("A"); ok {
		t.Error("own messages should not count as counterpart activity")
	}
}

func TestLoadOrdersAndKeepsPreviousOnFailure(t *testing.T) {
	mem := backendtest.NewMemory()
	ctx := context.Background()
	for _, id := range []string{"m1", "m2"} {
		if _, err := mem.Create(ctx, "messages", id, map[string]any{"conversationId": "c1", "body": id}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := mem.Create(ctx, "messages", "other", map[string]any{"conversationId": "c2", "body": "x"}); err != nil {
		t.Fatal(err)
	}

	s := NewMessageStream(mem, nil, StreamOptions{})
	if err := s.Load(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if ids := messageIDs(s.Messages()); len(ids) != 2 || ids[0] != "m1" || ids[1] != "m2" {
		t.Fatalf("messages = %v", ids)
	}
	if s.Loading() {
		t.Error("Loading should be false after Load")
	}

	mem.Fail(backendtest.OpList, errors.New("offline"))
	if err := s.Load(ctx, "c1"); err == nil {
		t.Fatal("expected load error")
	}
	if n := len(s.Messages()); n != 2 {
		t.Errorf("previous list lost, have %d", n)
	}
	if s.Loading() {
		t.Error("Loading should be false after a failed Load")
	}
}

func TestSupersededLoadIsDiscarded(t *testing.T) {
	mem := backendtest.NewMemory()
	ctx := context.Background()
	if _, err := mem.Create(ctx, "messages", "x1", map[string]any{"conversationId": "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.Create(ctx, "messages", "y1", map[string]any{"conversationId": "y"}); err != nil {
		t.Fatal(err)
	}
	s := NewMessageStream(mem, nil, StreamOptions{})

	release := mem.Hold(backendtest.OpList)
	first := make(chan error, 1)
	go func() { first <- s.Load(ctx, "x") }()
	waitFor(t, "held load", func() bool { return mem.Calls(backendtest.OpList) == 1 })
	if !s.Loading() {
		t.Error("Loading should be true while a load is in flight")
	}

	// A newer switch is issued while the first load is still blocked.
	second := make(chan error, 1)
	go func() { second <- s.Switch(ctx, "y") }()
	waitFor(t, "second load", func() bool { return mem.Calls(backendtest.OpList) == 2 })
	release()

	for _, ch := range []chan error{first, second} {
		select {
		case err := <-ch:
			if err != nil {
				t.Fatal(err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("load never returned")
		}
	}
	if ids := messageIDs(s.Messages()); len(ids) != 1 || ids[0] != "y1" {
		t.Errorf("messages = %v, want [y1]", ids)
	}
}

func TestSendDoesNotSplice(t *testing.T) {
	mem := backendtest.NewMemory()
	s := NewMessageStream(mem, nil, StreamOptions{})
	ctx := context.Background()
	if err := s.Load(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	msg, err := s.Send(ctx, "c1", Viewer{UserID: "A", Name: "Ana", Role: RoleClient}, "  hi  ", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID == "" || msg.Body != "hi" || msg.Kind != KindText || msg.CreatedAt == "" {
		t.Errorf("sent = %+v", msg)
	}
	if n := len(s.Messages()); n != 0 {
		t.Errorf("send spliced %d messages locally", n)
	}
	if _, err := s.Send(ctx, "c1", Viewer{UserID: "A"}, "   ", "", nil); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("err = %v, want ErrEmptyBody", err)
	}

	mem.Fail(backendtest.OpCreate, errors.New("offline"))
	if _, err := s.Send(ctx, "c1", Viewer{UserID: "A"}, "again", "", nil); err == nil {
		t.Error("send failure should surface")
	}
}

func TestSwitchKeepsOneSubscription(t *testing.T) {
	mem := backendtest.NewMemory()
	ctx := context.Background()
	s := NewMessageStream(mem, mem, StreamOptions{})
	s.SetViewer("A")
	t.Cleanup(s.Reset)
	xChannel := backend.ConversationChannel("messages", "x")
	yChannel := backend.ConversationChannel("messages", "y")

	if err := s.Switch(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "x subscription", func() bool { return mem.Subscribers(xChannel) == 1 })
	if err := s.Switch(ctx, "y"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "y subscription", func() bool {
		return mem.Subscribers(yChannel) == 1 && mem.Subscribers(xChannel) == 0 && s.Subscribed()
	})
	time.Sleep(50 * time.Millisecond)
	if n := mem.Subscribers(yChannel); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}
	if n := mem.Subscribers(backend.CollectionChannel("messages")); n != 0 {
		t.Errorf("collection-wide subscribers = %d, want 0", n)
	}

	// Late delivery from the first subscription is dropped.
	s.handleEvent(1, messageEvent(realtime.Create, "stale", "y", "B", "2026-01-01T00:00:01Z"))

	if _, err := mem.Create(ctx, "messages", "x-msg", map[string]any{"conversationId": "x", "senderUserId": "B"}); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.Create(ctx, "messages", "y-msg", map[string]any{"conversationId": "y", "senderUserId": "B"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "y message", func() bool { return len(s.Messages()) > 0 })
	if ids := messageIDs(s.Messages()); len(ids) != 1 || ids[0] != "y-msg" {
		t.Errorf("messages = %v, want [y-msg]", ids)
	}

	s.Reset()
	waitFor(t, "teardown", func() bool { return mem.Subscribers(yChannel) == 0 })
	if s.ConversationID() != "" || len(s.Messages()) != 0 {
		t.Error("Reset should clear the stream")
	}
}

func TestSwitchLeavesLinkLive(t *testing.T) {
	mem := backendtest.NewMemory()
	ctx := context.Background()
	machine := status.NewMachine("messages", nil)
	s := NewMessageStream(mem, mem, StreamOptions{Machine: machine})
	s.SetViewer("A")
	t.Cleanup(s.Reset)

	for _, id := range []string{"x", "y", "z"} {
		if err := s.Switch(ctx, id); err != nil {
			t.Fatal(err)
		}
		waitFor(t, id+" live", func() bool {
			return mem.Subscribers(backend.ConversationChannel("messages", id)) == 1 && machine.Current() == status.Live
		})
	}
	// Give the replaced subscribers time to exit.
	time.Sleep(50 * time.Millisecond)
	if got := machine.Current(); got != status.Live {
		t.Fatalf("link state = %s, want LIVE", got)
	}

	s.Reset()
	if got := machine.Current(); got != status.Closed {
		t.Errorf("link state after reset = %s, want CLOSED", got)
	}
}
