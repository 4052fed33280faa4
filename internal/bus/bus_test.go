package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe([]string{"collections.messages.documents"}, 10)
	defer sub.Close()

	b.Publish(Event{
		Name:      "collections.messages.documents.m1.create",
		Channels:  []string{"collections.messages.documents", "collections.messages.documents.m1"},
		Timestamp: time.Now(),
		Payload:   "test",
	})

	select {
	case evt := <-sub.Events():
		if evt.Name != "collections.messages.documents.m1.create" {
			t.Errorf("got name %q, want collections.messages.documents.m1.create", evt.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestChannelFiltering(t *testing.T) {
	b := New()
	sub := b.Subscribe([]string{"collections.profiles.documents"}, 10)
	defer sub.Close()

	b.Publish(Event{Name: "conversation", Channels: []string{"collections.conversations.documents"}})
	b.Publish(Event{Name: "profile", Channels: []string{"collections.profiles.documents"}})

	select {
	case evt := <-sub.Events():
		if evt.Name != "profile" {
			t.Errorf("got name %q, want profile", evt.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// The conversations event must not have been delivered.
	select {
	case evt := <-sub.Events():
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSingleDeliveryForOverlappingChannels(t *testing.T) {
	b := New()
	sub := b.Subscribe([]string{"a", "a.1"}, 10)
	defer sub.Close()

	b.Publish(Event{Name: "x", Channels: []string{"a", "a.1"}})

	<-sub.Events()
	select {
	case evt := <-sub.Events():
		t.Errorf("event delivered twice: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClose(t *testing.T) {
	b := New()
	sub := b.Subscribe([]string{"a"}, 10)
	sub.Close()
	sub.Close()

	b.Publish(Event{Name: "x", Channels: []string{"a"}})

	select {
	case evt := <-sub.Events():
		t.Errorf("received event after close: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}

func TestLaggedOnFullBuffer(t *testing.T) {
	b := New()
	sub := b.Subscribe([]string{"a"}, 1)
	defer sub.Close()

	b.Publish(Event{Name: "one", Channels: []string{"a"}})
	// Dropped: buffer is full.
	b.Publish(Event{Name: "two", Channels: []string{"a"}})

	evt := <-sub.Events()
	if evt.Name != "one" {
		t.Errorf("got %q, want one", evt.Name)
	}
	select {
	case <-sub.Lagged():
	default:
		t.Error("subscription not marked lagged after a drop")
	}
}
