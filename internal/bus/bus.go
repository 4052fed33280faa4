package bus

import (
	"sync"
)

// Bus is an in-process publish/subscribe event bus keyed by channel name.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*Subscription
	next int
}

// Subscription receives events published on any of its channels.
type Subscription struct {
	channels map[string]struct{}
	ch       chan Event
	lagOnce  sync.Once
	lagged   chan struct{}
	cancel   func()
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*Subscription),
	}
}

// Publish delivers evt to every subscription listening on one of evt.Channels.
// A subscriber whose buffer is full loses the event and is marked as lagged.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.matches(evt.Channels) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			sub.lagOnce.Do(func() { close(sub.lagged) })
		}
	}
}

// Subscribe registers interest in the given channels. bufSize controls the
// event buffer. Call Close on the returned subscription to unsubscribe.
func (b *Bus) Subscribe(channels []string, bufSize int) *Subscription {
	set := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		set[c] = struct{}{}
	}
	sub := &Subscription{
		channels: set,
		ch:       make(chan Event, bufSize),
		lagged:   make(chan struct{}),
	}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	sub.cancel = func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
	return sub
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Events returns the delivery channel. It is never closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Lagged is closed once the subscription has dropped an event.
func (s *Subscription) Lagged() <-chan struct{} {
	return s.lagged
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.cancel()
}

func (s *Subscription) matches(channels []string) bool {
	for _, c := range channels {
		if _, ok := s.channels[c]; ok {
			return true
		}
	}
	return false
}
