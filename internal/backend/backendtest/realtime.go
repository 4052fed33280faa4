package backendtest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/matheus3301/rentchat/internal/backend"
)

type memSub struct {
	channels map[string]struct{}
	events   chan backend.RawEvent
	done     chan struct{}
	once     sync.Once
	err      error
	owner    *Memory
}

func (s *memSub) Events() <-chan backend.RawEvent { return s.events }
func (s *memSub) Done() <-chan struct{}           { return s.done }

func (s *memSub) Err() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	return s.err
}

func (s *memSub) Close() {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	s.closeLocked(nil)
}

func (s *memSub) closeLocked(err error) {
	s.once.Do(func() {
		s.err = err
		delete(s.owner.subs, s)
		close(s.done)
	})
}

// Subscribe implements backend.Realtime. Events are buffered; a full buffer
// drops the event.
func (m *Memory) Subscribe(ctx context.Context, channels []string) (backend.Subscription, error) {
	if err := m.enter(ctx, OpSubscribe); err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		set[c] = struct{}{}
	}
	s := &memSub{
		channels: set,
		events:   make(chan backend.RawEvent, 256),
		done:     make(chan struct{}),
		owner:    m,
	}
	m.mu.Lock()
	m.subs[s] = struct{}{}
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// Subscribers returns how many live subscriptions listen on channel.
func (m *Memory) Subscribers(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for s := range m.subs {
		if _, ok := s.channels[channel]; ok {
			n++
		}
	}
	return n
}

// Disconnect ends every live subscription with err.
func (m *Memory) Disconnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.subs {
		s.closeLocked(err)
	}
}

// Emit delivers a raw event to matching subscriptions, bypassing storage.
func (m *Memory) Emit(raw backend.RawEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitLocked(raw)
}

// EmitDocument publishes an event for d without storing it.
func (m *Memory) EmitDocument(d backend.Document, action backend.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishLocked(d, action)
}

func (m *Memory) publishLocked(d backend.Document, action backend.Action) {
	m.emitLocked(backend.RawEvent{
		ID:        uuid.NewString(),
		Events:    []string{backend.EventName(d.Collection, d.ID, action)},
		Channels:  backend.EventChannels(d),
		Timestamp: m.clock,
		Payload:   copyDoc(d).Map(),
	})
}

func (m *Memory) emitLocked(raw backend.RawEvent) {
	for s := range m.subs {
		if !s.listens(raw.Channels) {
			continue
		}
		select {
		case s.events <- raw:
		default:
		}
	}
}

func (s *memSub) listens(channels []string) bool {
	for _, c := range channels {
		if _, ok := s.channels[c]; ok {
			return true
		}
	}
	return false
}
