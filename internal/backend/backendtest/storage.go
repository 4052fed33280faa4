package backendtest

import (
	"context"
	"sync"

	"github.com/matheus3301/rentchat/internal/backend"
)

// Storage is an in-memory backend.Storage.
type Storage struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

// NewStorage creates an empty store.
func NewStorage() *Storage {
	return &Storage{data: make(map[string]string)}
}

// Fail makes every call return err until cleared with nil.
func (s *Storage) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Storage) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", false, s.err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *Storage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	return nil
}

func (s *Storage) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.data, key)
	return nil
}

// Notifier records notifications.
type Notifier struct {
	mu    sync.Mutex
	notes []backend.Notification
	ch    chan backend.Notification
}

// NewNotifier creates a recorder.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan backend.Notification, 64)}
}

func (n *Notifier) Notify(_ context.Context, note backend.Notification) {
	n.mu.Lock()
	n.notes = append(n.notes, note)
	n.mu.Unlock()
	select {
	case n.ch <- note:
	default:
	}
}

// C delivers each notification as it arrives.
func (n *Notifier) C() <-chan backend.Notification {
	return n.ch
}

// All returns every notification so far.
func (n *Notifier) All() []backend.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]backend.Notification(nil), n.notes...)
}
