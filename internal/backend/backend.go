// Package backend defines the contracts the chat core consumes from its
// collaborators: a document store with realtime push, file URL resolution,
// durable per-device storage and a notification side effect.
package backend

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrConflict     = errors.New("document already exists")
	ErrInvalidQuery = errors.New("invalid query")
	ErrUnavailable  = errors.New("backend unavailable")
)

// Documents is CRUD over named collections.
type Documents interface {
	List(ctx context.Context, collection string, q Query) ([]Document, error)
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Create stores a new document. An empty id lets the store assign one.
	// Returns ErrConflict when id is already taken.
	Create(ctx context.Context, collection, id string, data map[string]any) (Document, error)
	// Update shallow-merges patch into the document and adds incr to integer
	// fields in the same write.
	Update(ctx context.Context, collection, id string, patch map[string]any, incr map[string]int64) (Document, error)
	Delete(ctx context.Context, collection, id string) error
}

// Realtime opens push subscriptions on channel names.
type Realtime interface {
	Subscribe(ctx context.Context, channels []string) (Subscription, error)
}

// Subscription is a live realtime feed. Done is closed when the feed ends,
// either through Close or because the transport failed; Err reports why.
// Events is never closed, so readers select on both.
type Subscription interface {
	Events() <-chan RawEvent
	Done() <-chan struct{}
	Err() error
	Close()
}

// Files resolves stored file ids to fetchable URLs.
type Files interface {
	URL(ctx context.Context, bucket, fileID string) (string, error)
}

// Storage is a durable per-device key-value store.
type Storage interface {
	// Get reports ok=false when the key is absent.
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// Notification describes an inbound message from another participant.
type Notification struct {
	ConversationID string
	MessageID      string
	SenderName     string
	Preview        string
}

// Notifier is a fire-and-forget side effect such as a sound.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }
