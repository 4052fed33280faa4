// Package docstore serves documents out of the SQLite store and fans every
// mutation out to realtime subscribers over the event bus.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/rentchat/internal/backend"
	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/store"
	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscription event buffer.
const DefaultBuffer = 256

// ErrLagged ends a subscription that could not keep up with the event rate.
// Subscribers recover by resubscribing and reloading.
var ErrLagged = errors.New("realtime subscriber lagged")

// Service implements backend.Documents and backend.Realtime in-process.
type Service struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time
	buf    int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBuffer sets the per-subscription event buffer.
func WithBuffer(n int) Option {
	return func(s *Service) { s.buf = n }
}

// New creates a document service.
func New(db *store.DB, b *bus.Bus, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		db:     db,
		bus:    b,
		logger: logger,
		now:    time.Now,
		buf:    DefaultBuffer,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// List returns the documents of a collection matching q.
func (s *Service) List(ctx context.Context, collection string, q backend.Query) ([]backend.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	return s.db.FindDocuments(ctx, collection, q)
}

// Get returns one document or backend.ErrNotFound.
func (s *Service) Get(ctx context.Context, collection, id string) (backend.Document, error) {
	if err := checkCollection(collection); err != nil {
		return backend.Document{}, err
	}
	d, err := s.db.GetDocument(ctx, collection, id)
	if err != nil {
		return backend.Document{}, err
	}
	if d == nil {
		return backend.Document{}, fmt.Errorf("%s/%s: %w", collection, id, backend.ErrNotFound)
	}
	return *d, nil
}

// Create stores a new document and publishes a create event.
func (s *Service) Create(ctx context.Context, collection, id string, data map[string]any) (backend.Document, error) {
	if err := checkCollection(collection); err != nil {
		return backend.Document{}, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	d, err := s.db.InsertDocument(ctx, collection, id, stripReserved(data), s.now())
	if err != nil {
		return backend.Document{}, err
	}
	s.publish(*d, backend.ActionCreate)
	s.logger.Debug("document created", zap.String("collection", collection), zap.String("id", id))
	return *d, nil
}

// Update patches a document and publishes an update event.
func (s *Service) Update(ctx context.Context, collection, id string, patch map[string]any, incr map[string]int64) (backend.Document, error) {
	if err := checkCollection(collection); err != nil {
		return backend.Document{}, err
	}
	d, err := s.db.PatchDocument(ctx, collection, id, stripReserved(patch), incr, s.now())
	if err != nil {
		return backend.Document{}, err
	}
	if d == nil {
		return backend.Document{}, fmt.Errorf("%s/%s: %w", collection, id, backend.ErrNotFound)
	}
	s.publish(*d, backend.ActionUpdate)
	return *d, nil
}

// Delete removes a document and publishes a delete event carrying its last
// known state.
func (s *Service) Delete(ctx context.Context, collection, id string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	d, err := s.db.GetDocument(ctx, collection, id)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("%s/%s: %w", collection, id, backend.ErrNotFound)
	}
	ok, err := s.db.RemoveDocument(ctx, collection, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, backend.ErrNotFound)
	}
	s.publish(*d, backend.ActionDelete)
	s.logger.Debug("document deleted", zap.String("collection", collection), zap.String("id", id))
	return nil
}

// Subscribe opens a realtime feed on the given channels. The feed ends when
// ctx is cancelled, Close is called, or the subscriber lags behind.
func (s *Service) Subscribe(ctx context.Context, channels []string) (backend.Subscription, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: no channels", backend.ErrInvalidQuery)
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		src:    s.bus.Subscribe(channels, s.buf),
		events: make(chan backend.RawEvent),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go sub.run(ctx)
	return sub, nil
}

func (s *Service) publish(d backend.Document, action backend.Action) {
	s.bus.Publish(bus.Event{
		ID:        uuid.NewString(),
		Name:      backend.EventName(d.Collection, d.ID, action),
		Channels:  backend.EventChannels(d),
		Timestamp: s.now(),
		Payload:   d.Map(),
	})
}

type subscription struct {
	src    *bus.Subscription
	events chan backend.RawEvent
	done   chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.done)
	defer s.src.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.src.Lagged():
			s.setErr(ErrLagged)
			return
		case evt := <-s.src.Events():
			payload, _ := evt.Payload.(map[string]any)
			raw := backend.RawEvent{
				ID:        evt.ID,
				Events:    []string{evt.Name},
				Channels:  evt.Channels,
				Timestamp: evt.Timestamp,
				Payload:   payload,
			}
			select {
			case s.events <- raw:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *subscription) Events() <-chan backend.RawEvent { return s.events }
func (s *subscription) Done() <-chan struct{}           { return s.done }
func (s *subscription) Close()                          { s.cancel() }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func checkCollection(c string) error {
	if c == "" || strings.ContainsAny(c, ". ") {
		return fmt.Errorf("%w: collection %q", backend.ErrInvalidQuery, c)
	}
	return nil
}

func stripReserved(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if strings.HasPrefix(k, "$") {
			continue
		}
		out[k] = v
	}
	return out
}
