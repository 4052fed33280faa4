package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/rentchat/internal/backend"
	"go.uber.org/zap"
)

// Heartbeat periodically writes the viewer's lastSeenAt to their profile
// document, creating the document on first beat if needed.
type Heartbeat struct {
	docs       backend.Documents
	collection string
	userID     string
	name       string
	interval   time.Duration
	logger     *zap.Logger
	now        func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHeartbeat creates a heartbeat for userID in the profiles collection.
func NewHeartbeat(docs backend.Documents, collection, userID, name string, interval time.Duration, logger *zap.Logger) *Heartbeat {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = HeartbeatInterval
	}
	return &Heartbeat{
		docs:       docs,
		collection: collection,
		userID:     userID,
		name:       name,
		interval:   interval,
		logger:     logger,
		now:        time.Now,
	}
}

// Start beats once immediately and then every interval. Calling Start on a
// running heartbeat restarts it.
func (h *Heartbeat) Start(ctx context.Context) {
	h.Stop()
	h.mu.Lock()
	defer h.mu.Unlock()
	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	go h.loop(ctx, h.done)
}

// Stop cancels the timer and waits for an in-flight beat.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (h *Heartbeat) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	h.Beat(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.Beat(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Beat writes one heartbeat. Failures are logged.
func (h *Heartbeat) Beat(ctx context.Context) {
	stamp := backend.FormatTime(h.now())
	_, err := h.docs.Update(ctx, h.collection, h.userID, map[string]any{"lastSeenAt": stamp}, nil)
	if errors.Is(err, backend.ErrNotFound) {
		_, err = h.docs.Create(ctx, h.collection, h.userID, map[string]any{
			"userId":     h.userID,
			"name":       h.name,
			"lastSeenAt": stamp,
		})
		if errors.Is(err, backend.ErrConflict) {
			_, err = h.docs.Update(ctx, h.collection, h.userID, map[string]any{"lastSeenAt": stamp}, nil)
		}
	}
	if err != nil {
		if ctx.Err() == nil {
			h.logger.Warn("heartbeat failed", zap.String("user_id", h.userID), zap.Error(err))
		}
		return
	}
	h.logger.Debug("heartbeat", zap.String("user_id", h.userID), zap.String("last_seen_at", stamp))
}
