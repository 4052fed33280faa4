package chat

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Dispatcher runs best-effort side effects off the caller's goroutine.
// *outbox.Dispatcher satisfies it.
type Dispatcher interface {
	Enqueue(name string, fn func(ctx context.Context) error) bool
}

// ActivityObserver receives "recently active" hints. *profile.Cache
// satisfies it.
type ActivityObserver interface {
	ObserveActivity(userID string, at time.Time)
}

// runEffect hands fn to d, or runs it inline when there is no dispatcher.
func runEffect(d Dispatcher, logger *zap.Logger, name string, fn func(ctx context.Context) error) {
	if d != nil {
		if !d.Enqueue(name, fn) {
			logger.Warn("side effect dropped", zap.String("job", name))
		}
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("side effect failed", zap.String("job", name), zap.Error(err))
	}
}
