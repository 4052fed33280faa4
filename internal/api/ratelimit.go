package api

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/rentchat/internal/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

var writeMethods = map[string]bool{
	rpc.CreateFullMethod:       true,
	rpc.UpdateFullMethod:       true,
	rpc.DeleteFullMethod:       true,
	rpc.RegisterFileFullMethod: true,
}

// RateLimiter applies a token bucket per caller to write methods.
type RateLimiter struct {
	mu       sync.Mutex
	callers  map[string]*caller
	rps      rate.Limit
	burst    int
	lastScan time.Time
	logger   *zap.Logger
}

type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing rps writes per caller with burst.
func NewRateLimiter(rps float64, burst int, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		callers:  make(map[string]*caller),
		rps:      rate.Limit(rps),
		burst:    burst,
		lastScan: time.Now(),
		logger:   logger,
	}
}

// Allow reports whether caller key may perform a write now.
func (l *RateLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	c, ok := l.callers[key]
	if !ok {
		c = &caller{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.callers[key] = c
	}
	c.lastSeen = now
	if now.Sub(l.lastScan) > time.Minute {
		l.evictIdle(now.Add(-5 * time.Minute))
		l.lastScan = now
	}
	l.mu.Unlock()
	return c.limiter.AllowN(now, 1)
}

func (l *RateLimiter) evictIdle(cutoff time.Time) {
	for k, c := range l.callers {
		if c.lastSeen.Before(cutoff) {
			delete(l.callers, k)
		}
	}
}

// UnaryInterceptor rejects write calls over budget with ResourceExhausted.
func (l *RateLimiter) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !writeMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		key := callerKey(ctx)
		if !l.Allow(key) {
			l.logger.Warn("rate limit exceeded", zap.String("caller", key), zap.String("method", info.FullMethod))
			return nil, rpc.ToStatus(rpc.ErrRateLimited)
		}
		return handler(ctx, req)
	}
}

func callerKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if v := md.Get(rpc.UserMetadataKey); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return "anonymous"
}
