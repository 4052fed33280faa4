package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/matheus3301/rentchat/internal/backend"
	"github.com/matheus3301/rentchat/internal/status"
	"go.uber.org/zap"
)

// Options configures a Subscriber.
type Options struct {
	Channels []string
	// OnEvent runs on the subscriber goroutine for every parsed event.
	OnEvent func(Event)
	// OnResync runs after a reconnect so the owner can reload what it missed.
	OnResync func()
	// Machine, if set, tracks the link state.
	Machine *status.Machine
	Logger  *zap.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Subscriber keeps a realtime subscription open, resubscribing with
// exponential backoff whenever the feed ends.
type Subscriber struct {
	rt     backend.Realtime
	opts   Options
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}

	// mu orders link transitions against Close. Once closed, the goroutine
	// no longer touches the machine, which may already belong to a
	// successor sharing it.
	mu     sync.Mutex
	closed bool
}

// Start opens the subscription in the background.
func Start(ctx context.Context, rt backend.Realtime, opts Options) *Subscriber {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscriber{
		rt:     rt,
		opts:   opts,
		logger: logger.With(zap.Strings("channels", opts.Channels)),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// Close stops the subscriber and marks the link Closed before returning.
// It does not wait for the goroutine to exit.
func (s *Subscriber) Close() {
	s.cancel()
	s.finish()
}

// Done is closed once the subscriber goroutine has exited.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) run(ctx context.Context) {
	defer close(s.done)
	defer s.finish()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.MinBackoff
	bo.MaxInterval = s.opts.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	connected := false
	for {
		s.transition(status.Connecting)
		sub, err := s.rt.Subscribe(ctx, s.opts.Channels)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("realtime subscribe failed", zap.Error(err))
			s.transition(status.Reconnecting)
			if !sleep(ctx, bo.NextBackOff()) {
				return
			}
			continue
		}

		bo.Reset()
		s.transition(status.Live)
		if connected && s.opts.OnResync != nil {
			s.logger.Info("realtime reconnected, resyncing")
			s.opts.OnResync()
		}
		connected = true

		err = s.consume(ctx, sub)
		sub.Close()
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("realtime feed ended", zap.Error(err))
		s.transition(status.Reconnecting)
		if !sleep(ctx, bo.NextBackOff()) {
			return
		}
	}
}

func (s *Subscriber) consume(ctx context.Context, sub backend.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Done():
			if err := sub.Err(); err != nil {
				return err
			}
			return errors.New("feed closed")
		case raw := <-sub.Events():
			evt, err := Parse(raw)
			if err != nil {
				s.logger.Debug("ignoring realtime payload", zap.Error(err))
				continue
			}
			if s.opts.OnEvent != nil {
				s.opts.OnEvent(evt)
			}
		}
	}
}

// finish publishes the terminal Closed once, from whichever of Close or the
// exiting goroutine gets there first.
func (s *Subscriber) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.setState(status.Closed)
	s.closed = true
}

func (s *Subscriber) transition(to status.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.setState(to)
}

func (s *Subscriber) setState(to status.State) {
	if s.opts.Machine == nil {
		return
	}
	if s.opts.Machine.Current() == to {
		return
	}
	if err := s.opts.Machine.Transition(to); err != nil {
		s.logger.Debug("link transition rejected", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
