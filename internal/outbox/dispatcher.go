// Package outbox runs best-effort side effects (mark-as-read, notifications)
// off the caller's goroutine. Failures are logged and published, never
// returned.
package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/rentchat/internal/bus"
	"go.uber.org/zap"
)

// Channel is the bus channel failures are published on.
const Channel = "outbox"

// Failure is the payload of an outbox.failed event.
type Failure struct {
	Job   string
	Error string
}

type job struct {
	name string
	run  func(ctx context.Context) error
}

// Dispatcher drains queued jobs on a single goroutine.
type Dispatcher struct {
	jobs    chan job
	bus     *bus.Bus
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewDispatcher creates a dispatcher with room for queue pending jobs. Each
// job gets timeout to finish.
func NewDispatcher(queue int, timeout time.Duration, b *bus.Bus, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		jobs:    make(chan job, queue),
		bus:     b,
		logger:  logger,
		timeout: timeout,
	}
}

// Start begins draining jobs. Jobs enqueued before Start run once it is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil || d.stopped {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.loop(ctx, d.done)
}

// Stop stops the loop and waits for the running job to return. Pending jobs
// are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	cancel, done := d.cancel, d.done
	d.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Enqueue schedules fn. It never blocks: when the queue is full or the
// dispatcher is stopped the job is dropped and false is returned.
func (d *Dispatcher) Enqueue(name string, fn func(ctx context.Context) error) bool {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		d.logger.Debug("outbox stopped, dropping job", zap.String("job", name))
		return false
	}
	select {
	case d.jobs <- job{name: name, run: fn}:
		return true
	default:
		d.logger.Warn("outbox full, dropping job", zap.String("job", name))
		return false
	}
}

// Flush waits until every job enqueued before the call has run, or ctx is
// done. Returns false when the jobs did not all run.
func (d *Dispatcher) Flush(ctx context.Context) bool {
	reached := make(chan struct{})
	if !d.Enqueue("flush", func(context.Context) error {
		close(reached)
		return nil
	}) {
		return false
	}
	select {
	case <-reached:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case j := <-d.jobs:
			d.run(ctx, j)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := j.run(ctx)
	if err == nil {
		d.logger.Debug("outbox job done", zap.String("job", j.name))
		return
	}
	d.logger.Warn("outbox job failed", zap.String("job", j.name), zap.Error(err))
	if d.bus != nil {
		d.bus.Publish(bus.Event{
			ID:        uuid.NewString(),
			Name:      "outbox.failed",
			Channels:  []string{Channel},
			Timestamp: time.Now(),
			Payload:   Failure{Job: j.name, Error: err.Error()},
		})
	}
}
