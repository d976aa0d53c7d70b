// Package schedule runs one-shot deferred jobs keyed by an identity.
//
// A Registry holds at most one pending job per key. Registering a key again
// replaces the pending job; cancelling an unknown key does nothing. Fired jobs
// run on a fixed pool of workers and are removed from the registry once they
// return, whatever the outcome.
package schedule

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// Func is the job run when a deadline elapses.
type Func func(ctx context.Context) error

type handle struct {
	key       string
	deadline  time.Time
	fn        Func
	timer     *time.Timer
	cancelled bool
	running   bool
}

type (
	Option func(*Registry)

	Registry struct {
		clock     core.Clock
		logger    core.Logger
		metrics   *Metrics
		workers   int
		queueSize int

		mu      sync.Mutex
		entries map[string]*handle
		started bool
		stopped bool

		queue  chan *handle
		stopCh chan struct{}
		wg     sync.WaitGroup

		ctx    context.Context
		cancel context.CancelFunc
	}
)

// WithWorkers sets the number of goroutines running fired jobs.
func WithWorkers(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithQueueSize sets how many fired jobs may wait for a free worker.
func WithQueueSize(n int) Option {
	return func(r *Registry) {
		if n >= 0 {
			r.queueSize = n
		}
	}
}

func WithClock(clock core.Clock) Option {
	return func(r *Registry) { r.clock = clock }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func NewRegistry(logger core.Logger, opts ...Option) *Registry {
	r := &Registry{
		clock:     core.SystemClock,
		logger:    logger,
		workers:   runtime.NumCPU(),
		queueSize: 256,
		entries:   make(map[string]*handle),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan *handle, r.queueSize)
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Start launches the worker goroutines. Calling it more than once is a no-op.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started || r.stopped {
		return
	}
	r.started = true

	r.wg.Add(r.workers)
	for i := 0; i < r.workers; i++ {
		go r.work()
	}
	r.logger.Info(fmt.Sprintf("job registry started with %d workers", r.workers))
}

// Stop disarms every pending job and waits for running ones to return.
// Jobs still queued are dropped: the recovery sweep re-arms them on next start.
// When ctx expires first, running jobs see their context cancelled.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	for key, h := range r.entries {
		r.disarm(h)
		delete(r.entries, key)
	}
	r.metrics.setPending(0)
	r.mu.Unlock()

	close(r.stopCh)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		r.logger.Info("job registry stopped")
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return errors.Wrap(ctx.Err(), "stopping job registry")
	}
}

// Register arms fn to run at deadline under key, replacing any pending job for key.
func (r *Registry) Register(key string, deadline time.Time, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		r.logger.Warn("job registry stopped, dropping job", map[string]interface{}{"key": key, "deadline": deadline})
		return
	}

	if prev, ok := r.entries[key]; ok {
		r.disarm(prev)
	}

	h := &handle{key: key, deadline: deadline, fn: fn}
	delay := deadline.Sub(r.clock.Now())
	if delay < 0 {
		delay = 0
	}
	h.timer = time.AfterFunc(delay, func() { r.enqueue(h) })
	r.entries[key] = h
	r.metrics.setPending(len(r.entries))
}

// Cancel disarms the pending job for key, if any.
// A job whose callback is already running is not interrupted.
func (r *Registry) Cancel(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.entries[key]
	if !ok {
		return
	}
	r.disarm(h)
	delete(r.entries, key)
	r.metrics.setPending(len(r.entries))
}

// Deadline returns the deadline of the pending job for key.
func (r *Registry) Deadline(key string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.entries[key]; ok {
		return h.deadline, true
	}
	return time.Time{}, false
}

// Len returns the number of pending (or running) jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// disarm must be called with r.mu held.
func (r *Registry) disarm(h *handle) {
	if h.cancelled {
		return
	}
	h.cancelled = true
	h.timer.Stop()
	if !h.running {
		r.metrics.incCancelled()
	}
}

func (r *Registry) enqueue(h *handle) {
	select {
	case r.queue <- h:
	case <-r.stopCh:
	}
}

func (r *Registry) work() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		case h := <-r.queue:
			r.run(h)
		}
	}
}

func (r *Registry) run(h *handle) {
	r.mu.Lock()
	if h.cancelled {
		r.mu.Unlock()
		return
	}
	h.running = true
	r.mu.Unlock()

	r.metrics.incFired()
	if err := r.call(h); err != nil {
		r.metrics.incFailed()
		r.logger.Error(fmt.Sprintf("job %q failed: %v", h.key, err), err, map[string]interface{}{
			"key":      h.key,
			"deadline": h.deadline,
		})
	}

	r.mu.Lock()
	// the key may have been re-registered while we were running
	if cur, ok := r.entries[h.key]; ok && cur == h {
		delete(r.entries, h.key)
	}
	r.metrics.setPending(len(r.entries))
	r.mu.Unlock()
}

func (r *Registry) call(h *handle) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("panic: %v", rec)
		}
	}()
	return h.fn(r.ctx)
}
