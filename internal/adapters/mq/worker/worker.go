// Package worker drains the change queue and fans every change out to the
// registered sinks: the live-query hub and the cross-instance bridge.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/ideabox/internal/domain/dedupe"
	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/pkg/logger"
	"github.com/okian/ideabox/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Sink receives dispatched changes. Deliver must not block for long; slow
// consumers should buffer or coalesce on their side.
type Sink interface {
	Deliver(ctx context.Context, c model.Change) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, c model.Change) error

func (f SinkFunc) Deliver(ctx context.Context, c model.Change) error { return f(ctx, c) }

// Queue defines how workers receive changes.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Change
}

// Worker processes changes until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker, waiting for the change in flight.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker dispatches changes read from a Queue.
type InMemoryWorker struct {
	queue   Queue
	sinks   []Sink
	deduper dedupe.Deduper
	name    string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker delivering to sinks. A nil deduper
// disables duplicate suppression.
func NewInMemoryWorker(queue Queue, deduper dedupe.Deduper, sinks []Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		sinks:    sinks,
		deduper:  deduper,
		name:     "dispatcher",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("dispatcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "dispatcher" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	changes := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if err := w.dispatch(ctx, c); err != nil {
				w.logger.Error(ctx, "error dispatching change",
					logger.String("change", c.ID),
					logger.String("collection", string(c.Collection)),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// dispatch hands c to every sink. A change whose ID was already dispatched is
// dropped; if every sink fails the ID is forgotten so a redelivery can retry.
func (w *InMemoryWorker) dispatch(ctx context.Context, c model.Change) error {
	if w.deduper != nil && c.ID != "" && w.deduper.SeenAndRecord(ctx, c.ID) {
		metrics.RecordChangeDuplicate()
		return nil
	}

	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Deliver(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		metrics.RecordErrorByComponent("dispatcher", "sink_error")
		if len(errs) == len(w.sinks) && w.deduper != nil {
			w.deduper.Unrecord(ctx, c.ID)
		}
		return errors.Join(errs...)
	}

	if !c.At.IsZero() {
		metrics.RecordChangeDispatched(float64(time.Since(c.At).Milliseconds()))
	} else {
		metrics.RecordChangeDispatched(0)
	}
	return nil
}

// Pool manages multiple dispatch workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	stopped atomic.Bool

	logger logger.Logger
}

// NewPool creates a pool of workerCount dispatchers. A count below one
// scales with the number of CPUs.
func NewPool(workerCount int, queue Queue, deduper dedupe.Deduper, sinks ...Sink) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("dispatcher-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(queue, deduper, sinks, WithName("dispatcher-"+strconv.Itoa(i)))
	}
	metrics.UpdateDispatcherActiveCount(0)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
	metrics.UpdateDispatcherActiveCount(len(p.workers))
}

// Stop signals every worker and waits briefly for each.
func (p *Pool) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	for _, worker := range p.workers {
		close(worker.shutdown)
		select {
		case <-worker.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
	metrics.UpdateDispatcherActiveCount(0)
}

// Shutdown closes the queue, letting workers drain what is buffered, then
// waits for every worker.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			close(worker.shutdown)
		}
	}
	metrics.UpdateDispatcherActiveCount(0)
	return nil
}
