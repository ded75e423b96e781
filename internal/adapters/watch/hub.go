// Package watch turns committed changes into live query snapshots. Each
// subscription re-runs its query when a relevant change is dispatched and
// delivers the newest result, dropping stale ones a slow reader never took.
package watch

import (
	"context"
	"sync"

	"github.com/okian/ideabox/internal/domain/listing"
	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/pkg/logger"
	"github.com/okian/ideabox/pkg/metrics"
)

// Source runs idea queries for subscriptions.
type Source interface {
	QueryIdeas(ctx context.Context, q model.IdeaQuery) (model.IdeaPage, error)
}

// Fetch produces the current result of a subscription.
type Fetch func(ctx context.Context) (model.IdeaPage, error)

// Match selects the changes that may alter a subscription's result.
type Match func(c model.Change) bool

// Hub fans dispatched changes out to live subscriptions.
type Hub struct {
	source Source
	log    logger.Logger

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewHub creates a hub whose idea subscriptions query source.
func NewHub(source Source, log logger.Logger) *Hub {
	if log == nil {
		log = logger.Get().Named("watch")
	}
	return &Hub{source: source, log: log, subs: make(map[*Subscription]struct{})}
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Deliver wakes every subscription interested in c. It never blocks.
func (h *Hub) Deliver(_ context.Context, c model.Change) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if s.match(c) {
			s.signal()
		}
	}
	return nil
}

// WatchIdeas subscribes to the first page of q, refreshed on every change to
// the ideas collection.
func (h *Hub) WatchIdeas(ctx context.Context, q model.IdeaQuery) *Subscription {
	return h.Watch(ctx, model.Change.AffectsIdeaLists, func(ctx context.Context) (model.IdeaPage, error) {
		return h.source.QueryIdeas(ctx, q)
	})
}

// Ideas returns the hub as the live source of idea lists.
func (h *Hub) Ideas() listing.Watcher { return ideaWatcher{h} }

type ideaWatcher struct{ hub *Hub }

func (w ideaWatcher) WatchIdeas(ctx context.Context, q model.IdeaQuery) listing.Subscription {
	return w.hub.WatchIdeas(ctx, q)
}

// Watch subscribes to an arbitrary fetch. The first snapshot is delivered as
// soon as it is fetched. The subscription ends on Close, on ctx
// cancellation, or after delivering a fetch error.
func (h *Hub) Watch(ctx context.Context, match Match, fetch Fetch) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		hub:     h,
		match:   match,
		fetch:   fetch,
		out:     make(chan model.Snapshot, 1),
		wake:    make(chan struct{}, 1),
		cancel:  cancel,
		stopped: make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	metrics.IncActiveSubscriptions()

	go s.run(ctx)
	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	h.mu.Unlock()
	if ok {
		metrics.DecActiveSubscriptions()
	}
}

// Subscription is one live query.
type Subscription struct {
	hub   *Hub
	match Match
	fetch Fetch

	out  chan model.Snapshot
	wake chan struct{}

	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once
}

// C delivers snapshots. It is closed when the subscription ends.
func (s *Subscription) C() <-chan model.Snapshot { return s.out }

// Close ends the subscription and waits for its goroutine.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.stopped
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// offer replaces any undelivered snapshot with snap. run is the only sender,
// so after draining the buffer the send cannot block.
func (s *Subscription) offer(snap model.Snapshot) {
	select {
	case s.out <- snap:
	default:
		select {
		case <-s.out:
		default:
		}
		s.out <- snap
	}
	metrics.RecordSnapshotDelivered()
}

func (s *Subscription) run(ctx context.Context) {
	defer func() {
		s.hub.remove(s)
		close(s.out)
		close(s.stopped)
	}()

	for {
		page, err := s.fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.hub.log.Warn(ctx, "live query failed", logger.Error(err))
			s.offer(model.Snapshot{Err: err})
			return
		}
		s.offer(model.Snapshot{Page: page})

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
	}
}
