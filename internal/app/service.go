// Package service implements the ideabox use cases on top of the document
// store and wires the change pipeline that keeps live lists current.
package service

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/ideabox/internal/adapters/mq/pubsub"
	changequeue "github.com/okian/ideabox/internal/adapters/mq/queue"
	"github.com/okian/ideabox/internal/adapters/mq/worker"
	"github.com/okian/ideabox/internal/adapters/repository"
	"github.com/okian/ideabox/internal/adapters/session"
	"github.com/okian/ideabox/internal/adapters/watch"
	"github.com/okian/ideabox/internal/domain/dedupe"
	"github.com/okian/ideabox/internal/domain/listing"
	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/internal/domain/search"
	"github.com/okian/ideabox/internal/domain/workflow"
	"github.com/okian/ideabox/pkg/logger"
	"github.com/okian/ideabox/pkg/metrics"
)

// DefaultInviteDays is the validity of an invite created without one.
const DefaultInviteDays = 7

// publisherSetter is implemented by stores that report committed writes.
type publisherSetter interface {
	SetPublisher(p repository.Publisher)
}

// Service implements the API dependencies for ideabox.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	policy  *workflow.Policy
	engine  *listing.Engine
	hub     *watch.Hub
	deduper dedupe.Deduper
	queue   *changequeue.InMemoryQueue
	pool    *worker.Pool
	bridge  *pubsub.Bridge
	redis   *redis.Client
	sinks   []worker.Sink

	// Configuration
	dispatcherCount int
	queueSize       int
	dedupeSize      int
	pageSize        int
	groupFirst      int
	groupPage       int
	autoExpand      int
	managedExpand   int
	inviteDays      int
	areas           []string
	searchOpts      search.Options
	now             func() time.Time

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDispatcherCount sets the number of change dispatchers.
func WithDispatcherCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.dispatcherCount = count
		}
	}
}

// WithQueueSize sets the capacity of the change queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many change ids are remembered for deduplication.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithPageSizes sets the flat page size and the first and load-more sizes
// of status groups.
func WithPageSizes(page, groupFirst, groupPage int) Option {
	return func(s *Service) {
		if page > 0 {
			s.pageSize = page
		}
		if groupFirst > 0 {
			s.groupFirst = groupFirst
		}
		if groupPage > 0 {
			s.groupPage = groupPage
		}
	}
}

// WithAutoExpandPages sets the search expansion budgets of the committee
// list and of the "ideas I manage" list.
func WithAutoExpandPages(committee, managed int) Option {
	return func(s *Service) {
		if committee >= 0 {
			s.autoExpand = committee
		}
		if managed >= 0 {
			s.managedExpand = managed
		}
	}
}

// WithSearchOptions sets the prefix index bounds.
func WithSearchOptions(o search.Options) Option {
	return func(s *Service) { s.searchOpts = o }
}

// WithAreas sets the areas an idea may target.
func WithAreas(areas []string) Option {
	return func(s *Service) {
		if len(areas) > 0 {
			s.areas = slices.Clone(areas)
		}
	}
}

// WithPolicy sets the status transition policy.
func WithPolicy(p *workflow.Policy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithInviteDays sets the default invite validity.
func WithInviteDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.inviteDays = days
		}
	}
}

// WithRedis enables the cross-instance change bridge.
func WithRedis(client *redis.Client) Option {
	return func(s *Service) { s.redis = client }
}

// WithSinks adds change consumers next to the live-query hub.
func WithSinks(sinks ...worker.Sink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over store. Lists work right away; live updates
// start flowing after Start.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		policy:          workflow.NewPolicy(),
		dispatcherCount: runtime.NumCPU(),
		queueSize:       10000,
		dedupeSize:      50000,
		pageSize:        listing.DefaultPageSize,
		groupFirst:      listing.DefaultGroupFirst,
		groupPage:       listing.DefaultGroupPage,
		autoExpand:      listing.DefaultAutoExpandPages,
		managedExpand:   listing.ManagedAutoExpandPages,
		inviteDays:      DefaultInviteDays,
		areas:           slices.Clone(model.DefaultAreas),
		searchOpts:      search.DefaultOptions(),
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.hub = watch.NewHub(store, s.logger.Named("watch"))
	s.engine = listing.NewEngine(store,
		listing.WithWatcher(s.hub.Ideas()),
		listing.WithPageSize(s.pageSize),
		listing.WithGroupSizes(s.groupFirst, s.groupPage),
		listing.WithAutoExpandPages(s.autoExpand),
		listing.WithSearchOptions(s.searchOpts),
		listing.WithHint(repository.IndexHint),
		listing.WithLogger(s.logger.Named("listing")),
	)
	return s
}

// Start wires the store's changes through the queue and dispatchers to the
// hub, the bridge and any extra sinks.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting ideabox service...")

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = changequeue.NewInMemoryQueue(
		changequeue.WithCapacity(s.queueSize),
		changequeue.WithBufferSize(s.queueSize),
		changequeue.WithLogger(s.logger.Named("queue")),
	)

	sinks := []worker.Sink{s.hub}
	if s.redis != nil {
		s.bridge = pubsub.NewBridge(s.redis, s.queue, pubsub.WithLogger(s.logger.Named("bridge")))
		sinks = append(sinks, s.bridge)
	}
	sinks = append(sinks, s.sinks...)

	s.pool = worker.NewPool(s.dispatcherCount, s.queue, s.deduper, sinks...)
	s.pool.Start(ctx)

	if ps, ok := s.store.(publisherSetter); ok {
		ps.SetPublisher(s.queue)
	} else {
		s.logger.Warn(ctx, "store does not report changes; lists will not update live")
	}

	if s.bridge != nil {
		if err := s.bridge.Start(ctx); err != nil {
			_ = s.pool.Shutdown(ctx)
			return fmt.Errorf("start change bridge: %w", err)
		}
	}

	s.started = true
	s.logger.Info(ctx, "ideabox service started",
		logger.Int("dispatchers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Bool("bridge", s.bridge != nil),
	)
	return nil
}

// Stop closes the bridge and drains the change queue.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping ideabox service...")

	if s.bridge != nil {
		if err := s.bridge.Close(); err != nil {
			s.logger.Warn(ctx, "error closing bridge", logger.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "error stopping dispatchers", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "ideabox service stopped")
}

// Store returns the underlying document store.
func (s *Service) Store() repository.Store { return s.store }

// Ping reports whether the store answers.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// Areas returns the areas an idea may target.
func (s *Service) Areas() []string { return slices.Clone(s.areas) }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":         s.started,
		"dispatcherCount": s.dispatcherCount,
		"queueSize":       s.queueSize,
		"dedupeSize":      s.dedupeSize,
		"subscriptions":   s.hub.Len(),
		"workflowMode":    string(s.policy.Mode()),
	}
	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["dedupeEntries"] = s.deduper.Size()
		metrics.UpdateQueueSize(queueLen)
		if s.bridge != nil {
			stats["origin"] = s.bridge.Origin()
		}
	}
	if total, err := s.store.CountIdeas(ctx, model.IdeaFilter{}); err == nil {
		stats["totalIdeas"] = total
		metrics.UpdateTotalIdeas(total)
	}
	return stats
}

// fail classifies err and logs it with the operation name. Expected kinds
// are logged at warn level, internal errors at error level.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	err = classify(err)
	label := kindLabel(err)
	metrics.RecordErrorByComponent("service", label)
	fields := []logger.Field{logger.String("op", op), logger.String("kind", label), logger.Error(err)}
	if label == "internal" {
		s.logger.Error(ctx, "operation failed", fields...)
	} else {
		s.logger.Warn(ctx, "operation rejected", fields...)
	}
	return err
}

func requireSignedIn(actor session.Session) error {
	if !actor.SignedIn() {
		return newError(ErrUnauthenticated, "sign in required")
	}
	return nil
}

func requireCommittee(actor session.Session) error {
	if err := requireSignedIn(actor); err != nil {
		return err
	}
	if !actor.IsCommittee() {
		return newError(ErrPermissionDenied, "not allowed")
	}
	return nil
}
