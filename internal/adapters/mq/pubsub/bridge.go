package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/pkg/logger"
	"github.com/okian/ideabox/pkg/metrics"
)

// DefaultChannel is the Redis channel changes travel on.
const DefaultChannel = "ideabox:changes"

// ErrStarted is returned when Start is called twice.
var ErrStarted = errors.New("bridge already started")

// Enqueuer accepts changes received from other instances.
type Enqueuer interface {
	Enqueue(ctx context.Context, c model.Change) bool
}

// Bridge publishes locally committed changes and feeds changes committed on
// other instances back into the local queue. Each instance stamps its
// outgoing changes with its origin and ignores its own echoes.
type Bridge struct {
	client  *redis.Client
	queue   Enqueuer
	channel string
	origin  string
	log     logger.Logger

	mu     sync.Mutex
	sub    *redis.PubSub
	done   chan struct{}
	cancel context.CancelFunc
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithChannel overrides DefaultChannel.
func WithChannel(ch string) Option {
	return func(b *Bridge) {
		if ch != "" {
			b.channel = ch
		}
	}
}

// WithOrigin sets the instance id stamped on outgoing changes.
func WithOrigin(origin string) Option {
	return func(b *Bridge) {
		if origin != "" {
			b.origin = origin
		}
	}
}

// WithLogger sets the bridge logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// NewBridge creates a bridge between client and the local queue.
func NewBridge(client *redis.Client, queue Enqueuer, opts ...Option) *Bridge {
	b := &Bridge{
		client:  client,
		queue:   queue,
		channel: DefaultChannel,
		origin:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.Get().Named("bridge")
	}
	return b
}

// Origin returns the id this instance stamps on its changes.
func (b *Bridge) Origin() string { return b.origin }

// Deliver publishes a locally committed change. Changes that arrived from
// another instance are not republished.
func (b *Bridge) Deliver(ctx context.Context, c model.Change) error {
	if c.Origin != "" && c.Origin != b.origin {
		return nil
	}
	c.Origin = b.origin
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		metrics.RecordErrorByComponent("bridge", "publish")
		return fmt.Errorf("publish change: %w", err)
	}
	metrics.RecordBridgeMessage("out")
	return nil
}

// Start subscribes and returns once the subscription is confirmed. Received
// changes are enqueued until Close or ctx cancellation.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return ErrStarted
	}

	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.sub = sub
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.run(runCtx, sub, b.done)
	go func() {
		select {
		case <-ctx.Done():
			_ = b.Close()
		case <-runCtx.Done():
		}
	}()

	b.log.Info(ctx, "bridge subscribed",
		logger.String("channel", b.channel),
		logger.String("origin", b.origin),
	)
	return nil
}

func (b *Bridge) run(ctx context.Context, sub *redis.PubSub, done chan struct{}) {
	defer close(done)
	for msg := range sub.Channel() {
		var c model.Change
		if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
			metrics.RecordErrorByComponent("bridge", "decode")
			b.log.Warn(ctx, "dropping malformed change", logger.Error(err))
			continue
		}
		if c.Origin == b.origin {
			continue
		}
		metrics.RecordBridgeMessage("in")
		if !b.queue.Enqueue(ctx, c) {
			b.log.Warn(ctx, "remote change dropped",
				logger.String("change", c.ID),
				logger.String("origin", c.Origin),
			)
		}
	}
}

// Close unsubscribes and waits for the receive loop to exit.
func (b *Bridge) Close() error {
	b.mu.Lock()
	sub, done, cancel := b.sub, b.done, b.cancel
	b.sub = nil
	b.mu.Unlock()

	if sub == nil {
		return nil
	}
	cancel()
	err := sub.Close()
	<-done
	return err
}
