package queue

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/pkg/logger"
)

func change(doc string) Change {
	return model.NewChange(model.CollectionIdeas, doc, doc, model.OpUpdate)
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, change("idea1")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.DocID != "idea1" {
		t.Errorf("expected idea1, got %v", got.DocID)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, change("a")) || !q.Enqueue(ctx, change("b")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, change("c")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_PublishLogsDrops(t *testing.T) {
	var buf bytes.Buffer
	if err := logger.Init(logger.WithWriter(&buf), logger.WithFormat(logger.FormatJSON)); err != nil {
		t.Fatal(err)
	}
	q := NewInMemoryQueue(WithCapacity(1), WithLogger(logger.Named("queue")))
	ctx := context.Background()

	q.Publish(ctx, change("a"))
	q.Publish(ctx, change("b"))

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}
	if !strings.Contains(buf.String(), "change dropped") {
		t.Errorf("expected drop to be logged, got %q", buf.String())
	}
}

func TestInMemoryQueue_PublishIgnoresCancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q.Publish(ctx, change("a"))
	if l := q.Len(context.Background()); l != 1 {
		t.Errorf("expected a committed change to be queued after request cancellation, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	producers, perProducer := 10, 100

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				c := change(fmt.Sprintf("idea%d_%d", id, j))
				for !q.Enqueue(ctx, c) {
					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 4; i++ {
		go func() {
			for c := range q.Dequeue(ctx) {
				mu.Lock()
				seen[c.DocID] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n == producers*perProducer {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != producers*perProducer {
		t.Errorf("expected %d distinct changes, got %d", producers*perProducer, len(seen))
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, change("a")) || !q.Enqueue(ctx, change("b")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, change("c")) {
		t.Error("expected enqueue to fail after closing")
	}

	// Buffered changes drain before the channel closes.
	var drained int
	timeout := time.After(time.Second)
	out := q.Dequeue(ctx)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				if drained != 2 {
					t.Errorf("expected 2 drained changes, got %d", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			drained++
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}
