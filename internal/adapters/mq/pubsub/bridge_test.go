package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/pkg/logger"
)

type captureQueue struct {
	mu  sync.Mutex
	got []model.Change
}

func (q *captureQueue) Enqueue(_ context.Context, c model.Change) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.got = append(q.got, c)
	return true
}

func (q *captureQueue) changes() []model.Change {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.Change(nil), q.got...)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestConnect(t *testing.T) {
	Convey("Given a running redis", t, func() {
		s := miniredis.RunT(t)

		client, err := Connect(context.Background(), "redis://"+s.Addr())
		So(err, ShouldBeNil)
		So(client.Close(), ShouldBeNil)

		_, err = Connect(context.Background(), "not a url")
		So(err, ShouldNotBeNil)
	})
}

func TestBridge(t *testing.T) {
	_ = logger.Init()

	Convey("Given two instances sharing a redis channel", t, func() {
		s := miniredis.RunT(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		clientA := redis.NewClient(&redis.Options{Addr: s.Addr()})
		clientB := redis.NewClient(&redis.Options{Addr: s.Addr()})
		defer clientA.Close()
		defer clientB.Close()

		qa, qb := &captureQueue{}, &captureQueue{}
		a := NewBridge(clientA, qa, WithOrigin("a"))
		b := NewBridge(clientB, qb, WithOrigin("b"))
		So(a.Start(ctx), ShouldBeNil)
		So(b.Start(ctx), ShouldBeNil)
		defer a.Close()
		defer b.Close()

		Convey("When instance a delivers a local change", func() {
			c := model.NewChange(model.CollectionIdeas, "i1", "i1", model.OpUpdate)
			So(a.Deliver(ctx, c), ShouldBeNil)

			Convey("Then b enqueues it stamped with a's origin", func() {
				So(waitFor(func() bool { return len(qb.changes()) == 1 }), ShouldBeTrue)
				got := qb.changes()[0]
				So(got.ID, ShouldEqual, c.ID)
				So(got.Origin, ShouldEqual, "a")
			})

			Convey("Then a ignores its own echo", func() {
				time.Sleep(50 * time.Millisecond)
				So(qa.changes(), ShouldBeEmpty)
			})
		})

		Convey("When a remote change is dispatched locally", func() {
			remote := model.NewChange(model.CollectionVotes, "i1", "u1", model.OpCreate)
			remote.Origin = "b"
			So(a.Deliver(ctx, remote), ShouldBeNil)

			Convey("Then it is not republished", func() {
				time.Sleep(50 * time.Millisecond)
				So(qb.changes(), ShouldBeEmpty)
			})
		})

		Convey("When starting twice", func() {
			So(a.Start(ctx), ShouldEqual, ErrStarted)
		})
	})

	Convey("Given a malformed message on the channel", t, func() {
		s := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: s.Addr()})
		defer client.Close()

		q := &captureQueue{}
		br := NewBridge(client, q, WithChannel("test:changes"))
		So(br.Start(context.Background()), ShouldBeNil)
		defer br.Close()

		s.Publish("test:changes", "{not json")
		good := model.NewChange(model.CollectionIdeas, "i2", "i2", model.OpCreate)
		good.Origin = "elsewhere"
		payload := `{"id":"` + good.ID + `","collection":"ideas","ideaId":"i2","docId":"i2","op":"create","origin":"elsewhere","at":"2025-01-01T00:00:00Z"}`
		s.Publish("test:changes", payload)

		Convey("Then the bad payload is skipped and the next one arrives", func() {
			So(waitFor(func() bool { return len(q.changes()) == 1 }), ShouldBeTrue)
			So(q.changes()[0].ID, ShouldEqual, good.ID)
		})
	})
}
