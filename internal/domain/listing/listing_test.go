package listing_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/ideabox/internal/adapters/repository"
	"github.com/okian/ideabox/internal/adapters/watch"
	"github.com/okian/ideabox/internal/domain/listing"
	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/internal/domain/search"
	"github.com/okian/ideabox/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func addIdea(ctx context.Context, s *repository.MemoryStore, i int, title, desc string, status model.Status) model.Idea {
	idea := &model.Idea{
		ID:             fmt.Sprintf("idea-%02d", i),
		Title:          title,
		Description:    desc,
		Area:           "cost",
		Status:         status,
		AuthorID:       "author",
		SearchPrefixes: search.IdeaPrefixes(title, desc, search.DefaultOptions()),
		CreatedAt:      base.Add(time.Duration(i) * time.Minute),
	}
	So(s.CreateIdea(ctx, idea), ShouldBeNil)
	return *idea
}

func seed(ctx context.Context, s *repository.MemoryStore, n int) {
	for i := 0; i < n; i++ {
		addIdea(ctx, s, i, fmt.Sprintf("Paint wall %d", i), "Fresh coat for the hall", model.StatusNew)
	}
}

func ids(items []model.Idea) []string {
	out := make([]string, len(items))
	for i, idea := range items {
		out[i] = idea.ID
	}
	return out
}

func waitUpdate(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func TestMode(t *testing.T) {
	_ = logger.Init()

	Convey("Given an engine", t, func() {
		e := listing.NewEngine(repository.NewMemoryStore())

		Convey("Grouping applies only without filters or active search", func() {
			So(e.Mode(listing.Criteria{GroupByStatus: true}), ShouldEqual, listing.ModeGrouped)
			So(e.Mode(listing.Criteria{GroupByStatus: true, SearchTerm: "s"}), ShouldEqual, listing.ModeGrouped)
			So(e.Mode(listing.Criteria{GroupByStatus: true, SearchTerm: "so"}), ShouldEqual, listing.ModeFlat)
			So(e.Mode(listing.Criteria{GroupByStatus: true, Area: "cost"}), ShouldEqual, listing.ModeFlat)
			So(e.Mode(listing.Criteria{GroupByStatus: true, ManagerID: "m1"}), ShouldEqual, listing.ModeFlat)
			So(e.Mode(listing.Criteria{}), ShouldEqual, listing.ModeFlat)
		})

		Convey("A two character term filters locally but has no index prefix", func() {
			term := e.Term(" SÓ ")
			So(term.Active(), ShouldBeTrue)
			So(term.Prefix(), ShouldEqual, "")
			So(e.Flat(listing.Criteria{SearchTerm: "so"}).FirstQuery().Prefix, ShouldEqual, "")
			So(e.Flat(listing.Criteria{SearchTerm: "Solares"}).FirstQuery().Prefix, ShouldEqual, "solare")
		})
	})
}

func TestFlatList(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()

	Convey("Given 15 ideas", t, func() {
		store := repository.NewMemoryStore()
		seed(ctx, store, 15)
		e := listing.NewEngine(store)
		l := e.Flat(listing.Criteria{Area: "cost"})

		Convey("When the first page loads", func() {
			So(l.Load(ctx), ShouldBeNil)

			Convey("Then it holds 12 items and more is available", func() {
				So(len(l.Items()), ShouldEqual, 12)
				So(l.HasMore(), ShouldBeTrue)
				So(l.Items()[0].ID, ShouldEqual, "idea-14")
			})

			Convey("Then load more appends the remaining 3 without duplicates", func() {
				So(l.LoadMore(ctx), ShouldEqual, 3)
				items := l.Items()
				So(len(items), ShouldEqual, 15)
				So(items[14].ID, ShouldEqual, "idea-00")
				So(l.HasMore(), ShouldBeFalse)
				So(l.Next(), ShouldBeNil)
				So(l.LoadMore(ctx), ShouldEqual, 0)
			})

			Convey("Then a later list resumes after the first page", func() {
				next := l.Next()
				So(next, ShouldNotBeNil)
				resumed := e.Flat(listing.Criteria{Area: "cost"})
				resumed.Resume(next)
				So(resumed.LoadMore(ctx), ShouldEqual, 3)
				So(ids(resumed.Items()), ShouldResemble, []string{"idea-02", "idea-01", "idea-00"})
			})

			Convey("Then a failing load more reports zero and keeps the items", func() {
				store.SetFailure("query_ideas", errors.New("network down"))
				So(l.LoadMore(ctx), ShouldEqual, 0)
				So(len(l.Items()), ShouldEqual, 12)
				So(l.Err(), ShouldBeNil)
			})
		})
	})

	Convey("Given a missing index", t, func() {
		store := repository.NewMemoryStore()
		seed(ctx, store, 3)
		store.SetFailure("query_ideas", &repository.PreconditionError{
			Hint: "create it at https://console.example.com/indexes?create=ideas",
			Err:  errors.New("query requires an index"),
		})
		e := listing.NewEngine(store, listing.WithHint(repository.IndexHint))
		l := e.Flat(listing.Criteria{Status: model.StatusNew})

		Convey("Then the list is empty and carries the link", func() {
			err := l.Load(ctx)
			So(errors.Is(err, repository.ErrFailedPrecondition), ShouldBeTrue)
			So(l.Items(), ShouldBeEmpty)
			So(l.HasMore(), ShouldBeFalse)
			So(errors.Is(l.Err(), repository.ErrFailedPrecondition), ShouldBeTrue)
			So(l.Hint(), ShouldEqual, "https://console.example.com/indexes?create=ideas")
		})
	})

	Convey("Given mixed statuses", t, func() {
		store := repository.NewMemoryStore()
		addIdea(ctx, store, 0, "Old rejected", "Nothing to see here", model.StatusRejected)
		addIdea(ctx, store, 1, "Approved one", "Worth doing soon", model.StatusApproved)
		addIdea(ctx, store, 2, "New rejected", "Nothing to see here", model.StatusRejected)
		addIdea(ctx, store, 3, "Fresh one", "Just submitted", model.StatusNew)
		l := listing.NewEngine(store).Flat(listing.Criteria{})
		So(l.Load(ctx), ShouldBeNil)

		Convey("Then rejected ideas are shown last, newest first", func() {
			So(ids(l.Visible()), ShouldResemble, []string{"idea-03", "idea-01", "idea-02", "idea-00"})
		})
	})
}

func TestAutoExpand(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()

	Convey("Given an old match behind a page of newer ideas", t, func() {
		store := repository.NewMemoryStore()
		addIdea(ctx, store, 0, "Solar roof", "Panels on the roof", model.StatusNew)
		for i := 1; i <= 20; i++ {
			addIdea(ctx, store, i, fmt.Sprintf("Paint wall %d", i), "Fresh coat for the hall", model.StatusNew)
		}
		e := listing.NewEngine(store)

		Convey("When searching a term without an index prefix", func() {
			l := e.Flat(listing.Criteria{SearchTerm: "of"})
			So(l.Load(ctx), ShouldBeNil)
			So(l.Visible(), ShouldBeEmpty)

			Convey("Then expansion stops at the page holding the match", func() {
				So(l.AutoExpand(ctx), ShouldEqual, 1)
				visible := l.Visible()
				So(len(visible), ShouldEqual, 1)
				So(visible[0].ID, ShouldEqual, "idea-00")
			})
		})

		Convey("When the budget is zero", func() {
			l := e.Flat(listing.Criteria{SearchTerm: "of"}, listing.WithBudget(0))
			So(l.Load(ctx), ShouldBeNil)

			Convey("Then nothing more is fetched", func() {
				So(l.AutoExpand(ctx), ShouldEqual, 0)
				So(len(l.Items()), ShouldEqual, 12)
			})
		})

		Convey("When the term is long enough for the prefix index", func() {
			l := e.Flat(listing.Criteria{SearchTerm: "Solar"})
			So(l.Load(ctx), ShouldBeNil)

			Convey("Then the first page already holds the match", func() {
				So(ids(l.Items()), ShouldResemble, []string{"idea-00"})
				So(l.AutoExpand(ctx), ShouldEqual, 0)
			})
		})

		Convey("When nothing matches at all", func() {
			l := e.Flat(listing.Criteria{SearchTerm: "zz"})
			So(l.Load(ctx), ShouldBeNil)

			Convey("Then expansion stops when the pages run out", func() {
				So(l.AutoExpand(ctx), ShouldEqual, 1)
				So(l.HasMore(), ShouldBeFalse)
				So(l.Visible(), ShouldBeEmpty)
			})
		})

		Convey("When search is inactive", func() {
			l := e.Flat(listing.Criteria{SearchTerm: "z"})
			So(l.Load(ctx), ShouldBeNil)
			So(l.AutoExpand(ctx), ShouldEqual, 0)
		})
	})
}

func TestGroupedList(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()

	Convey("Given two new ideas and one approved idea", t, func() {
		store := repository.NewMemoryStore()
		addIdea(ctx, store, 0, "First", "First description", model.StatusNew)
		addIdea(ctx, store, 1, "Second", "Second description", model.StatusNew)
		addIdea(ctx, store, 2, "Third", "Third description", model.StatusApproved)
		g := listing.NewEngine(store).Grouped(listing.Criteria{GroupByStatus: true})
		So(g.Load(ctx), ShouldBeNil)

		Convey("Then groups follow the status order with their own items", func() {
			groups := g.Groups()
			So(len(groups), ShouldEqual, len(model.StatusOrder))
			So(groups[0].Status, ShouldEqual, model.StatusNew)
			So(len(groups[0].Items), ShouldEqual, 2)
			So(groups[1].Items, ShouldBeEmpty)
			So(len(groups[2].Items), ShouldEqual, 1)
			for _, grp := range groups {
				So(grp.HasMore, ShouldBeFalse)
			}
		})
	})

	Convey("Given more new ideas than the first group page", t, func() {
		store := repository.NewMemoryStore()
		for i := 0; i < 5; i++ {
			addIdea(ctx, store, i, fmt.Sprintf("Idea %d", i), "Some description", model.StatusNew)
		}
		g := listing.NewEngine(store).Grouped(listing.Criteria{GroupByStatus: true})
		So(g.Load(ctx), ShouldBeNil)

		grp, err := g.Group(model.StatusNew)
		So(err, ShouldBeNil)
		So(len(grp.Items), ShouldEqual, 3)
		So(grp.HasMore, ShouldBeTrue)
		So(grp.Next, ShouldNotBeNil)

		Convey("When the group is expanded", func() {
			So(g.Expand(ctx, model.StatusNew), ShouldEqual, 2)

			Convey("Then it holds every idea and expanding again fetches nothing", func() {
				grp, _ := g.Group(model.StatusNew)
				So(grp.Expanded, ShouldBeTrue)
				So(ids(grp.Items), ShouldResemble, []string{"idea-04", "idea-03", "idea-02", "idea-01", "idea-00"})
				So(grp.HasMore, ShouldBeFalse)
				So(g.Expand(ctx, model.StatusNew), ShouldEqual, 0)
			})
		})

		Convey("When a later list resumes the group", func() {
			other := listing.NewEngine(store).Grouped(listing.Criteria{GroupByStatus: true})
			So(other.ResumeGroup(model.StatusNew, grp.Next), ShouldBeNil)
			So(other.LoadMoreGroup(ctx, model.StatusNew), ShouldEqual, 2)
		})

		Convey("Unknown statuses are rejected", func() {
			_, err := g.Group(model.Status("archived"))
			So(errors.Is(err, model.ErrUnknownStatus), ShouldBeTrue)
			So(g.LoadMoreGroup(ctx, model.Status("archived")), ShouldEqual, 0)
		})
	})

	Convey("Given a failing store", t, func() {
		store := repository.NewMemoryStore()
		addIdea(ctx, store, 0, "First", "First description", model.StatusNew)
		store.SetFailure("query_ideas", errors.New("unavailable"))
		g := listing.NewEngine(store).Grouped(listing.Criteria{GroupByStatus: true})

		Convey("Then every group is empty and the error is kept", func() {
			So(g.Load(ctx), ShouldNotBeNil)
			So(g.Err(), ShouldNotBeNil)
			for _, grp := range g.Groups() {
				So(grp.Items, ShouldBeEmpty)
				So(grp.HasMore, ShouldBeFalse)
			}
		})
	})
}

func TestLiveLists(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()

	Convey("Given a store wired to a hub", t, func() {
		store := repository.NewMemoryStore()
		hub := watch.NewHub(store, nil)
		store.SetPublisher(repository.PublisherFunc(func(ctx context.Context, c model.Change) {
			_ = hub.Deliver(ctx, c)
		}))
		seed(ctx, store, 15)
		e := listing.NewEngine(store, listing.WithWatcher(hub.Ideas()))

		Convey("When a flat list is watched and extended", func() {
			l := e.Flat(listing.Criteria{})
			defer l.Close()
			So(l.Watch(ctx), ShouldBeNil)
			So(len(l.Items()), ShouldEqual, 12)
			So(l.LoadMore(ctx), ShouldEqual, 3)

			Convey("Then a new idea replaces the head and the appended items stay", func() {
				addIdea(ctx, store, 99, "Brand new", "Created while watching", model.StatusNew)
				So(waitUpdate(l.Updates()), ShouldBeTrue)

				items := l.Items()
				So(items[0].ID, ShouldEqual, "idea-99")
				So(ids(items[len(items)-3:]), ShouldResemble, []string{"idea-02", "idea-01", "idea-00"})
				seen := map[string]bool{}
				for _, idea := range items {
					So(seen[idea.ID], ShouldBeFalse)
					seen[idea.ID] = true
				}

				Convey("And the idea pushed off the first page moves to the appended part", func() {
					So(items, ShouldHaveLength, 16)
					So(seen["idea-03"], ShouldBeTrue)
					So(ids(items[12:]), ShouldResemble, []string{"idea-03", "idea-02", "idea-01", "idea-00"})
				})
			})

			Convey("Then closing ends the subscription", func() {
				l.Close()
				So(hub.Len(), ShouldEqual, 0)
				So(l.Watch(ctx), ShouldEqual, listing.ErrClosed)
			})
		})

		Convey("When a filtered list is watched and extended", func() {
			l := e.Flat(listing.Criteria{Status: model.StatusNew})
			defer l.Close()
			So(l.Watch(ctx), ShouldBeNil)
			So(l.LoadMore(ctx), ShouldEqual, 3)

			Convey("Then an idea leaving the filter leaves the list", func() {
				_, err := store.UpdateIdea(ctx, "idea-10", func(i *model.Idea) error {
					i.Status = model.StatusApproved
					return nil
				})
				So(err, ShouldBeNil)
				So(waitUpdate(l.Updates()), ShouldBeTrue)

				got := ids(l.Items())
				So(got, ShouldHaveLength, 14)
				So(got, ShouldNotContain, "idea-10")
				So(got, ShouldContain, "idea-03")
			})
		})

		Convey("When a grouped list is watched", func() {
			g := e.Grouped(listing.Criteria{GroupByStatus: true})
			So(g.Watch(ctx), ShouldBeNil)
			So(hub.Len(), ShouldEqual, len(model.StatusOrder))

			Convey("Then a status change moves the idea between groups", func() {
				_, err := store.UpdateIdea(ctx, "idea-14", func(i *model.Idea) error {
					i.Status = model.StatusApproved
					return nil
				})
				So(err, ShouldBeNil)

				deadline := time.After(2 * time.Second)
				for {
					grp, _ := g.Group(model.StatusApproved)
					if len(grp.Items) == 1 {
						So(grp.Items[0].ID, ShouldEqual, "idea-14")
						break
					}
					select {
					case <-g.Updates():
					case <-deadline:
						So("approved group never updated", ShouldBeEmpty)
						return
					}
				}
				g.Close()
				So(hub.Len(), ShouldEqual, 0)
			})
		})
	})
}
