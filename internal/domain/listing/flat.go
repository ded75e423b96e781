package listing

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/internal/domain/search"
	"github.com/okian/ideabox/pkg/logger"
	"github.com/okian/ideabox/pkg/metrics"
)

// ListOption adjusts a single list.
type ListOption func(*FlatList)

// WithBudget overrides the engine's search expansion budget for one list.
func WithBudget(pages int) ListOption {
	return func(l *FlatList) {
		if pages >= 0 {
			l.budget = pages
		}
	}
}

// FlatList is a single filtered query paged by creation time.
type FlatList struct {
	engine   *Engine
	criteria Criteria
	filter   model.IdeaFilter
	term     search.Term
	budget   int

	mu      sync.Mutex
	pages   pager
	err     error
	hint    string
	closed  bool
	sub     Subscription
	updates chan struct{}
	done    chan struct{}
}

// Flat creates a flat list for c. Nothing is fetched until Load or Watch.
func (e *Engine) Flat(c Criteria, opts ...ListOption) *FlatList {
	l := &FlatList{
		engine:   e,
		criteria: c,
		filter:   c.Filter(),
		term:     e.Term(c.SearchTerm),
		budget:   e.autoExpand,
		updates:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Criteria returns the filter set the list was built for.
func (l *FlatList) Criteria() Criteria { return l.criteria }

// Term returns the normalized search term.
func (l *FlatList) Term() search.Term { return l.term }

// FirstQuery is the live first-page query: equality filters plus the prefix
// filter when the term is long enough to have been indexed.
func (l *FlatList) FirstQuery() model.IdeaQuery {
	return model.IdeaQuery{IdeaFilter: l.filter, Prefix: l.term.Prefix(), Limit: l.engine.pageSize}
}

func (l *FlatList) moreQuery(after *model.Cursor) model.IdeaQuery {
	return model.IdeaQuery{IdeaFilter: l.filter, After: after, Limit: l.engine.pageSize}
}

// Load fetches the first page once. On failure the list is emptied and the
// error recorded.
func (l *FlatList) Load(ctx context.Context) error {
	metrics.RecordListQuery(string(ModeFlat))
	page, err := l.engine.source.QueryIdeas(ctx, l.FirstQuery())
	l.applySnapshot(model.Snapshot{Page: page, Err: err})
	return err
}

// Watch subscribes to the first page and returns after the first snapshot
// has been applied. Without a watcher it falls back to Load.
func (l *FlatList) Watch(ctx context.Context) error {
	if l.engine.watcher == nil {
		return l.Load(ctx)
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.sub != nil {
		l.mu.Unlock()
		return nil
	}
	metrics.RecordListQuery(string(ModeFlat))
	sub := l.engine.watcher.WatchIdeas(ctx, l.FirstQuery())
	l.sub = sub
	l.done = make(chan struct{})
	l.mu.Unlock()

	snap, ok := firstSnapshot(ctx, sub)
	if !ok {
		close(l.done)
		return ErrClosed
	}
	l.applySnapshot(snap)
	go l.follow(sub, l.done)
	return snap.Err
}

func (l *FlatList) follow(sub Subscription, done chan struct{}) {
	defer close(done)
	for snap := range sub.C() {
		l.applySnapshot(snap)
		notify(l.updates)
	}
}

// Updates signals, coalesced, whenever a live snapshot changed the list.
func (l *FlatList) Updates() <-chan struct{} { return l.updates }

func (l *FlatList) applySnapshot(snap model.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if snap.Err != nil {
		l.pages.reset()
		l.err = snap.Err
		l.hint = l.engine.hintFor(snap.Err)
		l.engine.log.Warn(context.Background(), "idea list query failed",
			logger.Error(snap.Err),
			logger.String("hint", l.hint),
		)
		return
	}
	l.err, l.hint = nil, ""
	l.pages.setHead(snap.Page)
}

// LoadMore appends the next page. Errors are logged and reported as zero
// items added.
func (l *FlatList) LoadMore(ctx context.Context) int {
	l.mu.Lock()
	if !l.pages.hasMore || l.closed {
		l.mu.Unlock()
		return 0
	}
	q := l.moreQuery(l.pages.cursor)
	l.mu.Unlock()

	page, err := l.engine.source.QueryIdeas(ctx, q)
	if err != nil {
		l.engine.log.Error(ctx, "load more failed", logger.Error(err))
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pages.appendPage(page, q.Limit)
}

// AutoExpand loads more pages while search is active and nothing loaded
// matches it. It stops at the first match, when the budget is spent, when
// there is nothing more, or when a page adds nothing. It returns the number
// of pages fetched.
func (l *FlatList) AutoExpand(ctx context.Context) int {
	if !l.term.Active() {
		return 0
	}
	pages := 0
	for pages < l.budget && !l.hasMatch() && l.HasMore() {
		if ctx.Err() != nil {
			break
		}
		added := l.LoadMore(ctx)
		pages++
		if added == 0 {
			break
		}
	}
	if pages > 0 {
		metrics.RecordAutoExpandPages(pages)
	}
	return pages
}

func (l *FlatList) hasMatch() bool {
	return len(l.Visible()) > 0
}

// Items returns every held item, head first, deduplicated by id.
func (l *FlatList) Items() []model.Idea {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pages.items()
}

// Visible re-applies the equality filters and the search term locally and
// orders rejected ideas last, then newest first.
func (l *FlatList) Visible() []model.Idea {
	items := l.Items()
	out := items[:0]
	for i := range items {
		if l.filter.Match(&items[i]) && l.term.Matches(items[i].Title, items[i].Description) {
			out = append(out, items[i])
		}
	}
	SortVisible(out)
	return out
}

// SortVisible orders rejected ideas after all others, then by CreatedAt desc
// and ID desc.
func SortVisible(items []model.Idea) {
	slices.SortStableFunc(items, func(a, b model.Idea) int {
		ar, br := a.Status == model.StatusRejected, b.Status == model.StatusRejected
		if ar != br {
			if ar {
				return 1
			}
			return -1
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

// Resume positions an unloaded list after c, so that LoadMore continues a
// page sequence started by an earlier list.
func (l *FlatList) Resume(c *model.Cursor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages.reset()
	l.pages.cursor = c
	l.pages.hasMore = c != nil
}

// Next returns where load-more continues, or nil when nothing is left.
func (l *FlatList) Next() *model.Cursor {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.pages.hasMore {
		return nil
	}
	return l.pages.cursor
}

// HasMore reports whether load-more may return items.
func (l *FlatList) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pages.hasMore
}

// Err returns the error that emptied the list, if any.
func (l *FlatList) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Hint returns the operator hint carried by Err, such as an index link.
func (l *FlatList) Hint() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hint
}

// Close ends the live subscription. The held items stay readable.
func (l *FlatList) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	sub, done := l.sub, l.done
	l.mu.Unlock()

	if sub != nil {
		sub.Close()
		<-done
	}
}
