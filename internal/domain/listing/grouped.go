package listing

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/pkg/logger"
	"github.com/okian/ideabox/pkg/metrics"
)

// Group is the rendered state of one status group.
type Group struct {
	Status   model.Status
	Items    []model.Idea
	HasMore  bool
	Expanded bool
	Next     *model.Cursor
}

type group struct {
	pages    pager
	expanded bool
	sub      Subscription
	done     chan struct{}
}

// GroupedList runs one capped query per status, each paged independently.
type GroupedList struct {
	engine *Engine
	filter model.IdeaFilter

	mu      sync.Mutex
	groups  map[model.Status]*group
	err     error
	hint    string
	closed  bool
	updates chan struct{}
}

// Grouped creates a grouped list. Equality filters other than status still
// apply to every group.
func (e *Engine) Grouped(c Criteria) *GroupedList {
	f := c.Filter()
	f.Status = ""
	l := &GroupedList{
		engine:  e,
		filter:  f,
		groups:  make(map[model.Status]*group, len(model.StatusOrder)),
		updates: make(chan struct{}, 1),
	}
	for _, s := range model.StatusOrder {
		l.groups[s] = &group{}
	}
	return l
}

func (l *GroupedList) firstQuery(s model.Status) model.IdeaQuery {
	f := l.filter
	f.Status = s
	return model.IdeaQuery{IdeaFilter: f, Limit: l.engine.groupFirst}
}

func (l *GroupedList) moreQuery(s model.Status, after *model.Cursor) model.IdeaQuery {
	f := l.filter
	f.Status = s
	return model.IdeaQuery{IdeaFilter: f, After: after, Limit: l.engine.groupPage}
}

func (l *GroupedList) group(s model.Status) (*group, error) {
	g, ok := l.groups[s]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownStatus, s)
	}
	return g, nil
}

// Load fetches the first page of every group concurrently. If any group
// fails, every group is emptied and the error recorded.
func (l *GroupedList) Load(ctx context.Context) error {
	metrics.RecordListQuery(string(ModeGrouped))
	pages := make([]model.IdeaPage, len(model.StatusOrder))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, s := range model.StatusOrder {
		eg.Go(func() error {
			page, err := l.engine.source.QueryIdeas(egCtx, l.firstQuery(s))
			if err != nil {
				return fmt.Errorf("status %s: %w", s, err)
			}
			pages[i] = page
			return nil
		})
	}
	err := eg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.failLocked(err)
		return err
	}
	l.err, l.hint = nil, ""
	for i, s := range model.StatusOrder {
		l.groups[s].pages.setHead(pages[i])
	}
	return nil
}

func (l *GroupedList) failLocked(err error) {
	for _, g := range l.groups {
		g.pages.reset()
	}
	l.err = err
	l.hint = l.engine.hintFor(err)
	l.engine.log.Warn(context.Background(), "grouped idea list query failed",
		logger.Error(err),
		logger.String("hint", l.hint),
	)
}

// Watch subscribes every group's first page and returns once each group
// has its first snapshot. Without a watcher it falls back to Load.
func (l *GroupedList) Watch(ctx context.Context) error {
	if l.engine.watcher == nil {
		return l.Load(ctx)
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	metrics.RecordListQuery(string(ModeGrouped))
	subs := make(map[model.Status]Subscription, len(model.StatusOrder))
	for _, s := range model.StatusOrder {
		g := l.groups[s]
		if g.sub != nil {
			continue
		}
		g.sub = l.engine.watcher.WatchIdeas(ctx, l.firstQuery(s))
		g.done = make(chan struct{})
		subs[s] = g.sub
	}
	l.mu.Unlock()

	var firstErr error
	for _, s := range model.StatusOrder {
		sub, ok := subs[s]
		if !ok {
			continue
		}
		snap, ok := firstSnapshot(ctx, sub)
		if !ok {
			close(l.groups[s].done)
			continue
		}
		l.applySnapshot(s, snap)
		if snap.Err != nil && firstErr == nil {
			firstErr = snap.Err
		}
		go l.follow(s, sub, l.groups[s].done)
	}
	return firstErr
}

func (l *GroupedList) follow(s model.Status, sub Subscription, done chan struct{}) {
	defer close(done)
	for snap := range sub.C() {
		l.applySnapshot(s, snap)
		notify(l.updates)
	}
}

// applySnapshot replaces one group's head. A failed group is emptied on its
// own; the others keep their items.
func (l *GroupedList) applySnapshot(s model.Status, snap model.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	g := l.groups[s]
	if snap.Err != nil {
		g.pages.reset()
		l.err = snap.Err
		l.hint = l.engine.hintFor(snap.Err)
		l.engine.log.Warn(context.Background(), "status group query failed",
			logger.String("status", string(s)),
			logger.Error(snap.Err),
		)
		return
	}
	g.pages.setHead(snap.Page)
}

// Updates signals, coalesced, whenever a live snapshot changed a group.
func (l *GroupedList) Updates() <-chan struct{} { return l.updates }

// LoadMoreGroup appends the next page of one group. Errors are logged and
// reported as zero items added.
func (l *GroupedList) LoadMoreGroup(ctx context.Context, s model.Status) int {
	l.mu.Lock()
	g, err := l.group(s)
	if err != nil || !g.pages.hasMore || l.closed {
		l.mu.Unlock()
		return 0
	}
	q := l.moreQuery(s, g.pages.cursor)
	l.mu.Unlock()

	page, err := l.engine.source.QueryIdeas(ctx, q)
	if err != nil {
		l.engine.log.Error(ctx, "load more for group failed",
			logger.String("status", string(s)),
			logger.Error(err),
		)
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return g.pages.appendPage(page, q.Limit)
}

// Expand marks a group expanded and, while it still holds only its initial
// items and has more, fetches one more page.
func (l *GroupedList) Expand(ctx context.Context, s model.Status) int {
	l.mu.Lock()
	g, err := l.group(s)
	if err != nil {
		l.mu.Unlock()
		return 0
	}
	g.expanded = true
	needMore := g.pages.size() <= l.engine.groupFirst && g.pages.hasMore
	l.mu.Unlock()

	if !needMore {
		return 0
	}
	return l.LoadMoreGroup(ctx, s)
}

// ResumeGroup positions an unloaded group after c, so that LoadMoreGroup
// continues a page sequence started by an earlier list.
func (l *GroupedList) ResumeGroup(s model.Status, c *model.Cursor) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, err := l.group(s)
	if err != nil {
		return err
	}
	g.pages.reset()
	g.pages.cursor = c
	g.pages.hasMore = c != nil
	return nil
}

// Groups returns every group in canonical status order.
func (l *GroupedList) Groups() []Group {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Group, 0, len(model.StatusOrder))
	for _, s := range model.StatusOrder {
		out = append(out, l.viewLocked(s))
	}
	return out
}

// Group returns one group.
func (l *GroupedList) Group(s model.Status) (Group, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.group(s); err != nil {
		return Group{}, err
	}
	return l.viewLocked(s), nil
}

func (l *GroupedList) viewLocked(s model.Status) Group {
	g := l.groups[s]
	v := Group{Status: s, Items: g.pages.items(), HasMore: g.pages.hasMore, Expanded: g.expanded}
	if g.pages.hasMore {
		v.Next = g.pages.cursor
	}
	return v
}

// Err returns the last error that emptied a group, if any.
func (l *GroupedList) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Hint returns the operator hint carried by Err.
func (l *GroupedList) Hint() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hint
}

// Close ends every group subscription.
func (l *GroupedList) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	var open []*group
	for _, g := range l.groups {
		if g.sub != nil {
			open = append(open, g)
		}
	}
	l.mu.Unlock()

	for _, g := range open {
		g.sub.Close()
		<-g.done
	}
}
