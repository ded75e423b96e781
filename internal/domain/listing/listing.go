// Package listing pages, filters and live-updates idea lists. A list runs
// either as one filtered query (flat) or as one capped query per status
// (grouped), and keeps its first page subscribed to changes.
package listing

import (
	"context"
	"errors"

	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/internal/domain/search"
	"github.com/okian/ideabox/pkg/logger"
)

// Defaults for page sizes and search expansion.
const (
	DefaultPageSize        = 12
	DefaultGroupFirst      = 3
	DefaultGroupPage       = 30
	DefaultAutoExpandPages = 50
	// ManagedAutoExpandPages is the smaller budget of the "ideas I manage" list.
	ManagedAutoExpandPages = 8
)

// ErrClosed is returned by operations on a closed list.
var ErrClosed = errors.New("list closed")

// Source runs one-shot page queries.
type Source interface {
	QueryIdeas(ctx context.Context, q model.IdeaQuery) (model.IdeaPage, error)
}

// Subscription is a live first-page query.
type Subscription interface {
	C() <-chan model.Snapshot
	Close()
}

// Watcher opens live queries. Snapshots arrive on the subscription until it
// is closed or delivers an error.
type Watcher interface {
	WatchIdeas(ctx context.Context, q model.IdeaQuery) Subscription
}

// Mode is the query strategy of a list.
type Mode string

const (
	ModeFlat    Mode = "flat"
	ModeGrouped Mode = "grouped"
)

// Criteria is the filter set chosen by the viewer.
type Criteria struct {
	Status        model.Status
	Area          string
	ManagerID     string
	AuthorID      string
	SearchTerm    string
	GroupByStatus bool
}

// Filter returns the equality part of the criteria.
func (c Criteria) Filter() model.IdeaFilter {
	return model.IdeaFilter{Status: c.Status, Area: c.Area, ManagerID: c.ManagerID, AuthorID: c.AuthorID}
}

// Engine creates lists sharing one source and configuration.
type Engine struct {
	source     Source
	watcher    Watcher
	pageSize   int
	groupFirst int
	groupPage  int
	autoExpand int
	search     search.Options
	hint       func(error) (string, bool)
	log        logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWatcher enables live first pages.
func WithWatcher(w Watcher) Option {
	return func(e *Engine) { e.watcher = w }
}

// WithPageSize sets the flat page size.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithGroupSizes sets the initial size of each status group and the size of
// its load-more pages.
func WithGroupSizes(first, page int) Option {
	return func(e *Engine) {
		if first > 0 {
			e.groupFirst = first
		}
		if page > 0 {
			e.groupPage = page
		}
	}
}

// WithAutoExpandPages sets the default search expansion budget.
func WithAutoExpandPages(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.autoExpand = n
		}
	}
}

// WithSearchOptions sets the prefix index bounds used to derive search prefixes.
func WithSearchOptions(o search.Options) Option {
	return func(e *Engine) { e.search = o }
}

// WithHint extracts an operator hint from query errors.
func WithHint(fn func(error) (string, bool)) Option {
	return func(e *Engine) { e.hint = fn }
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine returns an engine over source.
func NewEngine(source Source, opts ...Option) *Engine {
	e := &Engine{
		source:     source,
		pageSize:   DefaultPageSize,
		groupFirst: DefaultGroupFirst,
		groupPage:  DefaultGroupPage,
		autoExpand: DefaultAutoExpandPages,
		search:     search.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get().Named("listing")
	}
	return e
}

// PageSize returns the flat page size.
func (e *Engine) PageSize() int { return e.pageSize }

// Term normalizes a raw search string under the engine's index bounds.
func (e *Engine) Term(raw string) search.Term { return search.NewTerm(raw, e.search) }

// Mode picks flat mode when any equality filter is set, when search is
// active, or when grouping is off.
func (e *Engine) Mode(c Criteria) Mode {
	if !c.Filter().Empty() || e.Term(c.SearchTerm).Active() || !c.GroupByStatus {
		return ModeFlat
	}
	return ModeGrouped
}

func (e *Engine) hintFor(err error) string {
	if err == nil || e.hint == nil {
		return ""
	}
	if h, ok := e.hint(err); ok {
		return h
	}
	return ""
}

// notify performs a non-blocking send on a coalescing signal channel.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// firstSnapshot waits for the initial delivery of a fresh subscription.
func firstSnapshot(ctx context.Context, sub Subscription) (model.Snapshot, bool) {
	select {
	case snap, ok := <-sub.C():
		return snap, ok
	case <-ctx.Done():
		return model.Snapshot{Err: ctx.Err()}, true
	}
}
