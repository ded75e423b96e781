package service

import (
	"context"
	"errors"

	"github.com/okian/ideabox/internal/adapters/session"
	"github.com/okian/ideabox/internal/domain/listing"
	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/pkg/logger"
)

// ListQuery is the filter set of a list request as the caller sends it.
type ListQuery struct {
	Status    string
	Area      string
	ManagerID string
	Search    string
	// Grouped asks for one group per status when no filter is active.
	Grouped bool
	// Cursor continues a flat list or a status group after an earlier page.
	Cursor string
}

// GroupView is one status group of a grouped list.
type GroupView struct {
	Status   model.Status `json:"status"`
	Items    []model.Idea `json:"items"`
	HasMore  bool         `json:"hasMore"`
	Expanded bool         `json:"expanded"`
	Next     string       `json:"next,omitempty"`
}

// ListView is what a list screen renders. Error and Hint are set when the
// list was emptied by a failed query.
type ListView struct {
	Mode    listing.Mode `json:"mode"`
	Items   []model.Idea `json:"items,omitempty"`
	HasMore bool         `json:"hasMore"`
	Next    string       `json:"next,omitempty"`
	Groups  []GroupView  `json:"groups,omitempty"`
	// Rewards maps rewarded idea ids to their amount.
	Rewards map[string]int `json:"rewards,omitempty"`
	Error   string         `json:"error,omitempty"`
	Hint    string         `json:"hint,omitempty"`
}

func (q ListQuery) criteria() (listing.Criteria, error) {
	c := listing.Criteria{
		Area:          q.Area,
		ManagerID:     q.ManagerID,
		SearchTerm:    q.Search,
		GroupByStatus: q.Grouped,
	}
	if q.Status != "" {
		st, err := model.ParseStatus(q.Status)
		if err != nil {
			return listing.Criteria{}, err
		}
		c.Status = st
	}
	return c, nil
}

func encode(c *model.Cursor) string {
	if c == nil {
		return ""
	}
	return c.Encode()
}

func listFailure(err error, hint string) (string, string) {
	if err == nil {
		return "", ""
	}
	var appErr *Error
	if errors.As(classify(err), &appErr) {
		if hint == "" {
			hint = appErr.Hint
		}
		return appErr.Message, hint
	}
	return "could not load ideas", hint
}

func groupView(g listing.Group) GroupView {
	items := g.Items
	if items == nil {
		items = []model.Idea{}
	}
	return GroupView{
		Status:   g.Status,
		Items:    items,
		HasMore:  g.HasMore,
		Expanded: g.Expanded,
		Next:     encode(g.Next),
	}
}

func flatView(l *listing.FlatList) ListView {
	v := ListView{
		Mode:    listing.ModeFlat,
		Items:   l.Visible(),
		HasMore: l.HasMore(),
		Next:    encode(l.Next()),
	}
	if v.Items == nil {
		v.Items = []model.Idea{}
	}
	v.Error, v.Hint = listFailure(l.Err(), l.Hint())
	return v
}

func groupedView(l *listing.GroupedList) ListView {
	v := ListView{Mode: listing.ModeGrouped}
	for _, g := range l.Groups() {
		v.Groups = append(v.Groups, groupView(g))
	}
	v.Error, v.Hint = listFailure(l.Err(), l.Hint())
	return v
}

// attachRewards marks rewarded ideas. A failed lookup only loses the marks.
func (s *Service) attachRewards(ctx context.Context, v *ListView) {
	var ids []string
	for _, idea := range v.Items {
		ids = append(ids, idea.ID)
	}
	for _, g := range v.Groups {
		for _, idea := range g.Items {
			ids = append(ids, idea.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	rewards, err := s.store.RewardsFor(ctx, ids)
	if err != nil {
		s.logger.Warn(ctx, "reward lookup for list failed", logger.Error(err))
		return
	}
	if len(rewards) == 0 {
		return
	}
	v.Rewards = make(map[string]int, len(rewards))
	for id, r := range rewards {
		v.Rewards[id] = r.Amount
	}
}

// loadFlat fills a flat list from the first page or from cursor, then runs
// search expansion.
func (s *Service) loadFlat(ctx context.Context, l *listing.FlatList, cursor string) (ListView, error) {
	cur, err := model.DecodeCursor(cursor)
	if err != nil {
		return ListView{}, err
	}
	if cur == nil {
		// Failures are reported on the view.
		_ = l.Load(ctx)
	} else {
		l.Resume(cur)
		l.LoadMore(ctx)
	}
	l.AutoExpand(ctx)
	v := flatView(l)
	s.attachRewards(ctx, &v)
	return v, nil
}

// CommitteeList returns the committee's idea list: one flat page when a
// filter or search is active, otherwise the first items of every status.
func (s *Service) CommitteeList(ctx context.Context, actor session.Session, q ListQuery) (ListView, error) {
	if err := requireCommittee(actor); err != nil {
		return ListView{}, err
	}
	c, err := q.criteria()
	if err != nil {
		return ListView{}, s.fail(ctx, "committee_list", err)
	}

	if s.engine.Mode(c) == listing.ModeFlat {
		l := s.engine.Flat(c)
		defer l.Close()
		v, err := s.loadFlat(ctx, l, q.Cursor)
		if err != nil {
			return ListView{}, s.fail(ctx, "committee_list", err)
		}
		return v, nil
	}

	g := s.engine.Grouped(c)
	defer g.Close()
	_ = g.Load(ctx)
	v := groupedView(g)
	s.attachRewards(ctx, &v)
	return v, nil
}

// GroupMore loads the next page of one status group. Without a cursor the
// group is expanded from its first items.
func (s *Service) GroupMore(ctx context.Context, actor session.Session, status string, q ListQuery) (GroupView, error) {
	if err := requireCommittee(actor); err != nil {
		return GroupView{}, err
	}
	st, err := model.ParseStatus(status)
	if err != nil {
		return GroupView{}, s.fail(ctx, "group_more", err)
	}
	q.Status = ""
	c, err := q.criteria()
	if err != nil {
		return GroupView{}, s.fail(ctx, "group_more", err)
	}
	cur, err := model.DecodeCursor(q.Cursor)
	if err != nil {
		return GroupView{}, s.fail(ctx, "group_more", err)
	}

	g := s.engine.Grouped(c)
	defer g.Close()
	if cur == nil {
		if err := g.Load(ctx); err != nil {
			return GroupView{}, s.fail(ctx, "group_more", err)
		}
		g.Expand(ctx, st)
	} else {
		if err := g.ResumeGroup(st, cur); err != nil {
			return GroupView{}, s.fail(ctx, "group_more", err)
		}
		g.LoadMoreGroup(ctx, st)
	}
	view, err := g.Group(st)
	if err != nil {
		return GroupView{}, s.fail(ctx, "group_more", err)
	}
	return groupView(view), nil
}

// MyIdeas lists the caller's own ideas.
func (s *Service) MyIdeas(ctx context.Context, actor session.Session, q ListQuery) (ListView, error) {
	if err := requireSignedIn(actor); err != nil {
		return ListView{}, err
	}
	c, err := q.criteria()
	if err != nil {
		return ListView{}, s.fail(ctx, "my_ideas", err)
	}
	c.AuthorID = actor.User.ID
	c.ManagerID = ""

	l := s.engine.Flat(c)
	defer l.Close()
	v, err := s.loadFlat(ctx, l, q.Cursor)
	if err != nil {
		return ListView{}, s.fail(ctx, "my_ideas", err)
	}
	return v, nil
}

// ManagedIdeas lists the ideas the caller manages. Its search expansion
// budget is smaller than the committee list's.
func (s *Service) ManagedIdeas(ctx context.Context, actor session.Session, q ListQuery) (ListView, error) {
	if err := requireCommittee(actor); err != nil {
		return ListView{}, err
	}
	c, err := q.criteria()
	if err != nil {
		return ListView{}, s.fail(ctx, "managed_ideas", err)
	}
	c.ManagerID = actor.User.ID

	l := s.engine.Flat(c, listing.WithBudget(s.managedExpand))
	defer l.Close()
	v, err := s.loadFlat(ctx, l, q.Cursor)
	if err != nil {
		return ListView{}, s.fail(ctx, "managed_ideas", err)
	}
	return v, nil
}

// Stream is a live committee list. The caller must Close it.
type Stream struct {
	svc     *Service
	flat    *listing.FlatList
	grouped *listing.GroupedList
}

// WatchList opens a live committee list. The first view is ready when it
// returns.
func (s *Service) WatchList(ctx context.Context, actor session.Session, q ListQuery) (*Stream, error) {
	if err := requireCommittee(actor); err != nil {
		return nil, err
	}
	c, err := q.criteria()
	if err != nil {
		return nil, s.fail(ctx, "watch_list", err)
	}

	st := &Stream{svc: s}
	if s.engine.Mode(c) == listing.ModeFlat {
		st.flat = s.engine.Flat(c)
		err = st.flat.Watch(ctx)
		if err == nil {
			st.flat.AutoExpand(ctx)
		}
	} else {
		st.grouped = s.engine.Grouped(c)
		err = st.grouped.Watch(ctx)
	}
	if errors.Is(err, listing.ErrClosed) {
		st.Close()
		return nil, s.fail(ctx, "watch_list", err)
	}
	// Query failures stay on the view.
	return st, nil
}

// Updates signals, coalesced, whenever the list changed.
func (st *Stream) Updates() <-chan struct{} {
	if st.flat != nil {
		return st.flat.Updates()
	}
	return st.grouped.Updates()
}

// View renders the current state of the list.
func (st *Stream) View(ctx context.Context) ListView {
	var v ListView
	if st.flat != nil {
		v = flatView(st.flat)
	} else {
		v = groupedView(st.grouped)
	}
	st.svc.attachRewards(ctx, &v)
	return v
}

// Close ends the live subscriptions.
func (st *Stream) Close() {
	if st.flat != nil {
		st.flat.Close()
	}
	if st.grouped != nil {
		st.grouped.Close()
	}
}
