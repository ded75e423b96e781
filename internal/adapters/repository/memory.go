package repository

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/pkg/metrics"
)

// MemoryStore keeps every document in process memory. All writes of one
// operation happen under a single lock, so multi-document operations are atomic.
type MemoryStore struct {
	mu sync.RWMutex

	ideas    map[string]*model.Idea
	votes    map[string]map[string]model.Vote // idea -> user -> vote
	comments map[string][]model.Comment
	history  map[string][]model.HistoryEntry
	rewards  map[string]model.Reward
	invites  map[string]model.Invite
	users    map[string]model.User

	failMu   sync.RWMutex
	failures map[string]error

	publisher Publisher
	now       func() time.Time
	newID     func() string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		ideas:     make(map[string]*model.Idea),
		votes:     make(map[string]map[string]model.Vote),
		comments:  make(map[string][]model.Comment),
		history:   make(map[string][]model.HistoryEntry),
		rewards:   make(map[string]model.Reward),
		invites:   make(map[string]model.Invite),
		users:     make(map[string]model.User),
		failures:  make(map[string]error),
		publisher: PublisherFunc(func(context.Context, model.Change) {}),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     defaultID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPublisher replaces the change publisher after construction.
func (s *MemoryStore) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p != nil {
		s.publisher = p
	}
}

// SetFailure makes op fail with err until cleared with a nil err.
func (s *MemoryStore) SetFailure(op string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *MemoryStore) fail(op string) error {
	s.failMu.RLock()
	defer s.failMu.RUnlock()
	return s.failures[op]
}

func (s *MemoryStore) observe(op string, start time.Time) {
	metrics.RecordRepositoryQueryLatency(op, float64(time.Since(start).Milliseconds()))
}

func (s *MemoryStore) publish(ctx context.Context, changes ...model.Change) {
	for _, c := range changes {
		s.publisher.Publish(ctx, c)
	}
}

func copyIdea(in *model.Idea) model.Idea {
	out := *in
	out.SearchPrefixes = slices.Clone(in.SearchPrefixes)
	if in.ManagerID != nil {
		out.ManagerID = model.StrPtr(*in.ManagerID)
	}
	if in.ManagerName != nil {
		out.ManagerName = model.StrPtr(*in.ManagerName)
	}
	return out
}

// compareIdeas orders by CreatedAt desc, then ID desc.
func compareIdeas(a, b *model.Idea) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

// Ideas

func (s *MemoryStore) CreateIdea(ctx context.Context, idea *model.Idea) error {
	defer s.observe("create_idea", time.Now())
	if err := s.fail("create_idea"); err != nil {
		return err
	}
	s.mu.Lock()
	if idea.ID == "" {
		idea.ID = s.newID()
	}
	if _, exists := s.ideas[idea.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("idea %s: %w", idea.ID, ErrConflict)
	}
	now := s.now()
	if idea.CreatedAt.IsZero() {
		idea.CreatedAt = now
	}
	if idea.UpdatedAt.IsZero() {
		idea.UpdatedAt = idea.CreatedAt
	}
	stored := copyIdea(idea)
	s.ideas[idea.ID] = &stored
	total := len(s.ideas)
	s.mu.Unlock()

	metrics.UpdateTotalIdeas(total)
	s.publish(ctx, model.NewChange(model.CollectionIdeas, idea.ID, idea.ID, model.OpCreate))
	return nil
}

func (s *MemoryStore) GetIdea(_ context.Context, id string) (model.Idea, error) {
	defer s.observe("get_idea", time.Now())
	if err := s.fail("get_idea"); err != nil {
		return model.Idea{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idea, ok := s.ideas[id]
	if !ok {
		return model.Idea{}, fmt.Errorf("idea %s: %w", id, ErrNotFound)
	}
	return copyIdea(idea), nil
}

func (s *MemoryStore) UpdateIdea(ctx context.Context, id string, mutate func(*model.Idea) error) (model.Idea, error) {
	defer s.observe("update_idea", time.Now())
	if err := s.fail("update_idea"); err != nil {
		return model.Idea{}, err
	}
	s.mu.Lock()
	current, ok := s.ideas[id]
	if !ok {
		s.mu.Unlock()
		return model.Idea{}, fmt.Errorf("idea %s: %w", id, ErrNotFound)
	}
	draft := copyIdea(current)
	if err := mutate(&draft); err != nil {
		s.mu.Unlock()
		if errors.Is(err, ErrUnchanged) {
			return copyIdea(current), err
		}
		return model.Idea{}, err
	}
	draft.ID = id
	draft.CreatedAt = current.CreatedAt
	draft.UpdatedAt = s.now()
	stored := copyIdea(&draft)
	s.ideas[id] = &stored
	s.mu.Unlock()

	s.publish(ctx, model.NewChange(model.CollectionIdeas, id, id, model.OpUpdate))
	return draft, nil
}

func (s *MemoryStore) matching(f func(*model.Idea) bool) []*model.Idea {
	out := make([]*model.Idea, 0, len(s.ideas))
	for _, idea := range s.ideas {
		if f(idea) {
			out = append(out, idea)
		}
	}
	return out
}

func (s *MemoryStore) QueryIdeas(_ context.Context, q model.IdeaQuery) (model.IdeaPage, error) {
	defer s.observe("query_ideas", time.Now())
	if err := s.fail("query_ideas"); err != nil {
		return model.IdeaPage{}, err
	}
	if q.Limit <= 0 {
		return model.IdeaPage{}, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := s.matching(func(i *model.Idea) bool {
		return q.Match(i) && (q.After == nil || q.After.Before(i))
	})
	slices.SortFunc(hits, compareIdeas)

	page := model.IdeaPage{Items: make([]model.Idea, 0, min(q.Limit, len(hits)))}
	for _, idea := range hits[:min(q.Limit, len(hits))] {
		page.Items = append(page.Items, copyIdea(idea))
	}
	if len(page.Items) == q.Limit {
		page.Next = model.CursorOf(&page.Items[len(page.Items)-1])
	}
	return page, nil
}

func (s *MemoryStore) CountIdeas(_ context.Context, f model.IdeaFilter) (int, error) {
	defer s.observe("count_ideas", time.Now())
	if err := s.fail("count_ideas"); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matching(f.Match)), nil
}

func (s *MemoryStore) ScanIdeas(_ context.Context, fn func(model.Idea) error) error {
	defer s.observe("scan_ideas", time.Now())
	if err := s.fail("scan_ideas"); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := make([]model.Idea, 0, len(s.ideas))
	for _, idea := range s.ideas {
		snapshot = append(snapshot, copyIdea(idea))
	}
	s.mu.RUnlock()

	for _, idea := range snapshot {
		if err := fn(idea); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) TopIdeasByScore(_ context.Context, n int) ([]model.Idea, error) {
	defer s.observe("top_ideas", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.matching(func(*model.Idea) bool { return true })
	slices.SortFunc(all, func(a, b *model.Idea) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return compareIdeas(a, b)
	})
	out := make([]model.Idea, 0, min(n, len(all)))
	for _, idea := range all[:min(n, len(all))] {
		out = append(out, copyIdea(idea))
	}
	return out, nil
}

func (s *MemoryStore) RecentlyUpdated(_ context.Context, f model.IdeaFilter, n int) ([]model.Idea, error) {
	defer s.observe("recent_ideas", time.Now())
	if err := s.fail("recent_ideas"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits := s.matching(f.Match)
	slices.SortFunc(hits, func(a, b *model.Idea) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	out := make([]model.Idea, 0, min(n, len(hits)))
	for _, idea := range hits[:min(n, len(hits))] {
		out = append(out, copyIdea(idea))
	}
	return out, nil
}

// Votes

func (s *MemoryStore) ToggleVote(ctx context.Context, ideaID, userID string, at time.Time) (bool, int, error) {
	defer s.observe("toggle_vote", time.Now())
	if err := s.fail("toggle_vote"); err != nil {
		return false, 0, err
	}
	s.mu.Lock()
	idea, ok := s.ideas[ideaID]
	if !ok {
		s.mu.Unlock()
		return false, 0, fmt.Errorf("idea %s: %w", ideaID, ErrNotFound)
	}
	byUser := s.votes[ideaID]
	if byUser == nil {
		byUser = make(map[string]model.Vote)
		s.votes[ideaID] = byUser
	}
	var (
		voted bool
		op    model.Op
	)
	if _, exists := byUser[userID]; exists {
		delete(byUser, userID)
		idea.Score--
		op = model.OpDelete
	} else {
		byUser[userID] = model.Vote{IdeaID: ideaID, UserID: userID, Value: 1, CreatedAt: at}
		idea.Score++
		voted = true
		op = model.OpCreate
	}
	score := idea.Score
	s.mu.Unlock()

	s.publish(ctx,
		model.NewChange(model.CollectionVotes, ideaID, userID, op),
		model.NewChange(model.CollectionIdeas, ideaID, ideaID, model.OpUpdate),
	)
	return voted, score, nil
}

func (s *MemoryStore) HasVote(_ context.Context, ideaID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.votes[ideaID][userID]
	return ok, nil
}

func (s *MemoryStore) CountVotes(_ context.Context, ideaID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.votes[ideaID]), nil
}

// Comments

func (s *MemoryStore) AddComment(ctx context.Context, c *model.Comment) error {
	defer s.observe("add_comment", time.Now())
	if err := s.fail("add_comment"); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.ideas[c.IdeaID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("idea %s: %w", c.IdeaID, ErrNotFound)
	}
	if c.ID == "" {
		c.ID = s.newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.comments[c.IdeaID] = append(s.comments[c.IdeaID], *c)
	s.mu.Unlock()

	s.publish(ctx, model.NewChange(model.CollectionComments, c.IdeaID, c.ID, model.OpCreate))
	return nil
}

func (s *MemoryStore) ListComments(_ context.Context, ideaID string) ([]model.Comment, error) {
	s.mu.RLock()
	out := slices.Clone(s.comments[ideaID])
	s.mu.RUnlock()
	slices.SortStableFunc(out, func(a, b model.Comment) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteComment(ctx context.Context, ideaID, commentID, authorID string) error {
	defer s.observe("delete_comment", time.Now())
	s.mu.Lock()
	list := s.comments[ideaID]
	idx := slices.IndexFunc(list, func(c model.Comment) bool { return c.ID == commentID })
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	if list[idx].AuthorID != authorID {
		s.mu.Unlock()
		return fmt.Errorf("comment %s: %w", commentID, ErrNotOwner)
	}
	s.comments[ideaID] = slices.Delete(list, idx, idx+1)
	s.mu.Unlock()

	s.publish(ctx, model.NewChange(model.CollectionComments, ideaID, commentID, model.OpDelete))
	return nil
}

// History

func (s *MemoryStore) AppendHistory(ctx context.Context, e *model.HistoryEntry) error {
	defer s.observe("append_history", time.Now())
	if err := s.fail("append_history"); err != nil {
		return err
	}
	s.mu.Lock()
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.history[e.IdeaID] = append(s.history[e.IdeaID], *e)
	s.mu.Unlock()

	s.publish(ctx, model.NewChange(model.CollectionHistory, e.IdeaID, e.ID, model.OpCreate))
	return nil
}

func (s *MemoryStore) ListHistory(_ context.Context, ideaID string) ([]model.HistoryEntry, error) {
	s.mu.RLock()
	list := s.history[ideaID]
	out := make([]model.HistoryEntry, len(list))
	// Appended in write order; newest first is the reverse.
	for i, e := range list {
		out[len(list)-1-i] = e
	}
	s.mu.RUnlock()
	return out, nil
}

// Rewards

func (s *MemoryStore) CreateRewardIfAbsent(ctx context.Context, r model.Reward) (model.Reward, bool, error) {
	defer s.observe("create_reward", time.Now())
	if err := s.fail("create_reward"); err != nil {
		return model.Reward{}, false, err
	}
	s.mu.Lock()
	if existing, ok := s.rewards[r.IdeaID]; ok {
		s.mu.Unlock()
		return existing, false, nil
	}
	if _, ok := s.ideas[r.IdeaID]; !ok {
		s.mu.Unlock()
		return model.Reward{}, false, fmt.Errorf("idea %s: %w", r.IdeaID, ErrNotFound)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	s.rewards[r.IdeaID] = r
	s.mu.Unlock()

	s.publish(ctx, model.NewChange(model.CollectionRewards, r.IdeaID, "award", model.OpCreate))
	return r, true, nil
}

func (s *MemoryStore) GetReward(_ context.Context, ideaID string) (model.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rewards[ideaID]
	if !ok {
		return model.Reward{}, fmt.Errorf("reward %s: %w", ideaID, ErrNotFound)
	}
	return r, nil
}

func (s *MemoryStore) RewardsFor(_ context.Context, ideaIDs []string) (map[string]model.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Reward, len(ideaIDs))
	for _, id := range ideaIDs {
		if r, ok := s.rewards[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (s *MemoryStore) ListRewards(_ context.Context, from, to time.Time) ([]model.Reward, error) {
	defer s.observe("list_rewards", time.Now())
	if err := s.fail("list_rewards"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Reward
	for _, r := range s.rewards {
		if !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b model.Reward) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *MemoryStore) RewardsForUser(_ context.Context, userID string) ([]model.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Reward
	for _, r := range s.rewards {
		if r.ToUserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Invites

func (s *MemoryStore) CreateInvite(ctx context.Context, inv model.Invite) error {
	defer s.observe("create_invite", time.Now())
	s.mu.Lock()
	if _, exists := s.invites[inv.Code]; exists {
		s.mu.Unlock()
		return fmt.Errorf("invite %s: %w", inv.Code, ErrConflict)
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}
	s.invites[inv.Code] = inv
	s.mu.Unlock()

	s.publish(ctx, model.NewChange(model.CollectionInvites, "", inv.Code, model.OpCreate))
	return nil
}

func (s *MemoryStore) ListInvites(_ context.Context) ([]model.Invite, error) {
	s.mu.RLock()
	out := make([]model.Invite, 0, len(s.invites))
	for _, inv := range s.invites {
		out = append(out, inv)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.Invite) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	return out, nil
}

func (s *MemoryStore) RedeemInvite(ctx context.Context, r Redemption) (model.Invite, model.User, error) {
	defer s.observe("redeem_invite", time.Now())
	if err := s.fail("redeem_invite"); err != nil {
		return model.Invite{}, model.User{}, err
	}
	s.mu.Lock()
	inv, ok := s.invites[r.Code]
	if !ok {
		s.mu.Unlock()
		return model.Invite{}, model.User{}, fmt.Errorf("invite %s: %w", r.Code, ErrNotFound)
	}
	if err := checkRedeemable(&inv, r); err != nil {
		s.mu.Unlock()
		return model.Invite{}, model.User{}, err
	}
	user, ok := s.users[r.UserID]
	if !ok {
		user = model.User{ID: r.UserID, Email: r.Email, CreatedAt: r.At}
	}
	user.Role = inv.Role
	user.InviteCode = inv.Code
	user.UpdatedAt = r.At
	inv.Used = true
	inv.UsedBy = model.StrPtr(r.UserID)
	at := r.At
	inv.UsedAt = &at

	s.invites[inv.Code] = inv
	s.users[user.ID] = user
	s.mu.Unlock()

	s.publish(ctx,
		model.NewChange(model.CollectionInvites, "", inv.Code, model.OpUpdate),
		model.NewChange(model.CollectionUsers, "", user.ID, model.OpUpdate),
	)
	return inv, user, nil
}

// checkRedeemable applies the redemption rules shared by every backend.
func checkRedeemable(inv *model.Invite, r Redemption) error {
	switch {
	case inv.Used:
		return fmt.Errorf("invite %s already used: %w", inv.Code, ErrConflict)
	case inv.Expired(r.At):
		return fmt.Errorf("invite %s expired: %w", inv.Code, ErrConflict)
	case inv.Email != "" && !strings.EqualFold(inv.Email, r.Email):
		return fmt.Errorf("invite %s reserved for another email: %w", inv.Code, ErrConflict)
	}
	return nil
}

// Users

func (s *MemoryStore) GetUser(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

func (s *MemoryStore) EnsureUser(ctx context.Context, u model.User) (model.User, error) {
	if err := s.fail("ensure_user"); err != nil {
		return model.User{}, err
	}
	s.mu.Lock()
	if existing, ok := s.users[u.ID]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	now := s.now()
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.users[u.ID] = u
	s.mu.Unlock()

	s.publish(ctx, model.NewChange(model.CollectionUsers, "", u.ID, model.OpCreate))
	return u, nil
}

func (s *MemoryStore) UpdateDisplayName(ctx context.Context, id, name string, at time.Time) (model.User, error) {
	s.mu.Lock()
	u, ok := s.users[id]
	if !ok {
		s.mu.Unlock()
		return model.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	u.DisplayName = name
	u.UpdatedAt = at
	s.users[id] = u
	s.mu.Unlock()

	s.publish(ctx, model.NewChange(model.CollectionUsers, "", id, model.OpUpdate))
	return u, nil
}

func (s *MemoryStore) ListUsersByRole(_ context.Context, role model.Role) ([]model.User, error) {
	s.mu.RLock()
	var out []model.User
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.User) int {
		return cmp.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	})
	return out, nil
}

func (s *MemoryStore) GetUsers(_ context.Context, ids []string) (map[string]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
