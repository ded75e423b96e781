package service

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/ideabox/internal/adapters/session"
	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/internal/domain/ranking"
	"github.com/okian/ideabox/internal/domain/workflow"
)

const (
	dashboardTop = 10
	homeRecent   = 5
)

// Dashboard summarizes every idea for the committee.
type Dashboard struct {
	Total    int                  `json:"total"`
	ByStatus map[model.Status]int `json:"byStatus"`
	ByArea   map[string]int       `json:"byArea"`
	Top      []model.Idea         `json:"top"`
}

// Profile is the caller's own profile with their stats.
type Profile struct {
	User      model.User     `json:"user"`
	Role      model.Role     `json:"role"`
	Coins     int            `json:"coins"`
	Completed int            `json:"completed"`
	Ideas     int            `json:"ideas"`
	YearRank  *ranking.Entry `json:"yearRank,omitempty"`
}

// Home holds the landing page numbers. Committee-only fields stay zero for
// other users.
type Home struct {
	MyIdeas            int          `json:"myIdeas"`
	CompletedThisMonth int          `json:"completedThisMonth"`
	AssignedToMe       int          `json:"assignedToMe"`
	CommitteeQueue     int          `json:"committeeQueue"`
	RecentMine         []model.Idea `json:"recentMine"`
	AwaitingReview     []model.Idea `json:"awaitingReview,omitempty"`
}

// Dashboard counts ideas per status and area and lists the best scored.
func (s *Service) Dashboard(ctx context.Context, actor session.Session) (Dashboard, error) {
	if err := requireCommittee(actor); err != nil {
		return Dashboard{}, err
	}
	d := Dashboard{
		ByStatus: make(map[model.Status]int, len(model.StatusOrder)),
		ByArea:   make(map[string]int, len(s.areas)),
	}
	for _, st := range model.StatusOrder {
		d.ByStatus[st] = 0
	}
	for _, a := range s.areas {
		d.ByArea[a] = 0
	}
	err := s.store.ScanIdeas(ctx, func(idea model.Idea) error {
		d.Total++
		d.ByStatus[idea.Status]++
		d.ByArea[idea.Area]++
		return nil
	})
	if err != nil {
		return Dashboard{}, s.fail(ctx, "dashboard", err)
	}
	if d.Top, err = s.store.TopIdeasByScore(ctx, dashboardTop); err != nil {
		return Dashboard{}, s.fail(ctx, "dashboard", err)
	}
	return d, nil
}

func (s *Service) report(ctx context.Context, kind ranking.PeriodKind, value string) (*ranking.Report, error) {
	p, err := ranking.ParsePeriod(kind, value, s.now())
	if err != nil {
		return nil, err
	}
	rewards, err := s.store.ListRewards(ctx, p.Start, p.End)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rewards))
	for _, r := range rewards {
		ids = append(ids, r.ToUserID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	return ranking.Build(p, rewards, users), nil
}

// Ranking ranks the authors rewarded in a month ("2025-06") or a year
// ("2025"). An empty value selects the current period.
func (s *Service) Ranking(ctx context.Context, actor session.Session, kind, value string) (*ranking.Report, error) {
	if err := requireCommittee(actor); err != nil {
		return nil, err
	}
	r, err := s.report(ctx, ranking.PeriodKind(strings.ToLower(strings.TrimSpace(kind))), value)
	if err != nil {
		return nil, s.fail(ctx, "ranking", err)
	}
	return r, nil
}

// Profile returns the caller's profile, coin total and idea counts.
func (s *Service) Profile(ctx context.Context, actor session.Session) (Profile, error) {
	if err := requireSignedIn(actor); err != nil {
		return Profile{}, err
	}
	me := actor.User.ID
	p := Profile{User: actor.User, Role: actor.Role}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		u, err := s.store.GetUser(egCtx, me)
		if err == nil {
			p.User = u
		}
		return err
	})
	eg.Go(func() error {
		rewards, err := s.store.RewardsForUser(egCtx, me)
		for _, r := range rewards {
			p.Coins += r.Amount
		}
		return err
	})
	eg.Go(func() (err error) {
		p.Completed, err = s.store.CountIdeas(egCtx, model.IdeaFilter{AuthorID: me, Status: model.StatusCompleted})
		return err
	})
	eg.Go(func() (err error) {
		p.Ideas, err = s.store.CountIdeas(egCtx, model.IdeaFilter{AuthorID: me})
		return err
	})
	eg.Go(func() error {
		r, err := s.report(egCtx, ranking.PeriodYear, "")
		if err != nil {
			return err
		}
		if e, ok := r.Rank(me); ok {
			p.YearRank = &e
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return Profile{}, s.fail(ctx, "profile", err)
	}
	return p, nil
}

// UpdateDisplayName renames the caller.
func (s *Service) UpdateDisplayName(ctx context.Context, actor session.Session, name string) (model.User, error) {
	if err := requireSignedIn(actor); err != nil {
		return model.User{}, err
	}
	name, err := workflow.ValidateDisplayName(name)
	if err != nil {
		return model.User{}, s.fail(ctx, "update_display_name", err)
	}
	u, err := s.store.UpdateDisplayName(ctx, actor.User.ID, name, s.now())
	if err != nil {
		return model.User{}, s.fail(ctx, "update_display_name", err)
	}
	return u, nil
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Home gathers the landing page numbers concurrently.
func (s *Service) Home(ctx context.Context, actor session.Session) (Home, error) {
	if err := requireSignedIn(actor); err != nil {
		return Home{}, err
	}
	me := actor.User.ID
	committee := actor.IsCommittee()
	since := monthStart(s.now())
	var h Home

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		h.MyIdeas, err = s.store.CountIdeas(egCtx, model.IdeaFilter{AuthorID: me})
		return err
	})
	eg.Go(func() (err error) {
		f := model.IdeaFilter{Status: model.StatusCompleted, UpdatedSince: &since}
		if !committee {
			f.AuthorID = me
		}
		h.CompletedThisMonth, err = s.store.CountIdeas(egCtx, f)
		return err
	})
	eg.Go(func() error {
		page, err := s.store.QueryIdeas(egCtx, model.IdeaQuery{
			IdeaFilter: model.IdeaFilter{AuthorID: me},
			Limit:      homeRecent,
		})
		h.RecentMine = page.Items
		return err
	})
	if committee {
		eg.Go(func() (err error) {
			h.AssignedToMe, err = s.store.CountIdeas(egCtx, model.IdeaFilter{ManagerID: me})
			return err
		})
		eg.Go(func() (err error) {
			h.CommitteeQueue, err = s.store.CountIdeas(egCtx, model.IdeaFilter{Status: model.StatusUnderReview})
			return err
		})
		eg.Go(func() (err error) {
			h.AwaitingReview, err = s.store.RecentlyUpdated(egCtx, model.IdeaFilter{Status: model.StatusUnderReview}, homeRecent)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return Home{}, s.fail(ctx, "home", err)
	}
	if h.RecentMine == nil {
		h.RecentMine = []model.Idea{}
	}
	return h, nil
}

// CommitteeMembers lists the committee sorted by name.
func (s *Service) CommitteeMembers(ctx context.Context, actor session.Session) ([]model.User, error) {
	if err := requireCommittee(actor); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsersByRole(ctx, model.RoleCommittee)
	if err != nil {
		return nil, s.fail(ctx, "committee_members", err)
	}
	slices.SortFunc(users, func(a, b model.User) int {
		if c := cmp.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name())); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return users, nil
}
