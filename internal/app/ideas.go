package service

import (
	"context"
	"errors"

	"github.com/okian/ideabox/internal/adapters/repository"
	"github.com/okian/ideabox/internal/adapters/session"
	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/internal/domain/search"
	"github.com/okian/ideabox/internal/domain/workflow"
	"github.com/okian/ideabox/pkg/metrics"
)

// IdeaDetail is an idea with everything its detail view shows.
type IdeaDetail struct {
	Idea        model.Idea     `json:"idea"`
	Reward      *model.Reward  `json:"reward,omitempty"`
	Votes       int            `json:"votes"`
	Voted       bool           `json:"voted"`
	NextStatus  []model.Status `json:"nextStatus,omitempty"`
	CanEdit     bool           `json:"canEdit"`
	IsCommittee bool           `json:"isCommittee"`
}

func (s *Service) prefixes(in workflow.IdeaInput) []string {
	return search.IdeaPrefixes(in.Title, in.Description, s.searchOpts)
}

// CreateIdea stores a new idea authored by the actor.
func (s *Service) CreateIdea(ctx context.Context, actor session.Session, in workflow.IdeaInput) (model.Idea, error) {
	if err := requireSignedIn(actor); err != nil {
		return model.Idea{}, err
	}
	in = in.Normalized()
	if err := workflow.ValidateIdea(in, s.areas); err != nil {
		return model.Idea{}, s.fail(ctx, "create_idea", err)
	}
	impact, _ := model.ParseImpact(in.Impact)

	now := s.now()
	idea := model.Idea{
		Title:          in.Title,
		Description:    in.Description,
		Area:           in.Area,
		Impact:         impact,
		Status:         model.StatusNew,
		AuthorID:       actor.User.ID,
		AuthorName:     actor.User.Name(),
		AuthorEmail:    actor.User.Email,
		SearchPrefixes: s.prefixes(in),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateIdea(ctx, &idea); err != nil {
		return model.Idea{}, s.fail(ctx, "create_idea", err)
	}
	metrics.RecordIdeaCreated()
	return idea, nil
}

// EditIdea lets the author change an idea while it is still new.
func (s *Service) EditIdea(ctx context.Context, actor session.Session, id string, in workflow.IdeaInput) (model.Idea, error) {
	if err := requireSignedIn(actor); err != nil {
		return model.Idea{}, err
	}
	in = in.Normalized()
	if err := workflow.ValidateIdea(in, s.areas); err != nil {
		return model.Idea{}, s.fail(ctx, "edit_idea", err)
	}
	impact, _ := model.ParseImpact(in.Impact)

	idea, err := s.store.UpdateIdea(ctx, id, func(idea *model.Idea) error {
		if idea.AuthorID != actor.User.ID {
			return newError(ErrPermissionDenied, "not allowed")
		}
		if idea.Status != model.StatusNew {
			return newError(ErrFailedPrecondition, "only new ideas can be edited")
		}
		if idea.Title == in.Title && idea.Description == in.Description &&
			idea.Area == in.Area && idea.Impact == impact {
			return repository.ErrUnchanged
		}
		idea.Title = in.Title
		idea.Description = in.Description
		idea.Area = in.Area
		idea.Impact = impact
		idea.SearchPrefixes = s.prefixes(in)
		return nil
	})
	if errors.Is(err, repository.ErrUnchanged) {
		return idea, nil
	}
	if err != nil {
		return model.Idea{}, s.fail(ctx, "edit_idea", err)
	}
	metrics.RecordIdeaEdited()
	return idea, nil
}

// loadVisible returns the idea when the actor may read it.
func (s *Service) loadVisible(ctx context.Context, actor session.Session, id string) (model.Idea, error) {
	if err := requireSignedIn(actor); err != nil {
		return model.Idea{}, err
	}
	idea, err := s.store.GetIdea(ctx, id)
	if err != nil {
		return model.Idea{}, err
	}
	if !actor.IsCommittee() && idea.AuthorID != actor.User.ID {
		return model.Idea{}, newError(ErrPermissionDenied, "not allowed")
	}
	return idea, nil
}

// GetIdea returns the detail view of an idea. Only its author and committee
// members may read it.
func (s *Service) GetIdea(ctx context.Context, actor session.Session, id string) (IdeaDetail, error) {
	idea, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return IdeaDetail{}, s.fail(ctx, "get_idea", err)
	}
	d := IdeaDetail{
		Idea:        idea,
		CanEdit:     idea.AuthorID == actor.User.ID && idea.Status == model.StatusNew,
		IsCommittee: actor.IsCommittee(),
	}

	switch r, err := s.store.GetReward(ctx, id); {
	case err == nil:
		d.Reward = &r
	case !errors.Is(err, repository.ErrNotFound):
		return IdeaDetail{}, s.fail(ctx, "get_idea", err)
	}

	if actor.IsCommittee() {
		if d.Votes, err = s.store.CountVotes(ctx, id); err != nil {
			return IdeaDetail{}, s.fail(ctx, "get_idea", err)
		}
		if d.Voted, err = s.store.HasVote(ctx, id, actor.User.ID); err != nil {
			return IdeaDetail{}, s.fail(ctx, "get_idea", err)
		}
		d.NextStatus = s.policy.Suggested(idea.Status)
	}
	return d, nil
}
