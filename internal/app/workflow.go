package service

import (
	"context"
	"errors"

	"github.com/okian/ideabox/internal/adapters/repository"
	"github.com/okian/ideabox/internal/adapters/session"
	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/internal/domain/workflow"
	"github.com/okian/ideabox/pkg/logger"
	"github.com/okian/ideabox/pkg/metrics"
)

// StatusResult reports the outcome of a status change.
type StatusResult struct {
	Idea    model.Idea `json:"idea"`
	Changed bool       `json:"changed"`
	// RewardPrompt asks the caller to offer a reward for a completed idea.
	RewardPrompt bool `json:"rewardPrompt"`
}

// VoteState is the vote count of an idea and whether the caller voted.
type VoteState struct {
	Voted bool `json:"voted"`
	Count int  `json:"count"`
}

// ChangeStatus moves an idea to a new status and records the move in its
// history. Setting the current status again changes nothing.
func (s *Service) ChangeStatus(ctx context.Context, actor session.Session, id, raw string) (StatusResult, error) {
	if err := requireCommittee(actor); err != nil {
		return StatusResult{}, err
	}
	to, err := model.ParseStatus(raw)
	if err != nil {
		return StatusResult{}, s.fail(ctx, "change_status", err)
	}

	var from model.Status
	idea, err := s.store.UpdateIdea(ctx, id, func(idea *model.Idea) error {
		from = idea.Status
		noop, err := s.policy.Check(from, to)
		if err != nil {
			return err
		}
		if noop {
			return repository.ErrUnchanged
		}
		idea.Status = to
		return nil
	})
	if errors.Is(err, repository.ErrUnchanged) {
		return StatusResult{Idea: idea}, nil
	}
	if err != nil {
		return StatusResult{}, s.fail(ctx, "change_status", err)
	}

	entry := &model.HistoryEntry{
		IdeaID:    id,
		Kind:      model.HistoryStatus,
		From:      model.StrPtr(string(from)),
		To:        model.StrPtr(string(to)),
		ActorID:   actor.User.ID,
		ActorName: actor.User.Name(),
		CreatedAt: s.now(),
	}
	if err := s.store.AppendHistory(ctx, entry); err != nil {
		return StatusResult{}, s.fail(ctx, "change_status", err)
	}
	metrics.RecordStatusTransition(string(to))

	res := StatusResult{Idea: idea, Changed: true}
	if to == model.StatusCompleted {
		_, err := s.store.GetReward(ctx, id)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			res.RewardPrompt = workflow.NeedsRewardPrompt(to, false)
		case err != nil:
			s.logger.Warn(ctx, "reward lookup failed", logger.String("idea", id), logger.Error(err))
		}
	}
	s.logger.Debug(ctx, "status changed",
		logger.String("idea", id),
		logger.String("from", string(from)),
		logger.String("to", string(to)),
	)
	return res, nil
}

// AssignManager makes a committee member responsible for an idea. An empty
// managerID clears the assignment.
func (s *Service) AssignManager(ctx context.Context, actor session.Session, id, managerID string) (model.Idea, error) {
	if err := requireCommittee(actor); err != nil {
		return model.Idea{}, err
	}

	var manager *model.User
	if managerID != "" {
		u, err := s.store.GetUser(ctx, managerID)
		if errors.Is(err, repository.ErrNotFound) {
			return model.Idea{}, s.fail(ctx, "assign_manager", newError(ErrValidation, "manager must be a committee member"))
		}
		if err != nil {
			return model.Idea{}, s.fail(ctx, "assign_manager", err)
		}
		if !u.Role.IsCommittee() {
			return model.Idea{}, s.fail(ctx, "assign_manager", newError(ErrValidation, "manager must be a committee member"))
		}
		manager = &u
	}

	var previous *string
	idea, err := s.store.UpdateIdea(ctx, id, func(idea *model.Idea) error {
		previous = idea.ManagerID
		if manager == nil {
			if idea.ManagerID == nil {
				return repository.ErrUnchanged
			}
			idea.ManagerID = nil
			idea.ManagerName = nil
			return nil
		}
		if idea.ManagedBy(manager.ID) {
			return repository.ErrUnchanged
		}
		idea.ManagerID = model.StrPtr(manager.ID)
		idea.ManagerName = model.StrPtr(manager.Name())
		return nil
	})
	if errors.Is(err, repository.ErrUnchanged) {
		return idea, nil
	}
	if err != nil {
		return model.Idea{}, s.fail(ctx, "assign_manager", err)
	}

	entry := &model.HistoryEntry{
		IdeaID:    id,
		Kind:      model.HistoryAssignment,
		From:      previous,
		To:        idea.ManagerID,
		ActorID:   actor.User.ID,
		ActorName: actor.User.Name(),
		CreatedAt: s.now(),
	}
	if err := s.store.AppendHistory(ctx, entry); err != nil {
		return model.Idea{}, s.fail(ctx, "assign_manager", err)
	}
	if manager == nil {
		metrics.RecordAssignment("unassign")
	} else {
		metrics.RecordAssignment("assign")
	}
	return idea, nil
}

// ToggleVote flips the caller's vote on an idea.
func (s *Service) ToggleVote(ctx context.Context, actor session.Session, id string) (VoteState, error) {
	if err := requireCommittee(actor); err != nil {
		return VoteState{}, err
	}
	voted, _, err := s.store.ToggleVote(ctx, id, actor.User.ID, s.now())
	if err != nil {
		return VoteState{}, s.fail(ctx, "toggle_vote", err)
	}
	count, err := s.store.CountVotes(ctx, id)
	if err != nil {
		return VoteState{}, s.fail(ctx, "toggle_vote", err)
	}
	metrics.RecordVoteToggled(voted)
	return VoteState{Voted: voted, Count: count}, nil
}

// Votes returns the vote count of an idea and whether the caller voted.
func (s *Service) Votes(ctx context.Context, actor session.Session, id string) (VoteState, error) {
	if _, err := s.loadVisible(ctx, actor, id); err != nil {
		return VoteState{}, s.fail(ctx, "votes", err)
	}
	count, err := s.store.CountVotes(ctx, id)
	if err != nil {
		return VoteState{}, s.fail(ctx, "votes", err)
	}
	voted, err := s.store.HasVote(ctx, id, actor.User.ID)
	if err != nil {
		return VoteState{}, s.fail(ctx, "votes", err)
	}
	return VoteState{Voted: voted, Count: count}, nil
}

// Comments lists the comments of an idea, newest first.
func (s *Service) Comments(ctx context.Context, actor session.Session, id string) ([]model.Comment, error) {
	if err := requireCommittee(actor); err != nil {
		return nil, err
	}
	if _, err := s.store.GetIdea(ctx, id); err != nil {
		return nil, s.fail(ctx, "list_comments", err)
	}
	comments, err := s.store.ListComments(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "list_comments", err)
	}
	return comments, nil
}

// AddComment appends a committee note to an idea.
func (s *Service) AddComment(ctx context.Context, actor session.Session, id, text string) (model.Comment, error) {
	if err := requireCommittee(actor); err != nil {
		return model.Comment{}, err
	}
	text, err := workflow.ValidateComment(text)
	if err != nil {
		return model.Comment{}, s.fail(ctx, "add_comment", err)
	}
	if _, err := s.store.GetIdea(ctx, id); err != nil {
		return model.Comment{}, s.fail(ctx, "add_comment", err)
	}
	c := model.Comment{
		IdeaID:     id,
		Text:       text,
		AuthorID:   actor.User.ID,
		AuthorName: actor.User.Name(),
		CreatedAt:  s.now(),
	}
	if err := s.store.AddComment(ctx, &c); err != nil {
		return model.Comment{}, s.fail(ctx, "add_comment", err)
	}
	metrics.RecordComment("add")
	return c, nil
}

// DeleteComment removes a comment written by the caller.
func (s *Service) DeleteComment(ctx context.Context, actor session.Session, id, commentID string) error {
	if err := requireSignedIn(actor); err != nil {
		return err
	}
	if err := s.store.DeleteComment(ctx, id, commentID, actor.User.ID); err != nil {
		return s.fail(ctx, "delete_comment", err)
	}
	metrics.RecordComment("delete")
	return nil
}

// History lists the audit entries of an idea, newest first.
func (s *Service) History(ctx context.Context, actor session.Session, id string) ([]model.HistoryEntry, error) {
	if err := requireCommittee(actor); err != nil {
		return nil, err
	}
	if _, err := s.store.GetIdea(ctx, id); err != nil {
		return nil, s.fail(ctx, "history", err)
	}
	entries, err := s.store.ListHistory(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "history", err)
	}
	return entries, nil
}

// GetReward returns the reward of an idea.
func (s *Service) GetReward(ctx context.Context, actor session.Session, id string) (model.Reward, error) {
	if _, err := s.loadVisible(ctx, actor, id); err != nil {
		return model.Reward{}, s.fail(ctx, "get_reward", err)
	}
	r, err := s.store.GetReward(ctx, id)
	if err != nil {
		return model.Reward{}, s.fail(ctx, "get_reward", err)
	}
	return r, nil
}

// AwardReward grants coins to the author of an idea. An idea is rewarded at
// most once; later calls return the existing reward with created false.
func (s *Service) AwardReward(ctx context.Context, actor session.Session, id string, amount int) (model.Reward, bool, error) {
	if err := requireCommittee(actor); err != nil {
		return model.Reward{}, false, err
	}
	if err := workflow.ValidateRewardAmount(amount); err != nil {
		return model.Reward{}, false, s.fail(ctx, "award_reward", err)
	}
	idea, err := s.store.GetIdea(ctx, id)
	if err != nil {
		return model.Reward{}, false, s.fail(ctx, "award_reward", err)
	}
	r, created, err := s.store.CreateRewardIfAbsent(ctx, model.Reward{
		IdeaID:    id,
		Amount:    amount,
		ToUserID:  idea.AuthorID,
		CreatedBy: actor.User.ID,
		CreatedAt: s.now(),
	})
	if err != nil {
		return model.Reward{}, false, s.fail(ctx, "award_reward", err)
	}
	if created {
		metrics.RecordRewardIssued(amount)
	} else {
		s.logger.Info(ctx, "idea already rewarded", logger.String("idea", id), logger.Int("amount", r.Amount))
	}
	return r, created, nil
}
