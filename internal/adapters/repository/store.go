// Package repository defines the document store behind ideabox and its
// in-memory implementation.
package repository

import (
	"context"
	"time"

	"github.com/okian/ideabox/internal/domain/model"
)

// Publisher receives every change after it is committed.
type Publisher interface {
	Publish(ctx context.Context, c model.Change)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, c model.Change)

func (f PublisherFunc) Publish(ctx context.Context, c model.Change) { f(ctx, c) }

// IdeaStore persists ideas.
type IdeaStore interface {
	// CreateIdea assigns an ID when empty and stores the idea.
	CreateIdea(ctx context.Context, idea *model.Idea) error
	GetIdea(ctx context.Context, id string) (model.Idea, error)
	// UpdateIdea loads the idea, applies mutate and stores the result
	// atomically. Returning ErrUnchanged from mutate skips the write.
	UpdateIdea(ctx context.Context, id string, mutate func(*model.Idea) error) (model.Idea, error)
	// QueryIdeas returns one page ordered by CreatedAt desc, ID desc.
	QueryIdeas(ctx context.Context, q model.IdeaQuery) (model.IdeaPage, error)
	CountIdeas(ctx context.Context, f model.IdeaFilter) (int, error)
	// ScanIdeas visits every idea in no particular order.
	ScanIdeas(ctx context.Context, fn func(model.Idea) error) error
	// TopIdeasByScore returns the n best scored ideas, newest first on ties.
	TopIdeasByScore(ctx context.Context, n int) ([]model.Idea, error)
	// RecentlyUpdated returns up to n ideas matching f, most recently updated first.
	RecentlyUpdated(ctx context.Context, f model.IdeaFilter, n int) ([]model.Idea, error)
}

// VoteStore persists committee votes.
type VoteStore interface {
	// ToggleVote flips the user's vote and the idea's score in one step and
	// returns the resulting vote state and score.
	ToggleVote(ctx context.Context, ideaID, userID string, at time.Time) (voted bool, score int, err error)
	HasVote(ctx context.Context, ideaID, userID string) (bool, error)
	CountVotes(ctx context.Context, ideaID string) (int, error)
}

// CommentStore persists comments.
type CommentStore interface {
	AddComment(ctx context.Context, c *model.Comment) error
	// ListComments returns newest first.
	ListComments(ctx context.Context, ideaID string) ([]model.Comment, error)
	// DeleteComment removes the comment only if authorID wrote it.
	DeleteComment(ctx context.Context, ideaID, commentID, authorID string) error
}

// HistoryStore is append-only.
type HistoryStore interface {
	AppendHistory(ctx context.Context, e *model.HistoryEntry) error
	// ListHistory returns newest first.
	ListHistory(ctx context.Context, ideaID string) ([]model.HistoryEntry, error)
}

// RewardStore persists the single reward of an idea.
type RewardStore interface {
	// CreateRewardIfAbsent stores r unless the idea already has a reward, in
	// which case the stored one is returned with created=false.
	CreateRewardIfAbsent(ctx context.Context, r model.Reward) (stored model.Reward, created bool, err error)
	GetReward(ctx context.Context, ideaID string) (model.Reward, error)
	// RewardsFor returns the rewards of the given ideas keyed by idea id.
	RewardsFor(ctx context.Context, ideaIDs []string) (map[string]model.Reward, error)
	// ListRewards returns rewards with from <= CreatedAt < to.
	ListRewards(ctx context.Context, from, to time.Time) ([]model.Reward, error)
	RewardsForUser(ctx context.Context, userID string) ([]model.Reward, error)
}

// Redemption identifies who is redeeming an invite.
type Redemption struct {
	Code   string
	UserID string
	Email  string
	At     time.Time
}

// InviteStore persists invites.
type InviteStore interface {
	// CreateInvite fails with ErrConflict when the code exists.
	CreateInvite(ctx context.Context, inv model.Invite) error
	// ListInvites returns newest first.
	ListInvites(ctx context.Context) ([]model.Invite, error)
	// RedeemInvite marks the invite used and grants its role to the user in
	// one atomic write. Unknown codes yield ErrNotFound; used, expired or
	// reserved codes yield ErrConflict.
	RedeemInvite(ctx context.Context, r Redemption) (model.Invite, model.User, error)
}

// UserStore persists profiles.
type UserStore interface {
	GetUser(ctx context.Context, id string) (model.User, error)
	// EnsureUser inserts u when no profile with its ID exists and returns the stored profile.
	EnsureUser(ctx context.Context, u model.User) (model.User, error)
	UpdateDisplayName(ctx context.Context, id, name string, at time.Time) (model.User, error)
	ListUsersByRole(ctx context.Context, role model.Role) ([]model.User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]model.User, error)
}

// Store is the full document store.
type Store interface {
	IdeaStore
	VoteStore
	CommentStore
	HistoryStore
	RewardStore
	InviteStore
	UserStore

	Ping(ctx context.Context) error
	Close() error
}
