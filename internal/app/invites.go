package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/okian/ideabox/internal/adapters/repository"
	"github.com/okian/ideabox/internal/adapters/session"
	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/internal/domain/workflow"
	"github.com/okian/ideabox/pkg/logger"
	"github.com/okian/ideabox/pkg/metrics"
)

const (
	inviteAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	inviteCodeLen  = 8
	inviteAttempts = 5
)

// InviteRequest describes an invite to create.
type InviteRequest struct {
	// Email reserves the invite for one address when set.
	Email string
	// Days of validity; zero selects the configured default.
	Days int
}

func newInviteCode() (string, error) {
	var b strings.Builder
	b.Grow(inviteCodeLen)
	limit := big.NewInt(int64(len(inviteAlphabet)))
	for range inviteCodeLen {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		b.WriteByte(inviteAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// CreateInvite issues a committee invite with a random code.
func (s *Service) CreateInvite(ctx context.Context, actor session.Session, req InviteRequest) (model.Invite, error) {
	if err := requireCommittee(actor); err != nil {
		return model.Invite{}, err
	}
	days := workflow.ClampInviteDays(req.Days, s.inviteDays)
	now := s.now()
	inv := model.Invite{
		Role:      model.RoleCommittee,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(days) * 24 * time.Hour),
		CreatedBy: actor.User.ID,
	}

	var err error
	for range inviteAttempts {
		if inv.Code, err = newInviteCode(); err != nil {
			return model.Invite{}, s.fail(ctx, "create_invite", err)
		}
		err = s.store.CreateInvite(ctx, inv)
		if !errors.Is(err, repository.ErrConflict) {
			break
		}
		s.logger.Debug(ctx, "invite code taken, retrying", logger.String("code", inv.Code))
	}
	if err != nil {
		return model.Invite{}, s.fail(ctx, "create_invite", err)
	}
	metrics.RecordInviteCreated()
	s.logger.Info(ctx, "invite created",
		logger.String("code", inv.Code),
		logger.Int("days", days),
		logger.String("by", actor.User.ID),
	)
	return inv, nil
}

// ListInvites returns every invite, newest first.
func (s *Service) ListInvites(ctx context.Context, actor session.Session) ([]model.Invite, error) {
	if err := requireCommittee(actor); err != nil {
		return nil, err
	}
	invites, err := s.store.ListInvites(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list_invites", err)
	}
	return invites, nil
}

// RedeemInvite grants the invite's role to the caller. Unknown codes are not
// found; used, expired and reserved codes conflict.
func (s *Service) RedeemInvite(ctx context.Context, actor session.Session, code string) (model.User, error) {
	if err := requireSignedIn(actor); err != nil {
		return model.User{}, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return model.User{}, s.fail(ctx, "redeem_invite", newError(ErrValidation, "invite code is required"))
	}
	_, user, err := s.store.RedeemInvite(ctx, repository.Redemption{
		Code:   code,
		UserID: actor.User.ID,
		Email:  actor.User.Email,
		At:     s.now(),
	})
	if err != nil {
		return model.User{}, s.fail(ctx, "redeem_invite", err)
	}
	metrics.RecordInviteRedeemed()
	s.logger.Info(ctx, "invite redeemed", logger.String("code", code), logger.String("user", user.ID))
	return user, nil
}

// EnsureCommittee creates committee profiles for ids that have none yet.
// Existing profiles keep their role; promote them with an invite.
func (s *Service) EnsureCommittee(ctx context.Context, ids []string) error {
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		u, err := s.store.EnsureUser(ctx, model.User{
			ID:          id,
			DisplayName: id,
			Role:        model.RoleCommittee,
			CreatedAt:   s.now(),
		})
		if err != nil {
			return s.fail(ctx, "ensure_committee", err)
		}
		if u.Role != model.RoleCommittee {
			s.logger.Warn(ctx, "bootstrap member already has a profile", logger.String("user", id), logger.String("role", string(u.Role)))
		}
	}
	return nil
}
