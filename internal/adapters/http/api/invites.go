package api

import (
	"context"
	"net/http"

	"github.com/okian/ideabox/internal/adapters/session"
	service "github.com/okian/ideabox/internal/app"
	"github.com/okian/ideabox/internal/domain/model"
)

// InviteDependencies defines the committee invite operations.
type InviteDependencies interface {
	CreateInvite(ctx context.Context, actor session.Session, req service.InviteRequest) (model.Invite, error)
	ListInvites(ctx context.Context, actor session.Session) ([]model.Invite, error)
	RedeemInvite(ctx context.Context, actor session.Session, code string) (model.User, error)
}

// InvitesHandler serves invite endpoints.
type InvitesHandler struct {
	deps InviteDependencies
	auth Authenticator
}

// NewInvitesHandler creates a new invites handler. auth drops the cached
// session of a caller whose role changed.
func NewInvitesHandler(deps InviteDependencies, auth Authenticator) *InvitesHandler {
	return &InvitesHandler{deps: deps, auth: auth}
}

type inviteRequest struct {
	Email string `json:"email"`
	Days  int    `json:"days"`
}

type redeemRequest struct {
	Code string `json:"code"`
}

// HandleList handles GET /api/invites requests.
func (h *InvitesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	invites, err := h.deps.ListInvites(r.Context(), SessionFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if invites == nil {
		invites = []model.Invite{}
	}
	writeJSON(w, http.StatusOK, invites)
}

// HandleCreate handles POST /api/invites requests.
func (h *InvitesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	inv, err := h.deps.CreateInvite(r.Context(), SessionFrom(r.Context()), service.InviteRequest{Email: req.Email, Days: req.Days})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// HandleRedeem handles POST /api/invites/redeem requests.
func (h *InvitesHandler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	u, err := h.deps.RedeemInvite(r.Context(), SessionFrom(r.Context()), req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// The next request resolves the new role.
	_ = h.auth.Forget(context.WithoutCancel(r.Context()), bearer(r))
	writeJSON(w, http.StatusOK, u)
}
