package api

import (
	"context"
	"net/http"

	"github.com/okian/ideabox/internal/adapters/session"
	service "github.com/okian/ideabox/internal/app"
)

// SessionDependencies exposes what the session endpoints read.
type SessionDependencies interface {
	Areas() []string
}

// SessionHandler reports and ends the caller's session.
type SessionHandler struct {
	deps SessionDependencies
	auth Authenticator
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps SessionDependencies, auth Authenticator) *SessionHandler {
	return &SessionHandler{deps: deps, auth: auth}
}

type sessionResponse struct {
	session.Session
	SignedIn    bool     `json:"signedIn"`
	IsCommittee bool     `json:"isCommittee"`
	Areas       []string `json:"areas"`
}

// HandleGetSession handles GET /api/session requests.
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	s := SessionFrom(r.Context())
	writeJSON(w, http.StatusOK, sessionResponse{
		Session:     s,
		SignedIn:    s.SignedIn(),
		IsCommittee: s.IsCommittee(),
		Areas:       h.deps.Areas(),
	})
}

// HandleSignOut handles DELETE /api/session requests. The token is revoked
// until it expires.
func (h *SessionHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	if !SessionFrom(r.Context()).SignedIn() {
		writeServiceError(w, &service.Error{Kind: service.ErrUnauthenticated, Message: "sign in required"})
		return
	}
	if err := h.auth.SignOut(context.WithoutCancel(r.Context()), bearer(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
