// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/ideabox/internal/adapters/session"
	service "github.com/okian/ideabox/internal/app"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider
	Pinger
	SessionDependencies
	IdeaDependencies
	WorkflowDependencies
	ViewDependencies
	InviteDependencies
	StreamDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	auth Authenticator

	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	sessionHandler  *SessionHandler
	ideasHandler    *IdeasHandler
	workflowHandler *WorkflowHandler
	viewsHandler    *ViewsHandler
	invitesHandler  *InvitesHandler
	eventsHandler   *EventsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, auth Authenticator) *Server {
	return &Server{
		auth:            auth,
		healthHandler:   NewHealthHandler(deps),
		statsHandler:    NewStatsHandler(deps),
		sessionHandler:  NewSessionHandler(deps, auth),
		ideasHandler:    NewIdeasHandler(deps),
		workflowHandler: NewWorkflowHandler(deps),
		viewsHandler:    NewViewsHandler(deps),
		invitesHandler:  NewInvitesHandler(deps, auth),
		eventsHandler:   NewEventsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}
	// authed resolves the caller before the handler runs.
	authed := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(AuthMiddleware(s.auth, h), endpoint))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /metrics", "metrics", s.healthHandler.HandleMetrics)
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	authed("GET /api/session", "session", s.sessionHandler.HandleGetSession)
	authed("DELETE /api/session", "session", s.sessionHandler.HandleSignOut)
	authed("GET /api/me", "me", s.viewsHandler.HandleGetProfile)
	authed("PATCH /api/me", "me", s.viewsHandler.HandleUpdateProfile)
	authed("GET /api/home", "home", s.viewsHandler.HandleHome)
	authed("GET /api/committee", "committee", s.viewsHandler.HandleCommittee)
	authed("GET /api/dashboard", "dashboard", s.viewsHandler.HandleDashboard)
	authed("GET /api/ranking", "ranking", s.viewsHandler.HandleRanking)

	authed("GET /api/invites", "invites", s.invitesHandler.HandleList)
	authed("POST /api/invites", "invites", s.invitesHandler.HandleCreate)
	authed("POST /api/invites/redeem", "invites_redeem", s.invitesHandler.HandleRedeem)

	authed("POST /api/ideas", "ideas", s.ideasHandler.HandleCreate)
	authed("GET /api/ideas", "ideas", s.ideasHandler.HandleList)
	authed("GET /api/ideas/mine", "ideas_mine", s.ideasHandler.HandleMine)
	authed("GET /api/ideas/managed", "ideas_managed", s.ideasHandler.HandleManaged)
	authed("GET /api/ideas/groups/{status}", "ideas_group", s.ideasHandler.HandleGroupMore)
	authed("GET /api/ideas/stream", "ideas_stream", s.eventsHandler.HandleStream)
	authed("GET /api/ideas/{id}", "idea", s.ideasHandler.HandleGet)
	authed("PATCH /api/ideas/{id}", "idea", s.ideasHandler.HandleEdit)

	authed("PUT /api/ideas/{id}/status", "idea_status", s.workflowHandler.HandleChangeStatus)
	authed("PUT /api/ideas/{id}/manager", "idea_manager", s.workflowHandler.HandleAssignManager)
	authed("POST /api/ideas/{id}/vote", "idea_vote", s.workflowHandler.HandleToggleVote)
	authed("GET /api/ideas/{id}/votes", "idea_votes", s.workflowHandler.HandleVotes)
	authed("GET /api/ideas/{id}/comments", "idea_comments", s.workflowHandler.HandleListComments)
	authed("POST /api/ideas/{id}/comments", "idea_comments", s.workflowHandler.HandleAddComment)
	authed("DELETE /api/ideas/{id}/comments/{cid}", "idea_comment", s.workflowHandler.HandleDeleteComment)
	authed("GET /api/ideas/{id}/history", "idea_history", s.workflowHandler.HandleHistory)
	authed("GET /api/ideas/{id}/reward", "idea_reward", s.workflowHandler.HandleGetReward)
	authed("POST /api/ideas/{id}/reward", "idea_reward", s.workflowHandler.HandleAwardReward)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps a service error kind onto a status code. Internal
// errors never leak their text.
func writeServiceError(w http.ResponseWriter, err error) {
	var appErr *service.Error
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "internal", Message: "internal error"})
		return
	}
	resp := errorResponse{Message: appErr.Message, Details: appErr.Details}
	status := http.StatusInternalServerError
	switch service.Kind(err) {
	case service.ErrUnauthenticated:
		status, resp.Code = http.StatusUnauthorized, "unauthenticated"
	case service.ErrPermissionDenied:
		status, resp.Code = http.StatusForbidden, "permission_denied"
	case service.ErrValidation:
		status, resp.Code = http.StatusBadRequest, "invalid_argument"
	case service.ErrNotFound:
		status, resp.Code = http.StatusNotFound, "not_found"
	case service.ErrConflict:
		status, resp.Code = http.StatusConflict, "conflict"
	case service.ErrFailedPrecondition:
		status, resp.Code = http.StatusPreconditionFailed, "failed_precondition"
		if appErr.Hint != "" {
			resp.Details = map[string]string{"hint": appErr.Hint}
		}
	default:
		resp = errorResponse{Code: "internal", Message: "internal error"}
	}
	writeJSON(w, status, resp)
}

// decodeBody reads a JSON body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "bad_request", err)
}

func listQuery(r *http.Request) service.ListQuery {
	q := r.URL.Query()
	grouped := true
	if raw := q.Get("grouped"); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			grouped = b
		}
	}
	return service.ListQuery{
		Status:    q.Get("status"),
		Area:      q.Get("area"),
		ManagerID: q.Get("manager"),
		Search:    q.Get("q"),
		Grouped:   grouped,
		Cursor:    q.Get("cursor"),
	}
}

func bearer(r *http.Request) string {
	return session.BearerToken(strings.TrimSpace(r.Header.Get("Authorization")))
}
