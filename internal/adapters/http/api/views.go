package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/ideabox/internal/adapters/session"
	service "github.com/okian/ideabox/internal/app"
	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/internal/domain/ranking"
)

// ViewDependencies defines the aggregated read views.
type ViewDependencies interface {
	Profile(ctx context.Context, actor session.Session) (service.Profile, error)
	UpdateDisplayName(ctx context.Context, actor session.Session, name string) (model.User, error)
	Home(ctx context.Context, actor session.Session) (service.Home, error)
	CommitteeMembers(ctx context.Context, actor session.Session) ([]model.User, error)
	Dashboard(ctx context.Context, actor session.Session) (service.Dashboard, error)
	Ranking(ctx context.Context, actor session.Session, kind, value string) (*ranking.Report, error)
}

// ViewsHandler serves profile, home, dashboard and ranking views.
type ViewsHandler struct {
	deps ViewDependencies
}

// NewViewsHandler creates a new views handler.
func NewViewsHandler(deps ViewDependencies) *ViewsHandler {
	return &ViewsHandler{deps: deps}
}

type profileRequest struct {
	DisplayName string `json:"displayName"`
}

// HandleGetProfile handles GET /api/me requests.
func (h *ViewsHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Profile(r.Context(), SessionFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUpdateProfile handles PATCH /api/me requests.
func (h *ViewsHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	u, err := h.deps.UpdateDisplayName(r.Context(), SessionFrom(r.Context()), req.DisplayName)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleHome handles GET /api/home requests.
func (h *ViewsHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	home, err := h.deps.Home(r.Context(), SessionFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, home)
}

// HandleCommittee handles GET /api/committee requests.
func (h *ViewsHandler) HandleCommittee(w http.ResponseWriter, r *http.Request) {
	users, err := h.deps.CommitteeMembers(r.Context(), SessionFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleDashboard handles GET /api/dashboard requests.
func (h *ViewsHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.deps.Dashboard(r.Context(), SessionFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleRanking handles GET /api/ranking?period=month|year&value=V. With
// limit=N only the first N entries are returned; format=csv downloads the
// full ranking.
func (h *ViewsHandler) HandleRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := q.Get("period")
	if kind == "" {
		kind = string(ranking.PeriodMonth)
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
		limit = n
	}
	report, err := h.deps.Ranking(r.Context(), SessionFrom(r.Context()), kind, q.Get("value"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if q.Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ranking-%s.csv"`, report.Period.Label))
		w.WriteHeader(http.StatusOK)
		_ = ranking.WriteCSV(w, report.Entries)
		return
	}
	if limit > 0 && limit < len(report.Entries) {
		trimmed := *report
		trimmed.Entries = report.Entries[:limit]
		report = &trimmed
	}
	writeJSON(w, http.StatusOK, report)
}
