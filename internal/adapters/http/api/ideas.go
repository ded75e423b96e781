package api

import (
	"context"
	"net/http"

	"github.com/okian/ideabox/internal/adapters/session"
	service "github.com/okian/ideabox/internal/app"
	"github.com/okian/ideabox/internal/domain/model"
	"github.com/okian/ideabox/internal/domain/workflow"
)

// IdeaDependencies defines the idea and list operations.
type IdeaDependencies interface {
	CreateIdea(ctx context.Context, actor session.Session, in workflow.IdeaInput) (model.Idea, error)
	EditIdea(ctx context.Context, actor session.Session, id string, in workflow.IdeaInput) (model.Idea, error)
	GetIdea(ctx context.Context, actor session.Session, id string) (service.IdeaDetail, error)
	CommitteeList(ctx context.Context, actor session.Session, q service.ListQuery) (service.ListView, error)
	GroupMore(ctx context.Context, actor session.Session, status string, q service.ListQuery) (service.GroupView, error)
	MyIdeas(ctx context.Context, actor session.Session, q service.ListQuery) (service.ListView, error)
	ManagedIdeas(ctx context.Context, actor session.Session, q service.ListQuery) (service.ListView, error)
}

// IdeasHandler serves idea submission, detail and list endpoints.
type IdeasHandler struct {
	deps IdeaDependencies
}

// NewIdeasHandler creates a new ideas handler.
func NewIdeasHandler(deps IdeaDependencies) *IdeasHandler {
	return &IdeasHandler{deps: deps}
}

type ideaRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Area        string `json:"area"`
	Impact      string `json:"impact"`
}

func (r ideaRequest) input() workflow.IdeaInput {
	return workflow.IdeaInput{Title: r.Title, Description: r.Description, Area: r.Area, Impact: r.Impact}
}

// HandleCreate handles POST /api/ideas requests.
func (h *IdeasHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req ideaRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	idea, err := h.deps.CreateIdea(r.Context(), SessionFrom(r.Context()), req.input())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idea)
}

// HandleEdit handles PATCH /api/ideas/{id} requests.
func (h *IdeasHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	var req ideaRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	idea, err := h.deps.EditIdea(r.Context(), SessionFrom(r.Context()), r.PathValue("id"), req.input())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

// HandleGet handles GET /api/ideas/{id} requests.
func (h *IdeasHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	detail, err := h.deps.GetIdea(r.Context(), SessionFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleList handles GET /api/ideas, the committee list.
func (h *IdeasHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.deps.CommitteeList)
}

// HandleMine handles GET /api/ideas/mine.
func (h *IdeasHandler) HandleMine(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.deps.MyIdeas)
}

// HandleManaged handles GET /api/ideas/managed.
func (h *IdeasHandler) HandleManaged(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.deps.ManagedIdeas)
}

type listFunc func(ctx context.Context, actor session.Session, q service.ListQuery) (service.ListView, error)

func (h *IdeasHandler) list(w http.ResponseWriter, r *http.Request, fn listFunc) {
	view, err := fn(r.Context(), SessionFrom(r.Context()), listQuery(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleGroupMore handles GET /api/ideas/groups/{status}. The cursor query
// parameter continues the group.
func (h *IdeasHandler) HandleGroupMore(w http.ResponseWriter, r *http.Request) {
	group, err := h.deps.GroupMore(r.Context(), SessionFrom(r.Context()), r.PathValue("status"), listQuery(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}
