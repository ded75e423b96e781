package api

import (
	"context"
	"net/http"

	"github.com/okian/ideabox/internal/adapters/session"
	service "github.com/okian/ideabox/internal/app"
	"github.com/okian/ideabox/internal/domain/model"
)

// WorkflowDependencies defines the triage operations on one idea.
type WorkflowDependencies interface {
	ChangeStatus(ctx context.Context, actor session.Session, id, status string) (service.StatusResult, error)
	AssignManager(ctx context.Context, actor session.Session, id, managerID string) (model.Idea, error)
	ToggleVote(ctx context.Context, actor session.Session, id string) (service.VoteState, error)
	Votes(ctx context.Context, actor session.Session, id string) (service.VoteState, error)
	Comments(ctx context.Context, actor session.Session, id string) ([]model.Comment, error)
	AddComment(ctx context.Context, actor session.Session, id, text string) (model.Comment, error)
	DeleteComment(ctx context.Context, actor session.Session, id, commentID string) error
	History(ctx context.Context, actor session.Session, id string) ([]model.HistoryEntry, error)
	GetReward(ctx context.Context, actor session.Session, id string) (model.Reward, error)
	AwardReward(ctx context.Context, actor session.Session, id string, amount int) (model.Reward, bool, error)
}

// WorkflowHandler serves status, assignment, vote, comment and reward
// endpoints.
type WorkflowHandler struct {
	deps WorkflowDependencies
}

// NewWorkflowHandler creates a new workflow handler.
func NewWorkflowHandler(deps WorkflowDependencies) *WorkflowHandler {
	return &WorkflowHandler{deps: deps}
}

type statusRequest struct {
	Status string `json:"status"`
}

type managerRequest struct {
	// ManagerID is empty to unassign.
	ManagerID string `json:"managerId"`
}

type commentRequest struct {
	Text string `json:"text"`
}

type rewardRequest struct {
	Amount int `json:"amount"`
}

type rewardResponse struct {
	model.Reward
	Created bool `json:"created"`
}

// HandleChangeStatus handles PUT /api/ideas/{id}/status.
func (h *WorkflowHandler) HandleChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	res, err := h.deps.ChangeStatus(r.Context(), SessionFrom(r.Context()), r.PathValue("id"), req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleAssignManager handles PUT /api/ideas/{id}/manager.
func (h *WorkflowHandler) HandleAssignManager(w http.ResponseWriter, r *http.Request) {
	var req managerRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	idea, err := h.deps.AssignManager(r.Context(), SessionFrom(r.Context()), r.PathValue("id"), req.ManagerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

// HandleToggleVote handles POST /api/ideas/{id}/vote.
func (h *WorkflowHandler) HandleToggleVote(w http.ResponseWriter, r *http.Request) {
	state, err := h.deps.ToggleVote(r.Context(), SessionFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleVotes handles GET /api/ideas/{id}/votes.
func (h *WorkflowHandler) HandleVotes(w http.ResponseWriter, r *http.Request) {
	state, err := h.deps.Votes(r.Context(), SessionFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleListComments handles GET /api/ideas/{id}/comments.
func (h *WorkflowHandler) HandleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.deps.Comments(r.Context(), SessionFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if comments == nil {
		comments = []model.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

// HandleAddComment handles POST /api/ideas/{id}/comments.
func (h *WorkflowHandler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	c, err := h.deps.AddComment(r.Context(), SessionFrom(r.Context()), r.PathValue("id"), req.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleDeleteComment handles DELETE /api/ideas/{id}/comments/{cid}.
func (h *WorkflowHandler) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	err := h.deps.DeleteComment(r.Context(), SessionFrom(r.Context()), r.PathValue("id"), r.PathValue("cid"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHistory handles GET /api/ideas/{id}/history.
func (h *WorkflowHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.History(r.Context(), SessionFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGetReward handles GET /api/ideas/{id}/reward.
func (h *WorkflowHandler) HandleGetReward(w http.ResponseWriter, r *http.Request) {
	reward, err := h.deps.GetReward(r.Context(), SessionFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

// HandleAwardReward handles POST /api/ideas/{id}/reward. An idea is
// rewarded at most once; repeating the call returns the existing reward
// with 200.
func (h *WorkflowHandler) HandleAwardReward(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	reward, created, err := h.deps.AwardReward(r.Context(), SessionFrom(r.Context()), r.PathValue("id"), req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, rewardResponse{Reward: reward, Created: created})
}
