package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/ideabox/internal/adapters/session"
	service "github.com/okian/ideabox/internal/app"
)

const heartbeatInterval = 25 * time.Second

// ListStream is a live list as the stream endpoint consumes it.
type ListStream interface {
	Updates() <-chan struct{}
	View(ctx context.Context) service.ListView
	Close()
}

// StreamDependencies opens live committee lists.
type StreamDependencies interface {
	WatchList(ctx context.Context, actor session.Session, q service.ListQuery) (*service.Stream, error)
}

// EventsHandler pushes list snapshots as server-sent events.
type EventsHandler struct {
	deps      StreamDependencies
	heartbeat time.Duration
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps StreamDependencies) *EventsHandler {
	return &EventsHandler{deps: deps, heartbeat: heartbeatInterval}
}

// HandleStream handles GET /api/ideas/stream. Every change to the list sends
// an "event: list" frame carrying the full view; idle connections get a
// comment line at each heartbeat.
func (h *EventsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	ctx := r.Context()
	st, err := h.deps.WatchList(ctx, SessionFrom(ctx), listQuery(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer st.Close()

	// The server write timeout would cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	h.stream(ctx, w, rc, st)
}

func (h *EventsHandler) stream(ctx context.Context, w io.Writer, rc *http.ResponseController, st ListStream) {
	if err := writeEvent(w, "list", st.View(ctx)); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-st.Updates():
			if err := writeEvent(w, "list", st.View(ctx)); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
