// internal/realtime/handler.go
package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the hub over server-sent events.
type Handler struct {
	hub      *Hub
	approver ApproverChecker
}

// ApproverChecker reports whether a user should receive manager broadcasts.
type ApproverChecker interface {
	IsApprover(r *http.Request, userID int64) (bool, error)
}

// ApproverFunc adapts a function to the ApproverChecker interface.
type ApproverFunc func(r *http.Request, userID int64) (bool, error)

func (f ApproverFunc) IsApprover(r *http.Request, userID int64) (bool, error) {
	return f(r, userID)
}

func NewHandler(hub *Hub, approver ApproverChecker) *Handler {
	return &Handler{hub: hub, approver: approver}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/stream", h.handleStream)
	return r
}

// handleStream holds the connection open and writes one SSE event per hub
// message, with a periodic heartbeat so proxies do not cut the stream.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "missing or invalid X-User-ID header", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	manager, err := h.approver.IsApprover(r, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	messages, cancel := h.hub.Subscribe(userID, manager)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg := <-messages:
			raw, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, raw)
			flusher.Flush()
		}
	}
}
