package registration_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StreamCapacity pushes the event's capacity report over SSE, once on
// connect and again after every change.
func (h *Handler) StreamCapacity(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	report, err := h.Engine.Capacity(r.Context(), eventID)
	if err != nil {
		h.fail(w, r, "StreamCapacity", err)
		return
	}

	setupSSEHeaders(w)
	ctx := r.Context()
	changes := h.Changes.SubscribeToEvent(ctx, eventID)

	send := func(v interface{}) bool {
		data, err := json.Marshal(v)
		if err != nil {
			h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize capacity report: %v", err))
			return false
		}
		fmt.Fprintf(w, "event: capacity\ndata: %s\n\n", data)
		flusher.Flush()
		return true
	}
	send(report)
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to capacity stream for event: %s", eventID))

	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
			report, err := h.Engine.Capacity(ctx, eventID)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to read capacity of %s: %v", eventID, err))
				continue
			}
			send(report)
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from capacity stream for: %s", eventID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
}
