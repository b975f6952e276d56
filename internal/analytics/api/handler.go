package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-registration/internal/analytics"
	"ms-registration/internal/logger"
	"ms-registration/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Handler handles HTTP requests for analytics
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, logger *logger.Logger) *Handler {
	return &Handler{
		Service: service,
		Logger:  logger,
	}
}

// RegisterRoutes registers the analytics routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/events/{eventId}", h.GetEventAnalytics)
	})
}

// GetEventAnalytics handles requests for an event's registration report
func (h *Handler) GetEventAnalytics(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("ANALYTICS", fmt.Sprintf("Fetching analytics for event: %s", eventID))

	report, err := h.Service.GetEventAnalytics(r.Context(), eventID)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Error fetching analytics for event %s: %v", eventID, err))
		sendJSONResponse(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to fetch analytics", err.Error()))
		return
	}

	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Event analytics", report))
}

// sendJSONResponse is a helper function to send JSON responses
func sendJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
