package handler

import (
	"encoding/json"
	"net/http"

	"github.com/playbuddy/playbuddy-notify/internal/api/respond"
	"github.com/playbuddy/playbuddy-notify/internal/event"
)

// DiscoverScheduleRequest is the payload for discover-game scheduling.
type DiscoverScheduleRequest struct {
	Events []event.Event `json:"events" validate:"required"`
}

// RecordSwipe records a discover-game swipe.
// @Summary Record a discover-game swipe
// @Description Bumps the swipe counter, stamps the last-swipe time, and clears the badge.
// @Tags discover
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /notifications/discover/swipe [post]
func (h *Handler) RecordSwipe(w http.ResponseWriter, r *http.Request) {
	count, err := h.discover.RecordSwipe(r.Context())
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to record swipe")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"swipe_count": count,
	})
}

// RunDiscoverSchedule replaces the discover-game reminder batch.
// @Summary Run the discover-game reminder scheduler
// @Tags discover
// @Accept json
// @Produce json
// @Param request body DiscoverScheduleRequest true "Candidate events"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /notifications/discover/schedule [post]
func (h *Handler) RunDiscoverSchedule(w http.ResponseWriter, r *http.Request) {
	var req DiscoverScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "VALIDATION_FAILED", "Invalid request", err.Error())
		return
	}

	h.discover.Schedule(r.Context(), req.Events)
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"scheduled": true,
	})
}
