package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/playbuddy/playbuddy-notify/internal/api/respond"
	"github.com/playbuddy/playbuddy-notify/internal/event"
	"github.com/playbuddy/playbuddy-notify/internal/notify"
)

// ScheduleRequest is the payload for scheduling and preview endpoints.
type ScheduleRequest struct {
	Events               []event.Event `json:"events" validate:"required"`
	FollowedOrganizerIDs []int64       `json:"followed_organizer_ids"`
	WindowStartDays      *int          `json:"window_start_days,omitempty"`
	WindowEndDays        *int          `json:"window_end_days,omitempty"`
}

func (req *ScheduleRequest) followedSet() map[int64]struct{} {
	set := make(map[int64]struct{}, len(req.FollowedOrganizerIDs))
	for _, id := range req.FollowedOrganizerIDs {
		set[id] = struct{}{}
	}
	return set
}

func (h *Handler) decodeScheduleRequest(w http.ResponseWriter, r *http.Request) (*ScheduleRequest, bool) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON")
		return nil, false
	}
	if err := h.validate.Struct(&req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "VALIDATION_FAILED", "Invalid request", err.Error())
		return nil, false
	}
	return &req, true
}

// RunSchedule runs an organizer notification batch.
// @Summary Run the organizer notification scheduler
// @Description Replaces the current batch with five slots at four-day intervals. Returns the produced plan; empty when notification permission is absent.
// @Tags schedule
// @Accept json
// @Produce json
// @Param request body ScheduleRequest true "Events and followed organizer ids"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /notifications/schedule [post]
func (h *Handler) RunSchedule(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeScheduleRequest(w, r)
	if !ok {
		return
	}

	plan := h.scheduler.Schedule(r.Context(), notify.ScheduleInput{
		Events:               req.Events,
		FollowedOrganizerIDs: req.followedSet(),
	})
	h.cache.Invalidate(historyCacheKey)
	h.cache.Invalidate(scheduleCacheKey)

	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"plan":  plan,
		"slots": len(plan),
	})
}

// GetSchedule returns the persisted plan.
// @Summary Get the current notification plan
// @Tags schedule
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /notifications/schedule [get]
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	plan := h.scheduler.Plan(r.Context())
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"plan":  plan,
		"slots": len(plan),
	})
}

// CancelSchedule cancels the current batch.
// @Summary Cancel scheduled notifications
// @Description Revokes all platform notifications from the current batch and clears the plan and cadence state.
// @Tags schedule
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /notifications/schedule/cancel [post]
func (h *Handler) CancelSchedule(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Cancel(r.Context(), notify.CancelOptions{})
	h.cache.Invalidate(scheduleCacheKey)
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"canceled": true})
}

// Preview returns the candidate an immediate notification would announce.
// @Summary Preview notification eligibility
// @Description Returns the eligibility summary for the preview window and the content an immediate notification would carry.
// @Tags schedule
// @Accept json
// @Produce json
// @Param request body ScheduleRequest true "Events, followed organizer ids, optional window overrides"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /notifications/preview [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeScheduleRequest(w, r)
	if !ok {
		return
	}

	followed := req.followedSet()
	info := h.scheduler.Eligibility(req.Events, followed, notify.WindowDays{
		Start: req.WindowStartDays,
		End:   req.WindowEndDays,
	})

	resp := map[string]interface{}{"eligibility": info}
	if ev, content := h.scheduler.Candidate(req.Events, followed, time.Time{}); ev != nil {
		resp["candidate"] = map[string]interface{}{
			"event": ev,
			"title": content.Title,
			"body":  content.Body,
			"image": content.ImageURL,
		}
	}
	respond.WriteJSONObject(w, http.StatusOK, resp)
}
