package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/playbuddy/playbuddy-notify/internal/api/respond"
	"github.com/playbuddy/playbuddy-notify/internal/cache"
)

const (
	historyCacheKey  = "history"
	scheduleCacheKey = "schedule"
)

// GetHistory returns the notification history, most recent first.
// @Summary Get notification history
// @Description Returns the capped (50-item) log of notifications shown to the user. ETag-cached.
// @Tags history
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /notifications/history [get]
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if data, etag, ok := h.cache.Get(historyCacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, cache.TTLHistory, true)
		return
	}

	history, err := h.scheduler.History().Get(r.Context())
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to read history")
		return
	}

	data, err := json.Marshal(map[string]interface{}{
		"history": history,
		"count":   len(history),
	})
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODING_ERROR", "Failed to encode history")
		return
	}

	etag := h.cache.Set(historyCacheKey, data, cache.TTLHistory)
	respond.WriteJSON(w, data, etag, cache.TTLHistory, false)
}

// MarkHistorySeen records the seen-at cursor.
// @Summary Mark history as seen
// @Tags history
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /notifications/history/seen [post]
func (h *Handler) MarkHistorySeen(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	if err := h.scheduler.History().MarkSeen(r.Context(), now); err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to record seen-at")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"seen_at": now.UnixMilli(),
	})
}

// GetUnreadCount returns the number of fired-but-unseen notifications.
// @Summary Get unread notification count
// @Tags history
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /notifications/history/unread_count [get]
func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.scheduler.History().UnreadCount(r.Context())
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to count unread")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"unread_count": count,
	})
}
