package handler

import (
	"encoding/json"
	"net/http"

	"github.com/playbuddy/playbuddy-notify/internal/api/respond"
)

// TokenRequest is the payload for push-token registration.
type TokenRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=ios android"`
}

// RegisterToken forwards a remote push token to the backend.
// @Summary Register a remote push token
// @Description Registers the token with the backend unless it is already the stored one.
// @Tags tokens
// @Accept json
// @Produce json
// @Param request body TokenRequest true "Token and platform"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /push_tokens [post]
func (h *Handler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "VALIDATION_FAILED", "Invalid request", err.Error())
		return
	}

	registered, err := h.tokens.Register(r.Context(), req.Token, req.Platform)
	if err != nil {
		respond.WriteError(w, http.StatusBadGateway, "BACKEND_ERROR", "Token registration failed")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"token": registered,
	})
}

// UnregisterToken removes the stored remote push token.
// @Summary Unregister the remote push token
// @Description Deletes the stored token from the backend, best-effort, and clears the local copy.
// @Tags tokens
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /push_tokens [delete]
func (h *Handler) UnregisterToken(w http.ResponseWriter, r *http.Request) {
	h.tokens.Unregister(r.Context())
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"unregistered": true,
	})
}
