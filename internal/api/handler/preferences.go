package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ovaria/pcos-tracker/internal/api/respond"
	"github.com/ovaria/pcos-tracker/internal/notifications"
)

// GetPreferences returns the user's notification preferences, creating the
// defaults on first access.
// @Summary Get notification preferences
// @Tags preferences
// @Produce json
// @Param userID path string true "User ID (uuid)"
// @Success 200 {object} eligibility.Preferences
// @Router /api/v1/users/{userID}/notification-preferences [get]
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	p, err := h.notifications.Preferences(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, "get preferences", err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, p)
}

// UpdatePreferences replaces the user's notification preferences. Fields
// omitted from the body keep their current values.
// @Summary Update notification preferences
// @Tags preferences
// @Accept json
// @Produce json
// @Param userID path string true "User ID (uuid)"
// @Param body body eligibility.Preferences true "Preferences"
// @Success 200 {object} eligibility.Preferences
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/notification-preferences [put]
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}

	current, err := h.notifications.Preferences(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, "get preferences", err)
		return
	}
	next := current
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body", err.Error())
		return
	}
	next.UserID = userID
	next.CreatedAt = current.CreatedAt

	saved, err := h.notifications.UpdatePreferences(r.Context(), next)
	switch {
	case errors.Is(err, notifications.ErrInvalidPreferences):
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_PREFERENCES", "Invalid preferences", err.Error())
	case err != nil:
		h.internalError(w, r, "update preferences", err)
	default:
		respond.WriteJSONObject(w, http.StatusOK, saved)
	}
}

