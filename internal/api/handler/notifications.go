package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ovaria/pcos-tracker/internal/api/respond"
	"github.com/ovaria/pcos-tracker/internal/eligibility"
	"github.com/ovaria/pcos-tracker/internal/notifications"
)

// CreateNotificationRequest is the body for creating a notification.
type CreateNotificationRequest struct {
	Type         string         `json:"type"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Priority     string         `json:"priority,omitempty"`
	ActionURL    string         `json:"actionUrl,omitempty"`
	ScheduledFor *time.Time     `json:"scheduledFor,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// SuppressedResponse is returned with 200 when preferences block a
// notification.
type SuppressedResponse struct {
	Created bool               `json:"created"`
	Reason  eligibility.Reason `json:"reason"`
	Toggle  string             `json:"toggle,omitempty"`
}

// EligibilityRequest asks whether a type could be sent at a time.
type EligibilityRequest struct {
	Type string     `json:"type"`
	At   *time.Time `json:"at,omitempty"`
}

// ListNotifications returns the user's notifications, newest first.
// @Summary List notifications
// @Tags notifications
// @Produce json
// @Param userID path string true "User ID (uuid)"
// @Param unread query bool false "Only unread"
// @Param limit query int false "Page size (default 50, max 200)"
// @Param offset query int false "Offset"
// @Success 200 {array} notifications.Notification
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/notifications [get]
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}

	q := r.URL.Query()
	var opts notifications.ListOptions
	if v := q.Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_PARAM", "unread must be a boolean")
			return
		}
		opts.UnreadOnly = b
	}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				respond.WriteError(w, http.StatusBadRequest, "INVALID_PARAM", name+" must be a non-negative integer")
				return
			}
			*dst = n
		}
	}

	list, err := h.notifications.List(r.Context(), userID, opts)
	if err != nil {
		h.internalError(w, r, "list notifications", err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, list)
}

// UnreadCount returns the number of unread notifications.
// @Summary Unread notification count
// @Tags notifications
// @Produce json
// @Param userID path string true "User ID (uuid)"
// @Success 200 {object} map[string]int
// @Router /api/v1/users/{userID}/notifications/unread-count [get]
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	n, err := h.notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, "unread count", err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]int{"count": n})
}

// CreateNotification creates a notification if the user's preferences allow
// it now.
// @Summary Create a notification
// @Description Runs the eligibility check first. Suppressed notifications return 200 with created=false and the reason.
// @Tags notifications
// @Accept json
// @Produce json
// @Param userID path string true "User ID (uuid)"
// @Param body body CreateNotificationRequest true "Notification"
// @Success 201 {object} notifications.Notification
// @Success 200 {object} SuppressedResponse
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/notifications [post]
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}

	var body CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body", err.Error())
		return
	}
	priority, err := notifications.ParsePriority(body.Priority)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid notification", err.Error())
		return
	}

	n, decision, err := h.notifications.Send(r.Context(), notifications.Request{
		UserID:       userID,
		Type:         eligibility.NotificationType(body.Type),
		Title:        body.Title,
		Message:      body.Message,
		Priority:     priority,
		ActionURL:    body.ActionURL,
		ScheduledFor: body.ScheduledFor,
		Metadata:     body.Metadata,
	})
	switch {
	case errors.Is(err, notifications.ErrInvalidRequest):
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid notification", err.Error())
	case err != nil:
		h.internalError(w, r, "create notification", err)
	case n == nil:
		respond.WriteJSONObject(w, http.StatusOK, SuppressedResponse{
			Created: false,
			Reason:  decision.Reason,
			Toggle:  decision.Toggle,
		})
	default:
		respond.WriteJSONObject(w, http.StatusCreated, n)
	}
}

// CheckEligibility reports whether a notification type would be delivered.
// @Summary Eligibility dry run
// @Tags notifications
// @Accept json
// @Produce json
// @Param userID path string true "User ID (uuid)"
// @Param body body EligibilityRequest true "Type and optional time"
// @Success 200 {object} eligibility.Decision
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/notifications/eligibility [post]
func (h *Handler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}

	var body EligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body", err.Error())
		return
	}
	t, err := eligibility.ParseType(body.Type)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_TYPE", "Invalid notification type", err.Error())
		return
	}
	var at time.Time
	if body.At != nil {
		at = *body.At
	}

	decision, err := h.notifications.Check(r.Context(), userID, t, at)
	if err != nil {
		h.internalError(w, r, "check eligibility", err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, decision)
}

// MarkNotificationRead marks one notification read.
// @Summary Mark read
// @Tags notifications
// @Param userID path string true "User ID (uuid)"
// @Param id path string true "Notification ID (uuid)"
// @Success 204
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/notifications/{id}/read [patch]
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	h.writeMutation(w, r, "mark read", h.notifications.MarkRead(r.Context(), userID, id))
}

// MarkAllNotificationsRead marks every unread notification read.
// @Summary Mark all read
// @Tags notifications
// @Produce json
// @Param userID path string true "User ID (uuid)"
// @Success 200 {object} map[string]int64
// @Router /api/v1/users/{userID}/notifications/read-all [post]
func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	n, err := h.notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, "mark all read", err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]int64{"updated": n})
}

// DeleteNotification removes one notification.
// @Summary Delete a notification
// @Tags notifications
// @Param userID path string true "User ID (uuid)"
// @Param id path string true "Notification ID (uuid)"
// @Success 204
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/notifications/{id} [delete]
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	h.writeMutation(w, r, "delete notification", h.notifications.Delete(r.Context(), userID, id))
}

func (h *Handler) writeMutation(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, notifications.ErrNotFound):
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Notification not found")
	case err != nil:
		h.internalError(w, r, op, err)
	default:
		respond.WriteNoContent(w)
	}
}
