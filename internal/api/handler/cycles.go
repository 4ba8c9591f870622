package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ovaria/pcos-tracker/internal/api/respond"
	"github.com/ovaria/pcos-tracker/internal/cache"
	"github.com/ovaria/pcos-tracker/internal/cycles"
)

// CreateCycleRequest is the body for logging a cycle. Dates are YYYY-MM-DD.
type CreateCycleRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate,omitempty"`
}

// ListCycles returns the user's logged cycles, newest first.
// @Summary List cycles
// @Tags cycles
// @Produce json
// @Param userID path string true "User ID (uuid)"
// @Success 200 {array} cycles.Entry
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/cycles [get]
func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	entries, err := h.cycles.List(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, "list cycles", err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, entries)
}

// CreateCycle logs a cycle start (and optional end).
// @Summary Log a cycle
// @Tags cycles
// @Accept json
// @Produce json
// @Param userID path string true "User ID (uuid)"
// @Param body body CreateCycleRequest true "Cycle dates"
// @Success 201 {object} cycles.Entry
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/cycles [post]
func (h *Handler) CreateCycle(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}

	var req CreateCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body", err.Error())
		return
	}

	entry := cycles.Entry{UserID: userID}
	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_DATE", "Invalid startDate", "expected YYYY-MM-DD")
		return
	}
	entry.StartDate = start
	if req.EndDate != "" {
		end, err := time.Parse(time.DateOnly, req.EndDate)
		if err != nil {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_DATE", "Invalid endDate", "expected YYYY-MM-DD")
			return
		}
		entry.EndDate = &end
	}

	err = h.cycles.Create(r.Context(), &entry)
	switch {
	case errors.Is(err, cycles.ErrInvalidEntry):
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_ENTRY", "Invalid cycle entry", err.Error())
		return
	case err != nil:
		h.internalError(w, r, "create cycle", err)
		return
	}

	h.cache.DeletePrefix(cache.PredictionPrefix(userID))
	respond.WriteJSONObject(w, http.StatusCreated, entry)
}

// DeleteCycle removes a logged cycle.
// @Summary Delete a cycle
// @Tags cycles
// @Param userID path string true "User ID (uuid)"
// @Param entryID path string true "Cycle entry ID (uuid)"
// @Success 204
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/cycles/{entryID} [delete]
func (h *Handler) DeleteCycle(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	entryID, ok := pathUUID(w, r, "entryID")
	if !ok {
		return
	}

	err := h.cycles.Delete(r.Context(), userID, entryID)
	switch {
	case errors.Is(err, cycles.ErrNotFound):
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Cycle entry not found")
		return
	case err != nil:
		h.internalError(w, r, "delete cycle", err)
		return
	}

	h.cache.DeletePrefix(cache.PredictionPrefix(userID))
	respond.WriteNoContent(w)
}
