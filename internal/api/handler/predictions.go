package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ovaria/pcos-tracker/internal/api/respond"
	"github.com/ovaria/pcos-tracker/internal/cache"
	"github.com/ovaria/pcos-tracker/internal/cycles"
	"github.com/ovaria/pcos-tracker/internal/metrics"
	"github.com/ovaria/pcos-tracker/internal/prediction"
)

// PredictionResponse is the body for a successful prediction.
type PredictionResponse struct {
	Prediction prediction.Prediction `json:"prediction"`
	Insights   []string              `json:"insights"`
}

// InsufficientDataResponse is returned with 200 when fewer than two cycle
// starts are logged.
type InsufficientDataResponse struct {
	Error string `json:"error"`
}

// GetNextCyclePrediction predicts the user's next cycle from logged entries.
// @Summary Predict next cycle
// @Description Estimates the next cycle start, PMS window, confidence and pattern from logged cycle start dates. Returns {"error": "..."} with 200 when fewer than two cycles are logged.
// @Tags predictions
// @Produce json
// @Param userID path string true "User ID (uuid)"
// @Param today query string false "Reference date (YYYY-MM-DD), defaults to the current UTC date"
// @Success 200 {object} PredictionResponse
// @Success 304 "Not modified"
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/predictions/next-cycle [get]
func (h *Handler) GetNextCyclePrediction(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}

	today := h.now().UTC()
	if raw := r.URL.Query().Get("today"); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_DATE",
				"Invalid today parameter", "expected YYYY-MM-DD")
			return
		}
		today = t
	}

	key := cache.PredictionKey(userID, today)
	if data, etag, hit := h.cache.Get(key); hit {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, h.predictionTTL, true)
		return
	}

	entries, err := h.cycles.List(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, "list cycles", err)
		return
	}

	result := h.predictor.Predict(cycles.StartDates(entries), today)
	metrics.RecordPrediction(result.Outcome.String())

	var body any
	if result.Insufficient() {
		body = InsufficientDataResponse{Error: prediction.InsufficientDataMessage}
	} else {
		body = PredictionResponse{Prediction: result.Prediction, Insights: result.Insights}
	}
	data, err := json.Marshal(body)
	if err != nil {
		h.internalError(w, r, "encode prediction", err)
		return
	}

	etag := h.cache.Set(key, data, h.predictionTTL)
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, data, etag, h.predictionTTL, false)
}
