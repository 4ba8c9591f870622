package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaria/pcos-tracker/internal/api/handler"
	"github.com/ovaria/pcos-tracker/internal/cache"
	"github.com/ovaria/pcos-tracker/internal/config"
	"github.com/ovaria/pcos-tracker/internal/cycles"
	"github.com/ovaria/pcos-tracker/internal/eligibility"
	"github.com/ovaria/pcos-tracker/internal/notifications"
	"github.com/ovaria/pcos-tracker/internal/notifications/notificationstest"
	"github.com/ovaria/pcos-tracker/internal/prediction"
)

var testNow = time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)

type testServer struct {
	router http.Handler
	store  *notificationstest.MemStore
	user   uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := notificationstest.New()
	now := func() time.Time { return testNow }
	deps := handler.Deps{
		Cache:  cache.New(true),
		Cycles: cycles.NewMemStore(),
		Notifications: notifications.NewService(store, eligibility.PolicyOvernightSafe, zap.NewNop(),
			notifications.WithClock(now)),
		Predictor:     prediction.New(prediction.DefaultRules()),
		PredictionTTL: time.Minute,
		Logger:        zap.NewNop(),
		Now:           now,
	}
	cfg := &config.Config{CORSAllowOrigins: []string{"http://localhost:3000"}}
	return &testServer{router: NewRouter(deps, cfg), store: store, user: uuid.New()}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) path(suffix string) string {
	return "/api/v1/users/" + s.user.String() + suffix
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/health/db", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503 without a database, got %d", rec.Code)
	}
	rec := s.do(t, http.MethodGet, "/", nil)
	if rec.Header().Get("X-Process-Time") == "" {
		t.Fatal("want X-Process-Time header")
	}
}

func TestInvalidUserID(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/users/not-a-uuid/predictions/next-cycle", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
	body := decode[map[string]map[string]string](t, rec)
	if body["error"]["code"] != "INVALID_ID" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestPredictionInsufficientData(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, s.path("/cycles"), map[string]string{"startDate": "2025-02-26"})

	rec := s.do(t, http.MethodGet, s.path("/predictions/next-cycle"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["error"] != prediction.InsufficientDataMessage {
		t.Fatalf("want insufficient data message, got %v", body)
	}
}

func TestPredictionFlow(t *testing.T) {
	s := newTestServer(t)
	for _, d := range []string{"2025-01-01", "2025-01-29", "2025-02-26"} {
		rec := s.do(t, http.MethodPost, s.path("/cycles"), map[string]string{"startDate": d})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create cycle %s: want 201, got %d %s", d, rec.Code, rec.Body)
		}
	}

	rec := s.do(t, http.MethodGet, s.path("/predictions/next-cycle"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("want cache miss first, got %q", rec.Header().Get("X-Cache"))
	}
	resp := decode[handler.PredictionResponse](t, rec)
	want := time.Date(2025, 3, 26, 0, 0, 0, 0, time.UTC)
	if !resp.Prediction.NextCycleDate.Equal(want) {
		t.Fatalf("want next cycle %s, got %s", want, resp.Prediction.NextCycleDate)
	}
	if resp.Prediction.DaysUntilNextCycle != 6 {
		t.Fatalf("want 6 days until next cycle, got %d", resp.Prediction.DaysUntilNextCycle)
	}
	if len(resp.Insights) == 0 {
		t.Fatal("want insights")
	}

	etag := rec.Header().Get("ETag")
	rec = s.do(t, http.MethodGet, s.path("/predictions/next-cycle"), nil, "If-None-Match", etag)
	if rec.Code != http.StatusNotModified {
		t.Fatalf("want 304 for matching etag, got %d", rec.Code)
	}

	// A new entry drops the cached prediction.
	s.do(t, http.MethodPost, s.path("/cycles"), map[string]string{"startDate": "2025-03-19"})
	rec = s.do(t, http.MethodGet, s.path("/predictions/next-cycle"), nil, "If-None-Match", etag)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("want fresh prediction after new entry, got %d %q", rec.Code, rec.Header().Get("X-Cache"))
	}
}

func TestPredictionTodayParam(t *testing.T) {
	s := newTestServer(t)
	for _, d := range []string{"2025-01-01", "2025-01-29", "2025-02-26"} {
		s.do(t, http.MethodPost, s.path("/cycles"), map[string]string{"startDate": d})
	}

	rec := s.do(t, http.MethodGet, s.path("/predictions/next-cycle?today=2025-03-30"), nil)
	resp := decode[handler.PredictionResponse](t, rec)
	if resp.Prediction.DaysUntilNextCycle != -4 {
		t.Fatalf("want -4 days, got %d", resp.Prediction.DaysUntilNextCycle)
	}

	rec = s.do(t, http.MethodGet, s.path("/predictions/next-cycle?today=March"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400 for bad date, got %d", rec.Code)
	}
}

func TestCycleValidationAndDelete(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, s.path("/cycles"),
		map[string]string{"startDate": "2025-03-01", "endDate": "2025-02-20"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400 for end before start, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, s.path("/cycles"), map[string]string{"startDate": "2025-03-01"})
	entry := decode[cycles.Entry](t, rec)

	rec = s.do(t, http.MethodDelete, s.path("/cycles/"+entry.ID.String()), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("want 204, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodDelete, s.path("/cycles/"+entry.ID.String()), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404 on second delete, got %d", rec.Code)
	}
}

func TestNotificationLifecycle(t *testing.T) {
	s := newTestServer(t)
	create := map[string]string{
		"type":    "CYCLE_REMINDER",
		"title":   "Cycle reminder",
		"message": "Your next cycle is expected in 3 days",
	}

	rec := s.do(t, http.MethodPost, s.path("/notifications"), create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d %s", rec.Code, rec.Body)
	}
	n := decode[notifications.Notification](t, rec)
	if n.Priority != notifications.PriorityMedium || n.IsRead {
		t.Fatalf("unexpected notification %+v", n)
	}

	rec = s.do(t, http.MethodGet, s.path("/notifications/unread-count"), nil)
	if got := decode[map[string]int](t, rec)["count"]; got != 1 {
		t.Fatalf("want unread count 1, got %d", got)
	}

	rec = s.do(t, http.MethodPatch, s.path("/notifications/"+n.ID.String()+"/read"), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("want 204, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, s.path("/notifications?unread=true"), nil)
	if got := decode[[]notifications.Notification](t, rec); len(got) != 0 {
		t.Fatalf("want no unread notifications, got %d", len(got))
	}

	rec = s.do(t, http.MethodDelete, s.path("/notifications/"+n.ID.String()), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("want 204, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodDelete, s.path("/notifications/"+n.ID.String()), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

func TestNotificationSuppressedByPreferences(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, s.path("/notification-preferences"),
		map[string]any{"enableCycleReminders": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d %s", rec.Code, rec.Body)
	}
	prefs := decode[eligibility.Preferences](t, rec)
	if prefs.EnableCycleReminders || !prefs.EnableDailyLogReminders {
		t.Fatalf("want only cycle reminders off, got %+v", prefs)
	}

	rec = s.do(t, http.MethodPost, s.path("/notifications"), map[string]string{
		"type":    "CYCLE_REMINDER",
		"title":   "Cycle reminder",
		"message": "Soon",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200 for suppressed, got %d", rec.Code)
	}
	body := decode[handler.SuppressedResponse](t, rec)
	if body.Created || body.Reason != eligibility.ReasonTypeDisabled {
		t.Fatalf("unexpected suppressed body %+v", body)
	}
	if got := len(s.store.All()); got != 0 {
		t.Fatalf("want nothing stored, got %d", got)
	}
}

func TestNotificationInvalidRequest(t *testing.T) {
	s := newTestServer(t)
	tests := map[string]map[string]string{
		"unknown type":     {"type": "NOPE", "title": "t", "message": "m"},
		"missing title":    {"type": "GENERAL", "message": "m"},
		"unknown priority": {"type": "GENERAL", "title": "t", "message": "m", "priority": "URGENT"},
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, s.path("/notifications"), body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("want 400, got %d", rec.Code)
			}
		})
	}
}

func TestEligibilityDryRun(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPut, s.path("/notification-preferences"), map[string]any{
		"quietHoursEnabled": true,
		"quietHoursStart":   "22:00",
		"quietHoursEnd":     "07:00",
	})

	at := time.Date(2025, 3, 20, 23, 30, 0, 0, time.UTC)
	rec := s.do(t, http.MethodPost, s.path("/notifications/eligibility"),
		map[string]any{"type": "DAILY_LOG_REMINDER", "at": at})
	d := decode[eligibility.Decision](t, rec)
	if d.Allowed || d.Reason != eligibility.ReasonQuietHours {
		t.Fatalf("want quiet hours suppression, got %+v", d)
	}

	rec = s.do(t, http.MethodPost, s.path("/notifications/eligibility"),
		map[string]any{"type": "DAILY_LOG_REMINDER"})
	d = decode[eligibility.Decision](t, rec)
	if !d.Allowed {
		t.Fatalf("want allowed at noon, got %+v", d)
	}

	if got := len(s.store.All()); got != 0 {
		t.Fatalf("dry run must not store, got %d", got)
	}
}

func TestPreferencesValidation(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPut, s.path("/notification-preferences"),
		map[string]any{"quietHoursStart": "25:00"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPut, s.path("/notification-preferences"),
		map[string]any{"timezone": "Mars/Olympus"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400 for unknown timezone, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	mw := RateLimitMiddleware(2, time.Minute)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	// Burst is half the window allowance.
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestIPLimiterSweepsIdle(t *testing.T) {
	l := newIPLimiter(10, time.Minute)
	start := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)

	l.getLimiter("10.0.0.1", start)
	l.getLimiter("10.0.0.2", start)
	l.getLimiter("10.0.0.2", start.Add(8*time.Minute))

	if n := l.sweep(start.Add(11*time.Minute), limiterIdle); n != 1 {
		t.Fatalf("want 1 idle limiter dropped, got %d", n)
	}
	if got := len(l.limiters); got != 1 {
		t.Fatalf("want the recently seen IP kept, got %d limiters", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/health", nil)
	rec := s.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pcos_http_request_duration_seconds") {
		t.Fatal("want request duration histogram in metrics output")
	}
}
