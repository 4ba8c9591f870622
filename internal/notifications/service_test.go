package notifications_test

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaria/pcos-tracker/internal/eligibility"
	"github.com/ovaria/pcos-tracker/internal/notifications"
	"github.com/ovaria/pcos-tracker/internal/notifications/notificationstest"
)

func newService(t *testing.T, store *notificationstest.MemStore, now time.Time) *notifications.Service {
	t.Helper()
	return notifications.NewService(store, eligibility.PolicyOvernightSafe, zap.NewNop(),
		notifications.WithClock(func() time.Time { return now }))
}

func request(userID uuid.UUID, typ eligibility.NotificationType) notifications.Request {
	return notifications.Request{
		UserID:  userID,
		Type:    typ,
		Title:   "Cycle reminder",
		Message: "Your next cycle is expected in 3 days",
	}
}

func TestSendCreatesWithDefaults(t *testing.T) {
	store := notificationstest.New()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(t, store, now)
	user := uuid.New()

	n, d, err := svc.Send(context.Background(), request(user, eligibility.TypeCycleReminder))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || n == nil {
		t.Fatalf("want created, got decision %+v", d)
	}
	if n.Priority != notifications.PriorityMedium {
		t.Fatalf("want MEDIUM priority by default, got %s", n.Priority)
	}
	if n.IsRead {
		t.Fatal("want unread")
	}
	if !n.CreatedAt.Equal(now) {
		t.Fatalf("want createdAt %s, got %s", now, n.CreatedAt)
	}
	if got := len(store.All()); got != 1 {
		t.Fatalf("want 1 stored row, got %d", got)
	}
}

func TestSendSuppressedNeverInserts(t *testing.T) {
	store := notificationstest.New()
	user := uuid.New()

	prefs := eligibility.DefaultPreferences(user)
	prefs.EnableMedicationReminders = false
	prefs.QuietHoursEnabled = true
	prefs.QuietHoursStart = "22:00"
	prefs.QuietHoursEnd = "07:00"
	store.PutPreferences(prefs)

	tests := []struct {
		name   string
		typ    eligibility.NotificationType
		now    time.Time
		reason eligibility.Reason
	}{
		{"toggle off", eligibility.TypeMedicationReminder, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), eligibility.ReasonTypeDisabled},
		{"quiet hours", eligibility.TypeCycleReminder, time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC), eligibility.ReasonQuietHours},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, d, err := newService(t, store, tt.now).Send(context.Background(), request(user, tt.typ))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if n != nil || d.Allowed || d.Reason != tt.reason {
				t.Fatalf("want suppressed by %s, got %+v", tt.reason, d)
			}
		})
	}
	if got := len(store.All()); got != 0 {
		t.Fatalf("want no rows, got %d", got)
	}
}

func TestSendUsesUserTimezone(t *testing.T) {
	store := notificationstest.New()
	user := uuid.New()
	prefs := eligibility.DefaultPreferences(user)
	prefs.QuietHoursEnabled = true
	prefs.QuietHoursStart = "22:00"
	prefs.QuietHoursEnd = "07:00"
	prefs.Timezone = "Asia/Tokyo"
	store.PutPreferences(prefs)

	// 14:00 UTC is 23:00 in Tokyo.
	now := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	_, d, err := newService(t, store, now).Send(context.Background(), request(user, eligibility.TypeDailyLogReminder))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Reason != eligibility.ReasonQuietHours {
		t.Fatalf("want quiet_hours in user zone, got %+v", d)
	}
}

func TestSendChecksScheduledTime(t *testing.T) {
	store := notificationstest.New()
	user := uuid.New()
	prefs := eligibility.DefaultPreferences(user)
	prefs.QuietHoursEnabled = true
	prefs.QuietHoursStart = "22:00"
	prefs.QuietHoursEnd = "07:00"
	store.PutPreferences(prefs)

	noon := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	late := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)
	svc := newService(t, store, noon)

	req := request(user, eligibility.TypeCycleReminder)
	req.ScheduledFor = &late
	n, d, err := svc.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != nil || d.Reason != eligibility.ReasonQuietHours {
		t.Fatalf("want suppressed for a 23:30 delivery, got %+v", d)
	}

	// Created inside quiet hours, delivered after them.
	morning := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	req.ScheduledFor = &morning
	n, d, err = newService(t, store, late).Send(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n == nil || !d.Allowed {
		t.Fatalf("want created for a 09:00 delivery, got %+v", d)
	}
}

func TestSendRejectsInvalidRequests(t *testing.T) {
	svc := newService(t, notificationstest.New(), time.Now())
	user := uuid.New()

	bad := []notifications.Request{
		{UserID: uuid.Nil, Type: eligibility.TypeGeneral, Title: "t", Message: "m"},
		{UserID: user, Type: "NOPE", Title: "t", Message: "m"},
		{UserID: user, Type: eligibility.TypeGeneral, Title: "", Message: "m"},
		{UserID: user, Type: eligibility.TypeGeneral, Title: "t", Message: ""},
		{UserID: user, Type: eligibility.TypeGeneral, Title: "t", Message: "m", Priority: "URGENT"},
	}
	for i, req := range bad {
		if _, _, err := svc.Send(context.Background(), req); !errors.Is(err, notifications.ErrInvalidRequest) {
			t.Fatalf("case %d: want ErrInvalidRequest, got %v", i, err)
		}
	}
}

func TestSendDedupKey(t *testing.T) {
	store := notificationstest.New()
	svc := newService(t, store, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	req := request(uuid.New(), eligibility.TypeCycleReminder)
	req.DedupKey = "reminder:x:CYCLE_REMINDER:2025-03-01"

	if _, _, err := svc.Send(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.Send(context.Background(), req); !errors.Is(err, notifications.ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
	if got := len(store.All()); got != 1 {
		t.Fatalf("want 1 row, got %d", got)
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	store := notificationstest.New()
	store.Err = errors.New("connection refused")
	_, _, err := newService(t, store, time.Now()).Send(context.Background(), request(uuid.New(), eligibility.TypeGeneral))
	if err == nil || !errors.Is(err, store.Err) {
		t.Fatalf("want wrapped store error, got %v", err)
	}
}

func TestUpdatePreferencesValidates(t *testing.T) {
	store := notificationstest.New()
	svc := newService(t, store, time.Now())
	user := uuid.New()

	p := eligibility.DefaultPreferences(user)
	p.QuietHoursStart = "9pm"
	if _, err := svc.UpdatePreferences(context.Background(), p); !errors.Is(err, notifications.ErrInvalidPreferences) {
		t.Fatalf("want ErrInvalidPreferences, got %v", err)
	}

	p = eligibility.DefaultPreferences(user)
	p.Timezone = ""
	p.EnableRiskUpdates = false
	saved, err := svc.UpdatePreferences(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Timezone != eligibility.DefaultTimezone || saved.EnableRiskUpdates {
		t.Fatalf("unexpected saved preferences %+v", saved)
	}
	got, _ := svc.Preferences(context.Background(), user)
	if got.EnableRiskUpdates {
		t.Fatal("want stored toggle off")
	}
}

func TestCleanupRemovesOldReadOnly(t *testing.T) {
	store := notificationstest.New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(t, store, now)
	user := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		n, _, err := svc.Send(context.Background(), request(user, eligibility.TypeGeneral))
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		ids = append(ids, n.ID)
	}
	old := now.Add(-31 * 24 * time.Hour)
	// Old and read, old but unread, read but recent. Only the first goes.
	store.SetRead(ids[0], true, old)
	store.SetRead(ids[1], false, old)
	store.SetRead(ids[2], true, now.Add(-29*24*time.Hour))

	removed, err := svc.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 || len(store.All()) != 2 {
		t.Fatalf("want 1 removed and 2 kept, got %d removed and %d kept", removed, len(store.All()))
	}
}
