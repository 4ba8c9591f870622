package reminders

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ovaria/pcos-tracker/internal/eligibility"
	"github.com/ovaria/pcos-tracker/internal/notifications"
	"github.com/ovaria/pcos-tracker/internal/prediction"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// regular gives a 28-day history whose next cycle lands on 2025-03-26.
func regular() []time.Time {
	return []time.Time{date(2025, 2, 26), date(2025, 1, 29), date(2025, 1, 1)}
}

func types(reqs []notifications.Request) []eligibility.NotificationType {
	out := make([]eligibility.NotificationType, len(reqs))
	for i, r := range reqs {
		out[i] = r.Type
	}
	return out
}

func TestPlan(t *testing.T) {
	user := uuid.New()
	tests := []struct {
		name  string
		today time.Time
		rules func(*Rules)
		want  []eligibility.NotificationType
	}{
		{
			name:  "three days out",
			today: date(2025, 3, 23),
			want:  []eligibility.NotificationType{eligibility.TypeCycleReminder, eligibility.TypeDailyLogReminder},
		},
		{
			name:  "predicted day",
			today: date(2025, 3, 26),
			want:  []eligibility.NotificationType{eligibility.TypeCycleReminder, eligibility.TypeDailyLogReminder},
		},
		{
			name:  "pms window start",
			today: date(2025, 3, 16),
			want:  []eligibility.NotificationType{eligibility.TypeHealthMilestone, eligibility.TypeDailyLogReminder},
		},
		{
			name:  "quiet day",
			today: date(2025, 3, 20),
			want:  []eligibility.NotificationType{eligibility.TypeDailyLogReminder},
		},
		{
			name:  "daily log off",
			today: date(2025, 3, 20),
			rules: func(r *Rules) { r.DailyLog = false },
			want:  []eligibility.NotificationType{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := DefaultRules()
			if tt.rules != nil {
				tt.rules(&rules)
			}
			result := prediction.Predict(regular(), tt.today)
			got := types(Plan(user, result, tt.today, rules))
			if len(got) != len(tt.want) {
				t.Fatalf("want %v, got %v", tt.want, got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("want %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestPlanInsufficientDataOnlyDailyLog(t *testing.T) {
	user := uuid.New()
	today := date(2025, 3, 23)
	result := prediction.Predict([]time.Time{date(2025, 2, 26)}, today)

	reqs := Plan(user, result, today, DefaultRules())
	if len(reqs) != 1 || reqs[0].Type != eligibility.TypeDailyLogReminder {
		t.Fatalf("want only the daily log reminder, got %v", types(reqs))
	}
}

func TestPlanSetsDedupKeys(t *testing.T) {
	user := uuid.New()
	today := date(2025, 3, 25)
	reqs := Plan(user, prediction.Predict(regular(), today), today, DefaultRules())
	if len(reqs) == 0 {
		t.Fatal("want reminders")
	}
	for _, r := range reqs {
		want := DedupKey(user, r.Type, today)
		if r.DedupKey != want {
			t.Fatalf("want key %q, got %q", want, r.DedupKey)
		}
	}
	if reqs[0].Priority != notifications.PriorityHigh {
		t.Fatalf("want HIGH priority the day before, got %s", reqs[0].Priority)
	}
}

func TestRulesValidate(t *testing.T) {
	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("default rules invalid: %v", err)
	}
	bad := DefaultRules()
	bad.CycleLeadDays = []int{-1}
	if bad.Validate() == nil {
		t.Fatal("want error for negative lead day")
	}
	bad = DefaultRules()
	bad.LocalHour = 24
	if bad.Validate() == nil {
		t.Fatal("want error for hour 24")
	}
}
