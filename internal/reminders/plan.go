// Package reminders is the periodic trigger that turns cycle predictions into
// reminder notifications. It calls the eligibility-gated notifications
// Service once per (user, type, day) and claims each key before sending so
// overlapping runs and instances do not double-send.
package reminders

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ovaria/pcos-tracker/internal/eligibility"
	"github.com/ovaria/pcos-tracker/internal/notifications"
	"github.com/ovaria/pcos-tracker/internal/prediction"
)

// Rules controls which reminders are planned.
type Rules struct {
	// CycleLeadDays lists the days-before-next-cycle on which a cycle
	// reminder goes out. 0 means the predicted day itself.
	CycleLeadDays []int `yaml:"cycle_lead_days"`
	PMSNotice     bool  `yaml:"pms_notice"`
	DailyLog      bool  `yaml:"daily_log"`
	// LocalHour is the hour of the user's day at which reminders go out.
	// -1 sends on whichever run first sees the day.
	LocalHour int `yaml:"local_hour"`
}

// DefaultRules returns the built-in reminder plan.
func DefaultRules() Rules {
	return Rules{
		CycleLeadDays: []int{3, 1, 0},
		PMSNotice:     true,
		DailyLog:      true,
		LocalHour:     9,
	}
}

// Validate rejects negative lead days and out-of-range hours.
func (r Rules) Validate() error {
	if r.LocalHour < -1 || r.LocalHour > 23 {
		return fmt.Errorf("local hour must be -1..23, got %d", r.LocalHour)
	}
	for _, d := range r.CycleLeadDays {
		if d < 0 {
			return fmt.Errorf("cycle lead day must not be negative, got %d", d)
		}
	}
	return nil
}

// DedupKey identifies one reminder of a type for a user on a local day.
func DedupKey(userID uuid.UUID, t eligibility.NotificationType, day time.Time) string {
	return fmt.Sprintf("reminder:%s:%s:%s", userID, t, day.Format(time.DateOnly))
}

// Plan lists the reminders due for a user on today (a local calendar date).
// It is pure; sending and deduplication happen in the Runner.
func Plan(userID uuid.UUID, result prediction.Result, today time.Time, rules Rules) []notifications.Request {
	var out []notifications.Request

	if !result.Insufficient() {
		p := result.Prediction
		for _, lead := range rules.CycleLeadDays {
			if p.DaysUntilNextCycle != lead {
				continue
			}
			out = append(out, notifications.Request{
				UserID:    userID,
				Type:      eligibility.TypeCycleReminder,
				Title:     "Cycle reminder",
				Message:   cycleMessage(lead),
				Priority:  cyclePriority(lead),
				ActionURL: "/cycles",
				Metadata: map[string]any{
					"nextCycleDate": p.NextCycleDate.Format(time.DateOnly),
					"confidence":    string(p.Confidence),
					"daysUntil":     lead,
				},
			})
			break
		}

		if rules.PMSNotice && sameDay(p.PMSWindowStart, today) {
			out = append(out, notifications.Request{
				UserID:    userID,
				Type:      eligibility.TypeHealthMilestone,
				Title:     "PMS window starting",
				Message:   "Your PMS window is expected to start today. Logging symptoms helps spot patterns.",
				Priority:  notifications.PriorityLow,
				ActionURL: "/symptoms",
				Metadata: map[string]any{
					"pmsWindowStart": p.PMSWindowStart.Format(time.DateOnly),
				},
			})
		}
	}

	if rules.DailyLog {
		out = append(out, notifications.Request{
			UserID:    userID,
			Type:      eligibility.TypeDailyLogReminder,
			Title:     "Daily check-in",
			Message:   "Take a moment to log how you're feeling today.",
			Priority:  notifications.PriorityLow,
			ActionURL: "/daily-log",
		})
	}

	for i := range out {
		out[i].DedupKey = DedupKey(userID, out[i].Type, today)
	}
	return out
}

func cycleMessage(lead int) string {
	switch lead {
	case 0:
		return "Your next cycle is predicted to start today."
	case 1:
		return "Your next cycle is predicted to start tomorrow."
	default:
		return fmt.Sprintf("Your next cycle is predicted to start in %d days.", lead)
	}
}

func cyclePriority(lead int) notifications.Priority {
	if lead <= 1 {
		return notifications.PriorityHigh
	}
	return notifications.PriorityMedium
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
