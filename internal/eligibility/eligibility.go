// Package eligibility decides whether a notification may be sent to a user
// right now. It is a pure function of the user's stored preferences, the
// notification type and the current time: no I/O, no shared state.
//
// Every notification-creation path goes through this package. Callers must
// get-or-create the preferences record first; a missing record is a caller
// bug and is not checked for here.
package eligibility

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Notification types and toggles
// --------------------------------------------------------------------------

// NotificationType is the closed set of notification kinds.
type NotificationType string

const (
	TypeCycleReminder      NotificationType = "CYCLE_REMINDER"
	TypeMedicationReminder NotificationType = "MEDICATION_REMINDER"
	TypeSymptomLogReminder NotificationType = "SYMPTOM_LOG_REMINDER"
	TypeAppointmentPrep    NotificationType = "APPOINTMENT_PREP"
	TypeRiskUpdate         NotificationType = "RISK_UPDATE"
	TypeHealthMilestone    NotificationType = "HEALTH_MILESTONE"
	TypeDailyLogReminder   NotificationType = "DAILY_LOG_REMINDER"
	TypeGeneral            NotificationType = "GENERAL"
)

// AllTypes lists every notification type in declaration order.
var AllTypes = []NotificationType{
	TypeCycleReminder,
	TypeMedicationReminder,
	TypeSymptomLogReminder,
	TypeAppointmentPrep,
	TypeRiskUpdate,
	TypeHealthMilestone,
	TypeDailyLogReminder,
	TypeGeneral,
}

// ParseType validates a wire value.
func ParseType(s string) (NotificationType, error) {
	for _, t := range AllTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown notification type %q", s)
}

// Toggle names one boolean preference field.
type Toggle int

const (
	ToggleNone Toggle = iota
	ToggleCycleReminders
	ToggleMedicationReminders
	ToggleSymptomReminders
	ToggleAppointmentReminders
	ToggleMilestones
	ToggleRiskUpdates
	ToggleDailyLogReminders
)

func (t Toggle) String() string {
	switch t {
	case ToggleCycleReminders:
		return "enableCycleReminders"
	case ToggleMedicationReminders:
		return "enableMedicationReminders"
	case ToggleSymptomReminders:
		return "enableSymptomReminders"
	case ToggleAppointmentReminders:
		return "enableAppointmentReminders"
	case ToggleMilestones:
		return "enableMilestones"
	case ToggleRiskUpdates:
		return "enableRiskUpdates"
	case ToggleDailyLogReminders:
		return "enableDailyLogReminders"
	default:
		return "none"
	}
}

// ToggleFor maps a notification type to the preference field that gates it.
// GENERAL (and anything unknown) has no toggle.
func ToggleFor(t NotificationType) Toggle {
	switch t {
	case TypeCycleReminder:
		return ToggleCycleReminders
	case TypeMedicationReminder:
		return ToggleMedicationReminders
	case TypeSymptomLogReminder:
		return ToggleSymptomReminders
	case TypeAppointmentPrep:
		return ToggleAppointmentReminders
	case TypeRiskUpdate:
		return ToggleRiskUpdates
	case TypeHealthMilestone:
		return ToggleMilestones
	case TypeDailyLogReminder:
		return ToggleDailyLogReminders
	default:
		return ToggleNone
	}
}

// --------------------------------------------------------------------------
// Preferences
// --------------------------------------------------------------------------

// Preferences is a user's stored notification settings. One per user.
type Preferences struct {
	UserID uuid.UUID `json:"userId"`

	EnableCycleReminders       bool `json:"enableCycleReminders"`
	EnableMedicationReminders  bool `json:"enableMedicationReminders"`
	EnableSymptomReminders     bool `json:"enableSymptomReminders"`
	EnableAppointmentReminders bool `json:"enableAppointmentReminders"`
	EnableMilestones           bool `json:"enableMilestones"`
	EnableRiskUpdates          bool `json:"enableRiskUpdates"`
	EnableDailyLogReminders    bool `json:"enableDailyLogReminders"`

	QuietHoursEnabled bool   `json:"quietHoursEnabled"`
	QuietHoursStart   string `json:"quietHoursStart"`
	QuietHoursEnd     string `json:"quietHoursEnd"`
	Timezone          string `json:"timezone"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Defaults used when a preferences record is created lazily.
const (
	DefaultQuietHoursStart = "22:00"
	DefaultQuietHoursEnd   = "07:00"
	DefaultTimezone        = "UTC"
)

// DefaultPreferences returns the record created on first access: every
// toggle on, quiet hours off.
func DefaultPreferences(userID uuid.UUID) Preferences {
	return Preferences{
		UserID:                     userID,
		EnableCycleReminders:       true,
		EnableMedicationReminders:  true,
		EnableSymptomReminders:     true,
		EnableAppointmentReminders: true,
		EnableMilestones:           true,
		EnableRiskUpdates:          true,
		EnableDailyLogReminders:    true,
		QuietHoursEnabled:          false,
		QuietHoursStart:            DefaultQuietHoursStart,
		QuietHoursEnd:              DefaultQuietHoursEnd,
		Timezone:                   DefaultTimezone,
	}
}

// Enabled reports the value of a toggle. ToggleNone is always enabled.
func (p Preferences) Enabled(t Toggle) bool {
	switch t {
	case ToggleCycleReminders:
		return p.EnableCycleReminders
	case ToggleMedicationReminders:
		return p.EnableMedicationReminders
	case ToggleSymptomReminders:
		return p.EnableSymptomReminders
	case ToggleAppointmentReminders:
		return p.EnableAppointmentReminders
	case ToggleMilestones:
		return p.EnableMilestones
	case ToggleRiskUpdates:
		return p.EnableRiskUpdates
	case ToggleDailyLogReminders:
		return p.EnableDailyLogReminders
	default:
		return true
	}
}

// Location resolves the preferences timezone, falling back to UTC.
func (p Preferences) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks the quiet-hours clocks and the timezone.
func (p Preferences) Validate() error {
	if _, err := ParseClock(p.QuietHoursStart); err != nil {
		return fmt.Errorf("quietHoursStart: %w", err)
	}
	if _, err := ParseClock(p.QuietHoursEnd); err != nil {
		return fmt.Errorf("quietHoursEnd: %w", err)
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	return nil
}
