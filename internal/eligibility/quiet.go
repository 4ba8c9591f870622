package eligibility

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// --------------------------------------------------------------------------
// Quiet-window policies
// --------------------------------------------------------------------------

// Policy selects how a quiet window is interpreted.
type Policy string

const (
	// PolicyOvernightSafe wraps midnight only when start > end. A window
	// with start <= end is an ordinary same-day range. Bounds are inclusive.
	PolicyOvernightSafe Policy = "overnight_safe"

	// PolicyLegacy suppresses when t >= start || t <= end for every window,
	// so any start <= end window covers the whole day.
	PolicyLegacy Policy = "legacy"
)

// ParsePolicy validates a policy name. Empty means the default.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyOvernightSafe:
		return PolicyOvernightSafe, nil
	case PolicyLegacy:
		return PolicyLegacy, nil
	}
	return "", fmt.Errorf("unknown quiet hours policy %q", s)
}

// InQuietWindow reports whether cur falls inside [start, end] under policy.
// All values are minutes since midnight.
func InQuietWindow(policy Policy, cur, start, end int) bool {
	if policy == PolicyLegacy || start > end {
		return cur >= start || cur <= end
	}
	return cur >= start && cur <= end
}

// --------------------------------------------------------------------------
// Decisions
// --------------------------------------------------------------------------

// Reason explains a decision.
type Reason string

const (
	ReasonAllowed      Reason = "allowed"
	ReasonTypeDisabled Reason = "type_disabled"
	ReasonQuietHours   Reason = "quiet_hours"
)

// Decision is the outcome of an eligibility check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
	Toggle  string `json:"toggle,omitempty"`
}

// Evaluator applies the eligibility rules under a quiet-window policy.
// The zero value uses PolicyOvernightSafe.
type Evaluator struct {
	Policy Policy
}

// Decide runs the rules in order: type toggle, quiet hours switch, quiet
// window. now is read in its own location; convert it to the user's zone
// before calling.
func (e Evaluator) Decide(p Preferences, t NotificationType, now time.Time) Decision {
	toggle := ToggleFor(t)
	if !p.Enabled(toggle) {
		return Decision{Allowed: false, Reason: ReasonTypeDisabled, Toggle: toggle.String()}
	}
	if !p.QuietHoursEnabled {
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}

	start, err := ParseClock(p.QuietHoursStart)
	if err != nil {
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}
	end, err := ParseClock(p.QuietHoursEnd)
	if err != nil {
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}

	policy := e.Policy
	if policy == "" {
		policy = PolicyOvernightSafe
	}
	cur := now.Hour()*60 + now.Minute()
	if InQuietWindow(policy, cur, start, end) {
		return Decision{Allowed: false, Reason: ReasonQuietHours}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

// Eligible is Decide reduced to a bool.
func (e Evaluator) Eligible(p Preferences, t NotificationType, now time.Time) bool {
	return e.Decide(p, t, now).Allowed
}

// IsEligible reports whether a notification of type t may be sent at now,
// using the default overnight-safe policy.
func IsEligible(p Preferences, t NotificationType, now time.Time) bool {
	return Evaluator{}.Eligible(p, t, now)
}
