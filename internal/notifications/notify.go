// Package notifications stores user notifications and preferences and is the
// only path by which a notification gets created.
//
// Flow: request → get-or-create preferences → eligibility decision → persist.
// Persisted rows form an outbox; a background dispatch worker publishes due
// rows to the event broker for push delivery.
package notifications

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ovaria/pcos-tracker/internal/eligibility"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// CleanupAge is how long a read notification is kept.
	CleanupAge = 30 * 24 * time.Hour

	dispatchInterval    = 10 * time.Second
	dispatchBatchSize   = 100
	maxDispatchAttempts = 5

	defaultListLimit = 50
	maxListLimit     = 200

	maxTitleLen   = 200
	maxMessageLen = 2000
)

var (
	ErrNotFound           = errors.New("notification not found")
	ErrDuplicate          = errors.New("duplicate notification")
	ErrInvalidRequest     = errors.New("invalid notification request")
	ErrInvalidPreferences = errors.New("invalid notification preferences")
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Priority of a notification.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// ParsePriority validates a wire value. Empty means MEDIUM.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(s), nil
	}
	return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, s)
}

// Notification is a persisted, user-visible notification.
type Notification struct {
	ID           uuid.UUID                    `json:"id"`
	UserID       uuid.UUID                    `json:"userId"`
	Type         eligibility.NotificationType `json:"type"`
	Title        string                       `json:"title"`
	Message      string                       `json:"message"`
	Priority     Priority                     `json:"priority"`
	ActionURL    string                       `json:"actionUrl,omitempty"`
	ScheduledFor *time.Time                   `json:"scheduledFor,omitempty"`
	Metadata     map[string]any               `json:"metadata,omitempty"`
	IsRead       bool                         `json:"isRead"`
	CreatedAt    time.Time                    `json:"createdAt"`

	// DedupKey, when set, makes the insert idempotent.
	DedupKey string `json:"-"`
}

// Request asks for a notification to be created.
type Request struct {
	UserID       uuid.UUID
	Type         eligibility.NotificationType
	Title        string
	Message      string
	Priority     Priority
	ActionURL    string
	ScheduledFor *time.Time
	Metadata     map[string]any
	DedupKey     string
}

func (r Request) validate() error {
	if r.UserID == uuid.Nil {
		return fmt.Errorf("%w: missing user id", ErrInvalidRequest)
	}
	if _, err := eligibility.ParseType(string(r.Type)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.Title == "" || len(r.Title) > maxTitleLen {
		return fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidRequest, maxTitleLen)
	}
	if r.Message == "" || len(r.Message) > maxMessageLen {
		return fmt.Errorf("%w: message must be 1-%d characters", ErrInvalidRequest, maxMessageLen)
	}
	if _, err := ParsePriority(string(r.Priority)); err != nil {
		return err
	}
	return nil
}

// ListOptions filters and pages List.
type ListOptions struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

func (o ListOptions) normalized() ListOptions {
	if o.Limit <= 0 {
		o.Limit = defaultListLimit
	}
	if o.Limit > maxListLimit {
		o.Limit = maxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Event is the payload published for a due notification.
type Event struct {
	NotificationID uuid.UUID                    `json:"notification_id"`
	UserID         uuid.UUID                    `json:"user_id"`
	Type           eligibility.NotificationType `json:"type"`
	Title          string                       `json:"title"`
	Message        string                       `json:"message"`
	Priority       Priority                     `json:"priority"`
	ActionURL      string                       `json:"action_url,omitempty"`
	Metadata       map[string]any               `json:"metadata,omitempty"`
	CreatedAt      time.Time                    `json:"created_at"`
}

func eventFor(n Notification) Event {
	return Event{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
		Title:          n.Title,
		Message:        n.Message,
		Priority:       n.Priority,
		ActionURL:      n.ActionURL,
		Metadata:       n.Metadata,
		CreatedAt:      n.CreatedAt,
	}
}
