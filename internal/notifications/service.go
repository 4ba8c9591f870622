package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaria/pcos-tracker/internal/eligibility"
	"github.com/ovaria/pcos-tracker/internal/metrics"
)

// Service creates notifications behind the eligibility check and manages
// preferences. It is the only code that calls Store.Insert.
type Service struct {
	store     Store
	evaluator eligibility.Evaluator
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a Service. policy selects the quiet-window semantics.
func NewService(store Store, policy eligibility.Policy, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		evaluator: eligibility.Evaluator{Policy: policy},
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send creates a notification if the user's preferences allow it at delivery
// time: ScheduledFor when set, otherwise now. A suppressed notification
// returns a nil Notification, the Decision and no error. ErrDuplicate means
// the DedupKey was already used.
func (s *Service) Send(ctx context.Context, req Request) (*Notification, eligibility.Decision, error) {
	if err := req.validate(); err != nil {
		return nil, eligibility.Decision{}, err
	}

	var at time.Time
	if req.ScheduledFor != nil {
		at = *req.ScheduledFor
	}
	decision, err := s.Check(ctx, req.UserID, req.Type, at)
	if err != nil {
		return nil, decision, err
	}
	if !decision.Allowed {
		s.logger.Debug("Notification suppressed",
			zap.Stringer("user_id", req.UserID),
			zap.String("type", string(req.Type)),
			zap.String("reason", string(decision.Reason)))
		return nil, decision, nil
	}

	priority, _ := ParsePriority(string(req.Priority))
	n := &Notification{
		ID:           uuid.New(),
		UserID:       req.UserID,
		Type:         req.Type,
		Title:        req.Title,
		Message:      req.Message,
		Priority:     priority,
		ActionURL:    req.ActionURL,
		ScheduledFor: req.ScheduledFor,
		Metadata:     req.Metadata,
		CreatedAt:    s.now().UTC(),
		DedupKey:     req.DedupKey,
	}
	if err := s.store.Insert(ctx, n); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, decision, err
		}
		return nil, decision, fmt.Errorf("send %s: %w", req.Type, err)
	}

	s.logger.Info("Notification created",
		zap.Stringer("id", n.ID),
		zap.Stringer("user_id", n.UserID),
		zap.String("type", string(n.Type)))
	return n, decision, nil
}

// Check runs the eligibility decision for a user without creating anything.
// A zero at means now. The time is converted to the user's timezone first.
func (s *Service) Check(ctx context.Context, userID uuid.UUID, t eligibility.NotificationType, at time.Time) (eligibility.Decision, error) {
	prefs, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		return eligibility.Decision{}, fmt.Errorf("load preferences: %w", err)
	}
	if at.IsZero() {
		at = s.now()
	}
	decision := s.evaluator.Decide(prefs, t, at.In(prefs.Location()))
	metrics.RecordDecision(string(t), string(decision.Reason))
	return decision, nil
}

// Preferences returns the user's preferences, creating defaults on first use.
func (s *Service) Preferences(ctx context.Context, userID uuid.UUID) (eligibility.Preferences, error) {
	return s.store.GetPreferences(ctx, userID)
}

// UpdatePreferences validates and stores a full preferences record.
func (s *Service) UpdatePreferences(ctx context.Context, p eligibility.Preferences) (eligibility.Preferences, error) {
	if p.Timezone == "" {
		p.Timezone = eligibility.DefaultTimezone
	}
	if err := p.Validate(); err != nil {
		return eligibility.Preferences{}, fmt.Errorf("%w: %v", ErrInvalidPreferences, err)
	}
	if err := s.store.SavePreferences(ctx, &p); err != nil {
		return eligibility.Preferences{}, err
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]Notification, error) {
	return s.store.List(ctx, userID, opts.normalized())
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.UnreadCount(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.Delete(ctx, userID, id)
}

// Cleanup removes read notifications older than CleanupAge.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-CleanupAge)
	n, err := s.store.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Cleanup: purged read notifications",
			zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
