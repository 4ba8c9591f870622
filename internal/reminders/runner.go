package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaria/pcos-tracker/internal/cycles"
	"github.com/ovaria/pcos-tracker/internal/dedup"
	"github.com/ovaria/pcos-tracker/internal/eligibility"
	"github.com/ovaria/pcos-tracker/internal/metrics"
	"github.com/ovaria/pcos-tracker/internal/notifications"
	"github.com/ovaria/pcos-tracker/internal/prediction"
)

// claimTTL outlives a local day in any timezone.
const claimTTL = 48 * time.Hour

// UserLister enumerates the users to evaluate.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Sender is the eligibility-gated notification path. *notifications.Service
// implements it.
type Sender interface {
	Preferences(ctx context.Context, userID uuid.UUID) (eligibility.Preferences, error)
	Check(ctx context.Context, userID uuid.UUID, t eligibility.NotificationType, at time.Time) (eligibility.Decision, error)
	Send(ctx context.Context, req notifications.Request) (*notifications.Notification, eligibility.Decision, error)
}

// Runner evaluates every user once per call.
type Runner struct {
	users     UserLister
	cycles    cycles.Store
	predictor *prediction.Predictor
	sender    Sender
	claimer   dedup.Claimer
	rules     Rules
	workers   int
	logger    *zap.Logger
}

// NewRunner wires a Runner. workers below 1 means 1.
func NewRunner(
	users UserLister,
	cycleStore cycles.Store,
	predictor *prediction.Predictor,
	sender Sender,
	claimer dedup.Claimer,
	rules Rules,
	workers int,
	logger *zap.Logger,
) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		users:     users,
		cycles:    cycleStore,
		predictor: predictor,
		sender:    sender,
		claimer:   claimer,
		rules:     rules,
		workers:   workers,
		logger:    logger,
	}
}

// RunResult tracks counts and errors from one run.
type RunResult struct {
	Users      int
	Evaluated  int
	Planned    int
	Sent       int
	Suppressed int
	Skipped    int
	Errors     []string
	Duration   time.Duration
}

// Summary returns a human-readable summary of the run.
func (r *RunResult) Summary() string {
	return fmt.Sprintf(
		"users=%d evaluated=%d planned=%d sent=%d suppressed=%d skipped=%d errors=%d",
		r.Users, r.Evaluated, r.Planned, r.Sent, r.Suppressed, r.Skipped, len(r.Errors),
	)
}

func (r *RunResult) add(other RunResult) {
	r.Evaluated += other.Evaluated
	r.Planned += other.Planned
	r.Sent += other.Sent
	r.Suppressed += other.Suppressed
	r.Skipped += other.Skipped
	r.Errors = append(r.Errors, other.Errors...)
}

// RunOnce lists users and processes them on a worker pool.
func (r *Runner) RunOnce(ctx context.Context, now time.Time) RunResult {
	start := time.Now()
	var result RunResult

	ids, err := r.users.ListUserIDs(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.Duration = time.Since(start)
		return result
	}
	result.Users = len(ids)
	if len(ids) == 0 {
		result.Duration = time.Since(start)
		return result
	}

	workers := r.workers
	if workers > len(ids) {
		workers = len(ids)
	}

	ch := make(chan uuid.UUID, len(ids))
	for _, id := range ids {
		ch <- id
	}
	close(ch)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ch {
				if ctx.Err() != nil {
					return
				}
				userResult := r.processUser(ctx, id, now)
				mu.Lock()
				result.add(userResult)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) processUser(ctx context.Context, userID uuid.UUID, now time.Time) RunResult {
	var res RunResult

	prefs, err := r.sender.Preferences(ctx, userID)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("user %s: %v", userID, err))
		return res
	}
	local := now.In(prefs.Location())
	if r.rules.LocalHour >= 0 && local.Hour() != r.rules.LocalHour {
		return res
	}
	res.Evaluated = 1
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	entries, err := r.cycles.List(ctx, userID)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("user %s: %v", userID, err))
		return res
	}
	result := r.predictor.Predict(cycles.StartDates(entries), today)
	metrics.RecordPrediction(result.Outcome.String())

	for _, req := range Plan(userID, result, today, r.rules) {
		res.Planned++

		// Check before claiming: a reminder held back now stays claimable
		// for a later run the same day.
		decision, err := r.sender.Check(ctx, userID, req.Type, now)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("check %s: %v", req.DedupKey, err))
			continue
		}
		if !decision.Allowed {
			res.Suppressed++
			r.logSuppressed(userID, req.Type, decision)
			continue
		}

		ok, err := r.claimer.Claim(ctx, req.DedupKey, claimTTL)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("claim %s: %v", req.DedupKey, err))
			continue
		}
		if !ok {
			res.Skipped++
			continue
		}

		n, decision, err := r.sender.Send(ctx, req)
		switch {
		case errors.Is(err, notifications.ErrDuplicate):
			res.Skipped++
		case err != nil:
			r.release(ctx, req.DedupKey)
			res.Errors = append(res.Errors, fmt.Sprintf("send %s: %v", req.DedupKey, err))
		case n == nil:
			r.release(ctx, req.DedupKey)
			res.Suppressed++
			r.logSuppressed(userID, req.Type, decision)
		default:
			res.Sent++
		}
	}
	return res
}

func (r *Runner) release(ctx context.Context, key string) {
	if err := r.claimer.Release(ctx, key); err != nil {
		r.logger.Warn("Failed to release reminder claim", zap.String("key", key), zap.Error(err))
	}
}

func (r *Runner) logSuppressed(userID uuid.UUID, t eligibility.NotificationType, d eligibility.Decision) {
	r.logger.Debug("Reminder suppressed",
		zap.Stringer("user_id", userID),
		zap.String("type", string(t)),
		zap.String("reason", string(d.Reason)))
}
