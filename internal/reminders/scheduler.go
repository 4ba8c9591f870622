package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ovaria/pcos-tracker/internal/metrics"
)

// Scheduler fires Runner.RunOnce on a cron spec.
type Scheduler struct {
	cron    *cron.Cron
	runner  *Runner
	timeout time.Duration
	logger  *zap.Logger
}

// NewScheduler parses spec (standard five-field cron, UTC) and registers the
// reminder job. Overlapping ticks are skipped while a run is in progress.
func NewScheduler(runner *Runner, spec string, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		runner:  runner,
		timeout: timeout,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("schedule reminders %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the scheduler until ctx is cancelled, then waits for a running
// job to finish. Intended to be called with `go`.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Reminder scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("Reminder scheduler stopped")
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result := s.runner.RunOnce(ctx, time.Now())
	status := "ok"
	if len(result.Errors) > 0 {
		status = "partial"
		for _, e := range result.Errors {
			s.logger.Warn("reminder error", zap.String("error", e))
		}
	}
	metrics.RecordReminderRun(status)
	s.logger.Info("Reminder run complete",
		zap.String("summary", result.Summary()),
		zap.Duration("duration", result.Duration))
}
