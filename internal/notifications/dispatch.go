package notifications

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ovaria/pcos-tracker/internal/events"
	"github.com/ovaria/pcos-tracker/internal/metrics"
)

// StartWorker runs a background loop that publishes due notifications.
// Blocks until ctx is cancelled. Intended to be called with `go`.
func StartWorker(ctx context.Context, outbox Outbox, publisher events.Publisher, logger *zap.Logger) {
	logger.Info("Notification dispatch worker started", zap.Duration("interval", dispatchInterval))
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sent, failed, err := DispatchBatch(ctx, outbox, publisher, logger)
			if err != nil {
				logger.Error("dispatch error", zap.Error(err))
			} else if sent+failed > 0 {
				logger.Info("dispatch batch", zap.Int("sent", sent), zap.Int("failed", failed))
			}
		case <-ctx.Done():
			logger.Info("Notification dispatch worker stopped")
			return
		}
	}
}

// DispatchBatch claims one batch of due notifications and publishes each as
// a notification.created event. Failed publishes go back to the outbox.
func DispatchBatch(ctx context.Context, outbox Outbox, publisher events.Publisher, logger *zap.Logger) (sent, failed int, err error) {
	claimed, err := outbox.ClaimDue(ctx, dispatchBatchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, n := range claimed {
		if pubErr := publisher.Publish(ctx, events.RoutingNotificationCreated, eventFor(n)); pubErr != nil {
			logger.Warn("publish failed", zap.Stringer("notification_id", n.ID), zap.Error(pubErr))
			if markErr := outbox.MarkFailed(ctx, n.ID, pubErr.Error()); markErr != nil {
				logger.Warn("mark failed", zap.Stringer("notification_id", n.ID), zap.Error(markErr))
			}
			metrics.RecordDispatch("failed")
			failed++
			continue
		}
		metrics.RecordDispatch("published")
		sent++
	}
	return sent, failed, nil
}
