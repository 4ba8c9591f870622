// Package listener provides a Postgres LISTEN/NOTIFY consumer that keeps the
// prediction cache honest. It holds a dedicated pgx connection (not from the
// pool) listening on the `cycle_entries_changed` channel, which a trigger on
// cycle_entries fires for every write. Each event drops the user's cached
// predictions so the next read recomputes.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ovaria/pcos-tracker/internal/cache"
)

const (
	Channel          = "cycle_entries_changed"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// Invalidator drops cached entries by key prefix. *cache.Cache implements it.
type Invalidator interface {
	DeletePrefix(prefix string) int
}

// ChangeEvent is the JSON payload from pg_notify('cycle_entries_changed', ...).
type ChangeEvent struct {
	UserID uuid.UUID `json:"user_id"`
}

// Start opens a dedicated connection and listens on the cycle_entries_changed
// channel. It reconnects automatically on connection loss. Blocks until ctx
// is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, inv Invalidator, logger *zap.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, inv, logger)
		if ctx.Err() != nil {
			logger.Info("Cycle listener stopped (context cancelled)")
			return
		}

		logger.Error("Cycle listener disconnected, reconnecting...",
			zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, inv Invalidator, logger *zap.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("LISTEN %s: %w", Channel, err)
	}
	logger.Info("Cycle listener connected", zap.String("channel", Channel))

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		Handle(notification.Payload, inv, logger)
	}
}

// Handle applies one notification payload. Malformed payloads are logged and
// ignored.
func Handle(payload string, inv Invalidator, logger *zap.Logger) {
	var event ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil || event.UserID == uuid.Nil {
		logger.Warn("Failed to parse cycle change event",
			zap.String("payload", payload), zap.Error(err))
		return
	}

	n := inv.DeletePrefix(cache.PredictionPrefix(event.UserID))
	logger.Debug("Prediction cache invalidated",
		zap.Stringer("user_id", event.UserID), zap.Int("keys", n))
}
