// Package db provides a pgxpool-based connection pool with prepared statement
// registration, schema migrations and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ovaria/pcos-tracker/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Statements reference tables, so a fresh database must be migrated
	// before the pool is opened.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

const notificationColumns = `id, user_id, type, title, message, priority, action_url,
	scheduled_for, metadata, is_read, created_at`

// statements are prepared on every new connection. Hot read paths only;
// writes use inline SQL.
var statements = map[string]string{
	// Health
	"health_check": "SELECT 1",

	// Preferences
	"get_preferences": `SELECT user_id, enable_cycle_reminders, enable_medication_reminders,
		enable_symptom_reminders, enable_appointment_reminders, enable_milestones,
		enable_risk_updates, enable_daily_log_reminders,
		quiet_hours_enabled, quiet_hours_start, quiet_hours_end, timezone,
		created_at, updated_at
		FROM notification_preferences WHERE user_id = $1`,
	"insert_default_preferences": `INSERT INTO notification_preferences (user_id)
		VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,

	// Notifications
	"list_notifications": `SELECT ` + notificationColumns + ` FROM notifications
		WHERE user_id = $1 AND (NOT $2::boolean OR is_read = false)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
	"unread_count": "SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = false",

	// Reminders
	"list_user_ids": `SELECT user_id FROM notification_preferences
		UNION SELECT DISTINCT user_id FROM cycle_entries`,

	// Cycles
	"list_cycle_entries": `SELECT id, user_id, start_date, end_date, created_at
		FROM cycle_entries WHERE user_id = $1 ORDER BY start_date DESC`,
}

func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range statements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
