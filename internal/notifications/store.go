package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ovaria/pcos-tracker/internal/eligibility"
)

// Store is the persistence the Service needs.
type Store interface {
	// GetPreferences returns the user's preferences, creating the default
	// record on first access.
	GetPreferences(ctx context.Context, userID uuid.UUID) (eligibility.Preferences, error)
	SavePreferences(ctx context.Context, p *eligibility.Preferences) error

	// Insert returns ErrDuplicate when DedupKey is already taken.
	Insert(ctx context.Context, n *Notification) error
	List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]Notification, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Outbox is the persistence the dispatch worker needs.
type Outbox interface {
	// ClaimDue marks up to limit due, undispatched rows as dispatched and
	// returns them. Concurrent callers never receive the same row.
	ClaimDue(ctx context.Context, limit int) ([]Notification, error)
	// MarkFailed puts a claimed row back for another attempt.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// PGStore implements Store and Outbox on Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps a pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const notificationColumns = `id, user_id, type, title, message, priority, action_url,
	scheduled_for, metadata, is_read, created_at`

// --------------------------------------------------------------------------
// Preferences
// --------------------------------------------------------------------------

func (s *PGStore) GetPreferences(ctx context.Context, userID uuid.UUID) (eligibility.Preferences, error) {
	p, err := s.selectPreferences(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return eligibility.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}

	// Column defaults match eligibility.DefaultPreferences. ON CONFLICT keeps
	// concurrent first reads down to one row.
	if _, err := s.pool.Exec(ctx, "insert_default_preferences", userID); err != nil {
		return eligibility.Preferences{}, fmt.Errorf("create preferences: %w", err)
	}
	p, err = s.selectPreferences(ctx, userID)
	if err != nil {
		return eligibility.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}
	return p, nil
}

func (s *PGStore) selectPreferences(ctx context.Context, userID uuid.UUID) (eligibility.Preferences, error) {
	var p eligibility.Preferences
	err := s.pool.QueryRow(ctx, "get_preferences", userID).Scan(
		&p.UserID,
		&p.EnableCycleReminders,
		&p.EnableMedicationReminders,
		&p.EnableSymptomReminders,
		&p.EnableAppointmentReminders,
		&p.EnableMilestones,
		&p.EnableRiskUpdates,
		&p.EnableDailyLogReminders,
		&p.QuietHoursEnabled,
		&p.QuietHoursStart,
		&p.QuietHoursEnd,
		&p.Timezone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func (s *PGStore) SavePreferences(ctx context.Context, p *eligibility.Preferences) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notification_preferences (
			user_id, enable_cycle_reminders, enable_medication_reminders,
			enable_symptom_reminders, enable_appointment_reminders, enable_milestones,
			enable_risk_updates, enable_daily_log_reminders,
			quiet_hours_enabled, quiet_hours_start, quiet_hours_end, timezone
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (user_id) DO UPDATE SET
			enable_cycle_reminders       = EXCLUDED.enable_cycle_reminders,
			enable_medication_reminders  = EXCLUDED.enable_medication_reminders,
			enable_symptom_reminders     = EXCLUDED.enable_symptom_reminders,
			enable_appointment_reminders = EXCLUDED.enable_appointment_reminders,
			enable_milestones            = EXCLUDED.enable_milestones,
			enable_risk_updates          = EXCLUDED.enable_risk_updates,
			enable_daily_log_reminders   = EXCLUDED.enable_daily_log_reminders,
			quiet_hours_enabled          = EXCLUDED.quiet_hours_enabled,
			quiet_hours_start            = EXCLUDED.quiet_hours_start,
			quiet_hours_end              = EXCLUDED.quiet_hours_end,
			timezone                     = EXCLUDED.timezone,
			updated_at                   = NOW()
		RETURNING created_at, updated_at`,
		p.UserID,
		p.EnableCycleReminders,
		p.EnableMedicationReminders,
		p.EnableSymptomReminders,
		p.EnableAppointmentReminders,
		p.EnableMilestones,
		p.EnableRiskUpdates,
		p.EnableDailyLogReminders,
		p.QuietHoursEnabled,
		p.QuietHoursStart,
		p.QuietHoursEnd,
		p.Timezone,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Notifications
// --------------------------------------------------------------------------

func (s *PGStore) Insert(ctx context.Context, n *Notification) error {
	metadata, err := encodeMetadata(n.Metadata)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (
			id, user_id, type, title, message, priority, action_url,
			scheduled_for, metadata, is_read, created_at, dedup_key
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (dedup_key) WHERE dedup_key IS NOT NULL DO NOTHING`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message, string(n.Priority),
		nullString(n.ActionURL), n.ScheduledFor, metadata, n.IsRead, n.CreatedAt,
		nullString(n.DedupKey),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]Notification, error) {
	opts = opts.normalized()
	rows, err := s.pool.Query(ctx, "list_notifications", userID, opts.UnreadOnly, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PGStore) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "unread_count", userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}

func (s *PGStore) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE user_id = $1 AND is_read = false`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM notifications WHERE is_read = true AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListUserIDs returns every user with preferences or cycle entries.
func (s *PGStore) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, "list_user_ids")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --------------------------------------------------------------------------
// Outbox
// --------------------------------------------------------------------------

func (s *PGStore) ClaimDue(ctx context.Context, limit int) ([]Notification, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE notifications
		SET dispatched_at = NOW(), dispatch_attempts = dispatch_attempts + 1
		WHERE id IN (
			SELECT id FROM notifications
			WHERE dispatched_at IS NULL
			  AND dispatch_attempts < $2
			  AND COALESCE(scheduled_for, created_at) <= NOW()
			ORDER BY COALESCE(scheduled_for, created_at)
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+notificationColumns,
		limit, maxDispatchAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due notifications: %w", err)
	}
	defer rows.Close()

	var claimed []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, n)
	}
	return claimed, rows.Err()
}

func (s *PGStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications SET dispatched_at = NULL, last_error = $2
		WHERE id = $1`, id, reason)
	return err
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func scanNotification(row pgx.Row) (Notification, error) {
	var (
		n         Notification
		typ       string
		priority  string
		actionURL *string
		metadata  []byte
	)
	err := row.Scan(
		&n.ID, &n.UserID, &typ, &n.Title, &n.Message, &priority, &actionURL,
		&n.ScheduledFor, &metadata, &n.IsRead, &n.CreatedAt,
	)
	if err != nil {
		return Notification{}, fmt.Errorf("scan notification: %w", err)
	}
	n.Type = eligibility.NotificationType(typ)
	n.Priority = Priority(priority)
	if actionURL != nil {
		n.ActionURL = *actionURL
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return Notification{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return n, nil
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
