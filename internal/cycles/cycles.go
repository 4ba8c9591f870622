// Package cycles stores logged menstrual cycle entries and feeds their start
// dates to the predictor.
package cycles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound     = errors.New("cycle entry not found")
	ErrInvalidEntry = errors.New("invalid cycle entry")
)

// Entry is one logged cycle. Dates are calendar dates at UTC midnight.
type Entry struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"userId"`
	StartDate time.Time  `json:"startDate"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Validate checks required fields and date order.
func (e Entry) Validate() error {
	if e.UserID == uuid.Nil {
		return fmt.Errorf("%w: missing user id", ErrInvalidEntry)
	}
	if e.StartDate.IsZero() {
		return fmt.Errorf("%w: missing start date", ErrInvalidEntry)
	}
	if e.EndDate != nil && e.EndDate.Before(e.StartDate) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidEntry)
	}
	return nil
}

// StartDates returns the start date of each entry in the given order.
func StartDates(entries []Entry) []time.Time {
	out := make([]time.Time, len(entries))
	for i, e := range entries {
		out[i] = e.StartDate
	}
	return out
}

// Store is the cycle entry repository.
type Store interface {
	// List returns the user's entries ordered by start date, newest first.
	List(ctx context.Context, userID uuid.UUID) ([]Entry, error)
	Create(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// --------------------------------------------------------------------------
// Postgres
// --------------------------------------------------------------------------

// PGStore implements Store on Postgres. Writes fire the
// cycle_entries_changed notification through a table trigger.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) List(ctx context.Context, userID uuid.UUID) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, "list_cycle_entries", userID)
	if err != nil {
		return nil, fmt.Errorf("list cycle entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.StartDate, &e.EndDate, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cycle entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PGStore) Create(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO cycle_entries (id, user_id, start_date, end_date)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		e.ID, e.UserID, e.StartDate, e.EndDate,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("create cycle entry: %w", err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cycle_entries WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete cycle entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --------------------------------------------------------------------------
// In-memory
// --------------------------------------------------------------------------

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemStore(entries ...Entry) *MemStore {
	return &MemStore{entries: append([]Entry(nil), entries...)}
}

func (m *MemStore) List(_ context.Context, userID uuid.UUID) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Entry{}
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (m *MemStore) Create(_ context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *MemStore) Delete(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id && e.UserID == userID {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
