// Package notificationstest provides an in-memory notifications store for
// tests of packages that sit on top of notifications.Service.
package notificationstest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ovaria/pcos-tracker/internal/eligibility"
	"github.com/ovaria/pcos-tracker/internal/notifications"
)

// MemStore implements notifications.Store and notifications.Outbox.
type MemStore struct {
	mu         sync.Mutex
	prefs      map[uuid.UUID]eligibility.Preferences
	rows       []notifications.Notification
	dedup      map[string]struct{}
	dispatched map[uuid.UUID]bool
	failures   map[uuid.UUID]string

	// Err, when set, is returned by every call.
	Err error
}

// New returns an empty store.
func New() *MemStore {
	return &MemStore{
		prefs:      make(map[uuid.UUID]eligibility.Preferences),
		dedup:      make(map[string]struct{}),
		dispatched: make(map[uuid.UUID]bool),
		failures:   make(map[uuid.UUID]string),
	}
}

// PutPreferences seeds a preferences record.
func (m *MemStore) PutPreferences(p eligibility.Preferences) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[p.UserID] = p
}

// All returns every stored notification in insertion order.
func (m *MemStore) All() []notifications.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notifications.Notification(nil), m.rows...)
}

// Failure returns the last MarkFailed reason for id.
func (m *MemStore) Failure(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[id]
}

// SetRead flips the read flag and creation time of a stored row.
func (m *MemStore) SetRead(id uuid.UUID, read bool, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].IsRead = read
			m.rows[i].CreatedAt = createdAt
		}
	}
}

func (m *MemStore) GetPreferences(_ context.Context, userID uuid.UUID) (eligibility.Preferences, error) {
	if m.Err != nil {
		return eligibility.Preferences{}, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prefs[userID]
	if !ok {
		p = eligibility.DefaultPreferences(userID)
		p.CreatedAt = time.Now().UTC()
		p.UpdatedAt = p.CreatedAt
		m.prefs[userID] = p
	}
	return p, nil
}

func (m *MemStore) SavePreferences(_ context.Context, p *eligibility.Preferences) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if old, ok := m.prefs[p.UserID]; ok {
		p.CreatedAt = old.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.prefs[p.UserID] = *p
	return nil
}

func (m *MemStore) Insert(_ context.Context, n *notifications.Notification) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.DedupKey != "" {
		if _, ok := m.dedup[n.DedupKey]; ok {
			return notifications.ErrDuplicate
		}
		m.dedup[n.DedupKey] = struct{}{}
	}
	m.rows = append(m.rows, *n)
	return nil
}

func (m *MemStore) List(_ context.Context, userID uuid.UUID, opts notifications.ListOptions) ([]notifications.Notification, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []notifications.Notification{}
	for _, n := range m.rows {
		if n.UserID != userID || (opts.UnreadOnly && n.IsRead) {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if opts.Offset >= len(out) {
		return []notifications.Notification{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemStore) UnreadCount(_ context.Context, userID uuid.UUID) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.rows {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *MemStore) MarkRead(_ context.Context, userID, id uuid.UUID) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id && m.rows[i].UserID == userID {
			m.rows[i].IsRead = true
			return nil
		}
	}
	return notifications.ErrNotFound
}

func (m *MemStore) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for i := range m.rows {
		if m.rows[i].UserID == userID && !m.rows[i].IsRead {
			m.rows[i].IsRead = true
			count++
		}
	}
	return count, nil
}

func (m *MemStore) Delete(_ context.Context, userID, id uuid.UUID) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id && m.rows[i].UserID == userID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return notifications.ErrNotFound
}

func (m *MemStore) DeleteReadBefore(_ context.Context, cutoff time.Time) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	var removed int64
	for _, n := range m.rows {
		if n.IsRead && n.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	m.rows = kept
	return removed, nil
}

// ListUserIDs returns every user with stored preferences.
func (m *MemStore) ListUserIDs(_ context.Context) ([]uuid.UUID, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(m.prefs))
	for id := range m.prefs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (m *MemStore) ClaimDue(_ context.Context, limit int) ([]notifications.Notification, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []notifications.Notification
	for _, n := range m.rows {
		if len(out) >= limit {
			break
		}
		if m.dispatched[n.ID] {
			continue
		}
		due := n.CreatedAt
		if n.ScheduledFor != nil {
			due = *n.ScheduledFor
		}
		if due.After(now) {
			continue
		}
		m.dispatched[n.ID] = true
		out = append(out, n)
	}
	return out, nil
}

func (m *MemStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatched[id] = false
	m.failures[id] = reason
	return nil
}
