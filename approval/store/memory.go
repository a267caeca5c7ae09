// Package store provides in-memory implementations of the approval storage
// interfaces.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/approval-desk/approval"
)

// =============================================================================
// MEMORY STORE - In-memory KV + journal (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	values  map[string]entry
	actions map[approval.RequestID][]approval.ActionRecord
	ids     map[string]bool

	// Now is the clock used for expiry. Defaults to time.Now.
	Now func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time // zero = never
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func NewMemory() *Memory {
	return &Memory{
		values:  make(map[string]entry),
		actions: make(map[approval.RequestID][]approval.ActionRecord),
		ids:     make(map[string]bool),
		Now:     time.Now,
	}
}

func (m *Memory) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

// =============================================================================
// KV
// =============================================================================

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.values[key]
	if !ok || e.expired(m.now()) {
		return nil, approval.ErrKeyNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.values[key] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// PurgeExpired drops expired keys and returns how many were removed.
func (m *Memory) PurgeExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for k, e := range m.values {
		if e.expired(now) {
			delete(m.values, k)
			n++
		}
	}
	return n, nil
}

// =============================================================================
// JOURNAL
// =============================================================================

// Record appends an action record. Append-only.
func (m *Memory) Record(_ context.Context, rec approval.ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID != "" && m.ids[rec.ID] {
		return approval.ErrDuplicateRecord
	}

	recs := m.actions[rec.RequestID]

	// Keep each request's records ordered by CreatedAt; equal times keep
	// insertion order.
	i := sort.Search(len(recs), func(i int) bool {
		return recs[i].CreatedAt.After(rec.CreatedAt)
	})
	recs = append(recs, approval.ActionRecord{})
	copy(recs[i+1:], recs[i:])
	recs[i] = rec
	m.actions[rec.RequestID] = recs

	if rec.ID != "" {
		m.ids[rec.ID] = true
	}
	return nil
}

func (m *Memory) ListByRequest(_ context.Context, id approval.RequestID) ([]approval.ActionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]approval.ActionRecord, len(m.actions[id]))
	copy(result, m.actions[id])
	return result, nil
}
