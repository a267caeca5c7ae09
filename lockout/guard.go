/*
Package lockout protects the admin passcode against guessing.

STATE:
  Per key (usually "admin:<client ip>"), stored in an approval.KV:
    failures      consecutive failed attempts
    locked_until  zero, or the instant the lock lifts

LIFECYCLE:
  init    no entry = zero failures, not locked
  read    Status
  write   RecordFailure (increments; locks at MaxAttempts), Reset (success)
  expire  the entry's TTL is LockFor, so a quiet key forgets its failures
          and a lock lifts on its own

The store is injected, so the rules are tested with the in-memory KV and run
in production on SQLite or Redis.
*/
package lockout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warp/approval-desk/approval"
)

const (
	DefaultMaxAttempts = 5
	DefaultLockFor     = 15 * time.Minute

	keyPrefix = "lockout:"
)

// state is the persisted value for one key.
type state struct {
	Failures    int       `json:"failures"`
	LockedUntil time.Time `json:"locked_until"`
}

// Status is what callers see for a key.
type Status struct {
	Failures  int
	Remaining int // attempts left before the lock
	Locked    bool
	// RetryAfter is how long until the lock lifts; zero when not locked.
	RetryAfter time.Duration
}

type Guard struct {
	Store       approval.KV
	MaxAttempts int
	LockFor     time.Duration
	Now         func() time.Time

	// mu serializes read-modify-write within this process.
	mu sync.Mutex
}

func NewGuard(store approval.KV, maxAttempts int, lockFor time.Duration) *Guard {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if lockFor <= 0 {
		lockFor = DefaultLockFor
	}
	return &Guard{
		Store:       store,
		MaxAttempts: maxAttempts,
		LockFor:     lockFor,
		Now:         time.Now,
	}
}

func (g *Guard) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

func (g *Guard) Status(ctx context.Context, key string) (Status, error) {
	st, err := g.load(ctx, key)
	if err != nil {
		return Status{}, err
	}
	return g.status(st), nil
}

// RecordFailure counts one failed attempt and locks the key once
// MaxAttempts is reached. Failures while locked do not extend the lock.
func (g *Guard) RecordFailure(ctx context.Context, key string) (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, err := g.load(ctx, key)
	if err != nil {
		return Status{}, err
	}
	if s := g.status(st); s.Locked {
		return s, nil
	}
	if !st.LockedUntil.IsZero() {
		st = state{}
	}

	st.Failures++
	if st.Failures >= g.MaxAttempts {
		st.LockedUntil = g.now().Add(g.LockFor)
	}

	buf, err := json.Marshal(st)
	if err != nil {
		return Status{}, fmt.Errorf("encode lockout state: %w", err)
	}
	if err := g.Store.Set(ctx, keyPrefix+key, buf, g.LockFor); err != nil {
		return Status{}, fmt.Errorf("save lockout state: %w", err)
	}
	return g.status(st), nil
}

// Reset forgets all failures for key.
func (g *Guard) Reset(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Store.Delete(ctx, keyPrefix+key)
}

func (g *Guard) load(ctx context.Context, key string) (state, error) {
	buf, err := g.Store.Get(ctx, keyPrefix+key)
	if errors.Is(err, approval.ErrKeyNotFound) {
		return state{}, nil
	}
	if err != nil {
		return state{}, fmt.Errorf("load lockout state: %w", err)
	}

	var st state
	if err := json.Unmarshal(buf, &st); err != nil {
		// A corrupt entry is treated as absent.
		return state{}, nil
	}
	return st, nil
}

func (g *Guard) status(st state) Status {
	now := g.now()
	s := Status{Failures: st.Failures}

	if !st.LockedUntil.IsZero() && now.Before(st.LockedUntil) {
		s.Locked = true
		s.RetryAfter = st.LockedUntil.Sub(now)
		return s
	}
	if !st.LockedUntil.IsZero() {
		// Lock lifted but the entry has not expired yet.
		s.Failures = 0
	}
	s.Remaining = g.MaxAttempts - s.Failures
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	return s
}
