/*
sweeper.go - Periodic purge of expired key-value entries

PURPOSE:
  SQLite and the in-memory store only hide expired entries on read. The
  sweeper deletes them so lockout counters and admin sessions do not pile
  up. Redis expires keys itself and needs no sweeper.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Sweeps once immediately on start
  - Errors are logged; the next tick tries again

USAGE:
  sweeper := NewExpirySweeper(store, log)
  sweeper.Start()
  // ... later
  sweeper.Stop()
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/approval-desk/approval"
)

const DefaultSweepInterval = 5 * time.Minute

// ExpirySweeper purges expired entries on a ticker.
type ExpirySweeper struct {
	Store    approval.Purger
	Interval time.Duration
	Log      zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExpirySweeper creates a sweeper with the default interval.
func NewExpirySweeper(store approval.Purger, log zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		Store:    store,
		Interval: DefaultSweepInterval,
		Log:      log,
	}
}

// Start begins sweeping. Calling Start twice is a no-op.
func (s *ExpirySweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return
	}
	if s.Interval <= 0 {
		s.Interval = DefaultSweepInterval
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.Log.Info().Dur("interval", s.Interval).Msg("expiry sweeper started")
}

// Stop stops the sweeper and waits for a running sweep to finish.
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Log.Info().Msg("expiry sweeper stopped")
}

func (s *ExpirySweeper) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-stop:
			return
		}
	}
}

// Sweep purges once and returns how many entries were removed.
func (s *ExpirySweeper) Sweep(ctx context.Context) int {
	n, err := s.Store.PurgeExpired(ctx)
	if err != nil {
		s.Log.Warn().Err(err).Msg("expiry sweep failed")
		return 0
	}
	if n > 0 {
		s.Log.Debug().Int("purged", n).Msg("expired entries purged")
	}
	return n
}
