package service

import (
	"context"
	"log"
	"time"

	"github.com/sangkips/idempotency-gateway/internal/domain/repository"
)

// Sweeper periodically deletes expired responses and stale locks from stores
// that do not expire entries on their own
type Sweeper struct {
	store    repository.ExpiredSweeper
	interval time.Duration
	logger   *log.Logger
}

// NewSweeper returns a sweeper for store, or nil when store expires entries by
// itself (redis) and needs no sweep
func NewSweeper(store repository.KeyStore, interval time.Duration, logger *log.Logger) *Sweeper {
	s, ok := store.(repository.ExpiredSweeper)
	if !ok || interval <= 0 {
		return nil
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Sweeper{store: s, interval: interval, logger: logger}
}

// Run sweeps every interval until ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single cleanup pass and returns the number of rows removed
func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	removed, err := s.store.DeleteExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Printf("lvl=warn msg=\"idempotency sweep failed\" err=%v", err)
		}
		return 0
	}
	if removed > 0 {
		s.logger.Printf("lvl=info msg=\"idempotency sweep\" removed=%d", removed)
	}
	return removed
}
