// Package maintenance runs the periodic background upkeep the rest of the
// pipeline never triggers on its own: sweeping expired cache entries and
// pruning the dead-letter history, on a robfig/cron scheduler.
package maintenance

import (
	"time"

	"github.com/awehrman/peas/internal/queue"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// CacheSweeper is the subset of the action cache's surface the sweeper
// touches; internal/cache.Cache satisfies it.
type CacheSweeper interface {
	Sweep() int
}

// Sweeper owns a robfig/cron instance running two jobs: an in-process
// cache eviction sweep, and a dead-letter history prune. Both are
// best-effort bookkeeping; neither failing affects pipeline correctness.
type Sweeper struct {
	cron          *cron.Cron
	cache         CacheSweeper
	deadLetters   *queue.DeadLetterStore
	deadLetterTTL time.Duration
	logger        arbor.ILogger
}

// NewSweeper constructs a Sweeper. deadLetterTTL bounds how long a
// dead-letter record is kept before the reaper discards it; zero disables
// dead-letter pruning (cache sweeping still runs).
func NewSweeper(cache CacheSweeper, deadLetters *queue.DeadLetterStore, deadLetterTTL time.Duration, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		cron:          cron.New(),
		cache:         cache,
		deadLetters:   deadLetters,
		deadLetterTTL: deadLetterTTL,
		logger:        logger,
	}
}

// Start registers both jobs and starts the cron scheduler. cacheSweepSpec
// and reaperSpec are standard five-field cron expressions, e.g.
// "*/5 * * * *" for every five minutes.
func (s *Sweeper) Start(cacheSweepSpec, reaperSpec string) error {
	if _, err := s.cron.AddFunc(cacheSweepSpec, s.sweepCache); err != nil {
		return err
	}
	if s.deadLetters != nil && s.deadLetterTTL > 0 {
		if _, err := s.cron.AddFunc(reaperSpec, s.reapDeadLetters); err != nil {
			return err
		}
	}
	s.cron.Start()
	if s.logger != nil {
		s.logger.Info().Str("cache_sweep", cacheSweepSpec).Str("reaper", reaperSpec).Msg("Maintenance sweeper started")
	}
	return nil
}

// Stop waits for any in-flight run to finish, then halts the scheduler.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweepCache() {
	if s.cache == nil {
		return
	}
	n := s.cache.Sweep()
	if n > 0 && s.logger != nil {
		s.logger.Debug().Int("evicted", n).Msg("Cache sweep evicted expired entries")
	}
}

func (s *Sweeper) reapDeadLetters() {
	cutoff := time.Now().Add(-s.deadLetterTTL)
	n := s.deadLetters.Prune(cutoff)
	if n > 0 && s.logger != nil {
		s.logger.Info().Int("reaped", n).Dur("ttl", s.deadLetterTTL).Msg("Dead-letter reaper pruned stale sentinels")
	}
}
