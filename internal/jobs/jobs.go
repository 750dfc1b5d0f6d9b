// Package jobs runs periodic housekeeping on a cron scheduler.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"budgetbox/internal/logger"
)

// Default schedules.
const (
	CacheSweepSpec   = "@every 5m"
	TokenPurgeSpec   = "@hourly"
	LimiterPruneSpec = "@every 10m"

	defaultLimiterIdle = 10 * time.Minute
	purgeTimeout       = 30 * time.Second
)

// CacheSweeper drops expired entries from an in-process cache.
type CacheSweeper interface {
	Sweep() int
}

// TokenPurger deletes revocation records that are past their expiry.
type TokenPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// LimiterPruner forgets clients that have been idle for a while.
type LimiterPruner interface {
	Prune(idle time.Duration) int
}

// Options selects which jobs are scheduled. Nil collaborators are skipped.
type Options struct {
	Cache       CacheSweeper
	Tokens      TokenPurger
	Limiter     LimiterPruner
	LimiterIdle time.Duration
}

// Scheduler owns the cron runner and the registered jobs.
type Scheduler struct {
	cron *cron.Cron
	opts Options
	log  *zap.SugaredLogger
}

// New registers the housekeeping jobs. Call Start to begin running them.
func New(opts Options) (*Scheduler, error) {
	if opts.LimiterIdle <= 0 {
		opts.LimiterIdle = defaultLimiterIdle
	}
	log := logger.Named("jobs")
	s := &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cronLogger{log: log}))),
		opts: opts,
		log:  log,
	}

	if opts.Cache != nil {
		if _, err := s.cron.AddFunc(CacheSweepSpec, s.SweepCache); err != nil {
			return nil, err
		}
	}
	if opts.Tokens != nil {
		if _, err := s.cron.AddFunc(TokenPurgeSpec, s.PurgeTokens); err != nil {
			return nil, err
		}
	}
	if opts.Limiter != nil {
		if _, err := s.cron.AddFunc(LimiterPruneSpec, s.PruneLimiter); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Infow("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop prevents new runs and waits for running jobs or ctx, whichever
// finishes first.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// SweepCache removes expired cache entries.
func (s *Scheduler) SweepCache() {
	if removed := s.opts.Cache.Sweep(); removed > 0 {
		s.log.Debugw("swept cache", "removed", removed)
	}
}

// PurgeTokens deletes expired revoked-token rows.
func (s *Scheduler) PurgeTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	purged, err := s.opts.Tokens.PurgeExpired(ctx)
	if err != nil {
		s.log.Errorw("failed to purge revoked tokens", "error", err)
		return
	}
	if purged > 0 {
		s.log.Infow("purged revoked tokens", "count", purged)
	}
}

// PruneLimiter drops idle rate-limit buckets.
func (s *Scheduler) PruneLimiter() {
	if pruned := s.opts.Limiter.Prune(s.opts.LimiterIdle); pruned > 0 {
		s.log.Debugw("pruned rate limiter", "clients", pruned)
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
