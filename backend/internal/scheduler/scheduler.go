package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"bizgraph-bot/backend/pkg/logger"
)

// SessionPruner is the session maintenance surface of memory.Sessions
type SessionPruner interface {
	Prune(ctx context.Context, retention time.Duration) (int, error)
	EnforceCap(ctx context.Context, max int) (int, error)
}

// Options controls session maintenance
type Options struct {
	Schedule    string
	Retention   time.Duration
	MaxSessions int
	Location    *time.Location
	// JobTimeout bounds a single maintenance run
	JobTimeout time.Duration
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler runs periodic session maintenance
type Scheduler struct {
	sessions SessionPruner
	opts     Options
	cron     *cron.Cron
	logger   *zap.Logger
}

// New validates the schedule and prepares the cron runner
func New(sessions SessionPruner, opts Options) (*Scheduler, error) {
	if opts.Schedule == "" {
		opts.Schedule = "@daily"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 5 * time.Minute
	}

	s := &Scheduler{
		sessions: sessions,
		opts:     opts,
		cron:     cron.New(cron.WithLocation(opts.Location), cron.WithParser(cronParser)),
		logger:   logger.Get(),
	}

	if _, err := s.cron.AddFunc(opts.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), opts.JobTimeout)
		defer cancel()
		s.RunOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid memory prune schedule %q: %w", opts.Schedule, err)
	}
	return s, nil
}

// RunOnce prunes expired sessions and then enforces the session cap
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.opts.Retention > 0 {
		removed, err := s.sessions.Prune(ctx, s.opts.Retention)
		if err != nil {
			s.logger.Error("Session prune failed", zap.Error(err))
		} else if removed > 0 {
			s.logger.Info("Pruned expired sessions", zap.Int("removed", removed), zap.Duration("retention", s.opts.Retention))
		}
	}

	if s.opts.MaxSessions > 0 {
		evicted, err := s.sessions.EnforceCap(ctx, s.opts.MaxSessions)
		if err != nil {
			s.logger.Error("Session cap enforcement failed", zap.Error(err))
		} else if evicted > 0 {
			s.logger.Info("Evicted sessions over cap", zap.Int("evicted", evicted), zap.Int("max_sessions", s.opts.MaxSessions))
		}
	}
}

// Run performs one maintenance pass, then runs on schedule until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	s.RunOnce(ctx)

	s.cron.Start()
	s.logger.Info("Session maintenance scheduled", zap.String("schedule", s.opts.Schedule))

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	return nil
}
