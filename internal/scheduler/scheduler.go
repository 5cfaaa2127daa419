package scheduler

import (
	"context"
	"log/slog"
	"time"

	"social_ingest/internal/domain"
)

// CronRunner starts one scheduled scrape pass.
type CronRunner interface {
	RunCron(ctx context.Context) (*domain.CronReport, error)
}

// Scheduler drives CronRunner on a fixed interval inside the process. It is
// only used when no external cron is calling the trigger endpoints.
type Scheduler struct {
	runner     CronRunner
	interval   time.Duration
	runTimeout time.Duration
	logger     *slog.Logger
}

func NewScheduler(runner CronRunner, interval, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	if runTimeout <= 0 {
		runTimeout = time.Minute
	}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger.With("component", "scheduler"),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	report, err := s.runner.RunCron(runCtx)
	if err != nil {
		s.logger.Error("scheduled scrape failed", "error", err)
		return
	}

	s.logger.Info("scheduled scrape finished",
		"skipped", report.Skipped,
		"profiles", report.ProfilesTotal,
		"runs", len(report.Runs),
		"failed_runs", Failed(report.Runs),
	)
}
