package sweep

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Runner is satisfied by *Sweeper.
type Runner interface {
	Run(ctx context.Context, limit int) (Report, error)
}

// Scheduler runs a sweep on start and then on every interval tick. Ticks that
// arrive while a sweep is still running are dropped.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	limit    int
	logger   *slog.Logger
}

func NewScheduler(runner Runner, interval time.Duration, limit int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		limit:    limit,
		logger:   logger.With("component", "sweep_scheduler"),
	}
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("sweep scheduler started", "interval", s.interval, "limit", s.limit)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweep scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.runner.Run(ctx, s.limit)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyRunning):
		s.logger.Info("previous sweep still running, skipping tick")
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Error("sweep failed", "error", err)
	}
}
