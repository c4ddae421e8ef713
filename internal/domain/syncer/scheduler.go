package syncer

import (
	"context"
	"log/slog"
	"time"
)

// CycleHook runs after each completed sync cycle. Hooks run on the
// scheduler goroutine, so a slow hook delays the next cycle.
type CycleHook func(ctx context.Context, report *CycleReport)

// Scheduler runs sync cycles on a fixed interval.
type Scheduler struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
	hooks    []CycleHook
}

// NewScheduler creates a Scheduler.
func NewScheduler(service *Service, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{service: service, interval: interval, logger: logger}
}

// OnCycleComplete registers a hook to run after every cycle,
// successful or not.
func (s *Scheduler) OnCycleComplete(hook CycleHook) {
	s.hooks = append(s.hooks, hook)
}

// Run executes an immediate cycle, then one per interval until ctx is
// cancelled. A failed cycle is logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context) error {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := s.service.RunCycle(ctx)
	if err != nil {
		s.logger.Error("sync cycle failed", "error", err)
		return
	}
	for _, hook := range s.hooks {
		hook(ctx, report)
	}
}
