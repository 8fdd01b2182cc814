package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler runs a task at a fixed interval. Runs never overlap: the task
// executes on the loop goroutine and ticks that come while it runs are
// dropped
type Scheduler struct {
	name     string
	interval time.Duration
	grace    time.Duration
	task     func(ctx context.Context) error
	// Run the task once as soon as the scheduler starts
	Immediate bool
}

func NewScheduler(name string, interval time.Duration, grace time.Duration, task func(ctx context.Context) error) *Scheduler {
	return &Scheduler{name: name, interval: interval, grace: grace, task: task}
}

// Run ticks until ctx is cancelled. No run starts after that; a run in
// progress keeps going for at most the grace period
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler %s: interval must be positive, got %s", s.name, s.interval)
	}
	log.Info().Msg(fmt.Sprintf("Scheduler %s started with interval %s", s.name, s.interval))

	if s.Immediate {
		s.runOnce(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg(fmt.Sprintf("Scheduler %s stopped", s.name))
			return nil
		case <-ticker.C:
			// Shutdown wins over a pending tick
			if ctx.Err() != nil {
				continue
			}
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	// Once shutdown begins the run has the grace period to finish
	stop := context.AfterFunc(ctx, func() {
		timer := time.NewTimer(s.grace)
		defer timer.Stop()
		select {
		case <-timer.C:
			log.Warn().Msg(fmt.Sprintf("Scheduler %s: run exceeded the shutdown grace period, cancelling it", s.name))
			cancel()
		case <-taskCtx.Done():
		}
	})
	defer stop()

	defer func() {
		if recovered := recover(); recovered != nil {
			log.Error().Msg(fmt.Sprintf("Scheduler %s: panic in task: %v", s.name, recovered))
		}
	}()

	if err := s.task(taskCtx); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Scheduler %s: task failed", s.name))
	}
}
