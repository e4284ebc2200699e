// Package sched runs the periodic fallback matching sweep on a cron
// schedule. The sweep itself lives in the services layer; this package only
// owns the timer and its lifecycle.
package sched

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// FallbackRunner is the slice of the queue service the scheduler needs.
type FallbackRunner interface {
	RunFallbackPass(ctx context.Context) (int, error)
}

// Scheduler triggers fallback sweeps on a standard 5-field cron spec.
type Scheduler struct {
	cron   *cron.Cron
	runner FallbackRunner

	// Timeout bounds each sweep; zero means no deadline.
	Timeout time.Duration
}

// New constructs a Scheduler that runs the fallback pass on the given
// cron expression. The expression is validated eagerly so a bad one
// fails at startup, not at the first missed tick.
func New(spec string, runner FallbackRunner) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		runner:  runner,
		Timeout: 5 * time.Minute,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx := context.Background()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	start := time.Now()
	formed, err := s.runner.RunFallbackPass(ctx)
	if err != nil {
		log.Error().Err(err).Msg("fallback sweep failed")
		return
	}
	log.Info().
		Int("groups_formed", formed).
		Dur("took", time.Since(start)).
		Msg("fallback sweep complete")
}

// Start begins scheduling in a background goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
