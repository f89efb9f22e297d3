// Package supervisor generalizes the teacher's internal/queue.Scheduler
// ticker-loop pattern into a reusable task runner: the feedback loop,
// execution/finalization checkers and lock sweeper are owned by a
// Supervisor that tracks a sync.WaitGroup and a stop channel. The trust
// decay cycle is not run here; internal/trust's DecayScheduler runs it on
// its own cron scheduler.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/utils"
)

// Task is one unit of periodic work. It should return promptly when ctx
// is canceled.
type Task func(ctx context.Context)

// Supervisor runs a set of named periodic tasks and shuts them down
// together.
type Supervisor struct {
	log zerolog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// New returns a Supervisor that logs under the given component name.
func New(logger zerolog.Logger, component string) *Supervisor {
	return &Supervisor{
		log:  logger.With().Str("component", component).Logger(),
		stop: make(chan struct{}),
	}
}

// Every registers task to run once per interval, starting after the
// first tick, until Stop is called. The task's own goroutine starts
// immediately; Start only marks the supervisor as running for logging
// and idempotency.
func (s *Supervisor) Every(name string, interval time.Duration, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.runOnce(ctx, name, task)
			}
		}
	}()
}

func (s *Supervisor) runOnce(ctx context.Context, name string, task Task) {
	timer := utils.NewTimer(name, s.log)
	defer timer.Stop()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("task", name).Interface("panic", r).Msg("task panicked, continuing supervisor loop")
		}
	}()
	task(ctx)
}

// Start marks the supervisor as running and logs the transition; Stop
// does nothing until Start has been called. Tasks registered via Every
// begin their own goroutines immediately, whether or not Start has run.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started && !s.stopped {
		s.log.Warn().Msg("supervisor already started, ignoring")
		return
	}
	if s.stopped {
		s.stop = make(chan struct{})
		s.stopped = false
	}
	s.started = true
	s.log.Info().Msg("supervisor started")
}

// Stop signals every task to stop and waits for them to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	s.stopped = true
	s.started = false
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info().Msg("supervisor stopped")
}
