// Package scheduler runs the long-lived background loops: the auto-reply
// poller and the daily snapshot job. Loops are supervised: a panic or an
// unexpected exit is logged and the loop restarted with bounded backoff,
// and all loops stop cooperatively when the supervisor's context is
// canceled at shutdown.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultMaxRestarts = 10
	defaultBaseBackoff = time.Second
	maxBackoff         = 2 * time.Minute
)

// LoopFunc is one supervised background loop. It must block until ctx is
// done or it hits a fatal error; returning nil after ctx cancellation is a
// clean stop.
type LoopFunc func(ctx context.Context) error

type loopEntry struct {
	name string
	run  LoopFunc
}

// Supervisor starts named loops and keeps them running.
type Supervisor struct {
	// MaxRestarts bounds restarts per loop; <= 0 uses the default.
	MaxRestarts int
	// BaseBackoff is the first restart delay; it doubles per consecutive
	// failure up to a cap, and resets after a stretch of healthy running.
	BaseBackoff time.Duration

	loops []loopEntry
	wg    sync.WaitGroup
}

// Add registers a named loop. Call before Start.
func (s *Supervisor) Add(name string, run LoopFunc) {
	s.loops = append(s.loops, loopEntry{name: name, run: run})
}

// Start launches every registered loop. It returns immediately; use Wait to
// block until all loops have stopped after ctx cancellation.
func (s *Supervisor) Start(ctx context.Context) {
	for _, l := range s.loops {
		s.wg.Add(1)
		go func(l loopEntry) {
			defer s.wg.Done()
			s.supervise(ctx, l)
		}(l)
	}
}

// Wait blocks until every loop has exited.
func (s *Supervisor) Wait() { s.wg.Wait() }

func (s *Supervisor) supervise(ctx context.Context, l loopEntry) {
	maxRestarts := s.MaxRestarts
	if maxRestarts <= 0 {
		maxRestarts = defaultMaxRestarts
	}
	backoff := s.BaseBackoff
	if backoff <= 0 {
		backoff = defaultBaseBackoff
	}

	restarts := 0
	delay := backoff
	for {
		started := time.Now()
		err := runRecovered(ctx, l)

		if ctx.Err() != nil {
			log.Info().Str("loop", l.name).Msg("loop stopped")
			return
		}

		// A loop that ran for a while before failing gets a fresh budget.
		if time.Since(started) > 5*time.Minute {
			restarts = 0
			delay = backoff
		}
		restarts++
		if restarts > maxRestarts {
			log.Error().Str("loop", l.name).Err(err).
				Int("restarts", restarts-1).
				Msg("loop exceeded restart budget, giving up")
			return
		}
		log.Warn().Str("loop", l.name).Err(err).
			Dur("backoff", delay).
			Msg("loop exited unexpectedly, restarting")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
}

// runRecovered invokes the loop and converts panics into errors so the
// supervisor can restart instead of crashing the process.
func runRecovered(ctx context.Context, l loopEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("loop", l.name).Interface("panic", r).Msg("loop panicked")
			err = &panicError{loop: l.name, value: r}
		}
	}()
	return l.run(ctx)
}

type panicError struct {
	loop  string
	value any
}

func (e *panicError) Error() string { return "panic in loop " + e.loop }
