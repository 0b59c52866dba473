package power

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"nightguard/internal/clock"
	"nightguard/internal/guardian"
	"nightguard/internal/hook"
	logx "nightguard/pkg/logx"
)

const stepTimeout = 10 * time.Second

// Step runs Argv (if any) and then waits Pause.
type Step struct {
	Argv  []string
	Pause time.Duration
}

var _ guardian.ExitSequence = (*Sequence)(nil)

// Sequence runs its steps in order. A failing step is logged and the
// sequence continues; the joined errors are returned at the end.
// Arguments may use the {surface} placeholder.
type Sequence struct {
	steps []Step
	run   hook.Runner
	clock clock.Clock
	log   logx.Logger

	mu      sync.Mutex
	surface string
}

func NewSequence(steps []Step, run hook.Runner, clk clock.Clock, log logx.Logger) *Sequence {
	if run == nil {
		run = hook.Exec
	}
	if clk == nil {
		clk = clock.Real()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sequence{steps: append([]Step(nil), steps...), run: run, clock: clk, log: log}
}

// Bind sets the surface substituted into step arguments.
func (s *Sequence) Bind(surface string) {
	s.mu.Lock()
	s.surface = surface
	s.mu.Unlock()
}

func (s *Sequence) Run(ctx context.Context) error {
	s.mu.Lock()
	vars := map[string]string{"surface": s.surface}
	s.mu.Unlock()

	var errs []error
	for i, st := range s.steps {
		if len(st.Argv) > 0 {
			callCtx, cancel := context.WithTimeout(ctx, stepTimeout)
			_, err := s.run(callCtx, hook.Expand(st.Argv, vars))
			cancel()
			if err != nil {
				s.log.Warn("exit step failed", logx.Int("step", i), logx.Err(err))
				errs = append(errs, fmt.Errorf("step %d: %w", i, err))
			} else {
				s.log.Debug("exit step done", logx.Int("step", i))
			}
		}
		if st.Pause > 0 {
			s.clock.Sleep(st.Pause)
		}
	}
	return errors.Join(errs...)
}
