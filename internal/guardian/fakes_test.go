package guardian

import (
	"context"
	"sync"
	"time"

	"nightguard/internal/clock"
	"nightguard/internal/eventbus"
)

type fakeOutput struct {
	mu       sync.Mutex
	surface  string
	sent     []string
	released int
	sendErr  error
}

func (o *fakeOutput) Bind(surface string) error {
	o.mu.Lock()
	o.surface = surface
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) Send(_ context.Context, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sendErr != nil {
		return o.sendErr
	}
	o.sent = append(o.sent, text)
	return nil
}

func (o *fakeOutput) Release() error {
	o.mu.Lock()
	o.released++
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) Sent() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.sent...)
}

func (o *fakeOutput) Released() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.released
}

type fakeExit struct {
	clk  clock.Clock
	runs []time.Time
	err  error
}

func (e *fakeExit) Run(ctx context.Context) error {
	e.runs = append(e.runs, e.clk.Now())
	return e.err
}

type shutdownCall struct {
	at     time.Time
	delay  time.Duration
	reason string
	ctxErr error
}

type fakePower struct {
	clk   clock.Clock
	calls []shutdownCall
	err   error
}

func (p *fakePower) Shutdown(ctx context.Context, delay time.Duration, reason string) error {
	p.calls = append(p.calls, shutdownCall{at: p.clk.Now(), delay: delay, reason: reason, ctxErr: ctx.Err()})
	return p.err
}

type harness struct {
	clk   *clock.FakeClock
	out   *fakeOutput
	exit  *fakeExit
	power *fakePower
	bus   eventbus.Bus
}

func newHarness(start time.Time) *harness {
	clk := clock.Fake(start)
	return &harness{
		clk:   clk,
		out:   &fakeOutput{},
		exit:  &fakeExit{clk: clk},
		power: &fakePower{clk: clk},
		bus:   eventbus.New(),
	}
}

func (h *harness) deps() Deps {
	return Deps{Output: h.out, Exit: h.exit, Power: h.power, Clock: h.clk, Bus: h.bus}
}

func english() Catalog {
	c, _ := CatalogFor("en")
	return c
}

// night is 2026-10-19 22:00 UTC; with shutdown_at 02:15 the shutdown is at
// 2026-10-20 02:15 UTC and the warning at 02:00.
var night = time.Date(2026, 10, 19, 22, 0, 0, 0, time.UTC)

func nightConfig() SchedulerConfig {
	return SchedulerConfig{
		ShutdownAt:  "02:15",
		Location:    time.UTC,
		WarningLead: 15 * time.Minute,
		SaveTimeout: 20 * time.Second,
		Messages:    english(),
	}
}

func at(hh, mm, ss int) time.Time {
	return time.Date(2026, 10, 20, hh, mm, ss, 0, time.UTC)
}

func count(items []string, want string) int {
	n := 0
	for _, it := range items {
		if it == want {
			n++
		}
	}
	return n
}
