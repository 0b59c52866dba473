package guardian

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	logx "nightguard/pkg/logx"
)

type controllerHarness struct {
	*harness
	ctl  *Controller
	path string
}

func newControllerHarness(t *testing.T, start time.Time, mutate func(*ControllerConfig)) *controllerHarness {
	t.Helper()
	h := newHarness(start)
	p := newLog(t, "[21:00:00] [Server thread/INFO]: <Allotron> exit\n")
	cfg := ControllerConfig{
		Tailer:   mustTailer(t, p, ""),
		Allow:    ParseAllowList("SiPeRNiK, nikita, SpiderDog, Allotron"),
		Schedule: nightConfig(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return &controllerHarness{harness: h, ctl: NewController(cfg, h.deps()), path: p}
}

func (ch *controllerHarness) start(t *testing.T) {
	t.Helper()
	if err := ch.ctl.Start(context.Background(), Activation{Surface: "mc:0"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func chatLine(speaker, msg string) string {
	return "[23:00:00] [Server thread/INFO]: <" + speaker + "> " + msg + "\n"
}

func TestControllerEmergencyFromLog(t *testing.T) {
	t.Parallel()
	T := time.Date(2026, 10, 19, 23, 0, 0, 0, time.UTC)
	ch := newControllerHarness(t, T, nil)
	ch.start(t)
	ctx := context.Background()

	if ch.out.surface != "mc:0" {
		t.Fatalf("bound surface = %q", ch.out.surface)
	}
	if ch.ctl.Tick(ctx) {
		t.Fatal("idle tick finished the session")
	}
	if ch.ctl.Scheduler().State().EmergencyAt != nil {
		t.Fatal("log history was replayed")
	}

	appendLog(t, ch.path, chatLine("Allotron", "exit"))
	ch.ctl.Tick(ctx)
	st := ch.ctl.Scheduler().State()
	if st.EmergencyAt == nil || !st.EmergencyAt.Equal(T.Add(30*time.Second)) {
		t.Fatalf("EmergencyAt = %v, want T+30s", st.EmergencyAt)
	}
	want := []string{english().Activation, english().EmergencyArmed}
	if got := ch.out.Sent(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("notices = %q", got)
	}

	ch.clk.Set(T.Add(30 * time.Second))
	if !ch.ctl.Tick(ctx) {
		t.Fatal("emergency tick did not finish")
	}
	if len(ch.exit.runs) != 1 || len(ch.power.calls) != 1 || ch.power.calls[0].reason != ReasonEmergency {
		t.Fatalf("exit runs %d, power %+v", len(ch.exit.runs), ch.power.calls)
	}
	if !ch.power.calls[0].at.Equal(T.Add(50 * time.Second)) {
		t.Fatalf("power at %v, want T+50s", ch.power.calls[0].at)
	}
}

func TestControllerFilters(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		line string
	}{
		{name: "unauthorized", line: chatLine("griefer", "exit")},
		{name: "own echo", line: chatLine("Allotron", english().Activation)},
		{name: "noise", line: "[23:00:00] [Server thread/INFO]: Allotron left the game\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ch := newControllerHarness(t, night, nil)
			ch.start(t)
			appendLog(t, ch.path, tt.line)
			ch.ctl.Tick(context.Background())
			if ch.ctl.Scheduler().State().EmergencyAt != nil {
				t.Fatal("filtered line armed the emergency")
			}
			if got := ch.out.Sent(); len(got) != 1 {
				t.Fatalf("notices = %q, want activation only", got)
			}
		})
	}
}

func TestControllerOpenModeAuthorizesEveryone(t *testing.T) {
	t.Parallel()
	ch := newControllerHarness(t, night, func(c *ControllerConfig) { c.Allow = ParseAllowList("") })
	ch.start(t)
	appendLog(t, ch.path, chatLine("griefer", "exit"))
	ch.ctl.Tick(context.Background())
	if ch.ctl.Scheduler().State().EmergencyAt == nil {
		t.Fatal("open mode rejected a speaker")
	}
}

func TestControllerRateLimitsRepeatedDelay(t *testing.T) {
	t.Parallel()
	ch := newControllerHarness(t, night, nil)
	ch.start(t)
	ctx := context.Background()
	first := ch.ctl.Scheduler().State().NextShutdownAt

	appendLog(t, ch.path, chatLine("SpiderDog", "delay")+chatLine("SpiderDog", "delay"))
	ch.ctl.Tick(ctx)
	if got := ch.ctl.Scheduler().State().NextShutdownAt; !got.Equal(first.Add(time.Hour)) {
		t.Fatalf("after double delay: %v, want %v", got, first.Add(time.Hour))
	}
	if n := count(ch.out.Sent(), english().delayed("03:15")); n != 1 {
		t.Fatalf("delayed notices = %d", n)
	}

	// Another speaker is not affected by SpiderDog's window.
	appendLog(t, ch.path, chatLine("nikita", "delay"))
	ch.ctl.Tick(ctx)
	if got := ch.ctl.Scheduler().State().NextShutdownAt; !got.Equal(first.Add(2 * time.Hour)) {
		t.Fatalf("after second speaker: %v", got)
	}

	ch.clk.Advance(2 * time.Second)
	appendLog(t, ch.path, chatLine("SpiderDog", "delay"))
	ch.ctl.Tick(ctx)
	if got := ch.ctl.Scheduler().State().NextShutdownAt; !got.Equal(first.Add(3 * time.Hour)) {
		t.Fatalf("after window: %v", got)
	}
}

func TestControllerInbound(t *testing.T) {
	t.Parallel()
	in := make(chan ChatEvent, 4)
	ch := newControllerHarness(t, night, func(c *ControllerConfig) { c.Inbound = in })
	ch.start(t)

	in <- ChatEvent{Speaker: "griefer", Message: "exit", Source: SourceTelegram}
	in <- ChatEvent{Speaker: "nikita", Message: "exit", Source: SourceTelegram}
	ch.ctl.Tick(context.Background())
	st := ch.ctl.Scheduler().State()
	if st.EmergencyAt == nil || !st.EmergencyAt.Equal(night.Add(30*time.Second)) {
		t.Fatalf("EmergencyAt = %v", st.EmergencyAt)
	}
}

func TestControllerReadFailureBackoff(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := newHarness(at(1, 59, 50))
	deps := h.deps()
	deps.Log = logx.FromZerolog(zerolog.New(&buf))
	p := newLog(t, "")
	ctl := NewController(ControllerConfig{Tailer: mustTailer(t, p, ""), Schedule: nightConfig()}, deps)
	ctx := context.Background()
	if err := ctl.Start(ctx, Activation{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := os.Remove(p); err != nil {
		t.Fatalf("remove: %v", err)
	}

	ctl.Tick(ctx) // fails, backs off 5s
	h.clk.Advance(time.Second)
	ctl.Tick(ctx) // inside backoff: no read
	h.clk.Advance(4 * time.Second)
	ctl.Tick(ctx) // retry fails again: escalated

	var levels []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		if rec["message"] == "log read failed" {
			levels = append(levels, rec["level"].(string))
		}
	}
	if strings.Join(levels, ",") != "warn,error" {
		t.Fatalf("read failure levels = %v, want [warn error]", levels)
	}

	// Timers keep running while the log is unreadable.
	h.clk.Set(at(2, 0, 0))
	ctl.Tick(ctx)
	if !ctl.Scheduler().State().WarningSent {
		t.Fatal("warning did not fire during read failures")
	}

	// Recovery resets the failure count.
	if err := os.WriteFile(p, []byte(chatLine("Allotron", "exit")), 0o644); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	h.clk.Advance(5 * time.Second)
	ctl.Tick(ctx)
	if ctl.Scheduler().State().EmergencyAt == nil {
		t.Fatal("command after recovery was not processed")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestControllerRunStopReleasesOutput(t *testing.T) {
	t.Parallel()
	ch := newControllerHarness(t, night, nil)
	ctx, cancel := context.WithCancel(context.Background())
	acts := make(chan Activation, 1)
	done := make(chan error, 1)
	go func() { done <- ch.ctl.Run(ctx, acts) }()

	acts <- Activation{Surface: "mc:0"}
	waitFor(t, "activation notice", func() bool { return len(ch.out.Sent()) == 1 })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not observe stop")
	}
	if ch.out.Released() != 1 {
		t.Fatalf("Release called %d times", ch.out.Released())
	}
}

func TestControllerRunUntilShutdown(t *testing.T) {
	t.Parallel()
	in := make(chan ChatEvent, 1)
	wake := make(chan struct{})
	ch := newControllerHarness(t, night, func(c *ControllerConfig) {
		c.Inbound = in
		c.Wake = wake
	})
	acts := make(chan Activation, 1)
	done := make(chan error, 1)
	go func() { done <- ch.ctl.Run(context.Background(), acts) }()

	in <- ChatEvent{Speaker: "Allotron", Message: "exit", Source: SourceTelegram}
	acts <- Activation{}
	wake <- struct{}{}
	waitFor(t, "emergency notice", func() bool { return count(ch.out.Sent(), english().EmergencyArmed) == 1 })

	// Moving the clock may already fire the ticker, so the wake-up is optional.
	ch.clk.Set(night.Add(30 * time.Second))
	var err error
	select {
	case wake <- struct{}{}:
		select {
		case err = <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not finish after emergency")
		}
	case err = <-done:
	}
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ch.power.calls) != 1 || ch.power.calls[0].reason != ReasonEmergency {
		t.Fatalf("power calls = %+v", ch.power.calls)
	}
	if ch.out.Released() != 1 {
		t.Fatalf("Release called %d times", ch.out.Released())
	}
}

func TestControllerRunWithoutActivation(t *testing.T) {
	t.Parallel()
	ch := newControllerHarness(t, night, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ch.ctl.Run(ctx, make(chan Activation)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ch.out.Released() != 0 || ch.ctl.Scheduler() != nil {
		t.Fatal("session started without activation")
	}
}
