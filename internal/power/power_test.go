package power

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"nightguard/internal/clock"
	logx "nightguard/pkg/logx"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fail  map[string]error
}

func (r *fakeRunner) run(_ context.Context, argv []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, argv)
	if err := r.fail[argv[0]]; err != nil {
		return "", err
	}
	return "", nil
}

var start = time.Date(2026, 10, 20, 2, 15, 0, 0, time.UTC)

func TestSequenceRunsStepsWithPauses(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	clk := clock.Fake(start)
	seq := NewSequence([]Step{
		{Argv: []string{"key", "{surface}", "Escape"}, Pause: 1500 * time.Millisecond},
		{Argv: []string{"key", "{surface}", "Up"}, Pause: 800 * time.Millisecond},
		{Argv: []string{"key", "{surface}", "Return"}},
		{Pause: time.Second},
	}, r.run, clk, logx.Nop())
	seq.Bind("win-9")

	if err := seq.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := [][]string{
		{"key", "win-9", "Escape"},
		{"key", "win-9", "Up"},
		{"key", "win-9", "Return"},
	}
	if !reflect.DeepEqual(r.calls, want) {
		t.Fatalf("calls = %q, want %q", r.calls, want)
	}
	wantSlept := []time.Duration{1500 * time.Millisecond, 800 * time.Millisecond, time.Second}
	if got := clk.Slept(); !reflect.DeepEqual(got, wantSlept) {
		t.Fatalf("slept = %v, want %v", got, wantSlept)
	}
}

func TestSequenceContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("no such window")
	r := &fakeRunner{fail: map[string]error{"first": boom}}
	seq := NewSequence([]Step{{Argv: []string{"first"}}, {Argv: []string{"second"}}}, r.run, clock.Fake(start), logx.Nop())

	err := seq.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run err = %v, want wrapped boom", err)
	}
	if len(r.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(r.calls))
	}
}

func TestCommandShutdownPlaceholders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		goos  string
		delay time.Duration
		want  []string
	}{
		{"linux 60s", "linux", 60 * time.Second, []string{"shutdown", "-h", "+1", "nightguard: scheduled"}},
		{"linux 61s rounds up", "linux", 61 * time.Second, []string{"shutdown", "-h", "+2", "nightguard: scheduled"}},
		{"linux zero is one minute", "linux", 0, []string{"shutdown", "-h", "+1", "nightguard: scheduled"}},
		{"windows", "windows", 60 * time.Second, []string{"shutdown", "/s", "/t", "60", "/c", "nightguard: scheduled"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := &fakeRunner{}
			inv, err := New(Options{Driver: "command", GOOS: tt.goos, Run: r.run})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if err := inv.Shutdown(context.Background(), tt.delay, "scheduled"); err != nil {
				t.Fatalf("Shutdown: %v", err)
			}
			if len(r.calls) != 1 || !reflect.DeepEqual(r.calls[0], tt.want) {
				t.Fatalf("calls = %q, want %q", r.calls, tt.want)
			}
		})
	}
}

func TestCommandOverride(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	inv, err := New(Options{Driver: "command", Command: []string{"poweroff-helper", "{seconds}", "{reason}"}, Run: r.run})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = inv.Shutdown(context.Background(), 30*time.Second, "emergency")
	want := []string{"poweroff-helper", "30", "emergency"}
	if !reflect.DeepEqual(r.calls[0], want) {
		t.Fatalf("argv = %q, want %q", r.calls[0], want)
	}
}

func TestNewDrivers(t *testing.T) {
	t.Parallel()

	for _, d := range []string{"", "dry-run", "DRY-RUN", "dryrun"} {
		inv, err := New(Options{Driver: d})
		if err != nil {
			t.Fatalf("New(%q): %v", d, err)
		}
		if _, ok := inv.(*DryRun); !ok {
			t.Fatalf("New(%q) = %T, want *DryRun", d, inv)
		}
		if err := inv.Shutdown(context.Background(), time.Minute, "scheduled"); err != nil {
			t.Fatalf("dry-run Shutdown: %v", err)
		}
	}
	if inv, err := New(Options{Driver: "logind"}); err != nil {
		t.Fatalf("New(logind): %v", err)
	} else if _, ok := inv.(*Logind); !ok {
		t.Fatalf("New(logind) = %T", inv)
	}
	if _, err := New(Options{Driver: "acpi"}); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("New(acpi) err = %v, want ErrUnknownDriver", err)
	}
}

type managerRecord struct {
	method string
	args   []any
}

func fakeLogind(clk clock.Clock, fail error) (*Logind, *[]managerRecord, *int) {
	var calls []managerRecord
	closed := 0
	l := NewLogind(clk, logx.Nop())
	l.dial = func() (managerCall, func(), error) {
		call := func(_ context.Context, method string, args ...any) error {
			calls = append(calls, managerRecord{method: method, args: args})
			return fail
		}
		return call, func() { closed++ }, nil
	}
	return l, &calls, &closed
}

func TestLogindSchedulesWithoutWaiting(t *testing.T) {
	t.Parallel()

	clk := clock.Fake(start)
	l, calls, closed := fakeLogind(clk, nil)

	parent, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Shutdown(context.WithoutCancel(parent), 60*time.Second, "scheduled"); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(clk.Slept()) != 0 {
		t.Fatalf("Shutdown waited in process: %v", clk.Slept())
	}
	want := []managerRecord{{
		method: "ScheduleShutdown",
		args:   []any{"poweroff", uint64(start.Add(60 * time.Second).UnixMicro())},
	}}
	if !reflect.DeepEqual(*calls, want) {
		t.Fatalf("calls = %+v, want %+v", *calls, want)
	}
	if *closed != 1 {
		t.Fatalf("connection closed %d times", *closed)
	}
}

func TestLogindImmediatePowerOff(t *testing.T) {
	t.Parallel()

	l, calls, _ := fakeLogind(clock.Fake(start), nil)
	if err := l.Shutdown(context.Background(), 0, "emergency"); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	want := []managerRecord{{method: "PowerOff", args: []any{false}}}
	if !reflect.DeepEqual(*calls, want) {
		t.Fatalf("calls = %+v, want %+v", *calls, want)
	}
}

func TestLogindReportsCallFailure(t *testing.T) {
	t.Parallel()

	denied := errors.New("interactive authentication required")
	l, _, closed := fakeLogind(clock.Fake(start), denied)
	if err := l.Shutdown(context.Background(), time.Minute, "scheduled"); !errors.Is(err, denied) {
		t.Fatalf("Shutdown err = %v, want denial", err)
	}
	if *closed != 1 {
		t.Fatalf("connection closed %d times", *closed)
	}
}

func TestLogindDialFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("no system bus")
	l := NewLogind(clock.Fake(start), logx.Nop())
	l.dial = func() (managerCall, func(), error) { return nil, nil, boom }

	if err := l.Shutdown(context.Background(), time.Minute, "emergency"); !errors.Is(err, boom) {
		t.Fatalf("Shutdown err = %v, want boom", err)
	}
}
