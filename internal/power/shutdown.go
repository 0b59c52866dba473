package power

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"strings"
	"time"

	"nightguard/internal/clock"
	"nightguard/internal/guardian"
	"nightguard/internal/hook"
	logx "nightguard/pkg/logx"
)

// Driver names accepted by New.
const (
	DriverDryRun  = "dry-run"
	DriverCommand = "command"
	DriverLogind  = "logind"
)

var ErrUnknownDriver = errors.New("power: unknown driver")

// Options configures New.
type Options struct {
	Driver  string
	Command []string // overrides the platform default for DriverCommand
	GOOS    string   // defaults to runtime.GOOS
	Run     hook.Runner
	Clock   clock.Clock
	Log     logx.Logger
}

// New returns the ShutdownInvoker for opts.Driver. An empty driver is a dry run.
func New(opts Options) (guardian.ShutdownInvoker, error) {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverDryRun, "dryrun":
		return &DryRun{log: opts.Log}, nil
	case DriverCommand:
		argv := opts.Command
		if len(argv) == 0 {
			goos := opts.GOOS
			if goos == "" {
				goos = runtime.GOOS
			}
			argv = DefaultCommand(goos)
		}
		return NewCommand(argv, opts.Run, opts.Log), nil
	case DriverLogind:
		return NewLogind(opts.Clock, opts.Log), nil
	default:
		return nil, ErrUnknownDriver
	}
}

// DryRun only logs the request.
type DryRun struct {
	log logx.Logger
}

func (d *DryRun) Shutdown(_ context.Context, delay time.Duration, reason string) error {
	d.log.Warn("dry-run: power off requested", logx.Duration("delay", delay), logx.String("reason", reason))
	return nil
}

// DefaultCommand is the platform's delayed power-off command.
func DefaultCommand(goos string) []string {
	if goos == "windows" {
		return []string{"shutdown", "/s", "/t", "{seconds}", "/c", "nightguard: {reason}"}
	}
	return []string{"shutdown", "-h", "+{minutes}", "nightguard: {reason}"}
}

// Command runs an OS command. Placeholders: {seconds}, {minutes} (rounded
// up, at least 1) and {reason}.
type Command struct {
	argv []string
	run  hook.Runner
	log  logx.Logger
}

func NewCommand(argv []string, run hook.Runner, log logx.Logger) *Command {
	if run == nil {
		run = hook.Exec
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Command{argv: append([]string(nil), argv...), run: run, log: log}
}

func (c *Command) Shutdown(ctx context.Context, delay time.Duration, reason string) error {
	secs := int(delay / time.Second)
	if secs < 0 {
		secs = 0
	}
	mins := (secs + 59) / 60
	if mins < 1 {
		mins = 1
	}
	argv := hook.Expand(c.argv, map[string]string{
		"seconds": strconv.Itoa(secs),
		"minutes": strconv.Itoa(mins),
		"reason":  reason,
	})
	c.log.Info("requesting power off", logx.Strings("argv", argv))
	_, err := c.run(ctx, argv)
	return err
}
