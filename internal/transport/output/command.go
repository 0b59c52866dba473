package output

import (
	"context"
	"errors"
	"sync"
	"time"

	"nightguard/internal/guardian"
	"nightguard/internal/hook"
)

const DefaultCommandTimeout = 5 * time.Second

var (
	ErrNoCommand = errors.New("output: command is empty")
	ErrReleased  = errors.New("output: channel released")
)

var _ guardian.OutputChannel = (*CommandChannel)(nil)

// CommandChannel delivers each notification by running an external tool
// (tmux send-keys, xdotool, an rcon client). {message} and {surface} are
// substituted into the configured argv.
type CommandChannel struct {
	argv    []string
	timeout time.Duration
	run     hook.Runner

	mu       sync.Mutex
	surface  string
	released bool
}

// NewCommand validates argv. A nil run uses hook.Exec.
func NewCommand(argv []string, timeout time.Duration, run hook.Runner) (*CommandChannel, error) {
	if len(argv) == 0 {
		return nil, ErrNoCommand
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if run == nil {
		run = hook.Exec
	}
	return &CommandChannel{argv: append([]string(nil), argv...), timeout: timeout, run: run}, nil
}

func (c *CommandChannel) Bind(surface string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface = surface
	c.released = false
	return nil
}

func (c *CommandChannel) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	surface, released := c.surface, c.released
	c.mu.Unlock()
	if released {
		return ErrReleased
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.run(callCtx, hook.Expand(c.argv, map[string]string{
		"message": text,
		"surface": surface,
	}))
	return err
}

func (c *CommandChannel) Release() error {
	c.mu.Lock()
	c.released = true
	c.mu.Unlock()
	return nil
}
