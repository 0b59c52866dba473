// Package activation waits for the operator to arm the guardian.
//
// The listener puts the terminal in raw mode, waits for a single hotkey,
// optionally captures the output surface with an external command and
// hands exactly one guardian.Activation to the monitoring loop.
package activation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"nightguard/internal/guardian"
	"nightguard/internal/hook"
	logx "nightguard/pkg/logx"
)

const (
	DefaultHotkey  = "F8"
	captureTimeout = 10 * time.Second
	ctrlC          = 0x03
)

var ErrInterrupted = errors.New("activation: interrupted")

type Options struct {
	Hotkey  string
	Capture []string // argv whose stdout becomes Activation.Surface
	NoWait  bool     // activate immediately
	In      *os.File // defaults to os.Stdin
	Run     hook.Runner
	Log     logx.Logger
}

type Listener struct {
	opts Options
	keys [][]byte
}

func New(opts Options) (*Listener, error) {
	if opts.Hotkey == "" {
		opts.Hotkey = DefaultHotkey
	}
	keys, err := KeySequences(opts.Hotkey)
	if err != nil {
		return nil, err
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Run == nil {
		opts.Run = hook.Exec
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	return &Listener{opts: opts, keys: keys}, nil
}

// Run waits for the hotkey and sends one Activation on out. It returns
// nil on ctx cancellation without sending anything.
func (l *Listener) Run(ctx context.Context, out chan<- guardian.Activation) error {
	if !l.opts.NoWait {
		if err := l.waitHotkey(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	act := guardian.Activation{}
	if len(l.opts.Capture) > 0 {
		surface, err := l.capture(ctx)
		if err != nil {
			l.opts.Log.Warn("surface capture failed; continuing without one", logx.Err(err))
		} else {
			act.Surface = surface
			l.opts.Log.Info("surface captured", logx.String("surface", surface))
		}
	}

	select {
	case out <- act:
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (l *Listener) capture(ctx context.Context) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()
	return l.opts.Run(cctx, l.opts.Capture)
}

func (l *Listener) waitHotkey(ctx context.Context) error {
	fd := int(l.opts.In.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return err
		}
		defer func() { _ = term.Restore(fd, state) }()
		l.opts.Log.Info("waiting for activation key", logx.String("key", l.opts.Hotkey))
		return waitKeys(ctx, l.opts.In, l.keys, true)
	}
	// Not a terminal (service, pipe): any newline activates.
	l.opts.Log.Info("stdin is not a terminal; press Enter to activate")
	if err := waitKeys(ctx, l.opts.In, [][]byte{{'\n'}}, false); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("stdin closed before activation (use --no-wait when running unattended): %w", err)
		}
		return err
	}
	return nil
}

// waitKeys reads r until one of keys arrives. The read runs in its own
// goroutine because a terminal read cannot be interrupted; once waitKeys
// returns that goroutine exits on its next read.
func waitKeys(ctx context.Context, r io.Reader, keys [][]byte, raw bool) error {
	longest := 0
	for _, k := range keys {
		longest = max(longest, len(k))
	}

	rctx, stop := context.WithCancel(ctx)
	defer stop()

	type chunk struct {
		b   []byte
		err error
	}
	ch := make(chan chunk, 1)
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := r.Read(buf)
			c := chunk{b: append([]byte(nil), buf[:n]...), err: err}
			select {
			case ch <- c:
			case <-rctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var window []byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-ch:
			for _, b := range c.b {
				if raw && b == ctrlC {
					return ErrInterrupted
				}
				window = append(window, b)
				if len(window) > longest {
					window = window[len(window)-longest:]
				}
				for _, k := range keys {
					if bytes.HasSuffix(window, k) {
						return nil
					}
				}
			}
			if c.err != nil {
				if errors.Is(c.err, io.EOF) {
					return io.ErrUnexpectedEOF
				}
				return c.err
			}
		}
	}
}
