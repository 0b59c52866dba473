package guardian

import (
	"context"
	"time"

	logx "nightguard/pkg/logx"
)

const (
	DefaultTick = time.Second
	// readBackoff pauses polling after a failed log read; timers keep running.
	readBackoff = 5 * time.Second
)

// ControllerConfig wires the input side of the monitoring loop.
type ControllerConfig struct {
	Tailer   *Tailer
	Parser   *Parser // nil: DefaultParser
	Allow    AllowList
	Echo     EchoFilter
	Limiter  *RateLimiter // nil: NewRateLimiter(CommandWindow)
	Schedule SchedulerConfig
	Tick     time.Duration

	// Inbound carries chat events from other channels (Telegram). Drained
	// without blocking at the start of every tick.
	Inbound <-chan ChatEvent
	// Wake lets the tailer's file watcher run a tick early.
	Wake <-chan struct{}
}

// Controller runs the monitoring loop. Start and Tick must be called from
// the same goroutine; Run does both.
type Controller struct {
	cfg  ControllerConfig
	deps Deps
	log  logx.Logger

	sched *Scheduler

	readFailures int
	retryAt      time.Time
}

func NewController(cfg ControllerConfig, deps Deps) *Controller {
	deps = deps.withDefaults()
	if cfg.Parser == nil {
		cfg.Parser = DefaultParser()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(CommandWindow)
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Schedule.Messages.Lang == "" {
		cfg.Schedule.Messages, _ = CatalogFor("en")
	}
	if len(cfg.Echo.phrases) == 0 {
		cfg.Echo = cfg.Schedule.Messages.EchoFilter()
	}
	return &Controller{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.With(logx.String("comp", "guardian")),
	}
}

// Scheduler is nil until Start succeeded.
func (c *Controller) Scheduler() *Scheduler { return c.sched }

// Start begins a monitoring session: binds the output surface, skips the
// log history, builds the schedule from the current time and announces
// itself.
func (c *Controller) Start(ctx context.Context, act Activation) error {
	if c.deps.Output != nil {
		if err := c.deps.Output.Bind(act.Surface); err != nil {
			return err
		}
	}
	if c.cfg.Tailer != nil {
		if err := c.cfg.Tailer.SeekEnd(); err != nil {
			// Not fatal: the file may appear later; Poll retries with backoff.
			c.log.Warn("log source not readable at start", logx.String("path", c.cfg.Tailer.Path()), logx.Err(err))
		}
	}
	now := c.deps.Clock.Now()
	sched, err := NewScheduler(c.cfg.Schedule, now, c.deps)
	if err != nil {
		return err
	}
	c.sched = sched
	c.log.Info("guardian activated",
		logx.String("surface", act.Surface),
		logx.Bool("open_mode", c.cfg.Allow.Open()),
		logx.Strings("allowed", c.cfg.Allow.Fragments()),
	)
	sched.Announce(ctx, now)
	return nil
}

// Tick runs one evaluation cycle and reports whether the session reached its
// terminal shutdown.
func (c *Controller) Tick(ctx context.Context) bool {
	if c.sched == nil {
		return false
	}
	c.drainInbound(ctx)

	now := c.deps.Clock.Now()
	for _, line := range c.poll(now) {
		speaker, message, ok := c.cfg.Parser.Parse(line)
		if !ok {
			continue
		}
		c.handle(ctx, ChatEvent{Speaker: speaker, Message: message, ObservedAt: now, Source: SourceLog})
	}

	return c.sched.Tick(ctx, c.deps.Clock.Now())
}

func (c *Controller) drainInbound(ctx context.Context) {
	if c.cfg.Inbound == nil {
		return
	}
	for {
		select {
		case ev, ok := <-c.cfg.Inbound:
			if !ok {
				c.cfg.Inbound = nil
				return
			}
			if ev.ObservedAt.IsZero() {
				ev.ObservedAt = c.deps.Clock.Now()
			}
			c.handle(ctx, ev)
		default:
			return
		}
	}
}

func (c *Controller) poll(now time.Time) []string {
	if c.cfg.Tailer == nil {
		return nil
	}
	if !c.retryAt.IsZero() && now.Before(c.retryAt) {
		return nil
	}
	lines, err := c.cfg.Tailer.Poll()
	if err != nil {
		c.readFailures++
		c.retryAt = now.Add(readBackoff)
		level := logx.LevelWarn
		if c.readFailures > 1 {
			level = logx.LevelError
		}
		c.log.Log(level, "log read failed",
			logx.String("path", c.cfg.Tailer.Path()),
			logx.Int("failures", c.readFailures),
			logx.Duration("retry_in", readBackoff),
			logx.Err(err),
		)
		return nil
	}
	if c.readFailures > 0 {
		c.log.Info("log source readable again", logx.Int("failures", c.readFailures))
	}
	c.readFailures = 0
	c.retryAt = time.Time{}
	return lines
}

func (c *Controller) handle(ctx context.Context, ev ChatEvent) {
	if c.cfg.Echo.IsEcho(ev.Message) {
		c.log.Trace("own notice ignored", logx.String("message", ev.Message))
		return
	}
	if !c.cfg.Allow.Authorized(ev.Speaker) {
		c.log.Debug("speaker not allowed", logx.String("speaker", ev.Speaker), logx.String("source", ev.Source))
		return
	}
	if !c.cfg.Limiter.Accept(ev.Speaker, ev.ObservedAt) {
		c.log.Debug("rate limited", logx.String("speaker", ev.Speaker))
		return
	}
	if cmd := c.sched.HandleCommand(ctx, ev); cmd != CommandNone {
		c.log.Info("command accepted",
			logx.String("command", cmd.String()),
			logx.String("speaker", ev.Speaker),
			logx.String("source", ev.Source),
		)
	}
}

// Run waits for one activation, then ticks until the terminal shutdown or
// ctx is cancelled. The output channel is released on every exit path
// after a successful bind.
func (c *Controller) Run(ctx context.Context, activations <-chan Activation) error {
	var act Activation
	select {
	case <-ctx.Done():
		return nil
	case a, ok := <-activations:
		if !ok {
			return nil
		}
		act = a
	}

	if err := c.Start(ctx, act); err != nil {
		if c.deps.Output != nil {
			_ = c.deps.Output.Release()
		}
		return err
	}
	defer c.release()

	ticker := c.deps.Clock.NewTicker(c.cfg.Tick)
	defer ticker.Stop()

	if c.Tick(ctx) {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			c.log.Info("monitoring stopped", logx.String("phase", c.sched.Phase().String()))
			return nil
		case <-ticker.C:
		case <-c.cfg.Wake:
		}
		if ctx.Err() != nil {
			c.log.Info("monitoring stopped", logx.String("phase", c.sched.Phase().String()))
			return nil
		}
		if c.Tick(ctx) {
			c.log.Info("session finished", logx.String("phase", c.sched.Phase().String()))
			return nil
		}
	}
}

func (c *Controller) release() {
	if c.deps.Output == nil {
		return
	}
	if err := c.deps.Output.Release(); err != nil {
		c.log.Warn("output release failed", logx.Err(err))
	}
}
