// Package app wires the guardian to its configuration, collaborators and
// process lifecycle.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"nightguard/internal/activation"
	"nightguard/internal/clock"
	"nightguard/internal/config"
	"nightguard/internal/eventbus"
	"nightguard/internal/guardian"
	"nightguard/internal/notifier"
	"nightguard/internal/power"
	rtsup "nightguard/internal/runtime/supervisor"
	"nightguard/internal/storage"
	kit "nightguard/internal/transport"
	"nightguard/internal/transport/output"
	telegram "nightguard/internal/transport/telegram/adapter"
	"nightguard/internal/transport/telegram/inbound"
	logx "nightguard/pkg/logx"
	"nightguard/pkg/systemd"
)

// Options are the command-line level settings.
type Options struct {
	ConfigPath string
	NoWait     bool
	Stdin      *os.File
	// Clock is injected by tests; nil means the wall clock.
	Clock clock.Clock
}

type App struct {
	opts Options

	cfgm *config.ConfigManager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	clk  clock.Clock

	store     storage.Store
	sessionID string

	adapter *telegram.Adapter
	notif   *notifier.Service
	pump    *inbound.Pump
	updates chan kit.Update

	tailer   *guardian.Tailer
	seq      *power.Sequence
	listener *activation.Listener
	ctrl     *guardian.Controller

	inboundCh chan guardian.ChatEvent
	wake      chan struct{}

	sup *rtsup.Supervisor
}

// New loads the configuration and builds every component. Any error is a
// configuration error and the guardian must not start.
func New(opts Options) (*App, error) {
	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	schedCfg, err := ScheduleConfig(cfg)
	if err != nil {
		return nil, err
	}
	tick, err := mapTick(cfg)
	if err != nil {
		return nil, err
	}
	steps, err := mapExitSteps(cfg)
	if err != nil {
		return nil, err
	}
	outTimeout, err := config.ParseDurationOrDefault("output.timeout", cfg.Output.Timeout, output.DefaultCommandTimeout)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	a := &App{
		opts:      opts,
		cfgm:      cfgm,
		cfg:       cfg,
		log:       log.With(logx.String("comp", "app")),
		logs:      logSvc,
		bus:       eventbus.New(),
		clk:       clk,
		sessionID: uuid.NewString(),
		inboundCh: make(chan guardian.ChatEvent, 32),
		wake:      make(chan struct{}, 1),
	}
	schedCfg.SessionID = a.sessionID

	fail := func(err error) (*App, error) {
		a.closeStore()
		_ = logSvc.Close()
		return nil, err
	}

	a.store, err = OpenStore(cfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return fail(err)
	}

	a.tailer, err = guardian.NewTailer(cfg.Guardian.LogPath, cfg.Guardian.LogEncoding, log.With(logx.String("comp", "tailer")))
	if err != nil {
		return fail(fmt.Errorf("guardian.log_encoding: %w", err))
	}

	out, err := a.buildOutput(cfg, outTimeout, log)
	if err != nil {
		return fail(err)
	}

	a.seq = power.NewSequence(steps, nil, clk, log.With(logx.String("comp", "exit")))
	inv, err := power.New(power.Options{
		Driver:  cfg.Power.Driver,
		Command: cfg.Power.Command,
		Clock:   clk,
		Log:     log.With(logx.String("comp", "power")),
	})
	if err != nil {
		return fail(fmt.Errorf("power.driver: %w", err))
	}

	a.listener, err = activation.New(activation.Options{
		Hotkey:  cfg.Guardian.ActivationHotkey,
		Capture: cfg.Output.CaptureCommand,
		NoWait:  opts.NoWait,
		In:      opts.Stdin,
		Log:     log.With(logx.String("comp", "activation")),
	})
	if err != nil {
		return fail(fmt.Errorf("guardian.activation_hotkey: %w", err))
	}

	ctrlCfg := guardian.ControllerConfig{
		Tailer:   a.tailer,
		Allow:    guardian.ParseAllowList(cfg.Guardian.AllowedSpeakers),
		Schedule: schedCfg,
		Tick:     tick,
		Wake:     a.wake,
	}
	if a.pump != nil {
		ctrlCfg.Inbound = a.inboundCh
	}
	a.ctrl = guardian.NewController(ctrlCfg, guardian.Deps{
		Output: out,
		Exit:   a.seq,
		Power:  inv,
		Clock:  clk,
		Bus:    a.bus,
		Log:    log,
	})
	return a, nil
}

// buildOutput assembles the primary output driver and the optional
// Telegram mirror.
func (a *App) buildOutput(cfg *config.Config, timeout time.Duration, log logx.Logger) (guardian.OutputChannel, error) {
	var primary guardian.OutputChannel
	switch strings.ToLower(strings.TrimSpace(cfg.Output.Driver)) {
	case "", "log":
		primary = output.NewLog(log.With(logx.String("comp", "output")))
	case "command":
		ch, err := output.NewCommand(cfg.Output.Command, timeout, nil)
		if err != nil {
			return nil, fmt.Errorf("output.command: %w", err)
		}
		primary = ch
	default:
		return nil, fmt.Errorf("output.driver: unknown %q", cfg.Output.Driver)
	}

	tg := cfg.Telegram
	if !tg.Enabled {
		return primary, nil
	}
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", tg.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: tg.Token, PollTimeout: pollTimeout}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	a.adapter = ad
	a.notif = notifier.New(mapNotifierConfig(cfg), ad, log.With(logx.String("comp", "notifier")), a.bus)
	if tg.AcceptCommands {
		a.pump = inbound.NewPump(tg.ChatID, a.clk, log.With(logx.String("comp", "telegram.inbound")))
		a.updates = make(chan kit.Update, 64)
	}
	mirror := output.NewTelegram(a.notif, kit.ChatTarget{ChatID: tg.ChatID, ThreadID: tg.ThreadID}, 0)
	return output.NewFanout(primary, log.With(logx.String("comp", "output")), mirror), nil
}

func (a *App) SessionID() string { return a.sessionID }

// Run starts the background services, waits for activation and monitors
// until the session reaches its terminal shutdown or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	sctx := a.sup.Context()

	guardEvents, unsubGuard := a.bus.SubscribePrefix(guardian.EventPrefix, 256)
	lossEvents, unsubLoss := a.bus.SubscribePrefix(notifier.EventPrefix, 64)
	unsub := func() {
		unsubGuard()
		unsubLoss()
	}
	rec := &auditRecorder{store: a.store, sessionID: a.sessionID, log: a.log.With(logx.String("comp", "audit"))}
	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		rec.run(guardEvents, lossEvents)
	}()

	if err := a.startTelegram(sctx); err != nil {
		a.stop()
		unsub()
		<-auditDone
		a.shutdown()
		return err
	}

	a.sup.GoRestart("tailer.watch", func(c context.Context) error {
		return a.tailer.Watch(c, a.wake)
	}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))

	a.startConfigReload()

	if d, err := systemd.WatchdogInterval(); err != nil {
		a.log.Warn("systemd watchdog misconfigured", logx.Err(err))
	} else if d > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) { systemd.RunWatchdog(c, d) })
	}
	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	raw := make(chan guardian.Activation, 1)
	acts := make(chan guardian.Activation, 1)
	a.sup.Go("activation", func(c context.Context) error {
		return a.listener.Run(c, raw)
	})
	a.sup.Go0("activation.bind", func(c context.Context) {
		select {
		case <-c.Done():
		case act := <-raw:
			a.seq.Bind(act.Surface)
			acts <- act
		}
	})

	done := make(chan error, 1)
	a.sup.Go("guardian", func(c context.Context) error {
		err := a.ctrl.Run(c, acts)
		done <- err
		return err
	})

	a.log.Info("nightguard started",
		logx.String("session", a.sessionID),
		logx.String("log_path", a.cfg.Guardian.LogPath),
		logx.String("shutdown_at", a.cfg.Guardian.ShutdownAt),
	)

	var runErr error
	select {
	case runErr = <-done:
		if sch := a.ctrl.Scheduler(); sch != nil && sch.Done() {
			_, _ = systemd.Status("powering off (%s)", sch.Phase())
		}
	case <-sctx.Done():
		runErr = a.sup.Err()
	}

	_, _ = systemd.Stopping()
	a.stop()
	unsub()
	<-auditDone
	a.shutdown()
	return runErr
}

func (a *App) startTelegram(ctx context.Context) error {
	if a.notif == nil {
		return nil
	}
	a.notif.Start(ctx)
	if a.pump == nil {
		// Outbound only: no long polling needed to send.
		return nil
	}
	if err := a.adapter.Start(ctx, a.updates); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	a.sup.Go0("telegram.inbound", func(c context.Context) {
		a.pump.Run(c, a.updates, a.inboundCh)
		if n := a.pump.Dropped(); n > 0 {
			a.log.Warn("telegram commands dropped while the guardian was busy", logx.Uint64("dropped", n))
		}
	})
	menuCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.adapter.UpdateMenuCommands(menuCtx, inbound.MenuCommands); err != nil {
		a.log.Warn("telegram command menu not updated", logx.Err(err))
	}
	cancel()
	return nil
}

// startConfigReload applies logging changes live; everything else is
// bound to the running session and only reported.
func (a *App) startConfigReload() {
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfg
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				sections, fields := config.SummarizeConfigChange(last, next)
				last = next
				if len(sections) == 0 {
					a.log.Debug("config reloaded (no changes)")
					continue
				}
				a.logs.Apply(mapLogConfig(next))
				if restart := config.RestartRequired(sections); len(restart) > 0 {
					a.log.Warn("config changed; restart required for changes to take effect",
						logx.String("sections", strings.Join(restart, ",")))
				}
				a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
}

// stop unwinds the background services. The notifier drains its queue so
// the final notices still reach Telegram.
func (a *App) stop() {
	a.sup.Cancel()

	if a.notif != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.notif.Stop(ctx)
		cancel()
	}
	if a.adapter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.adapter.Stop(ctx); err != nil {
			a.log.Warn("telegram stop failed", logx.Err(err))
		}
		cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.sup.Wait(ctx); err != nil && ctx.Err() != nil {
		a.log.Warn("background goroutines still running", logx.Int64("active", a.sup.Active()))
	}
}

func (a *App) shutdown() {
	a.closeStore()
	a.log.Info("stopped", logx.String("session", a.sessionID))
	_ = a.logs.Close()
}

func (a *App) closeStore() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("audit store close failed", logx.Err(err))
	}
	a.store = nil
}
