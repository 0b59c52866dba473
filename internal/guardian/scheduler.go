package guardian

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"nightguard/internal/clock"
	"nightguard/internal/eventbus"
	logx "nightguard/pkg/logx"
)

const (
	DefaultWarningLead   = 15 * time.Minute
	DefaultSaveTimeout   = 20 * time.Second
	DefaultShutdownDelay = 60 * time.Second
	DefaultNoticePause   = 2 * time.Second

	// EmergencyDelay is the grace period between "exit" and the emergency
	// shutdown. The catalogs say "30 seconds" literally.
	EmergencyDelay = 30 * time.Second
	// DelayStep is what one "delay" command adds to the schedule.
	DelayStep = time.Hour

	// delayGuard is the minimum extension a "delay" must produce to be applied.
	delayGuard = 3500 * time.Second
)

var ErrInvalidShutdownAt = errors.New("invalid shutdown time")

var (
	reClock    = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)
	cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// ParseShutdownAt accepts "HH:MM" (24h) or a 5-field cron expression
// ("15 2 * * 1-5", "@daily").
func ParseShutdownAt(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidShutdownAt)
	}
	expr := s
	if m := reClock.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if hh > 23 || mm > 59 {
			return nil, fmt.Errorf("%w: %q out of range", ErrInvalidShutdownAt, raw)
		}
		expr = fmt.Sprintf("%d %d * * *", mm, hh)
	} else if !strings.ContainsAny(s, " \t") && !strings.HasPrefix(s, "@") {
		return nil, fmt.Errorf("%w: %q (use HH:MM or a cron expression)", ErrInvalidShutdownAt, raw)
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidShutdownAt, raw, err)
	}
	return sched, nil
}

// NextShutdown returns the first occurrence of raw strictly after now, in loc
// (nil: now's location).
func NextShutdown(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	sched, err := ParseShutdownAt(raw)
	if err != nil {
		return time.Time{}, err
	}
	if loc != nil {
		now = now.In(loc)
	}
	next := sched.Next(now)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q never occurs", ErrInvalidShutdownAt, raw)
	}
	return next, nil
}

// SchedulerConfig holds already-validated settings. Zero durations take the
// Default* values.
type SchedulerConfig struct {
	ShutdownAt    string
	Location      *time.Location
	WarningLead   time.Duration
	SaveTimeout   time.Duration
	ShutdownDelay time.Duration
	// NoticePause surrounds notices on the scheduled shutdown path so they
	// reach the chat before the exit sequence takes focus.
	NoticePause time.Duration
	Messages    Catalog
	SessionID   string
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.WarningLead <= 0 {
		c.WarningLead = DefaultWarningLead
	}
	if c.SaveTimeout < 0 {
		c.SaveTimeout = 0
	} else if c.SaveTimeout == 0 {
		c.SaveTimeout = DefaultSaveTimeout
	}
	if c.ShutdownDelay <= 0 {
		c.ShutdownDelay = DefaultShutdownDelay
	}
	if c.NoticePause < 0 {
		c.NoticePause = 0
	} else if c.NoticePause == 0 {
		c.NoticePause = DefaultNoticePause
	}
	if c.Messages.Lang == "" {
		c.Messages, _ = CatalogFor("en")
	}
	return c
}

// Deps are the scheduler's and controller's collaborators. Nil members get
// harmless defaults (real clock, no-op logger, no bus).
type Deps struct {
	Output OutputChannel
	Exit   ExitSequence
	Power  ShutdownInvoker
	Clock  clock.Clock
	Bus    eventbus.Bus
	Log    logx.Logger
	Dedup  *Deduper
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Dedup == nil {
		d.Dedup = NewDeduper(DedupWindow)
	}
	return d
}

// Scheduler is the shutdown state machine. It is driven by exactly one
// goroutine (the monitoring loop) and is not safe for concurrent use.
type Scheduler struct {
	cfg  SchedulerConfig
	deps Deps
	log  logx.Logger

	state    ScheduleState
	terminal bool
}

// NewScheduler computes the first shutdown strictly after now. An invalid
// shutdown time is a start-up error.
func NewScheduler(cfg SchedulerConfig, now time.Time, deps Deps) (*Scheduler, error) {
	cfg = cfg.withDefaults()
	deps = deps.withDefaults()

	next, err := NextShutdown(cfg.ShutdownAt, now, cfg.Location)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.With(logx.String("comp", "scheduler")),
	}
	s.state.NextShutdownAt = next
	s.state.NextWarningAt = next.Add(-cfg.WarningLead)
	return s, nil
}

// State returns a copy of the schedule.
func (s *Scheduler) State() ScheduleState {
	st := s.state
	if st.EmergencyAt != nil {
		at := *st.EmergencyAt
		st.EmergencyAt = &at
	}
	return st
}

func (s *Scheduler) Phase() Phase {
	switch {
	case s.terminal:
		return PhaseShutdown
	case s.state.EmergencyAt != nil:
		return PhaseEmergencyArmed
	case s.state.ShutdownTriggered:
		return PhaseShutdownTriggered
	case s.state.WarningSent:
		return PhaseWarningSent
	default:
		return PhaseScheduled
	}
}

// Done reports whether a terminal shutdown has been issued.
func (s *Scheduler) Done() bool { return s.terminal }

// Announce sends the activation notice and publishes guardian.started.
func (s *Scheduler) Announce(ctx context.Context, now time.Time) {
	s.log.Info("monitoring started",
		logx.Time("next_shutdown_at", s.state.NextShutdownAt),
		logx.Time("next_warning_at", s.state.NextWarningAt),
	)
	s.publish(EventStarted, now, EventData{})
	s.notify(ctx, now, s.cfg.Messages.Activation)
}

// Tick evaluates the time-driven transitions once, emergency first. It
// returns true once the terminal shutdown has been issued.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) bool {
	if s.terminal {
		return true
	}
	if at := s.state.EmergencyAt; at != nil {
		if !now.Before(*at) {
			s.emergencyShutdown(ctx, now)
			return true
		}
		// Normal path is frozen while armed.
		return false
	}
	if !s.state.WarningSent && !now.Before(s.state.NextWarningAt) {
		s.state.WarningSent = true
		minutes := int(s.cfg.WarningLead / time.Minute)
		s.log.Info("warning due", logx.Int("minutes", minutes))
		s.publish(EventWarning, now, EventData{})
		s.notify(ctx, now, s.cfg.Messages.warning(minutes))
		return false
	}
	if !s.state.ShutdownTriggered && !now.Before(s.state.NextShutdownAt) {
		s.scheduledShutdown(ctx, now)
		return true
	}
	return false
}

// HandleCommand applies an authorized, rate-accepted chat event. The first
// rule the message satisfies wins: cancel (only while armed), exit (only
// while not armed), delay.
func (s *Scheduler) HandleCommand(ctx context.Context, ev ChatEvent) Command {
	if s.terminal {
		return CommandNone
	}
	now := ev.ObservedAt
	if now.IsZero() {
		now = s.deps.Clock.Now()
	}
	msg := normalizeMessage(ev.Message)
	armed := s.state.EmergencyAt != nil
	s.publish(EventCommand, now, EventData{Speaker: ev.Speaker, Source: ev.Source, Text: ev.Message})

	var cmd Command
	switch {
	case strings.Contains(msg, "cancel") && armed:
		s.state.EmergencyAt = nil
		cmd = CommandCancel
		s.log.Info("emergency shutdown cancelled", logx.String("speaker", ev.Speaker))
		s.publishCommand(EventEmergencyCancelled, now, ev, cmd)
		s.notify(ctx, now, s.cfg.Messages.EmergencyCancelled)
	case strings.Contains(msg, "exit") && !armed:
		at := now.Add(EmergencyDelay)
		s.state.EmergencyAt = &at
		cmd = CommandExit
		s.log.Warn("emergency shutdown armed",
			logx.String("speaker", ev.Speaker),
			logx.Time("emergency_at", at),
		)
		s.publishCommand(EventEmergencyArmed, now, ev, cmd)
		s.notify(ctx, now, s.cfg.Messages.EmergencyArmed)
	case strings.Contains(msg, "delay"):
		candidate := s.state.NextShutdownAt.Add(DelayStep)
		if !delayApplies(s.state.NextShutdownAt, candidate) {
			s.log.Debug("delay rejected", logx.String("speaker", ev.Speaker))
			return CommandNone
		}
		s.state.NextShutdownAt = candidate
		s.state.NextWarningAt = candidate.Add(-s.cfg.WarningLead)
		s.state.WarningSent = false
		s.state.ShutdownTriggered = false
		cmd = CommandDelay
		hhmm := s.clockTime(candidate)
		s.log.Info("shutdown delayed", logx.String("speaker", ev.Speaker), logx.String("new_time", hhmm))
		s.publishCommand(EventDelayed, now, ev, cmd)
		s.notify(ctx, now, s.cfg.Messages.delayed(hhmm))
	default:
		return CommandNone
	}
	return cmd
}

// delayApplies is the guard against stacked delays landing in the same
// window: the extension must be at least 3500s.
func delayApplies(current, candidate time.Time) bool {
	return candidate.Sub(current) >= delayGuard
}

func (s *Scheduler) clockTime(t time.Time) string {
	if s.cfg.Location != nil {
		t = t.In(s.cfg.Location)
	}
	return t.Format("15:04")
}

func (s *Scheduler) scheduledShutdown(ctx context.Context, now time.Time) {
	// Nothing below may be interrupted once the sequence has started.
	ctx = context.WithoutCancel(ctx)
	s.state.ShutdownTriggered = true
	s.log.Warn("scheduled shutdown started")
	s.publish(EventShutdownBegin, now, EventData{Reason: ReasonScheduled})

	s.notify(ctx, now, s.cfg.Messages.ShutdownStart)
	s.deps.Clock.Sleep(s.cfg.NoticePause)
	s.runExit(ctx)
	s.saveWait()
	s.notify(ctx, s.deps.Clock.Now(), s.cfg.Messages.success(int(s.cfg.ShutdownDelay/time.Second)))
	s.deps.Clock.Sleep(s.cfg.NoticePause)
	s.powerOff(ctx, ReasonScheduled)
}

func (s *Scheduler) emergencyShutdown(ctx context.Context, now time.Time) {
	ctx = context.WithoutCancel(ctx)
	s.log.Warn("emergency timer expired")
	s.publish(EventShutdownBegin, now, EventData{Reason: ReasonEmergency})

	s.runExit(ctx)
	s.saveWait()
	s.powerOff(ctx, ReasonEmergency)
}

func (s *Scheduler) runExit(ctx context.Context) {
	if s.deps.Exit == nil {
		return
	}
	if err := s.deps.Exit.Run(ctx); err != nil {
		s.log.Error("exit sequence failed", logx.Err(err))
	}
}

// saveWait is deliberately not cancellable.
func (s *Scheduler) saveWait() {
	s.log.Info("waiting for save", logx.Duration("timeout", s.cfg.SaveTimeout))
	s.deps.Clock.Sleep(s.cfg.SaveTimeout)
}

func (s *Scheduler) powerOff(ctx context.Context, reason string) {
	var errStr string
	if s.deps.Power != nil {
		if err := s.deps.Power.Shutdown(ctx, s.cfg.ShutdownDelay, reason); err != nil {
			s.log.Error("shutdown request failed", logx.String("reason", reason), logx.Err(err))
			errStr = err.Error()
		}
	}
	// Terminal even on failure: a failed power-off is not retried.
	s.terminal = true
	s.log.Warn("shutdown issued", logx.String("reason", reason), logx.Duration("delay", s.cfg.ShutdownDelay))
	s.publish(EventShutdownDone, s.deps.Clock.Now(), EventData{Reason: reason, Error: errStr})
}

func (s *Scheduler) notify(ctx context.Context, now time.Time, text string) {
	if s.deps.Output == nil || text == "" {
		return
	}
	if !s.deps.Dedup.ShouldSend(text, now) {
		s.log.Debug("duplicate notice suppressed", logx.String("text", text))
		return
	}
	if err := s.deps.Output.Send(ctx, text); err != nil {
		s.deps.Dedup.Forget(text)
		s.log.Warn("notice delivery failed", logx.String("text", text), logx.Err(err))
		s.publish(EventNoticeFailed, now, EventData{Text: text, Error: err.Error()})
		return
	}
	s.log.Debug("notice sent", logx.String("text", text))
}

func (s *Scheduler) publishCommand(typ string, now time.Time, ev ChatEvent, cmd Command) {
	s.publish(typ, now, EventData{Speaker: ev.Speaker, Source: ev.Source, Command: cmd.String()})
}

func (s *Scheduler) publish(typ string, now time.Time, d EventData) {
	if s.deps.Bus == nil {
		return
	}
	d.SessionID = s.cfg.SessionID
	d.Phase = s.Phase().String()
	d.NextShutdownAt = s.state.NextShutdownAt
	if s.state.EmergencyAt != nil {
		at := *s.state.EmergencyAt
		d.EmergencyAt = &at
	}
	s.deps.Bus.Publish(eventbus.Event{Type: typ, Time: now, Data: d})
}
