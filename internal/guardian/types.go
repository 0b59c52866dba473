package guardian

import (
	"context"
	"time"
)

// Sources of a ChatEvent.
const (
	SourceLog      = "log"
	SourceTelegram = "telegram"
)

// ChatEvent is one parsed chat line. It is consumed within the tick that
// produced it.
type ChatEvent struct {
	Speaker    string
	Message    string
	ObservedAt time.Time
	Source     string
}

// Activation is the single hand-off from the foreground listener to the
// monitoring loop. Surface identifies where notifications are delivered
// (window id, tmux target, ...); it may be empty.
type Activation struct {
	Surface string
}

// ScheduleState is the mutable schedule. While EmergencyAt is set the
// tick-driven normal-path transitions are frozen.
type ScheduleState struct {
	NextShutdownAt    time.Time
	NextWarningAt     time.Time
	WarningSent       bool
	ShutdownTriggered bool
	EmergencyAt       *time.Time
}

type Phase int

const (
	PhaseScheduled Phase = iota
	PhaseWarningSent
	PhaseShutdownTriggered
	PhaseEmergencyArmed
	PhaseShutdown
)

func (p Phase) String() string {
	switch p {
	case PhaseScheduled:
		return "scheduled"
	case PhaseWarningSent:
		return "warning_sent"
	case PhaseShutdownTriggered:
		return "shutdown_triggered"
	case PhaseEmergencyArmed:
		return "emergency_armed"
	case PhaseShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Command is the outcome of HandleCommand. CommandNone means the message
// changed nothing.
type Command int

const (
	CommandNone Command = iota
	CommandCancel
	CommandExit
	CommandDelay
)

func (c Command) String() string {
	switch c {
	case CommandCancel:
		return "cancel"
	case CommandExit:
		return "exit"
	case CommandDelay:
		return "delay"
	default:
		return "none"
	}
}

// Shutdown reasons handed to the ShutdownInvoker.
const (
	ReasonScheduled = "scheduled"
	ReasonEmergency = "emergency"
)

// OutputChannel delivers notifications into the shared chat the log
// observes. Bind is called once on activation and Release once when the
// monitoring loop exits.
type OutputChannel interface {
	Bind(surface string) error
	Send(ctx context.Context, text string) error
	Release() error
}

// ExitSequence brings the monitored application to a safe, saved state.
type ExitSequence interface {
	Run(ctx context.Context) error
}

// ShutdownInvoker requests the OS power-off after delay.
type ShutdownInvoker interface {
	Shutdown(ctx context.Context, delay time.Duration, reason string) error
}
