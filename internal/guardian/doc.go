// Package guardian implements the unattended session guardian: it tails a
// chat-bearing log, turns authorized chat lines into commands and drives
// the nightly shutdown schedule.
//
// Per tick the Controller runs, strictly in this order:
//
//	Tailer → Parser → EchoFilter → AllowList → RateLimiter → Scheduler.HandleCommand
//	Scheduler.Tick (emergency check, then warning, then scheduled shutdown)
//
// The Scheduler and its ScheduleState are owned by the monitoring goroutine;
// nothing in this package locks them. Collaborators that touch the outside
// world (OutputChannel, ExitSequence, ShutdownInvoker) are interfaces so the
// whole state machine can be driven with a fake clock in tests.
package guardian
