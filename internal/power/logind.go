package power

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"nightguard/internal/clock"
	logx "nightguard/pkg/logx"
)

const (
	login1Dest    = "org.freedesktop.login1"
	login1Path    = dbus.ObjectPath("/org/freedesktop/login1")
	login1Manager = "org.freedesktop.login1.Manager"

	logindCallTimeout = 10 * time.Second
)

// managerCall invokes a login1 Manager method and returns the call error.
type managerCall func(ctx context.Context, method string, args ...any) error

func dialLogin1() (managerCall, func(), error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, nil, err
	}
	obj := conn.Object(login1Dest, login1Path)
	call := func(ctx context.Context, method string, args ...any) error {
		return obj.CallWithContext(ctx, login1Manager+"."+method, 0, args...).Err
	}
	return call, func() { _ = conn.Close() }, nil
}

// Logind hands the power-off to systemd-logind. A positive delay becomes a
// ScheduleShutdown so the wait belongs to the OS and survives our exit.
type Logind struct {
	clock clock.Clock
	log   logx.Logger
	dial  func() (managerCall, func(), error)
}

func NewLogind(clk clock.Clock, log logx.Logger) *Logind {
	if clk == nil {
		clk = clock.Real()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Logind{clock: clk, log: log, dial: dialLogin1}
}

func (l *Logind) Shutdown(ctx context.Context, delay time.Duration, reason string) error {
	call, closeConn, err := l.dial()
	if err != nil {
		return fmt.Errorf("logind: %w", err)
	}
	defer closeConn()

	cctx, cancel := context.WithTimeout(ctx, logindCallTimeout)
	defer cancel()

	if delay <= 0 {
		if err := call(cctx, "PowerOff", false); err != nil {
			return fmt.Errorf("logind PowerOff: %w", err)
		}
		l.log.Info("power off requested via logind", logx.String("reason", reason))
		return nil
	}

	at := l.clock.Now().Add(delay)
	if err := call(cctx, "ScheduleShutdown", "poweroff", uint64(at.UnixMicro())); err != nil {
		return fmt.Errorf("logind ScheduleShutdown: %w", err)
	}
	l.log.Info("power off scheduled via logind", logx.Time("at", at), logx.String("reason", reason))
	return nil
}
