package app

import (
	"context"
	"strings"
	"time"

	"nightguard/internal/eventbus"
	"nightguard/internal/guardian"
	"nightguard/internal/notifier"
	"nightguard/internal/storage"
	logx "nightguard/pkg/logx"
)

const auditWriteTimeout = 2 * time.Second

// auditRecorder turns guardian events and notifier losses into audit rows.
// It runs until both subscriptions are closed so events published right
// before shutdown are still written.
type auditRecorder struct {
	store     storage.Store
	sessionID string
	log       logx.Logger
}

func (r *auditRecorder) run(guard, notif <-chan eventbus.Event) {
	for guard != nil || notif != nil {
		select {
		case e, ok := <-guard:
			if !ok {
				guard = nil
				continue
			}
			r.record(e)
		case e, ok := <-notif:
			if !ok {
				notif = nil
				continue
			}
			r.record(e)
		}
	}
}

func (r *auditRecorder) record(e eventbus.Event) {
	entry, ok := r.entry(e)
	if !ok {
		r.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		return
	}
	if strings.HasPrefix(e.Type, notifier.EventPrefix) {
		r.log.Warn("telegram notification lost", logx.String("type", e.Type), logx.String("err", entry.Error))
	}
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()
	if err := r.store.AppendAudit(ctx, entry); err != nil {
		r.log.Warn("audit write failed", logx.String("event", e.Type), logx.Err(err))
	}
}

func (r *auditRecorder) entry(e eventbus.Event) (storage.AuditEntry, bool) {
	switch d := e.Data.(type) {
	case guardian.EventData:
		sid := d.SessionID
		if sid == "" {
			sid = r.sessionID
		}
		return storage.AuditEntry{
			At:             e.Time,
			SessionID:      sid,
			Event:          e.Type,
			Phase:          d.Phase,
			Speaker:        d.Speaker,
			Source:         d.Source,
			Command:        d.Command,
			Reason:         d.Reason,
			Text:           d.Text,
			Error:          d.Error,
			NextShutdownAt: d.NextShutdownAt,
		}, true
	case notifier.NotificationEvent:
		if e.Type != notifier.EventFailed && e.Type != notifier.EventDropped {
			return storage.AuditEntry{}, false
		}
		return storage.AuditEntry{
			At:        e.Time,
			SessionID: r.sessionID,
			Event:     e.Type,
			Source:    guardian.SourceTelegram,
			Error:     d.Error,
		}, true
	default:
		return storage.AuditEntry{}, false
	}
}
