package output

import (
	"context"

	"nightguard/internal/guardian"
	kit "nightguard/internal/transport"
)

// Notifier is the part of notifier.Service the mirror needs.
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

var _ guardian.OutputChannel = (*TelegramChannel)(nil)

// TelegramChannel queues every notification on the async notifier.
// Send only reports enqueue failures; delivery errors surface as
// notifier.failed events.
type TelegramChannel struct {
	n        Notifier
	target   kit.ChatTarget
	priority int
}

func NewTelegram(n Notifier, target kit.ChatTarget, priority int) *TelegramChannel {
	return &TelegramChannel{n: n, target: target, priority: priority}
}

func (c *TelegramChannel) Bind(string) error { return nil }

func (c *TelegramChannel) Send(ctx context.Context, text string) error {
	return c.n.Notify(ctx, kit.Notification{
		Channel:  "telegram",
		Priority: c.priority,
		Target:   c.target,
		Text:     text,
		Options:  &kit.SendOptions{DisablePreview: true},
	})
}

func (c *TelegramChannel) Release() error { return nil }
