// Package inbound feeds Telegram chat messages into the guardian's
// command pipeline.
package inbound

import (
	"context"
	"strings"
	"sync/atomic"

	"nightguard/internal/clock"
	"nightguard/internal/guardian"
	kit "nightguard/internal/transport"
	logx "nightguard/pkg/logx"
)

// MenuCommands is the command menu registered with the bot.
var MenuCommands = []kit.BotCommand{
	{Command: "exit", Description: "emergency shutdown in 30 seconds"},
	{Command: "cancel", Description: "cancel a pending emergency shutdown"},
	{Command: "delay", Description: "push the scheduled shutdown by one hour"},
}

// Pump converts updates from a single chat into ChatEvents.
//
// Messages from other chats are ignored. The event channel is written
// without blocking; a full channel drops the message, the same way the
// adapter treats a slow consumer.
type Pump struct {
	chatID int64
	clock  clock.Clock
	log    logx.Logger

	dropped uint64
}

func NewPump(chatID int64, clk clock.Clock, log logx.Logger) *Pump {
	if clk == nil {
		clk = clock.Real()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pump{chatID: chatID, clock: clk, log: log}
}

// Dropped reports how many events were lost to a full channel.
func (p *Pump) Dropped() uint64 { return atomic.LoadUint64(&p.dropped) }

// Run consumes updates until ctx is done or updates is closed.
func (p *Pump) Run(ctx context.Context, updates <-chan kit.Update, out chan<- guardian.ChatEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			ev, ok := p.convert(up)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			default:
				atomic.AddUint64(&p.dropped, 1)
				p.log.Warn("telegram command dropped (guardian busy)", logx.String("speaker", ev.Speaker))
			}
		}
	}
}

func (p *Pump) convert(up kit.Update) (guardian.ChatEvent, bool) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return guardian.ChatEvent{}, false
	}
	m := up.Message
	if m.ChatID != p.chatID {
		p.log.Debug("telegram message from foreign chat ignored", logx.Int64("chat_id", m.ChatID))
		return guardian.ChatEvent{}, false
	}
	speaker := strings.TrimSpace(m.FromUsername)
	if speaker == "" {
		speaker = strings.TrimSpace(m.FromName)
	}
	msg := commandText(m.Text)
	if speaker == "" || msg == "" {
		return guardian.ChatEvent{}, false
	}
	return guardian.ChatEvent{
		Speaker:    speaker,
		Message:    msg,
		ObservedAt: p.clock.Now(),
		Source:     guardian.SourceTelegram,
	}, true
}

// commandText turns "/delay@nightguard_bot" into "delay". Plain text is
// passed through trimmed.
func commandText(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	fields[0] = cmd
	return strings.Join(fields, " ")
}
