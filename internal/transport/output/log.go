package output

import (
	"context"
	"sync"

	"nightguard/internal/guardian"
	logx "nightguard/pkg/logx"
)

var _ guardian.OutputChannel = (*LogChannel)(nil)

// LogChannel writes notifications to the logger instead of a chat.
type LogChannel struct {
	log logx.Logger

	mu      sync.Mutex
	surface string
}

func NewLog(log logx.Logger) *LogChannel {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogChannel{log: log}
}

func (c *LogChannel) Bind(surface string) error {
	c.mu.Lock()
	c.surface = surface
	c.mu.Unlock()
	return nil
}

func (c *LogChannel) Send(_ context.Context, text string) error {
	c.mu.Lock()
	surface := c.surface
	c.mu.Unlock()
	c.log.Info("notice", logx.String("surface", surface), logx.String("text", text))
	return nil
}

func (c *LogChannel) Release() error { return nil }
