package output

import (
	"context"

	"nightguard/internal/guardian"
	logx "nightguard/pkg/logx"
)

var _ guardian.OutputChannel = (*Fanout)(nil)

// Fanout sends to a primary channel and then to best-effort mirrors.
// Only the primary's errors are returned; mirror failures are logged.
type Fanout struct {
	primary guardian.OutputChannel
	mirrors []guardian.OutputChannel
	log     logx.Logger
}

func NewFanout(primary guardian.OutputChannel, log logx.Logger, mirrors ...guardian.OutputChannel) *Fanout {
	if log.IsZero() {
		log = logx.Nop()
	}
	kept := make([]guardian.OutputChannel, 0, len(mirrors))
	for _, m := range mirrors {
		if m != nil {
			kept = append(kept, m)
		}
	}
	return &Fanout{primary: primary, mirrors: kept, log: log}
}

func (f *Fanout) Bind(surface string) error {
	if err := f.primary.Bind(surface); err != nil {
		return err
	}
	for i, m := range f.mirrors {
		if err := m.Bind(surface); err != nil {
			f.log.Warn("mirror bind failed", logx.Int("mirror", i), logx.Err(err))
		}
	}
	return nil
}

func (f *Fanout) Send(ctx context.Context, text string) error {
	err := f.primary.Send(ctx, text)
	for i, m := range f.mirrors {
		if merr := m.Send(ctx, text); merr != nil {
			f.log.Warn("mirror send failed", logx.Int("mirror", i), logx.Err(merr))
		}
	}
	return err
}

func (f *Fanout) Release() error {
	err := f.primary.Release()
	for _, m := range f.mirrors {
		if merr := m.Release(); merr != nil {
			f.log.Debug("mirror release failed", logx.Err(merr))
		}
	}
	return err
}
