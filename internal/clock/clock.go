// Package clock abstracts time for the monitoring loop so the schedule
// can be driven deterministically in tests.
//
// Production code uses Real(); tests use Fake() and move time with
// Advance or Set. Sleep on a FakeClock advances the fake time instead of
// blocking, which keeps the save-timeout wait of the shutdown sequence
// instantaneous (and observable) under test.
package clock

import "time"

type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) *Ticker
	Sleep(d time.Duration)
}

// Ticker delivers ticks on C. The channel has capacity 1; ticks are
// dropped while the consumer is busy, matching time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. It does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stopFunc: t.Stop}
}
