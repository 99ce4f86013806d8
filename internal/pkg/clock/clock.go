// Package clock provides an injectable time source so code that owns
// timers can be driven deterministically in tests.
//
// Production code holds a Clock field set to Real(); tests set it to
// Fake(t0) and call Advance to fire tickers.
package clock

import "time"

// Clock abstracts the time operations used by this module.
type Clock interface {
	Now() time.Time
	// NewTicker panics if d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers ticks on C until Stop is called. C has capacity 1; a
// slow consumer drops ticks rather than queueing them.
type Ticker struct {
	C    <-chan time.Time
	stop func()
}

// Stop turns off the ticker. It does not close C and is safe to call more
// than once.
func (t *Ticker) Stop() { t.stop() }

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}
