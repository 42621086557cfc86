// Package clock abstracts the time operations used by the node's services so
// that the supervisor and the sampling loop can be driven deterministically in
// tests. Production code uses Real(); tests use Fake().
package clock

import "time"

// Clock is the subset of the time package the services rely on.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	// NewTicker panics if d <= 0, like time.NewTicker.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers ticks on C. C has capacity 1; late ticks are dropped.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	tk := time.NewTicker(d)
	return &Ticker{C: tk.C, stop: tk.Stop}
}
