package clock

import (
	"sync"
	"time"
)

// FakeClock only moves when Advance or Sleep is called. Sleep advances the
// clock by itself instead of blocking, so a single goroutine can run a paced
// loop to completion. Every Sleep duration is recorded.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	sleeps  []time.Duration
}

type fakeTicker struct {
	ch       chan time.Time
	next     time.Time
	interval time.Duration
	stopped  bool
}

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{now: initial}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep records d and advances the clock by it. Non-positive durations are
// recorded but do not move time.
func (c *FakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	if d > 0 {
		c.Advance(d)
	}
}

// Sleeps returns a copy of every duration passed to Sleep so far.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTicker{ch: make(chan time.Time, 1), next: c.now.Add(d), interval: d}
	c.tickers = append(c.tickers, ft)
	return &Ticker{C: ft.ch, stop: func() {
		c.mu.Lock()
		ft.stopped = true
		c.mu.Unlock()
	}}
}

// Advance moves the clock forward by d and fires every ticker deadline that
// falls inside the window. Sends never block.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, ft := range c.tickers {
		for !ft.stopped && !ft.next.After(c.now) {
			select {
			case ft.ch <- ft.next:
			default:
			}
			ft.next = ft.next.Add(ft.interval)
		}
	}
}
