// Package sampler runs the node's foreground loop: take one sample, buffer
// it, upload the buffer when the window is open and the link is up, then
// pace to the iteration period.
//
// Failure handling is crash-only. Sensor exhaustion, or a panic anywhere in
// an iteration, ends in a platform reboot; the buffer is recovered from the
// store on the next boot.
package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"timebase-node/errcode"
	"timebase-node/services/uplink"
	"timebase-node/types"
	"timebase-node/x/clock"
	"timebase-node/x/mathx"
	"timebase-node/x/timex"
)

type Acquirer interface {
	Acquire(ctx context.Context) (types.Sample, error)
}

type Buffer interface {
	Append(s types.Sample) error
	Snapshot() []types.Sample
	Len() int
	Clear()
}

type TokenSource interface {
	Ensure(ctx context.Context) (string, error)
}

type Poster interface {
	Post(ctx context.Context, access, symbol string, samples []types.Sample) error
}

type Config struct {
	WaitPerIteration time.Duration
	WaitBetweenPosts time.Duration
}

// Deps are the collaborators owned or read by the loop.
type Deps struct {
	Sensors Acquirer
	Buffer  Buffer
	Tokens  TokenSource
	Uplink  Poster
	Link    types.LinkStatus
	Clock   clock.Clock
	Status  types.Indicator
	Reboot  func(reason string)
	Log     *slog.Logger
}

type Loop struct {
	Deps
	cfg      Config
	log      *slog.Logger
	lastPost time.Time
}

func New(d Deps, cfg Config) *Loop {
	if d.Status == nil {
		d.Status = types.NopIndicator{}
	}
	return &Loop{Deps: d, cfg: cfg, log: d.Log.With("svc", "sampler")}
}

// Run repeats iterations until ctx is done. A fatal iteration reboots the
// node; Run then returns the error (only reachable when reboot returns, as
// in tests and the host simulator).
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.guarded(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.log.Error("iteration failed, rebooting", "code", string(errcode.Of(err)), "err", err)
			l.Reboot(err.Error())
			return err
		}
	}
}

func (l *Loop) guarded(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l.Iterate(ctx)
}

// Iterate runs one iteration. Only sensor exhaustion is returned; buffer and
// upload failures are logged and left for the next iteration.
func (l *Loop) Iterate(ctx context.Context) error {
	start := l.Clock.Now()
	l.Status.Set(false)

	s, err := l.Sensors.Acquire(ctx)
	if err != nil {
		return err
	}
	l.report(s)

	if err := l.Buffer.Append(s); err != nil {
		l.log.Warn("sample kept in memory only", "err", err)
	}

	if l.Clock.Now().Sub(l.lastPost) >= l.cfg.WaitBetweenPosts && l.Link.Connected() {
		l.upload(ctx)
	}

	l.pace(start)
	return nil
}

// upload posts the buffer. The window is only consumed once a post has been
// attempted; a missing token or link address leaves it open.
func (l *Loop) upload(ctx context.Context) {
	mac := l.Link.HardwareAddr()
	if len(mac) == 0 {
		l.log.Warn("link address unknown, upload deferred")
		return
	}
	access, err := l.Tokens.Ensure(ctx)
	if err != nil {
		l.log.Warn("no token, upload deferred", "err", err)
		return
	}
	batch := l.Buffer.Snapshot()
	symbol := uplink.Symbol(mac)
	err = l.Uplink.Post(ctx, access, symbol, batch)
	l.lastPost = l.Clock.Now()
	if err != nil {
		l.log.Warn("upload failed, keeping samples", "count", len(batch), "code", string(errcode.Of(err)))
		return
	}
	l.Buffer.Clear()
	l.log.Info("uploaded", "count", len(batch), "symbol", symbol)
}

// pace sleeps the rest of the iteration period: 10% with the status
// indicator off, then 90% with it on.
func (l *Loop) pace(start time.Time) {
	elapsed := l.Clock.Now().Sub(start)
	remaining := mathx.Max(0, l.cfg.WaitPerIteration-elapsed)
	first := remaining / 10
	l.Clock.Sleep(first)
	l.Status.Set(true)
	l.Clock.Sleep(remaining - first)
}

func (l *Loop) report(s types.Sample) {
	var pct float64
	if total := s.MemUsed + s.MemFree; total > 0 {
		pct = float64(s.MemUsed) * 100 / float64(total)
	}
	l.log.Info("sample",
		"at", timex.Clock(l.Clock.Now()),
		"mem_used", s.MemUsed,
		"mem_free", s.MemFree,
		"mem_pct", fmt.Sprintf("%.1f", pct),
		"am2320", fmt.Sprintf("%.1fC %.1f%%", s.TemperatureA, s.HumidityA),
		"bmp180", fmt.Sprintf("%.2fC %.0fPa %.0fm", s.TemperatureB, s.PressureB, s.AltitudeB),
		"buffered", l.Buffer.Len()+1,
	)
}
