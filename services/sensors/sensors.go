// Package sensors reads the node's two environmental sources as one logical
// operation with a bounded number of attempts.
package sensors

import (
	"context"
	"log/slog"
	"time"

	"timebase-node/errcode"
	"timebase-node/types"
	"timebase-node/x/clock"
	"timebase-node/x/mathx"
	"timebase-node/x/memx"
	"timebase-node/x/timex"
)

// Hygrometer is sensor A (am2320.Device satisfies it).
type Hygrometer interface {
	Measure() error
	Celsius() float32
	RelHumidity() float32
}

// Barometer is sensor B (bmp180.Device satisfies it). Readings are in
// milli-degC, milli-Pa and metres.
type Barometer interface {
	ReadTemperature() (int32, error)
	ReadPressure() (int32, error)
	ReadAltitude() (int32, error)
}

type Config struct {
	// Retries caps the number of attempts. Defaults to 5.
	Retries int
	// BackoffStep scales the linear delay between attempts. Defaults to 1ms.
	BackoffStep time.Duration
}

// Acquirer builds Samples. It is used only by the sampling loop.
type Acquirer struct {
	a   Hygrometer
	b   Barometer
	mem memx.Reclaimer
	clk clock.Clock
	cfg Config
	log *slog.Logger
}

func New(a Hygrometer, b Barometer, mem memx.Reclaimer, clk clock.Clock, cfg Config, log *slog.Logger) *Acquirer {
	if cfg.Retries <= 0 {
		cfg.Retries = 5
	}
	if cfg.BackoffStep <= 0 {
		cfg.BackoffStep = time.Millisecond
	}
	return &Acquirer{a: a, b: b, mem: mem, clk: clk, cfg: cfg, log: log.With("svc", "sensors")}
}

// Delay is the pause after failed attempt k (1-based): (k-1)*step, capped at
// (Retries-1)*step.
func (q *Acquirer) Delay(k int) time.Duration {
	n := mathx.Clamp(k-1, 0, q.cfg.Retries-1)
	return time.Duration(n) * q.cfg.BackoffStep
}

// Acquire makes up to Retries attempts. On exhaustion it returns an error
// with code errcode.SensorExhausted wrapping the last failure.
func (q *Acquirer) Acquire(ctx context.Context) (types.Sample, error) {
	var last error
	for k := 1; k <= q.cfg.Retries; k++ {
		s, err := q.read()
		if err == nil {
			if k > 1 {
				q.log.Info("read recovered", "attempt", k)
			}
			return s, nil
		}
		last = err
		q.log.Warn("read failed", "attempt", k, "err", err)
		if k == q.cfg.Retries {
			break
		}
		q.clk.Sleep(q.Delay(k))
		if err := ctx.Err(); err != nil {
			return types.Sample{}, err
		}
	}
	return types.Sample{}, errcode.Wrap(errcode.SensorExhausted, "sensors.acquire", last)
}

func (q *Acquirer) read() (types.Sample, error) {
	if err := q.a.Measure(); err != nil {
		return types.Sample{}, errcode.Wrap(errcode.SensorRead, "am2320.measure", err)
	}
	mc, err := q.b.ReadTemperature()
	if err != nil {
		return types.Sample{}, errcode.Wrap(errcode.SensorRead, "bmp180.temperature", err)
	}
	mpa, err := q.b.ReadPressure()
	if err != nil {
		return types.Sample{}, errcode.Wrap(errcode.SensorRead, "bmp180.pressure", err)
	}
	alt, err := q.b.ReadAltitude()
	if err != nil {
		return types.Sample{}, errcode.Wrap(errcode.SensorRead, "bmp180.altitude", err)
	}
	used, free := q.mem.Stats()
	return types.Sample{
		MemUsed:      used,
		MemFree:      free,
		TemperatureA: round1(float64(q.a.Celsius())),
		HumidityA:    round1(float64(q.a.RelHumidity())),
		TemperatureB: float64(mc) / 1000,
		PressureB:    float64(mpa) / 1000,
		AltitudeB:    float64(alt),
		Timestamp:    timex.Stamp(q.clk.Now()),
	}, nil
}

// round1 drops float32 noise from tenth-resolution readings.
func round1(v float64) float64 {
	if v < 0 {
		return -float64(int64(-v*10+0.5)) / 10
	}
	return float64(int64(v*10+0.5)) / 10
}
