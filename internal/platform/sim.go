package platform

import (
	"errors"
	"math"
	"sync"
	"time"
)

var errSimulated = errors.New("simulated sensor fault")

// SimHygrometer produces a slow daily temperature/humidity cycle.
type SimHygrometer struct {
	FailEvery int

	mu    sync.Mutex
	reads int
	t, h  float32
}

func (s *SimHygrometer) Measure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.FailEvery > 0 && s.reads%s.FailEvery == 0 {
		return errSimulated
	}
	phase := dayPhase(time.Now())
	s.t = float32(18 + 4*math.Sin(phase))
	s.h = float32(55 - 10*math.Sin(phase))
	return nil
}

func (s *SimHygrometer) Celsius() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t
}

func (s *SimHygrometer) RelHumidity() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h
}

// SimBarometer reports values in the same fixed-point units as bmp180.
type SimBarometer struct{}

func (SimBarometer) ReadTemperature() (int32, error) {
	return int32(18500 + 4000*math.Sin(dayPhase(time.Now()))), nil
}

func (SimBarometer) ReadPressure() (int32, error) {
	return int32(101325000 + 150000*math.Cos(dayPhase(time.Now()))), nil
}

func (SimBarometer) ReadAltitude() (int32, error) { return 42, nil }

func dayPhase(t time.Time) float64 {
	secs := t.UTC().Sub(t.UTC().Truncate(24 * time.Hour)).Seconds()
	return 2 * math.Pi * secs / 86400
}
