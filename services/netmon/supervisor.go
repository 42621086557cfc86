// Package netmon supervises the wireless link.
//
// The Supervisor is polled once per tick. It joins the configured station
// network, watches association, syncs the wall clock on every transition into
// Connected, falls back to a local access point after a long uninterrupted
// outage, and reboots once the access point has been up for ApWait.
//
//	Connecting -> Connected | Disconnected
//	Connected  -> Disconnected
//	Disconnected -> Connected | ApFallback
//	ApFallback -> reboot
package netmon

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"timebase-node/types"
	"timebase-node/x/clock"
)

// Link is the wireless interface as the supervisor drives it.
type Link interface {
	// Connect starts joining c as a station. It does not wait for association.
	Connect(c types.Credentials) error
	// Disconnect deactivates the station interface.
	Disconnect()
	// StartAP brings up a WPA2 access point.
	StartAP(name, passphrase string) error
	Connected() bool
	HardwareAddr() net.HardwareAddr
}

// TimeSyncer sets the wall clock from a network source.
type TimeSyncer interface {
	Sync(ctx context.Context) error
}

type Config struct {
	Tick           time.Duration
	NoWifiBeforeAp time.Duration
	ApWait         time.Duration
	AP             types.Credentials
}

type Supervisor struct {
	link   Link
	syncer TimeSyncer
	creds  types.Credentials
	cfg    Config
	clk    clock.Clock
	led    types.Indicator
	reboot func(reason string)
	log    *slog.Logger

	// Snapshots read by the sampling loop.
	state     atomic.Uint32
	connected atomic.Bool
	mac       atomic.Value // net.HardwareAddr

	// Owned by the supervisor goroutine.
	lastAlive time.Time
	apSince   time.Time
	apUp      bool
	done      bool
}

func New(link Link, syncer TimeSyncer, creds types.Credentials, cfg Config, clk clock.Clock, led types.Indicator, reboot func(string), log *slog.Logger) *Supervisor {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if led == nil {
		led = types.NopIndicator{}
	}
	s := &Supervisor{
		link:   link,
		syncer: syncer,
		creds:  creds,
		cfg:    cfg,
		clk:    clk,
		led:    led,
		reboot: reboot,
		log:    log.With("svc", "netmon"),
	}
	s.state.Store(uint32(types.Connecting))
	return s
}

// State returns the latest connectivity state.
func (s *Supervisor) State() types.ConnState { return types.ConnState(s.state.Load()) }

// Connected reports whether the link was associated at the last tick.
func (s *Supervisor) Connected() bool { return s.connected.Load() }

// HardwareAddr returns the link address, or nil before it is known.
func (s *Supervisor) HardwareAddr() net.HardwareAddr {
	mac, _ := s.mac.Load().(net.HardwareAddr)
	return mac
}

// Start requests a station connect and enters Connecting.
func (s *Supervisor) Start() {
	s.refreshMAC()
	s.log.Info("connecting", "ssid", s.creds.Name, "mac", s.HardwareAddr().String())
	if err := s.link.Connect(s.creds); err != nil {
		s.log.Warn("connect request failed", "err", err)
	}
	s.lastAlive = s.clk.Now()
	s.setState(types.Connecting)
}

// Run calls Start and then Step on every tick until ctx is done or the
// supervisor has asked for a reboot.
func (s *Supervisor) Run(ctx context.Context) error {
	s.Start()
	tk := s.clk.NewTicker(s.cfg.Tick)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.C:
			s.Step(ctx)
			if s.done {
				return nil
			}
		}
	}
}

// Step advances the state machine by one tick.
func (s *Supervisor) Step(ctx context.Context) {
	if s.done {
		return
	}
	now := s.clk.Now()
	up := s.link.Connected()

	switch s.State() {
	case types.Connecting:
		if up {
			s.enterConnected(ctx, now)
		} else {
			s.setState(types.Disconnected)
		}

	case types.Connected:
		if up {
			s.lastAlive = now
			if s.HardwareAddr() == nil {
				s.refreshMAC()
			}
		} else {
			s.log.Warn("link lost")
			s.setState(types.Disconnected)
		}

	case types.Disconnected:
		switch {
		case up:
			s.enterConnected(ctx, now)
		case now.Sub(s.lastAlive) > s.cfg.NoWifiBeforeAp:
			s.log.Warn("no link, falling back to access point", "down_for", now.Sub(s.lastAlive).String())
			s.link.Disconnect()
			s.apSince = now
			s.setState(types.ApFallback)
			s.startAP()
		}

	case types.ApFallback:
		if now.Sub(s.apSince) >= s.cfg.ApWait {
			s.done = true
			s.log.Error("access point wait elapsed, rebooting")
			s.reboot("ap wait elapsed")
			return
		}
		if !s.apUp {
			s.startAP()
		}
	}
}

func (s *Supervisor) startAP() {
	if err := s.link.StartAP(s.cfg.AP.Name, s.cfg.AP.Secret); err != nil {
		s.log.Error("access point failed", "name", s.cfg.AP.Name, "err", err)
		return
	}
	s.apUp = true
	s.log.Info("access point up", "name", s.cfg.AP.Name)
}

// enterConnected publishes Connected and then blocks until the clock has
// been synced. Retries are unbounded and immediate.
func (s *Supervisor) enterConnected(ctx context.Context, now time.Time) {
	s.lastAlive = now
	s.refreshMAC()
	s.setState(types.Connected)
	s.log.Info("connected", "mac", s.HardwareAddr().String())
	for attempt := 1; ; attempt++ {
		err := s.syncer.Sync(ctx)
		if err == nil {
			s.log.Info("time synced", "attempts", attempt)
			return
		}
		s.log.Warn("time sync failed", "attempt", attempt, "err", err)
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Supervisor) setState(st types.ConnState) {
	prev := s.State()
	s.state.Store(uint32(st))
	s.connected.Store(st == types.Connected)
	s.led.Set(st == types.Connected)
	if prev != st {
		s.log.Debug("state", "from", prev.String(), "to", st.String())
	}
}

func (s *Supervisor) refreshMAC() {
	if mac := s.link.HardwareAddr(); len(mac) > 0 {
		s.mac.Store(mac)
	}
}
