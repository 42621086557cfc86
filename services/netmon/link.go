package netmon

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers/netlink"

	"timebase-node/types"
	"timebase-node/x/clock"
)

// Radio covers what some drivers can do but netlink cannot express. espat,
// for one, sends no NetNotify events, ignores ConnectModeAP and has no
// GetHardwareAddr, so the platform supplies these directly.
type Radio interface {
	// Associated polls the module for a current station association.
	Associated() bool
	// HostAP switches the module to soft-AP mode with WPA2.
	HostAP(name, passphrase string) error
	StationMAC() (net.HardwareAddr, error)
}

// LinkConfig tunes the station connect requests sent to the driver.
type LinkConfig struct {
	Country         string
	Retries         int           // per NetConnect call; default 3
	ConnectTimeout  time.Duration // per attempt; zero means the driver default
	WatchdogTimeout time.Duration // default 10s
	// RetryInterval is the pause after a failed NetConnect. Default 5s.
	RetryInterval time.Duration
	// Clock defaults to clock.Real().
	Clock clock.Clock
	// Radio is optional; without it association comes from NetNotify.
	Radio Radio
}

// NetlinkLink adapts a netlink.Netlinker to Link. Station connects run in a
// background goroutine and are repeated, RetryInterval apart, until one
// succeeds or Disconnect is called; once up, the driver watchdog recovers
// dropped connections.
//
// Radio calls are made only after the driver has seen a NetConnect (espat
// opens its UART there) and never while a join is running.
type NetlinkLink struct {
	nl  netlink.Netlinker
	cfg LinkConfig
	log *slog.Logger

	up atomic.Bool

	mu      sync.Mutex
	joining bool
	ready   bool
	stop    chan struct{}
	done    chan struct{}
}

func NewNetlinkLink(nl netlink.Netlinker, cfg LinkConfig, log *slog.Logger) *NetlinkLink {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.WatchdogTimeout <= 0 {
		cfg.WatchdogTimeout = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	l := &NetlinkLink{nl: nl, cfg: cfg, log: log.With("svc", "link")}
	nl.NetNotify(func(e netlink.Event) {
		switch e {
		case netlink.EventNetUp:
			l.up.Store(true)
		case netlink.EventNetDown:
			l.up.Store(false)
		}
	})
	return l
}

func (l *NetlinkLink) Connect(c types.Credentials) error {
	if c.Name == "" {
		return netlink.ErrMissingSSID
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.joining {
		return nil
	}
	l.joining = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	p := netlink.ConnectParams{
		ConnectMode:     netlink.ConnectModeSTA,
		Ssid:            c.Name,
		Passphrase:      c.Secret,
		AuthType:        netlink.AuthTypeWPA2,
		Country:         l.cfg.Country,
		Retries:         l.cfg.Retries,
		ConnectTimeout:  l.cfg.ConnectTimeout,
		WatchdogTimeout: l.cfg.WatchdogTimeout,
	}
	go l.join(p, l.stop, l.done)
	return nil
}

func (l *NetlinkLink) join(p netlink.ConnectParams, stop, done chan struct{}) {
	defer func() {
		l.mu.Lock()
		l.joining = false
		l.mu.Unlock()
		close(done)
	}()
	for {
		err := l.nl.NetConnect(&p)
		l.mu.Lock()
		l.ready = true
		l.mu.Unlock()
		if err == nil || errors.Is(err, netlink.ErrConnected) {
			l.up.Store(true)
			return
		}
		l.log.Warn("station connect failed", "ssid", p.Ssid, "err", err)
		switch {
		case errors.Is(err, netlink.ErrShortPassphrase), errors.Is(err, netlink.ErrAuthTypeNoGood):
			return
		}
		if !l.pause(stop) {
			return
		}
	}
}

// pause waits RetryInterval. It returns false if stop closes first.
func (l *NetlinkLink) pause(stop <-chan struct{}) bool {
	tk := l.cfg.Clock.NewTicker(l.cfg.RetryInterval)
	defer tk.Stop()
	select {
	case <-tk.C:
		return true
	case <-stop:
		return false
	}
}

// halt stops a running join and waits for it to return.
func (l *NetlinkLink) halt() {
	l.mu.Lock()
	stop, done, joining := l.stop, l.done, l.joining
	if joining {
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
	l.mu.Unlock()
	if joining {
		<-done
	}
}

func (l *NetlinkLink) Disconnect() {
	l.halt()
	l.nl.NetDisconnect()
	l.up.Store(false)
}

// StartAP brings up a WPA2 access point. With a Radio the module hosts it
// directly; otherwise AP mode is requested through netlink, and drivers
// without AP support return netlink.ErrConnectModeNoGood.
func (l *NetlinkLink) StartAP(name, passphrase string) error {
	if len(passphrase) < 8 {
		return netlink.ErrShortPassphrase
	}
	l.halt()
	if r := l.radio(); r != nil {
		return r.HostAP(name, passphrase)
	}
	if l.cfg.Radio != nil {
		return errors.New("link: radio not initialised")
	}
	return l.nl.NetConnect(&netlink.ConnectParams{
		ConnectMode: netlink.ConnectModeAP,
		Ssid:        name,
		Passphrase:  passphrase,
		AuthType:    netlink.AuthTypeWPA2,
		Country:     l.cfg.Country,
	})
}

// Connected polls the Radio when there is one; events alone are trusted
// only for drivers that send them.
func (l *NetlinkLink) Connected() bool {
	if l.cfg.Radio == nil {
		return l.up.Load()
	}
	r := l.radio()
	if r == nil {
		return false
	}
	up := r.Associated()
	l.up.Store(up)
	return up
}

func (l *NetlinkLink) HardwareAddr() net.HardwareAddr {
	if l.cfg.Radio != nil {
		r := l.radio()
		if r == nil {
			return nil
		}
		mac, err := r.StationMAC()
		if err != nil {
			l.log.Warn("station mac unavailable", "err", err)
			return nil
		}
		return mac
	}
	mac, err := l.nl.GetHardwareAddr()
	if err != nil {
		return nil
	}
	return mac
}

// radio returns the Radio when it may be used right now.
func (l *NetlinkLink) radio() Radio {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.Radio == nil || !l.ready || l.joining {
		return nil
	}
	return l.cfg.Radio
}
