//go:build !challenger_rp2040

package platform

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"timebase-node/nvs"
	"timebase-node/services/config"
	"timebase-node/services/node"
	"timebase-node/types"
	"timebase-node/x/clock"
	"timebase-node/x/memx"
)

// Device selects the embedded configuration profile.
const Device = "sim"

// Host options, set by cmd/nodesim before Open.
var (
	StateDir = ".timebase"
	// SyncNTP queries the configured server instead of trusting the host clock.
	SyncNTP bool
	// SensorFailEvery makes every nth sensor A read fail; zero disables it.
	SensorFailEvery int
	// LinkDown keeps the simulated station link unassociated.
	LinkDown bool
)

func Console(uint32) io.Writer { return os.Stderr }

// Reboot exits the process; a supervisor (or the user) restarts it.
func Reboot(reason string) {
	slog.Error("reboot", "reason", reason)
	os.Exit(3)
}

// Open returns simulated sensors and link with a directory-backed store.
func Open(cfg *config.Config, log *slog.Logger) (node.Hardware, error) {
	store, err := nvs.NewDir(StateDir)
	if err != nil {
		return node.Hardware{}, err
	}
	hw := node.Hardware{
		SensorA: &SimHygrometer{FailEvery: SensorFailEvery},
		SensorB: &SimBarometer{},
		Link:    &SimLink{Down: LinkDown},
		Syncer:  hostClock{},
		Store:   store,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Mem:     memx.Runtime{},
		Clock:   clock.Real(),

		StatusLED:  logLED{log: log, name: "status"},
		LinkLED:    logLED{log: log, name: "link"},
		RequestLED: logLED{log: log, name: "request"},

		Reboot: Reboot,
	}
	if SyncNTP {
		hw.Syncer = nil
		hw.SetTime = func(t time.Time) {
			log.Info("ntp offset", "offset", t.Sub(time.Now()).String())
		}
	}
	return hw, nil
}

type hostClock struct{}

func (hostClock) Sync(context.Context) error { return nil }

type logLED struct {
	log  *slog.Logger
	name string
}

func (l logLED) Set(on bool) { l.log.Debug("led", "name", l.name, "on", on) }

// SimLink associates on the first Connect unless Down is set.
type SimLink struct {
	Down bool
	up   bool
}

func (l *SimLink) Connect(types.Credentials) error { l.up = !l.Down; return nil }
func (l *SimLink) Disconnect()                     { l.up = false }
func (l *SimLink) StartAP(string, string) error    { return nil }
func (l *SimLink) Connected() bool                 { return l.up }
func (l *SimLink) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr{0x02, 0x00, 0x5e, 0x10, 0x7a, 0x3c}
}
