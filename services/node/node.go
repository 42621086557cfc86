// Package node wires the node's services together once at boot.
package node

import (
	"context"
	"log/slog"
	"time"

	"tinygo.org/x/drivers"

	"timebase-node/nvs"
	"timebase-node/services/config"
	"timebase-node/services/credentials"
	"timebase-node/services/netmon"
	"timebase-node/services/samplebuf"
	"timebase-node/services/sampler"
	"timebase-node/services/sensors"
	"timebase-node/services/token"
	"timebase-node/services/uplink"
	"timebase-node/types"
	"timebase-node/x/clock"
	"timebase-node/x/memx"
)

// Hardware is what a platform provides. Nil indicators are ignored. A nil
// Bus skips the presence scan; a nil Syncer uses SNTP with SetTime.
type Hardware struct {
	Bus     drivers.I2C
	SensorA sensors.Hygrometer
	SensorB sensors.Barometer
	Link    netmon.Link
	Syncer  netmon.TimeSyncer
	SetTime func(time.Time)
	Store   nvs.Store
	HTTP    token.Doer
	Mem     memx.Reclaimer
	Clock   clock.Clock

	StatusLED  types.Indicator
	LinkLED    types.Indicator
	RequestLED types.Indicator

	Reboot func(reason string)
}

type Node struct {
	Credentials *credentials.Manager
	Supervisor  *netmon.Supervisor
	Loop        *sampler.Loop

	hw  Hardware
	cfg *config.Config
	log *slog.Logger
}

// New builds every service. The sample buffer and credentials are read from
// the store here, so New must run before anything else touches it.
func New(hw Hardware, cfg *config.Config, log *slog.Logger) *Node {
	if hw.Mem == nil {
		hw.Mem = memx.Runtime{}
	}
	if hw.Clock == nil {
		hw.Clock = clock.Real()
	}
	part := nvs.NewPartition(hw.Store)

	creds := credentials.New(part.Namespace(credentials.Namespace), cfg.WLAN, hw.Reboot, log)
	station := creds.Get()

	syncer := hw.Syncer
	if syncer == nil {
		syncer = &netmon.SNTP{Server: cfg.NTP.Server, SetTime: hw.SetTime}
	}
	sup := netmon.New(hw.Link, syncer, station, netmon.Config{
		Tick:           cfg.Tick,
		NoWifiBeforeAp: cfg.NoWifiBeforeAp,
		ApWait:         cfg.ApWait,
		AP:             cfg.AP,
	}, hw.Clock, hw.LinkLED, hw.Reboot, log)

	buf := samplebuf.Load(part.Namespace(samplebuf.Namespace), hw.Mem, log)
	acq := sensors.New(hw.SensorA, hw.SensorB, hw.Mem, hw.Clock, sensors.Config{
		Retries:     cfg.RetriesBeforeReboot,
		BackoffStep: cfg.BackoffStep,
	}, log)
	tok := token.New(hw.HTTP, token.Config{
		BaseURL:      cfg.Upload.Host,
		ClientID:     cfg.Token.ClientID,
		ClientSecret: cfg.Token.ClientSecret,
		Username:     cfg.Token.Username,
		Password:     cfg.Token.Password,
		RefreshToken: cfg.Token.RefreshToken,
	}, hw.Clock, hw.Mem, hw.RequestLED, log)
	up := uplink.New(hw.HTTP, uplink.Config{BaseURL: cfg.Upload.Host, Stream: cfg.Upload.Stream}, hw.Mem, hw.RequestLED, log)

	loop := sampler.New(sampler.Deps{
		Sensors: acq,
		Buffer:  buf,
		Tokens:  tok,
		Uplink:  up,
		Link:    sup,
		Clock:   hw.Clock,
		Status:  hw.StatusLED,
		Reboot:  hw.Reboot,
		Log:     log,
	}, sampler.Config{
		WaitPerIteration: cfg.WaitPerIteration,
		WaitBetweenPosts: cfg.WaitBetweenPosts,
	})

	log.Info("node ready", "ssid", station.Name, "buffered", buf.Len(), "stream", cfg.Upload.Stream)
	return &Node{Credentials: creds, Supervisor: sup, Loop: loop, hw: hw, cfg: cfg, log: log}
}

// Run checks that both sensors answer, then starts the supervisor in its
// own goroutine and runs the sampling loop until ctx ends or the loop
// reboots the node.
func (n *Node) Run(ctx context.Context) error {
	if n.hw.Bus != nil {
		addrs := []uint16{sensors.AddrAM2320, sensors.AddrBMP180}
		if err := sensors.WaitForDevices(n.hw.Bus, addrs, n.cfg.RetriesBeforeReboot, time.Second, n.hw.Clock, n.log); err != nil {
			n.log.Error("sensors missing, rebooting", "err", err)
			n.hw.Reboot("sensors missing")
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		if err := n.Supervisor.Run(ctx); err != nil && ctx.Err() == nil {
			n.log.Error("supervisor stopped", "err", err)
		}
	}()

	err := n.Loop.Run(ctx)
	cancel()
	<-supDone
	return err
}
