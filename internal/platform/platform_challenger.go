//go:build challenger_rp2040

package platform

import (
	"io"
	"log/slog"
	"machine"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
	"tinygo.org/x/drivers/bmp180"
	"tinygo.org/x/drivers/espat"
	"tinygo.org/x/drivers/netlink/probe"
	"tinygo.org/x/tinyfs/littlefs"

	"timebase-node/drivers/am2320"
	"timebase-node/errcode"
	"timebase-node/nvs"
	"timebase-node/services/config"
	"timebase-node/services/netmon"
	"timebase-node/services/node"
	"timebase-node/x/clock"
	"timebase-node/x/memx"
)

// Device selects the embedded configuration profile.
const Device = "challenger"

// Console configures UART0 as the log output.
func Console(baud uint32) io.Writer {
	u := uartx.UART0
	_ = u.Configure(uartx.UARTConfig{
		BaudRate: baud,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	return u
}

// Reboot resets the MCU. It does not return.
func Reboot(reason string) {
	println("[platform] reboot:", reason)
	time.Sleep(100 * time.Millisecond)
	machine.CPUReset()
}

type pin struct{ p machine.Pin }

func (l pin) Set(on bool) { l.p.Set(on) }

func output(p machine.Pin) pin {
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.Low()
	return pin{p}
}

// Open brings up the bus, sensors, flash store and Wi-Fi module.
func Open(cfg *config.Config, log *slog.Logger) (node.Hardware, error) {
	bus := machine.I2C0
	if err := bus.Configure(machine.I2CConfig{
		Frequency: 100 * machine.KHz,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	}); err != nil {
		return node.Hardware{}, errcode.Wrap(errcode.Error, "platform.i2c", err)
	}

	hyg := am2320.New(bus)
	hyg.Configure()
	baro := bmp180.New(bus)
	baro.Configure()

	lfs := littlefs.New(machine.Flash)
	lfs.Configure(&littlefs.Config{
		CacheSize:     512,
		LookaheadSize: 512,
		BlockCycles:   100,
	})
	if err := lfs.Mount(); err != nil {
		log.Warn("flash mount failed, formatting", "err", err)
		if err := lfs.Format(); err != nil {
			return node.Hardware{}, errcode.Wrap(errcode.StoreWrite, "platform.format", err)
		}
		if err := lfs.Mount(); err != nil {
			return node.Hardware{}, errcode.Wrap(errcode.StoreWrite, "platform.mount", err)
		}
	}

	nl, _ := probe.Probe()
	var uart sync.Mutex
	lcfg := netmon.LinkConfig{}
	if dev, ok := nl.(*espat.Device); ok {
		lcfg.Radio = espatRadio{dev: dev, mu: &uart}
	}
	link := netmon.NewNetlinkLink(nl, lcfg, log)
	setTime := func(t time.Time) {
		runtime.AdjustTimeOffset(int64(t.Sub(time.Now())))
	}

	return node.Hardware{
		Bus:     bus,
		SensorA: &hyg,
		SensorB: &baro,
		Link:    link,
		Syncer: &netmon.SNTP{
			Server:  cfg.NTP.Server,
			Dial:    serialDial(&uart, net.Dial),
			SetTime: setTime,
		},
		SetTime: setTime,
		Store:   nvs.NewFS(lfs),
		HTTP:    serialDoer{mu: &uart, next: &http.Client{Timeout: 30 * time.Second}},
		Mem:     memx.Runtime{},
		Clock:   clock.Real(),

		StatusLED:  output(machine.LED),
		LinkLED:    output(machine.GP16),
		RequestLED: output(machine.GP17),

		Reboot: Reboot,
	}, nil
}

// espatRadio answers what netlink cannot for the ESP-AT module. Every AT
// exchange holds mu, which HTTP and SNTP traffic also hold.
type espatRadio struct {
	dev *espat.Device
	mu  *sync.Mutex
}

func (r espatRadio) Associated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, err := r.dev.GetConnectedAP()
	return err == nil && parseConnectedAP(resp)
}

func (r espatRadio) HostAP(name, passphrase string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.dev.SetWifiMode(espat.WifiModeAP); err != nil {
		return errcode.Wrap(errcode.Transport, "espat.mode", err)
	}
	if err := r.dev.SetAPConfig(name, passphrase, 1, espat.WifiAPSecurityWPA2_PSK); err != nil {
		return errcode.Wrap(errcode.Transport, "espat.ap", err)
	}
	return nil
}

func (r espatRadio) StationMAC() (net.HardwareAddr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.dev.Query(espat.SetStationMACAddress); err != nil {
		return nil, errcode.Wrap(errcode.Transport, "espat.mac", err)
	}
	resp, err := r.dev.Response(1000)
	if err != nil {
		return nil, errcode.Wrap(errcode.Transport, "espat.mac", err)
	}
	return parseStationMAC(resp)
}
