package sensors

import (
	"log/slog"
	"time"

	"tinygo.org/x/drivers"

	"timebase-node/errcode"
	"timebase-node/x/clock"
)

// Bus addresses of the node's sensors.
const (
	AddrAM2320 uint16 = 0x5C
	AddrBMP180 uint16 = 0x77
)

// WaitForDevices scans the bus for every address in addrs, up to scans
// times, sleeping interval between scans. It returns an errcode.DevicesMissing
// error if any address never answered.
func WaitForDevices(bus drivers.I2C, addrs []uint16, scans int, interval time.Duration, clk clock.Clock, log *slog.Logger) error {
	log = log.With("svc", "sensors")
	if scans <= 0 {
		scans = 1
	}
	found := make(map[uint16]bool, len(addrs))
	for i := 1; i <= scans; i++ {
		missing := 0
		for _, a := range addrs {
			if !found[a] && answers(bus, a, clk) {
				found[a] = true
			}
			if !found[a] {
				missing++
			}
		}
		if missing == 0 {
			log.Info("devices present", "count", len(addrs), "scan", i)
			return nil
		}
		log.Warn("devices missing", "missing", missing, "scan", i)
		if i < scans {
			clk.Sleep(interval)
		}
	}
	return errcode.New(errcode.DevicesMissing, "sensors.scan", "not all sensors answered")
}

// answers reads one byte from addr. A sleeping AM2320 ignores its first
// transaction, so a second try follows a short pause.
func answers(bus drivers.I2C, addr uint16, clk clock.Clock) bool {
	var b [1]byte
	if bus.Tx(addr, nil, b[:]) == nil {
		return true
	}
	clk.Sleep(time.Millisecond)
	return bus.Tx(addr, nil, b[:]) == nil
}
