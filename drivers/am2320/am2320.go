// Package am2320 provides a driver for the AM2320 temperature/humidity sensor.
//
//	d := am2320.New(bus)
//	d.Configure()
//	err := d.Measure()       // wake + read, checks CRC
//	t, h := d.Celsius(), d.RelHumidity()
//
// The sensor sleeps between reads and does not ACK the wake-up transaction;
// that error is expected and ignored.
//
// NOTE: I2C.Tx is used with separate write and read transactions; the AM2320
// needs a gap between the read command and fetching the result.
package am2320

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// I2C address.
const Address = 0x5C

const (
	fnReadRegisters = 0x03
	regHumidityHigh = 0x00
	readCount       = 4

	frameLen = 8 // fn, count, 4 data bytes, crc lo, crc hi
)

// Errors returned by the driver.
var (
	ErrProtocol = errors.New("am2320: protocol error")
	ErrChecksum = errors.New("am2320: checksum mismatch")
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x5C if zero.
	Address uint16
	// WakeDelay is the pause after the wake-up write. Default 1 ms.
	WakeDelay time.Duration
	// ReadDelay is the pause between the read command and the result fetch.
	// Default 2 ms.
	ReadDelay time.Duration
}

// Device wraps an I2C connection to an AM2320 device.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg      Config
	buf      [frameLen]byte
	humidity uint16 // tenths of %RH
	temp     int16  // tenths of °C
}

// New creates a new AM2320 connection. The I2C bus must already be configured.
// This function only creates the Device object; it does not touch the device.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address}
}

// Configure applies optional config. The sensor needs no initialisation.
func (d *Device) Configure(cfgs ...Config) {
	var c Config
	if len(cfgs) > 0 {
		c = cfgs[0]
	}
	if c.Address != 0 {
		d.Address = c.Address
	}
	if c.WakeDelay <= 0 {
		c.WakeDelay = time.Millisecond
	}
	if c.ReadDelay <= 0 {
		c.ReadDelay = 2 * time.Millisecond
	}
	c.Address = d.Address
	d.cfg = c
}

// Measure wakes the sensor and reads humidity and temperature into the
// device cache. Any bus, framing or CRC failure is returned and the cache is
// left unchanged.
func (d *Device) Measure() error {
	if d.cfg.ReadDelay == 0 {
		d.Configure()
	}
	// Wake-up: the sensor NACKs while asleep.
	_ = d.bus.Tx(d.Address, []byte{0x00}, nil)
	time.Sleep(d.cfg.WakeDelay)

	if err := d.bus.Tx(d.Address, []byte{fnReadRegisters, regHumidityHigh, readCount}, nil); err != nil {
		return err
	}
	time.Sleep(d.cfg.ReadDelay)

	data := d.buf[:]
	if err := d.bus.Tx(d.Address, nil, data); err != nil {
		return err
	}
	if data[0] != fnReadRegisters || data[1] != readCount {
		return ErrProtocol
	}
	want := uint16(data[6]) | uint16(data[7])<<8
	if CRC16(data[:6]) != want {
		return ErrChecksum
	}

	d.humidity = uint16(data[2])<<8 | uint16(data[3])
	traw := uint16(data[4])<<8 | uint16(data[5])
	t := int16(traw & 0x7FFF)
	if traw&0x8000 != 0 {
		t = -t
	}
	d.temp = t
	return nil
}

// CRC16 is the Modbus CRC used by the sensor (init 0xFFFF, poly 0xA001).
func CRC16(p []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range p {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// DeciCelsius returns tenths of °C from the last Measure.
func (d *Device) DeciCelsius() int32 { return int32(d.temp) }

// DeciRelHumidity returns tenths of %RH from the last Measure.
func (d *Device) DeciRelHumidity() int32 { return int32(d.humidity) }

// Celsius returns °C (float). Prefer DeciCelsius for fixed-point.
func (d *Device) Celsius() float32 { return float32(d.temp) / 10 }

// RelHumidity returns relative humidity in percent (float).
func (d *Device) RelHumidity() float32 { return float32(d.humidity) / 10 }
