package am2320

import (
	"errors"
	"testing"

	"tinygo.org/x/drivers"
)

// Compile-time check.
var _ drivers.I2C = (*fakeBus)(nil)

// Scripted AM2320-like fake.
type fakeBus struct {
	awake   bool
	asked   bool
	hum     uint16
	temp    uint16 // sign-magnitude, as on the wire
	corrupt bool
	failCmd bool
	txs     int
}

func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	f.txs++
	if addr != Address {
		return errors.New("nack")
	}
	switch {
	case len(w) == 1 && w[0] == 0x00 && r == nil:
		f.awake = true
		return errors.New("nack while asleep")
	case len(w) == 3 && w[0] == fnReadRegisters:
		if !f.awake || f.failCmd {
			return errors.New("nack")
		}
		f.asked = true
		return nil
	case len(w) == 0 && len(r) == frameLen:
		if !f.asked {
			return errors.New("nack")
		}
		r[0], r[1] = fnReadRegisters, readCount
		r[2], r[3] = byte(f.hum>>8), byte(f.hum)
		r[4], r[5] = byte(f.temp>>8), byte(f.temp)
		crc := CRC16(r[:6])
		if f.corrupt {
			crc ^= 0x0101
		}
		r[6], r[7] = byte(crc), byte(crc>>8)
		f.awake, f.asked = false, false
		return nil
	}
	return errors.New("unexpected transaction")
}

func TestMeasure(t *testing.T) {
	bus := &fakeBus{hum: 523, temp: 251}
	d := New(bus)
	d.Configure()
	if err := d.Measure(); err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if d.DeciCelsius() != 251 || d.DeciRelHumidity() != 523 {
		t.Fatalf("deci values = %d, %d", d.DeciCelsius(), d.DeciRelHumidity())
	}
	if d.Celsius() < 25.09 || d.Celsius() > 25.11 {
		t.Fatalf("Celsius = %v", d.Celsius())
	}
	if d.RelHumidity() < 52.29 || d.RelHumidity() > 52.31 {
		t.Fatalf("RelHumidity = %v", d.RelHumidity())
	}
}

func TestMeasureNegativeTemperature(t *testing.T) {
	bus := &fakeBus{hum: 800, temp: 0x8000 | 75}
	d := New(bus)
	if err := d.Measure(); err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if d.DeciCelsius() != -75 {
		t.Fatalf("DeciCelsius = %d, want -75", d.DeciCelsius())
	}
}

func TestMeasureChecksumMismatchKeepsCache(t *testing.T) {
	bus := &fakeBus{hum: 400, temp: 200}
	d := New(bus)
	if err := d.Measure(); err != nil {
		t.Fatalf("first Measure: %v", err)
	}
	bus.corrupt, bus.hum = true, 999
	if err := d.Measure(); !errors.Is(err, ErrChecksum) {
		t.Fatalf("err = %v, want ErrChecksum", err)
	}
	if d.DeciRelHumidity() != 400 {
		t.Fatalf("cache changed on bad frame: %d", d.DeciRelHumidity())
	}
}

func TestMeasureBusError(t *testing.T) {
	d := New(&fakeBus{failCmd: true})
	if err := d.Measure(); err == nil {
		t.Fatal("expected bus error")
	}
}

func TestCRC16(t *testing.T) {
	// Datasheet frame 03 04 01 F4 00 FA is followed by 31 A5 (lo first).
	if got := CRC16([]byte{0x03, 0x04, 0x01, 0xF4, 0x00, 0xFA}); got != 0xA531 {
		t.Fatalf("CRC16 = %#04x", got)
	}
}
