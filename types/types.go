package types

import (
	"net"
	"time"
)

// ------------------------
// Station credentials
// ------------------------

// Credentials identify the wireless network the station joins.
type Credentials struct {
	Name   string `json:"name" yaml:"name"`
	Secret string `json:"secret" yaml:"passphrase"`
}

// ------------------------
// Connectivity
// ------------------------

// ConnState is the supervisor's view of the wireless link.
type ConnState uint8

const (
	Connecting ConnState = iota
	Connected
	Disconnected
	ApFallback
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case ApFallback:
		return "ap_fallback"
	}
	return "unknown"
}

// LinkStatus is the read-only view of the supervisor given to the sampling loop.
type LinkStatus interface {
	Connected() bool
	HardwareAddr() net.HardwareAddr
}

// ------------------------
// Samples
// ------------------------

// Sample is one normalised reading of both sensors. Immutable once built.
// Field names on the wire match what the ingestion stream already stores.
type Sample struct {
	MemUsed      uint64  `json:"mem_used"`
	MemFree      uint64  `json:"mem_free"`
	TemperatureA float64 `json:"am2320_temp"`
	HumidityA    float64 `json:"am2320_humidity"`
	TemperatureB float64 `json:"bmp180_temp"`
	PressureB    float64 `json:"bmp180_pressure"`
	AltitudeB    float64 `json:"bmp180_altitude"`
	Timestamp    string  `json:"timestamp"` // YYYY-MM-DDTHH:MM:SS.mmmZ
}

// RecordType tags every uploaded record.
const RecordType = "weather_record"

// Record is a Sample tagged for upload.
type Record struct {
	Type   string `json:"$type"`
	Symbol string `json:"symbol"`
	Sample
}

// ------------------------
// Tokens
// ------------------------

// TokenState is the bearer credential used for uploads.
type TokenState struct {
	RefreshToken string
	AccessToken  string
	ExpiresAt    time.Time
}

// Valid reports whether an access token is held and now is before its expiry.
func (t TokenState) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// ------------------------
// Indicators
// ------------------------

// Indicator is a single on/off status output (usually an LED).
type Indicator interface {
	Set(on bool)
}

// NopIndicator discards updates.
type NopIndicator struct{}

func (NopIndicator) Set(bool) {}
