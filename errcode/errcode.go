package errcode

import "errors"

// Code is a stable, log-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }
func (c Code) Code() Code     { return c }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Durable store
	NotFound   Code = "not_found"
	StoreWrite Code = "store_write"
	Decode     Code = "decode"

	// Sensors
	SensorRead      Code = "sensor_read"
	SensorExhausted Code = "sensor_exhausted"
	DevicesMissing  Code = "devices_missing"

	// Network
	Transport Code = "transport"
	Rejected  Code = "rejected"
	NoToken   Code = "no_token"
	TimeSync  Code = "time_sync"

	InvalidConfig Code = "invalid_config"

	Error Code = "error" // generic fallback
)

// E keeps the failing operation and a cause next to the code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap returns nil for a nil cause, otherwise an *E tagged with c.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Err: err}
}

// New builds an *E without a cause.
func New(c Code, op, msg string) error {
	return &E{C: c, Op: op, Msg: msg}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	// Outermost code wins, so a wrapped NotFound under StoreWrite reads as StoreWrite.
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// Is reports whether err carries code c.
func Is(err error, c Code) bool { return Of(err) == c }
