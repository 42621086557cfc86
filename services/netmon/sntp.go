package netmon

import (
	"context"
	"io"
	"net"
	"time"

	"timebase-node/errcode"
)

const (
	ntpPacketSize = 48
	ntpEpochDelta = 2208988800 // seconds from 1900 to 1970
)

// SNTP performs a single client request per Sync and hands the result to
// SetTime.
type SNTP struct {
	Server  string // host:port
	Timeout time.Duration
	// Dial defaults to net.Dial.
	Dial func(network, address string) (net.Conn, error)
	// SetTime applies the network time to the platform clock.
	SetTime func(time.Time)
}

func (s *SNTP) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dial := s.Dial
	if dial == nil {
		dial = net.Dial
	}
	conn, err := dial("udp", s.Server)
	if err != nil {
		return errcode.Wrap(errcode.TimeSync, "sntp.dial", err)
	}
	defer conn.Close()

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return errcode.Wrap(errcode.TimeSync, "sntp.deadline", err)
	}

	t, err := Query(conn)
	if err != nil {
		return errcode.Wrap(errcode.TimeSync, "sntp.query", err)
	}
	if s.SetTime != nil {
		s.SetTime(t)
	}
	return nil
}

// Query writes one version 4 client-mode request on conn and parses the
// transmit timestamp of the reply.
func Query(conn io.ReadWriter) (time.Time, error) {
	var req [ntpPacketSize]byte
	req[0] = 0xe3 // LI unsynchronised, VN 4, mode 3
	if _, err := conn.Write(req[:]); err != nil {
		return time.Time{}, err
	}
	resp := make([]byte, ntpPacketSize)
	n, err := conn.Read(resp)
	if err != nil && err != io.EOF {
		return time.Time{}, err
	}
	if n != ntpPacketSize {
		return time.Time{}, errcode.New(errcode.TimeSync, "sntp.read", "short packet")
	}
	return ParseTransmit(resp), nil
}

// ParseTransmit decodes bytes 40..47 of an NTP packet.
func ParseTransmit(p []byte) time.Time {
	sec := uint32(p[40])<<24 | uint32(p[41])<<16 | uint32(p[42])<<8 | uint32(p[43])
	frac := uint32(p[44])<<24 | uint32(p[45])<<16 | uint32(p[46])<<8 | uint32(p[47])
	nsec := (uint64(frac) * 1e9) >> 32
	return time.Unix(int64(sec)-ntpEpochDelta, int64(nsec)).UTC()
}
