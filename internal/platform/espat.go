package platform

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"timebase-node/services/token"
)

// Replies from the ESP-AT firmware.
var (
	replyJoinedAP   = []byte("+CWJAP:")
	replyStationMAC = []byte(`+CIPSTAMAC:"`)
)

// parseConnectedAP reports whether an AT+CWJAP? reply names an access point.
// An idle module answers "No AP".
func parseConnectedAP(resp []byte) bool {
	return bytes.Contains(resp, replyJoinedAP)
}

// parseStationMAC extracts the address from an AT+CIPSTAMAC? reply such as
// +CIPSTAMAC:"24:0a:c4:12:34:56".
func parseStationMAC(resp []byte) (net.HardwareAddr, error) {
	i := bytes.Index(resp, replyStationMAC)
	if i < 0 {
		return nil, errors.New("espat: no station mac in reply")
	}
	rest := resp[i+len(replyStationMAC):]
	j := bytes.IndexByte(rest, '"')
	if j < 0 {
		return nil, errors.New("espat: unterminated station mac")
	}
	return net.ParseMAC(string(rest[:j]))
}

// serialDoer holds mu from the request until the response body is closed.
// The module shares one UART between sockets and AT queries, and the driver
// only serialises its socket calls.
type serialDoer struct {
	mu   *sync.Mutex
	next token.Doer
}

func (d serialDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	res, err := d.next.Do(req)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	res.Body = &unlockBody{ReadCloser: res.Body, mu: d.mu}
	return res, nil
}

type unlockBody struct {
	io.ReadCloser
	mu   *sync.Mutex
	once sync.Once
}

func (b *unlockBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.mu.Unlock)
	return err
}

// serialDial is serialDoer for raw connections; the lock is released by
// Close.
func serialDial(mu *sync.Mutex, dial func(network, address string) (net.Conn, error)) func(string, string) (net.Conn, error) {
	return func(network, address string) (net.Conn, error) {
		mu.Lock()
		c, err := dial(network, address)
		if err != nil {
			mu.Unlock()
			return nil, err
		}
		return &unlockConn{Conn: c, mu: mu}, nil
	}
}

type unlockConn struct {
	net.Conn
	mu   *sync.Mutex
	once sync.Once
}

func (c *unlockConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(c.mu.Unlock)
	return err
}
