// Package uplink posts buffered samples to the ingestion stream.
package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"timebase-node/errcode"
	"timebase-node/types"
	"timebase-node/x/conv"
	"timebase-node/x/memx"
)

// Doer is the part of *http.Client the uploader needs.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

type Config struct {
	BaseURL string
	Stream  string
}

type Uploader struct {
	http Doer
	url  string
	mem  memx.Reclaimer
	busy types.Indicator
	log  *slog.Logger
}

func New(h Doer, cfg Config, mem memx.Reclaimer, busy types.Indicator, log *slog.Logger) *Uploader {
	if busy == nil {
		busy = types.NopIndicator{}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Uploader{
		http: h,
		url:  base + "/api/v0/" + cfg.Stream + "/write",
		mem:  mem,
		busy: busy,
		log:  log.With("svc", "uplink"),
	}
}

// Symbol derives the record symbol from the link hardware address.
func Symbol(mac []byte) string { return "esp" + conv.LastHex(mac, 4) }

// Records tags samples for upload, preserving order.
func Records(symbol string, samples []types.Sample) []types.Record {
	out := make([]types.Record, len(samples))
	for i, s := range samples {
		out[i] = types.Record{Type: types.RecordType, Symbol: symbol, Sample: s}
	}
	return out
}

// Post sends samples as one JSON array. Only a 2xx status is success;
// anything else is errcode.Rejected, and a failed exchange is
// errcode.Transport.
func (u *Uploader) Post(ctx context.Context, access, symbol string, samples []types.Sample) error {
	u.busy.Set(true)
	u.mem.Collect()
	defer func() {
		u.busy.Set(false)
		u.mem.Collect()
	}()

	body, err := json.Marshal(Records(symbol, samples))
	if err != nil {
		return errcode.Wrap(errcode.Error, "uplink.encode", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(body))
	if err != nil {
		return errcode.Wrap(errcode.Error, "uplink.request", err)
	}
	req.Header.Set("Authorization", "bearer "+access)
	req.Header.Set("Content-Type", "application/json")

	res, err := u.http.Do(req)
	if err != nil {
		u.log.Warn("post failed", "count", len(samples), "err", err)
		return errcode.Wrap(errcode.Transport, "uplink.post", err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 256))
		u.log.Warn("post rejected", "status", res.StatusCode, "body", string(msg))
		return errcode.New(errcode.Rejected, "uplink.post", strconv.Itoa(res.StatusCode))
	}
	_, _ = io.Copy(io.Discard, res.Body)
	u.log.Info("posted", "count", len(samples), "status", res.StatusCode)
	return nil
}
