// Package samplebuf is the ordered, durable queue of samples awaiting upload.
//
// Memory is authoritative. Each Append persists the whole buffer after the
// sample is already held in memory, so the durable copy can lag memory by
// one sample but never lead it.
package samplebuf

import (
	"encoding/json"
	"log/slog"

	"timebase-node/errcode"
	"timebase-node/nvs"
	"timebase-node/types"
	"timebase-node/x/memx"
)

const (
	Namespace = "SAMPLES"
	key       = "samples"
)

// Buffer is owned by the sampling loop and is not safe for concurrent use.
type Buffer struct {
	store   nvs.Store
	mem     memx.Reclaimer
	log     *slog.Logger
	samples []types.Sample
}

// Load restores the buffer from the store. Any read or decode failure
// yields an empty buffer; a corrupt blob is dropped, not propagated.
func Load(store nvs.Store, mem memx.Reclaimer, log *slog.Logger) *Buffer {
	b := &Buffer{store: store, mem: mem, log: log.With("svc", "samplebuf")}
	raw, err := store.Get(key)
	switch {
	case errcode.Is(err, errcode.NotFound):
		return b
	case err != nil:
		b.log.Warn("load failed, starting empty", "err", err)
		return b
	}
	var restored []types.Sample
	if err := json.Unmarshal(raw, &restored); err != nil {
		b.log.Warn("stored samples unreadable, starting empty", "code", errcode.Decode, "bytes", len(raw))
		return b
	}
	b.samples = restored
	b.log.Info("restored samples", "count", len(restored))
	return b
}

// Append adds s to memory and then persists the whole buffer. A persist
// failure is returned as errcode.StoreWrite; s stays in memory and is
// included in the next successful persist.
func (b *Buffer) Append(s types.Sample) error {
	b.samples = append(b.samples, s)
	err := b.persist()
	b.relievePressure()
	return err
}

func (b *Buffer) persist() error {
	blob, err := json.Marshal(b.samples)
	if err != nil {
		return errcode.Wrap(errcode.Error, "samplebuf.encode", err)
	}
	if err := b.store.Erase(key); err != nil && !errcode.Is(err, errcode.NotFound) {
		b.log.Warn("erase failed", "err", err)
	}
	if err := b.store.Set(key, blob); err != nil {
		b.log.Error("persist failed, kept in memory", "count", len(b.samples), "err", err)
		return errcode.Wrap(errcode.StoreWrite, "samplebuf.persist", err)
	}
	b.log.Debug("persisted", "count", len(b.samples), "bytes", len(blob))
	return nil
}

func (b *Buffer) relievePressure() {
	used, free := b.mem.Stats()
	if !memx.UnderPressure(used, free) {
		return
	}
	b.mem.Collect()
	after, _ := b.mem.Stats()
	var freed uint64
	if after < used {
		freed = used - after
	}
	b.log.Info("reclaimed memory", "freed", freed)
}

// Snapshot returns a copy of the buffered samples, oldest first.
func (b *Buffer) Snapshot() []types.Sample {
	return append([]types.Sample(nil), b.samples...)
}

func (b *Buffer) Len() int { return len(b.samples) }

// Clear drops every buffered sample after the endpoint acknowledged them,
// and erases the durable copy. An erase failure only risks re-sending the
// batch after a reset.
func (b *Buffer) Clear() {
	b.samples = nil
	if err := b.store.Erase(key); err != nil && !errcode.Is(err, errcode.NotFound) {
		b.log.Warn("erase after upload failed", "err", err)
	}
}
