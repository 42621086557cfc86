// Package credentials keeps the station network name and passphrase in the
// durable store. A missing or unreadable blob is replaced by the built-in
// default so a fresh or corrupted device still boots.
package credentials

import (
	"log/slog"

	"timebase-node/errcode"
	"timebase-node/nvs"
	"timebase-node/types"
)

const (
	Namespace = "WIFI"
	keyName   = "name"
	keySecret = "secret"
)

type Manager struct {
	store    nvs.Store
	defaults types.Credentials
	reboot   func(reason string)
	log      *slog.Logger
}

func New(store nvs.Store, defaults types.Credentials, reboot func(reason string), log *slog.Logger) *Manager {
	return &Manager{store: store, defaults: defaults, reboot: reboot, log: log.With("svc", "credentials")}
}

// Get returns the stored credentials, writing back defaults for any field
// that cannot be read. It never fails.
func (m *Manager) Get() types.Credentials {
	return types.Credentials{
		Name:   m.field(keyName, m.defaults.Name),
		Secret: m.field(keySecret, m.defaults.Secret),
	}
}

func (m *Manager) field(key, def string) string {
	b, err := m.store.Get(key)
	if err == nil {
		return string(b)
	}
	m.log.Warn("read failed, using default", "key", key, "code", errcode.Of(err))
	if werr := m.store.Set(key, []byte(def)); werr != nil {
		m.log.Error("persist default failed", "key", key, "err", werr)
	}
	return def
}

// Set overwrites both blobs and reboots; new credentials apply only after
// restart. The write error, if any, is returned for callers that run against
// a non-terminal reboot hook.
func (m *Manager) Set(c types.Credentials) error {
	err := m.store.Set(keyName, []byte(c.Name))
	if err == nil {
		err = m.store.Set(keySecret, []byte(c.Secret))
	}
	if err != nil {
		m.log.Error("persist credentials failed", "err", err)
	}
	m.reboot("credentials updated")
	return err
}
