package nvs

import (
	"errors"
	"os"
	"path/filepath"

	"timebase-node/errcode"
)

// Dir stores each key as a file in a host directory. Used by the simulator.
type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errcode.Wrap(errcode.StoreWrite, "nvs.dir", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) path(key string) string { return filepath.Join(d.root, key) }

func (d *Dir) Get(key string) ([]byte, error) {
	b, err := os.ReadFile(d.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errcode.Wrap(errcode.NotFound, "nvs.get", err)
	}
	return b, errcode.Wrap(errcode.Error, "nvs.get", err)
}

func (d *Dir) Set(key string, val []byte) error {
	return errcode.Wrap(errcode.StoreWrite, "nvs.set", os.WriteFile(d.path(key), val, 0o644))
}

func (d *Dir) Erase(key string) error {
	err := os.Remove(d.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return errcode.Wrap(errcode.NotFound, "nvs.erase", err)
	}
	return errcode.Wrap(errcode.StoreWrite, "nvs.erase", err)
}
