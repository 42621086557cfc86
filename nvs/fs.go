package nvs

import (
	"io"
	"os"

	"tinygo.org/x/tinyfs"

	"timebase-node/errcode"
)

// Filesystem is the part of tinyfs.Filesystem the store needs. A mounted
// littlefs on the on-board flash satisfies it.
type Filesystem interface {
	Open(path string) (tinyfs.File, error)
	OpenFile(path string, flag int) (tinyfs.File, error)
	Remove(path string) error
}

// FS keeps one file per key at the filesystem root.
type FS struct {
	fs Filesystem
}

func NewFS(fs Filesystem) *FS { return &FS{fs: fs} }

func (s *FS) path(key string) string { return "/" + key }

// Get treats any open failure as a missing key; littlefs does not expose a
// portable not-exist error.
func (s *FS) Get(key string) ([]byte, error) {
	f, err := s.fs.Open(s.path(key))
	if err != nil {
		return nil, errcode.Wrap(errcode.NotFound, "nvs.get", err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, errcode.Wrap(errcode.Error, "nvs.get", err)
	}
	return b, nil
}

func (s *FS) Set(key string, val []byte) error {
	f, err := s.fs.OpenFile(s.path(key), os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return errcode.Wrap(errcode.StoreWrite, "nvs.set", err)
	}
	if _, err := f.Write(val); err != nil {
		f.Close()
		return errcode.Wrap(errcode.StoreWrite, "nvs.set", err)
	}
	return errcode.Wrap(errcode.StoreWrite, "nvs.set", f.Close())
}

func (s *FS) Erase(key string) error {
	f, err := s.fs.Open(s.path(key))
	if err != nil {
		return errcode.Wrap(errcode.NotFound, "nvs.erase", err)
	}
	f.Close()
	return errcode.Wrap(errcode.StoreWrite, "nvs.erase", s.fs.Remove(s.path(key)))
}
