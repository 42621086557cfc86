// Package nvs is the node's persistent key/value blob store.
//
// Services see a Store scoped to one namespace. Every namespace of a
// Partition shares a single lock, so no two durable operations interleave:
// the backing flash behaves like one erase/write register with no isolation.
// Erase followed by Set is not atomic; callers that replace a blob that way
// accept losing it if power fails in between.
package nvs

import (
	"sync"

	"timebase-node/errcode"
)

// Store is a minimal blob store. Get and Erase of a missing key return an
// error whose code is errcode.NotFound. Write failures carry
// errcode.StoreWrite.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, val []byte) error
	Erase(key string) error
}

// Partition serialises access to a backend and hands out namespaces.
type Partition struct {
	mu sync.Mutex
	be Store
}

func NewPartition(backend Store) *Partition {
	return &Partition{be: backend}
}

// Namespace returns a Store whose keys are prefixed with name.
func (p *Partition) Namespace(name string) Store {
	return &namespace{p: p, prefix: name + "."}
}

type namespace struct {
	p      *Partition
	prefix string
}

func (n *namespace) Get(key string) ([]byte, error) {
	n.p.mu.Lock()
	defer n.p.mu.Unlock()
	return n.p.be.Get(n.prefix + key)
}

func (n *namespace) Set(key string, val []byte) error {
	n.p.mu.Lock()
	defer n.p.mu.Unlock()
	return n.p.be.Set(n.prefix+key, val)
}

func (n *namespace) Erase(key string) error {
	n.p.mu.Lock()
	defer n.p.mu.Unlock()
	return n.p.be.Erase(n.prefix + key)
}

// Memory is a volatile backend for tests and simulations.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemory() *Memory { return &Memory{data: map[string][]byte{}} }

func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, &errcode.E{C: errcode.NotFound, Op: "nvs.get", Msg: key}
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), val...)
	return nil
}

func (m *Memory) Erase(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return &errcode.E{C: errcode.NotFound, Op: "nvs.erase", Msg: key}
	}
	delete(m.data, key)
	return nil
}

// Keys lists the stored keys; intended for tests.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out
}
