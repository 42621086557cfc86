// Package memx exposes heap usage and an explicit collection pass. Request
// buffers are large next to the whole heap on the target, so services
// reclaim around them instead of waiting for the allocator to do it.
package memx

import "runtime"

// Reclaimer reports heap usage and forces a collection.
type Reclaimer interface {
	Stats() (used, free uint64)
	Collect()
}

// Runtime reads runtime.MemStats. On TinyGo HeapIdle is the free heap.
type Runtime struct{}

func (Runtime) Stats() (used, free uint64) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse, ms.HeapIdle
}

func (Runtime) Collect() { runtime.GC() }

// UnderPressure reports whether used exceeds three times free.
func UnderPressure(used, free uint64) bool { return used > 3*free }
