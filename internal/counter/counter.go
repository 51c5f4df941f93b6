// Package counter implements the replica-wide logical clock counter
// (spec.md §3, "Logical time"): a single monotonic integer, incremented on
// every locally-observed event and every sync action, guarded by a mutex
// since increments are the system's serialization points (spec.md §5).
package counter

import "sync"

// Counter is a monotonic per-replica logical counter.
type Counter struct {
	mu    sync.Mutex
	value uint64
}

// New creates a Counter starting at the given value. Replicas start their
// counter at 1 after the startup scan, which stamps every discovered entry
// with singleton time (self_id, 1) (spec.md §6).
func New(start uint64) *Counter {
	return &Counter{value: start}
}

// Next increments the counter and returns its new value.
func (c *Counter) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value
}

// Current returns the counter's present value without advancing it.
func (c *Counter) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
