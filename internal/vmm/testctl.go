package vmm

import "sync/atomic"

var exhausted atomic.Bool

// SetExhausted flips the allocator into (or out of) an out-of-memory
// state, so tests can drive the allocation-failure path through
// address-space translation (a page's first touch) and clone.
func SetExhausted(v bool) { exhausted.Store(v) }
