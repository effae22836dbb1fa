// Package vmm is the physical frame allocator the kernel's
// address-space object draws backing pages from. A real allocator
// hands out pages carved from physical memory at boot; here a Frame
// just owns a page-sized byte array, which is enough for
// insert/clone/clear and user-memory copies to work against.
package vmm

import "github.com/armos-project/armos/internal/abi"

// Frame is an owned physical page. Its backing bytes are released once
// nothing references the frame anymore; there is no explicit free.
type Frame struct {
	bytes [abi.PageSize]byte
}

// FrameAlloc allocates a single zeroed page. Real kernels can run out
// of physical memory; ours is backed by the Go heap and only fails if
// the allocator is asked to simulate exhaustion via SetExhausted.
func FrameAlloc() (*Frame, bool) {
	if exhausted.Load() {
		return nil, false
	}
	return &Frame{}, true
}

// Bytes exposes the frame's backing storage.
func (f *Frame) Bytes() []byte { return f.bytes[:] }

// Clone deep-copies the frame's contents into a freshly allocated
// frame, the primitive fork's full-copy address-space clone is built
// from.
func (f *Frame) Clone() (*Frame, bool) {
	nf, ok := FrameAlloc()
	if !ok {
		return nil, false
	}
	copy(nf.bytes[:], f.bytes[:])
	return nf, true
}
