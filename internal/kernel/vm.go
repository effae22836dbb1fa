package kernel

import (
	"github.com/armos-project/armos/internal/abi"
	"github.com/armos-project/armos/internal/vmm"
)

// Perm is a MapArea's permission bitset: read/write/execute plus the
// user/device bits that decide whether a task running at EL0 may touch
// the mapping at all.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
	PermUser
	PermDevice
)

// MapArea is one contiguous virtual range backed by per-page frames.
// Real hardware also walks a page table; armos keeps the frames in a
// plain map keyed by page-aligned virtual address instead of building
// one, since nothing in this tree ever executes user code through the
// MMU.
type MapArea struct {
	Start, End uint64 // [Start, End), page-aligned
	Perm       Perm
	frames     map[uint64]*vmm.Frame
}

func newMapArea(start, end uint64, perm Perm) *MapArea {
	return &MapArea{Start: start, End: end, Perm: perm, frames: make(map[uint64]*vmm.Frame)}
}

func pageFloor(va uint64) uint64 { return va &^ (abi.PageSize - 1) }

func (a *MapArea) ensureFrame(va uint64) (*vmm.Frame, bool) {
	page := pageFloor(va)
	if f, ok := a.frames[page]; ok {
		return f, true
	}
	f, ok := vmm.FrameAlloc()
	if !ok {
		return nil, false
	}
	a.frames[page] = f
	return f, true
}

func (a *MapArea) clone() (*MapArea, bool) {
	c := newMapArea(a.Start, a.End, a.Perm)
	for page, f := range a.frames {
		cf, ok := f.Clone()
		if !ok {
			return nil, false
		}
		c.frames[page] = cf
	}
	return c, true
}

// AddressSpace is the per-process translation context: a set of
// non-overlapping MapAreas. There being no real TTBR to load,
// "activating" an address space is a no-op in this model — the
// goroutine running a task simply indexes into that task's process's
// AddressSpace directly whenever it needs to read/write user memory.
type AddressSpace struct {
	areas []*MapArea
}

func newAddressSpace() *AddressSpace {
	return &AddressSpace{}
}

// Insert adds a new framed mapping.
func (as *AddressSpace) Insert(start, end uint64, perm Perm) *MapArea {
	area := newMapArea(start, end, perm)
	as.areas = append(as.areas, area)
	return area
}

// Clear drops every mapping, used when a process execs to discard its
// old image before mapping the new one.
func (as *AddressSpace) Clear() {
	as.areas = nil
}

// Clone deep-copies every area's frame contents. fork takes the full
// copy up front; there is no copy-on-write.
func (as *AddressSpace) Clone() (*AddressSpace, bool) {
	c := newAddressSpace()
	for _, a := range as.areas {
		ca, ok := a.clone()
		if !ok {
			return nil, false
		}
		c.areas = append(c.areas, ca)
	}
	return c, true
}

// Translate returns the backing frame for va and the byte offset
// within it, allocating lazily on first touch. Returns ok=false when
// va falls outside every area or frame allocation itself fails.
func (as *AddressSpace) Translate(va uint64) (*vmm.Frame, int, bool) {
	for _, a := range as.areas {
		if va >= a.Start && va < a.End {
			f, ok := a.ensureFrame(va)
			if !ok {
				return nil, 0, false
			}
			return f, int(va & (abi.PageSize - 1)), true
		}
	}
	return nil, 0, false
}

// ReadUser copies len(buf) bytes starting at va out of user memory.
// Returns false if any touched page isn't mapped or can't be backed.
func (as *AddressSpace) ReadUser(va uint64, buf []byte) bool {
	for i := range buf {
		f, off, ok := as.Translate(va + uint64(i))
		if !ok {
			return false
		}
		buf[i] = f.Bytes()[off]
	}
	return true
}

// WriteUser copies buf into user memory starting at va.
func (as *AddressSpace) WriteUser(va uint64, buf []byte) bool {
	for i, b := range buf {
		f, off, ok := as.Translate(va + uint64(i))
		if !ok {
			return false
		}
		f.Bytes()[off] = b
	}
	return true
}
