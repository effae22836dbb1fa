package device

import "sync"

// FakeGIC stands in for the GICv2 distributor/CPU-interface
// programming surface: set-mask, eoi, pending. The kernel core only
// ever needs to unmask the timer IRQ and acknowledge IRQs it handles;
// real GICv2 register layout stays out of this tree.
type FakeGIC struct {
	mu      sync.Mutex
	masked  map[int]bool
	pending []int
}

func NewFakeGIC() *FakeGIC {
	return &FakeGIC{masked: make(map[int]bool)}
}

func (g *FakeGIC) SetMask(irq int, masked bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.masked[irq] = masked
}

func (g *FakeGIC) Raise(irq int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.masked[irq] {
		return
	}
	g.pending = append(g.pending, irq)
}

// PendingIRQ returns (irq, true) for the oldest unacknowledged interrupt.
func (g *FakeGIC) PendingIRQ() (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.pending) == 0 {
		return 0, false
	}
	return g.pending[0], true
}

// EOI acknowledges (pops) the oldest pending interrupt.
func (g *FakeGIC) EOI() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.pending) > 0 {
		g.pending = g.pending[1:]
	}
}
