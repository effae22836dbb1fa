// Package device carries the MMIO peripherals of the virt machine the
// kernel core talks to (PL011 UART at 0x0900_0000, GICv2 at
// 0x0800_0000). The core only ever consumes putchar/getchar and
// mask/eoi/pending, never the registers themselves, so these are
// in-memory fakes rather than MMIO-backed drivers.
package device

import "sync"

// FakeUART is an in-memory stand-in for the PL011 driver: PutChar
// appends to an output buffer a test can inspect, GetChar drains an
// input queue a test can feed, returning (0, false) when empty exactly
// like the real console_getchar() would with nothing typed.
type FakeUART struct {
	mu  sync.Mutex
	in  []byte
	out []byte
}

func NewFakeUART() *FakeUART { return &FakeUART{} }

func (u *FakeUART) PutChar(b byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.out = append(u.out, b)
}

func (u *FakeUART) GetChar() (byte, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.in) == 0 {
		return 0, false
	}
	b := u.in[0]
	u.in = u.in[1:]
	return b, true
}

// Feed queues bytes as if typed at the console.
func (u *FakeUART) Feed(b ...byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.in = append(u.in, b...)
}

// Output returns everything written so far.
func (u *FakeUART) Output() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]byte, len(u.out))
	copy(out, u.out)
	return out
}
