package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFakeUARTRoundTrip(t *testing.T) {
	u := NewFakeUART()
	u.Feed('a', 'b')

	b, ok := u.GetChar()
	assert.True(t, ok)
	assert.Equal(t, byte('a'), b)

	u.PutChar('x')
	assert.Equal(t, []byte("x"), u.Output())

	u.GetChar()
	_, ok = u.GetChar()
	assert.False(t, ok, "empty input queue reports no byte")
}

func TestFakeGICMaskSuppressesDelivery(t *testing.T) {
	g := NewFakeGIC()
	g.SetMask(5, true)
	g.Raise(5)

	_, ok := g.PendingIRQ()
	assert.False(t, ok)

	g.SetMask(5, false)
	g.Raise(5)
	irq, ok := g.PendingIRQ()
	assert.True(t, ok)
	assert.Equal(t, 5, irq)

	g.EOI()
	_, ok = g.PendingIRQ()
	assert.False(t, ok)
}
