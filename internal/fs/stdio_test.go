package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConsole struct {
	in  []byte
	out []byte
}

func (c *fakeConsole) GetChar() (byte, bool) {
	if len(c.in) == 0 {
		return 0, false
	}
	b := c.in[0]
	c.in = c.in[1:]
	return b, true
}

func (c *fakeConsole) PutChar(b byte) { c.out = append(c.out, b) }

type fakeHooks struct {
	yields  int
	sigints int
	onYield func()
}

func (h *fakeHooks) YieldNow() {
	h.yields++
	if h.onYield != nil {
		h.onYield()
	}
}
func (h *fakeHooks) RaiseSIGINT() { h.sigints++ }

func TestStdinReadWaitsForByte(t *testing.T) {
	console := &fakeConsole{}
	hooks := &fakeHooks{}
	hooks.onYield = func() { console.in = append(console.in, 'x') }
	stdin := &Stdin{Console: console, Hooks: hooks}

	buf := make([]byte, 1)
	n := stdin.Read(buf)
	require.Equal(t, 1, n)
	assert.Equal(t, byte('x'), buf[0])
	assert.Equal(t, 1, hooks.yields, "exactly one empty poll before the byte arrived")
}

func TestStdinReadRaisesSIGINTOnCtrlC(t *testing.T) {
	console := &fakeConsole{in: []byte{3}}
	hooks := &fakeHooks{}
	stdin := &Stdin{Console: console, Hooks: hooks}

	buf := make([]byte, 1)
	n := stdin.Read(buf)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(3), buf[0])
	assert.Equal(t, 1, hooks.sigints)
}

func TestStdoutWriteForwardsToConsole(t *testing.T) {
	console := &fakeConsole{}
	stdout := &Stdout{Console: console}

	n := stdout.Write([]byte("hi"))
	assert.Equal(t, 2, n)
	assert.Equal(t, "hi", string(console.out))
}

func TestStdinCapabilities(t *testing.T) {
	s := &Stdin{}
	assert.True(t, s.Readable())
	assert.False(t, s.Writable())
}

func TestStdoutCapabilities(t *testing.T) {
	s := &Stdout{}
	assert.False(t, s.Readable())
	assert.True(t, s.Writable())
}
