package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeWriteThenRead(t *testing.T) {
	hooks := &fakeHooks{}
	r, w := NewPipe(hooks)

	n := w.Write([]byte("hello"))
	require.Equal(t, 5, n)

	buf := make([]byte, 5)
	got := r.Read(buf)
	assert.Equal(t, 5, got)
	assert.Equal(t, "hello", string(buf))
}

func TestPipeReadEOFAfterWriterCloses(t *testing.T) {
	hooks := &fakeHooks{}
	r, w := NewPipe(hooks)
	w.Close()

	buf := make([]byte, 1)
	n := r.Read(buf)
	assert.Equal(t, 0, n, "empty pipe with writer closed reads as EOF")
}

func TestPipeReadYieldsWhileEmpty(t *testing.T) {
	hooks := &fakeHooks{}
	r, w := NewPipe(hooks)
	hooks.onYield = func() { w.Write([]byte("z")) }

	buf := make([]byte, 1)
	n := r.Read(buf)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte('z'), buf[0])
	assert.Equal(t, 1, hooks.yields)
}

func TestPipeCapabilities(t *testing.T) {
	hooks := &fakeHooks{}
	r, w := NewPipe(hooks)
	assert.True(t, r.Readable())
	assert.False(t, r.Writable())
	assert.False(t, w.Readable())
	assert.True(t, w.Writable())
}
