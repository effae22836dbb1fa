package vmm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameAllocIsZeroed(t *testing.T) {
	f, ok := FrameAlloc()
	require.True(t, ok)
	for _, b := range f.Bytes() {
		require.Zero(t, b)
	}
}

func TestFrameCloneIsIndependentCopy(t *testing.T) {
	f, ok := FrameAlloc()
	require.True(t, ok)
	f.Bytes()[0] = 0x42

	clone, ok := f.Clone()
	require.True(t, ok)
	assert.Equal(t, byte(0x42), clone.Bytes()[0])

	clone.Bytes()[0] = 0x99
	assert.Equal(t, byte(0x42), f.Bytes()[0], "mutating the clone must not affect the original")
}

func TestFrameAllocFailsWhenExhausted(t *testing.T) {
	SetExhausted(true)
	t.Cleanup(func() { SetExhausted(false) })

	_, ok := FrameAlloc()
	assert.False(t, ok)
}
