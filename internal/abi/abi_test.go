package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserStackRangeLeavesGuardGapBetweenTasks(t *testing.T) {
	b0, t0 := UserStackRange(0)
	_, t1 := UserStackRange(1)

	assert.Equal(t, uint64(UserStackSize), t0-b0)
	assert.Less(t, t1, b0, "each task's stack sits below the previous one")
	assert.Equal(t, uint64(PageSize), b0-t1, "one guard page separates adjacent stacks")
}
