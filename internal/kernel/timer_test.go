package kernel

import (
	"container/heap"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerHeapOrdersByDeadlineThenSeq(t *testing.T) {
	var h timerHeap
	heap.Init(&h)
	heap.Push(&h, &timerEntry{deadline: 50, seq: 2, task: newReadyTask(2)})
	heap.Push(&h, &timerEntry{deadline: 10, seq: 1, task: newReadyTask(1)})
	heap.Push(&h, &timerEntry{deadline: 50, seq: 0, task: newReadyTask(3)})

	first := heap.Pop(&h).(*timerEntry)
	assert.Equal(t, uint64(1), first.task.TID)

	second := heap.Pop(&h).(*timerEntry)
	assert.Equal(t, uint64(3), second.task.TID, "equal deadlines break ties by the lower sequence number")

	third := heap.Pop(&h).(*timerEntry)
	assert.Equal(t, uint64(2), third.task.TID)
}

func TestTimerQueueGetTimeMsIsMonotonic(t *testing.T) {
	q := newTimerQueue(time.Now().Add(-time.Second))
	first := q.GetTimeMs()
	assert.GreaterOrEqual(t, first, int64(1000))
	second := q.GetTimeMs()
	assert.GreaterOrEqual(t, second, first)
}

func TestTimerQueueTickWakesExpired(t *testing.T) {
	q := newTimerQueue(time.Now().Add(-time.Hour))
	task := newReadyTask(7)
	task.setState(TaskBlocking)
	heap.Push(&q.h, &timerEntry{deadline: 0, task: task})

	k := &Kernel{manager: newManager()}
	idle := newReadyTask(0)
	k.manager.cpu = initPerCPU(0, idle)

	q.Tick(k)
	assert.Equal(t, TaskReady, task.State())
}
