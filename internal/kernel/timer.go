package kernel

import (
	"container/heap"
	"sync"
	"time"

	"github.com/armos-project/armos/internal/abi"
)

// timerEntry is one pending sleep, ordered by absolute deadline with
// insertion sequence as the tie-breaker so same-millisecond sleeps
// wake in the order they were scheduled.
type timerEntry struct {
	deadline int64
	seq      uint64
	task     *Task
	index    int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// timerQueue is the sleep min-heap behind sys_sleep. boot anchors the
// monotonic clock so GetTimeMs() is stable across a run without
// depending on wall-clock jumps.
type timerQueue struct {
	mu   sync.Mutex
	h    timerHeap
	seq  uint64
	boot time.Time
}

func newTimerQueue(boot time.Time) *timerQueue {
	return &timerQueue{boot: boot}
}

// GetTimeMs returns milliseconds since boot.
func (q *timerQueue) GetTimeMs() int64 {
	return time.Since(q.boot).Milliseconds()
}

// Sleep parks curr until durationMs have elapsed, returning only after
// the timer tick loop has woken it.
func (q *timerQueue) Sleep(k *Kernel, curr *Task, durationMs int64) {
	deadline := q.GetTimeMs() + durationMs
	q.mu.Lock()
	q.seq++
	heap.Push(&q.h, &timerEntry{deadline: deadline, seq: q.seq, task: curr})
	q.mu.Unlock()
	k.manager.BlockCurrent(curr)
}

// Tick wakes every task whose deadline has passed, then forwards the
// tick to the scheduler's quantum hook. Driven by the timer IRQ via
// Kernel.handleIRQ; tests call it directly for deterministic control.
func (q *timerQueue) Tick(k *Kernel) {
	now := q.GetTimeMs()
	var woken []*Task
	q.mu.Lock()
	for q.h.Len() > 0 && q.h[0].deadline <= now {
		e := heap.Pop(&q.h).(*timerEntry)
		woken = append(woken, e.task)
	}
	q.mu.Unlock()
	for _, t := range woken {
		t.resume(k)
	}
	k.manager.tick()
}

// tickInterval is how often the boot harness should call Tick to get
// abi.TicksPerSec granularity.
func tickInterval() time.Duration {
	return time.Second / abi.TicksPerSec
}
