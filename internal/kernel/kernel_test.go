package kernel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armos-project/armos/internal/abi"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	k := NewKernel(time.Now())
	go k.RunTicks()
	t.Cleanup(k.StopTicks)
	return k
}

// awaitTid polls (the only correct way to wait under this cooperative
// scheduler, since a task may only relinquish control through the
// manager, never through a bare Go channel receive) for tid to reach
// Zombie, yielding in between so other tasks actually get to run.
func awaitTid(p *Proc, tid uint64) int32 {
	for {
		code, status := p.WaitTid(tid)
		if status == abi.ErrAgain {
			p.Yield()
			continue
		}
		return code
	}
}

func TestHandleIRQDismissesUnknownSource(t *testing.T) {
	k := NewKernel(time.Now())
	k.gic.Raise(42)
	k.handleIRQ()
	_, pending := k.gic.PendingIRQ()
	assert.False(t, pending, "an irq with no known source is acknowledged and dropped")
}

func TestHandleIRQTimerWakesExpiredSleeper(t *testing.T) {
	k := NewKernel(time.Now().Add(-time.Hour))
	sleeper := newReadyTask(9)
	sleeper.setState(TaskBlocking)
	k.timer.mu.Lock()
	k.timer.h = append(k.timer.h, &timerEntry{deadline: 0, task: sleeper})
	k.timer.mu.Unlock()

	k.gic.Raise(abi.IRQTimer)
	k.handleIRQ()
	assert.Equal(t, TaskReady, sleeper.State())
}

func TestForkWaitpidReapsChildExitCode(t *testing.T) {
	k := newTestKernel(t)

	RegisterUserProgram("fork-wait-parent", func(p *Proc, argv []string) int32 {
		childPid := p.Fork(func(p2 *Proc, argv2 []string) int32 {
			p2.Write(1, []byte("child\n"))
			return 7
		}, nil)
		if childPid < 0 {
			return -1
		}
		for {
			pid, code := p.WaitPid(-1)
			switch pid {
			case abi.ErrAgain:
				p.Yield()
			case childPid:
				if code != 7 {
					return -2
				}
				return 0
			default:
				return -3
			}
		}
	})

	proc, ok := k.Boot("fork-wait-parent", nil)
	require.True(t, ok)

	require.Eventually(t, func() bool { return proc.State() == ProcZombie }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), proc.ExitCode())
	assert.Contains(t, string(k.uart.Output()), "child\n")
}

func TestWaitPidUnknownPidReturnsInval(t *testing.T) {
	k := newTestKernel(t)

	RegisterUserProgram("waitpid-no-child", func(p *Proc, argv []string) int32 {
		pid, _ := p.WaitPid(-1)
		if pid != abi.ErrInval {
			return -1
		}
		return 0
	})

	proc, ok := k.Boot("waitpid-no-child", nil)
	require.True(t, ok)
	require.Eventually(t, func() bool { return proc.State() == ProcZombie }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), proc.ExitCode())
}

func TestSemaphoreProducerConsumerPreservesOrder(t *testing.T) {
	k := newTestKernel(t)

	var mu sync.Mutex
	var produced []int

	RegisterUserProgram("sema-main", func(p *Proc, argv []string) int32 {
		sem := p.SemaphoreCreate(0)

		producer := p.ThreadCreate(func(p2 *Proc, argv2 []string) int32 {
			for i := 0; i < 5; i++ {
				mu.Lock()
				produced = append(produced, i)
				mu.Unlock()
				p2.SemaphoreUp(sem)
			}
			return 0
		}, nil)

		for i := 0; i < 5; i++ {
			p.SemaphoreDown(sem)
		}
		if code := awaitTid(p, producer); code != 0 {
			return -1
		}
		return 0
	})

	proc, ok := k.Boot("sema-main", nil)
	require.True(t, ok)
	require.Eventually(t, func() bool { return proc.State() == ProcZombie }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), proc.ExitCode())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, produced)
}

func TestCondvarSignalWakesWaiter(t *testing.T) {
	k := newTestKernel(t)

	var mu sync.Mutex
	ready := false

	RegisterUserProgram("condvar-main", func(p *Proc, argv []string) int32 {
		m := p.MutexCreate(true)
		cv := p.CondvarCreate()

		waiter := p.ThreadCreate(func(p2 *Proc, argv2 []string) int32 {
			p2.MutexLock(m)
			for {
				mu.Lock()
				r := ready
				mu.Unlock()
				if r {
					break
				}
				p2.CondvarWait(cv, m)
			}
			p2.MutexUnlock(m)
			return 0
		}, nil)

		p.Sleep(10)
		p.MutexLock(m)
		mu.Lock()
		ready = true
		mu.Unlock()
		p.CondvarSignal(cv)
		p.MutexUnlock(m)

		if code := awaitTid(p, waiter); code != 0 {
			return -1
		}
		return 0
	})

	proc, ok := k.Boot("condvar-main", nil)
	require.True(t, ok)
	require.Eventually(t, func() bool { return proc.State() == ProcZombie }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int32(0), proc.ExitCode())
}

func TestSleepOrdersWakeupsByDeadline(t *testing.T) {
	k := newTestKernel(t)

	var mu sync.Mutex
	var order []int

	RegisterUserProgram("sleep-main", func(p *Proc, argv []string) int32 {
		durations := []int64{30, 10}
		tids := make([]uint64, len(durations))
		for i, ms := range durations {
			i, ms := i, ms
			tids[i] = p.ThreadCreate(func(p2 *Proc, argv2 []string) int32 {
				p2.Sleep(ms)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return 0
			}, nil)
		}
		for _, tid := range tids {
			awaitTid(p, tid)
		}
		return 0
	})

	proc, ok := k.Boot("sleep-main", nil)
	require.True(t, ok)
	require.Eventually(t, func() bool { return proc.State() == ProcZombie }, 2*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, 1, order[0], "the 10ms sleeper should wake before the 30ms one")
	assert.Equal(t, 0, order[1])
}

func TestSpinMutexExcludesConcurrentIncrement(t *testing.T) {
	k := newTestKernel(t)
	const n = 20
	counter := 0

	RegisterUserProgram("spinmutex-main", func(p *Proc, argv []string) int32 {
		m := p.MutexCreate(false)
		var tids []uint64
		for i := 0; i < n; i++ {
			tids = append(tids, p.ThreadCreate(func(p2 *Proc, argv2 []string) int32 {
				p2.MutexLock(m)
				counter++
				p2.MutexUnlock(m)
				return 0
			}, nil))
		}
		for _, tid := range tids {
			awaitTid(p, tid)
		}
		return int32(counter)
	})

	proc, ok := k.Boot("spinmutex-main", nil)
	require.True(t, ok)
	require.Eventually(t, func() bool { return proc.State() == ProcZombie }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int32(n), proc.ExitCode())
}
