package kernel

import (
	"sync/atomic"

	"github.com/armos-project/armos/internal/abi"
)

// perCPU is the per-logical-CPU slot: the currently running task and
// this CPU's idle task. MaxCPUs is pinned to 1, so cpus below always
// has exactly one populated slot; the array shape is kept so a second
// CPU is a config change away rather than a rewrite, not because armos
// supports SMP.
type perCPU struct {
	id          int
	currentTask atomic.Pointer[Task]
	idleTask    *Task
}

var cpus [abi.MaxCPUs]*perCPU

func initPerCPU(id int, idle *Task) *perCPU {
	c := &perCPU{id: id, idleTask: idle}
	c.currentTask.Store(idle)
	cpus[id] = c
	return c
}

// currentCPU locates this goroutine's logical CPU. Real hardware reads
// a CPU-local system register set at boot; with one CPU there is only
// ever cpus[0] to find.
func currentCPU() *perCPU { return cpus[0] }

// CurrentTask returns the task whose stack the caller is on.
func (c *perCPU) CurrentTask() *Task { return c.currentTask.Load() }

// SetCurrentTask may only be called with the scheduler lock held, the
// stand-in for "interrupts disabled". The previous reference is
// dropped implicitly once nothing else points at it.
func (c *perCPU) SetCurrentTask(t *Task) { c.currentTask.Store(t) }

func (c *perCPU) IdleTask() *Task { return c.idleTask }
