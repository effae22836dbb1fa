package kernel

// manager glues the scheduler to the per-CPU slot and maintains the
// global process map. All inter-task state transitions are serialized
// by schedMu, the one lock held across a context switch; doReschedule
// releases it itself as part of the handoff, so the incoming task's
// goroutine never has to.
type manager struct {
	schedMu spinNoIrqLock
	sched   *scheduler
	cpu     *perCPU

	procMu  spinNoIrqLock
	procMap *idMap[*Process]
}

func newManager() *manager {
	return &manager{
		sched:   newScheduler(),
		procMap: newIDMap[*Process](),
	}
}

// SpawnTask adds a newly created task to the ready queue. Inserting
// the task into its process is the caller's step; this is the
// scheduler-visibility step that follows it.
func (m *manager) SpawnTask(t *Task) {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	if t.State() != TaskReady {
		fatalf("spawnTask: task %d not Ready (state=%s)", t.TID, t.State())
	}
	m.sched.addReady(t)
}

// SpawnProc registers a process in the global process map.
func (m *manager) SpawnProc(p *Process) {
	m.procMu.Lock()
	defer m.procMu.Unlock()
	m.procMap.Set(p.ID, p)
}

// Pid2Proc looks up a process by pid.
func (m *manager) Pid2Proc(pid uint64) (*Process, bool) {
	m.procMu.Lock()
	defer m.procMu.Unlock()
	return m.procMap.Get(pid)
}

// removeProc drops a reaped process from the global map.
func (m *manager) removeProc(pid uint64) {
	m.procMu.Lock()
	defer m.procMu.Unlock()
	m.procMap.Delete(pid)
}

// MakeReady transitions a Blocking task to Ready and enqueues it. This
// is the shared tail of the sync primitives' wakeups: unlock's
// handoff, semaphore up, condvar signal, timer expiry.
func (m *manager) MakeReady(t *Task) {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	t.setState(TaskReady)
	m.sched.addReady(t)
}

// tick forwards the periodic timer interrupt to the scheduler's quantum
// hook under the scheduler lock.
func (m *manager) tick() {
	m.schedMu.Lock()
	m.sched.timerTick()
	m.schedMu.Unlock()
}

// doReschedule picks the next task to run and switches to it, with
// schedMu held on entry. It releases schedMu as part of the handoff —
// before the wake send, so the incoming goroutine observes a free lock
// from its very first instruction — and does not return until curr
// itself is resumed, except when curr is exiting, in which case it
// never returns at all (the caller's goroutine ends instead).
func (m *manager) doReschedule(curr *Task, terminal bool) {
	next := m.sched.pickNext()
	if next == nil {
		next = m.cpu.IdleTask()
	}
	next.setState(TaskRunning)
	if next == curr {
		m.schedMu.Unlock()
		return
	}
	m.cpu.SetCurrentTask(next)
	m.schedMu.Unlock()
	next.wake <- struct{}{}
	if terminal {
		return
	}
	<-curr.wake
}

// YieldCurrent gives up the CPU voluntarily: precondition Running;
// transition curr->Ready, enqueue unless idle, then reschedule.
func (m *manager) YieldCurrent(curr *Task) {
	m.schedMu.Lock()
	if curr.State() != TaskRunning {
		m.schedMu.Unlock()
		fatalf("yield_current: task %d not Running (state=%s)", curr.TID, curr.State())
	}
	curr.setState(TaskReady)
	if !curr.IsIdle() {
		m.sched.addReady(curr)
	}
	m.doReschedule(curr, false)
}

// BlockCurrent parks the running task: precondition Running;
// transition curr->Blocking, then reschedule. The caller must already
// have placed curr on a wait queue before calling.
func (m *manager) BlockCurrent(curr *Task) {
	m.schedMu.Lock()
	if curr.State() != TaskRunning {
		m.schedMu.Unlock()
		fatalf("block_current: task %d not Running (state=%s)", curr.TID, curr.State())
	}
	curr.setState(TaskBlocking)
	m.doReschedule(curr, false)
}

// ExitCurrent retires the running task for good: mark curr Zombie,
// record its exit code, then reschedule and never return to curr's
// goroutine.
func (m *manager) ExitCurrent(curr *Task, code int32) {
	m.schedMu.Lock()
	curr.setExitCode(code)
	curr.setState(TaskZombie)
	m.doReschedule(curr, true)
}
