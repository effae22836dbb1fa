package kernel

import (
	"sync"
	"sync/atomic"

	"github.com/armos-project/armos/internal/abi"
	"github.com/armos-project/armos/internal/arch"
)

// TaskState is the task lifecycle: Ready, Running, Blocking, Zombie.
// Exactly one task per CPU is Running at a time; a Zombie sticks
// around only until it is reaped.
type TaskState int32

const (
	TaskReady TaskState = iota
	TaskRunning
	TaskBlocking
	TaskZombie
)

func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "Ready"
	case TaskRunning:
		return "Running"
	case TaskBlocking:
		return "Blocking"
	case TaskZombie:
		return "Zombie"
	default:
		return "Unknown"
	}
}

// entryKind distinguishes a kernel task's function-pointer entry from
// a user task's trap-frame entry.
type entryKind int

const (
	entryKernel entryKind = iota
	entryUser
)

// KernelEntry is the (pc, arg) pair a kernel task is launched with.
type KernelEntry func(arg uint64) int32

// stack models the owned, fixed-size kernel stack each task carries.
// There is no register machine under the goroutine model to carve a
// real stack out of, so this is a size marker kept for accounting.
type stack struct {
	size int
}

func newKernelStack() *stack { return &stack{size: abi.KernelStackSize} }

// Task is the unit of execution: one goroutine, one kernel stack, one
// tid within its process. Its saved context is a wake channel rather
// than a register file — "switch to this task" is a send the parked
// goroutine receives, which is all a context switch has to mean once
// every task is a goroutine.
type Task struct {
	TID      uint64
	IsKernel bool

	process atomic.Pointer[Process] // weak-back-reference analogue; always set once live

	state    atomic.Int32
	exitCode atomic.Int32

	kind        entryKind
	kernelEntry KernelEntry
	kernelArg   uint64
	trapFrame   *arch.TrapFrame // valid iff kind == entryUser
	userEntry   UserEntry       // valid iff kind == entryUser
	userArgv    []string

	kstack *stack
	wake   chan struct{} // the context-switch "resume" signal

	mu  sync.Mutex // guards signal state; see signal.go
	sig signalState
}

func newTask(tid uint64, isKernel bool, proc *Process) *Task {
	t := &Task{
		TID:      tid,
		IsKernel: isKernel,
		kstack:   newKernelStack(),
		wake:     make(chan struct{}, 1),
	}
	t.process.Store(proc)
	t.state.Store(int32(TaskReady))
	t.sig.init()
	return t
}

func (t *Task) State() TaskState       { return TaskState(t.state.Load()) }
func (t *Task) setState(s TaskState)   { t.state.Store(int32(s)) }
func (t *Task) ExitCode() int32        { return t.exitCode.Load() }
func (t *Task) setExitCode(code int32) { t.exitCode.Store(code) }
func (t *Task) Process() *Process      { return t.process.Load() }

func (t *Task) IsIdle() bool {
	p := t.Process()
	return p != nil && p.IsIdle() && t.TID == 0
}

func (t *Task) IsRoot() bool {
	p := t.Process()
	return p != nil && p.IsRoot() && t.TID == 0
}

// resume hands a Blocking task back to the scheduler as Ready. This is
// the shared tail of unlock, semaphore up, condvar signal, and sleep
// expiry: the waiter becomes runnable, but runs only when the
// scheduler picks it.
func (t *Task) resume(k *Kernel) {
	k.manager.MakeReady(t)
}
