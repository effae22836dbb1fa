package kernel

import (
	"encoding/binary"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/armos-project/armos/internal/abi"
	"github.com/armos-project/armos/internal/arch"
	"github.com/armos-project/armos/internal/fs"
)

// ProcState is the process lifecycle: Normal while any task is alive,
// Zombie once the last one has exited and its exit code is latched for
// a parent's waitpid to collect. A stopped process is not a separate
// state; freezing is tracked per task by its signal state.
type ProcState int32

const (
	ProcNormal ProcState = iota
	ProcZombie
)

// procKind distinguishes the two processes the kernel creates itself
// (idle, kernel helpers) from every exec'd user process.
type procKind int

const (
	procUser procKind = iota
	procKernel
	procIdle
)

// Process is the resource container: an address space, a set of tasks
// sharing it, a file-descriptor table, a signal action table, and the
// three sync-primitive slot tables, all behind one mutex since a
// process's tasks may touch any of them concurrently.
type Process struct {
	ID   uint64
	Kind procKind

	state    atomic.Int32
	exitCode atomic.Int32

	mu         sync.Mutex
	aspace     *AddressSpace
	tasks      *idMap[*Task]
	tidAlloc   *idAllocator
	parent     *Process
	children   []*Process
	fdTable    []fs.File
	sigActions [abi.MaxSig + 1]SignalAction
	mutexes    []UserMutex
	semaphores []*Semaphore
	condvars   []*Condvar

	handlerFuncs map[uint64]SignalHandler
	handlerSeq   uint64
}

func newProcess(kind procKind, parent *Process) *Process {
	p := &Process{
		ID:         pidAllocator.Alloc(),
		Kind:       kind,
		aspace:     newAddressSpace(),
		tasks:      newIDMap[*Task](),
		tidAlloc:   newIDAllocatorFrom(0),
		parent:     parent,
		sigActions: defaultSignalActions(),
	}
	if parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, p)
		parent.mu.Unlock()
	}
	return p
}

func (p *Process) State() ProcState     { return ProcState(p.state.Load()) }
func (p *Process) setState(s ProcState) { p.state.Store(int32(s)) }
func (p *Process) ExitCode() int32      { return p.exitCode.Load() }

func (p *Process) IsIdle() bool   { return p.Kind == procIdle }
func (p *Process) IsKernel() bool { return p.Kind == procKernel }
func (p *Process) IsRoot() bool   { return p.parent == nil && p.Kind != procIdle }

// newTaskLocked allocates a tid and inserts a task into this process.
// Caller must hold p.mu.
func (p *Process) newTaskLocked() *Task {
	tid := p.tidAlloc.Alloc()
	t := newTask(tid, p.Kind != procUser, p)
	p.tasks.Set(tid, t)
	return t
}

// anyTaskAlive reports whether any of this process's tasks is not yet
// Zombie, used to decide whether the whole process has exited.
func (p *Process) anyTaskAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	alive := false
	p.tasks.Ascend(func(_ uint64, t *Task) bool {
		if t.State() != TaskZombie {
			alive = true
			return false
		}
		return true
	})
	return alive
}

// task0 returns the process's lowest-tid task.
func (p *Process) task0() (*Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, t, ok := p.tasks.Min()
	return t, ok
}

// raiseAll posts sig to every task of this process that is not yet
// Zombie, reporting whether at least one task received it.
func (p *Process) raiseAll(sig SignalFlags) bool {
	p.mu.Lock()
	var targets []*Task
	p.tasks.Ascend(func(_ uint64, t *Task) bool {
		if t.State() != TaskZombie {
			targets = append(targets, t)
		}
		return true
	})
	p.mu.Unlock()
	for _, t := range targets {
		t.Raise(sig)
	}
	return len(targets) > 0
}

// signalAction reads the process-wide handler table entry for sig.
func (p *Process) signalAction(sig SignalFlags) SignalAction {
	idx := bits.TrailingZeros32(uint32(sig))
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx >= len(p.sigActions) {
		return SignalAction{}
	}
	return p.sigActions[idx]
}

// SetSignalAction installs a handler for sig, returning the entry it
// replaced so a caller can reinstall it later. Kernel-handled signals
// reject an attempted override; their action is fixed.
func (p *Process) SetSignalAction(sig SignalFlags, act SignalAction) (old SignalAction, ok bool) {
	if sig&kernelSignals != 0 {
		return SignalAction{}, false
	}
	idx := bits.TrailingZeros32(uint32(sig))
	if idx >= len(p.sigActions) {
		return SignalAction{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	old = p.sigActions[idx]
	p.sigActions[idx] = act
	return old, true
}

// registerHandlerFunc installs fn under a fresh id, standing in for the
// handler address a real sigaction would record (see SignalHandler).
func (p *Process) registerHandlerFunc(fn SignalHandler) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlerSeq++
	id := p.handlerSeq
	if p.handlerFuncs == nil {
		p.handlerFuncs = make(map[uint64]SignalHandler)
	}
	p.handlerFuncs[id] = fn
	return id
}

// handlerFunc looks up a registered signal handler closure by id.
func (p *Process) handlerFunc(id uint64) (SignalHandler, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn, ok := p.handlerFuncs[id]
	return fn, ok
}

// aspaceReadUser/aspaceWriteUser take p.mu before touching the address
// space, since AddressSpace.Translate lazily allocates frames and must
// not race a concurrent mapping change.
func (p *Process) aspaceReadUser(va uint64, buf []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aspace.ReadUser(va, buf)
}

func (p *Process) aspaceWriteUser(va uint64, buf []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aspace.WriteUser(va, buf)
}

// pushArgv lays argv out on the mapped user stack below stackTop the
// way a freshly loaded image expects to find it: each argument's
// NUL-terminated bytes are pushed first, last argument down to first,
// then the stack pointer is rounded down to a 16-byte boundary, then
// the pointer array is pushed in the same last-down-to-first order so
// it reads argv[0..n) ascending from the final (lowest) address, which
// becomes argv_base. argv_base itself must land 16-byte aligned for
// any argc: a single pre-push alignment leaves an odd argc's final
// address 8 bytes short, so one extra pad word is inserted first
// whenever argc is odd. Returns argv_base and argc.
func (p *Process) pushArgv(stackTop uint64, argv []string) (argvBase uint64, argc int) {
	sp := stackTop
	ptrs := make([]uint64, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		b := append([]byte(argv[i]), 0)
		sp -= uint64(len(b))
		p.aspaceWriteUser(sp, b)
		ptrs[i] = sp
	}
	sp &^= 0xf
	if len(argv)%2 != 0 {
		sp -= 8
	}
	for i := len(ptrs) - 1; i >= 0; i-- {
		sp -= 8
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], ptrs[i])
		p.aspaceWriteUser(sp, buf[:])
	}
	return sp, len(argv)
}

// maxCString bounds aspaceReadCString the way a real kernel bounds
// PATH_MAX, so a missing NUL terminator can't spin forever reading
// unmapped pages one at a time.
const maxCString = 4096

// aspaceReadCString reads a NUL-terminated string out of user memory,
// the shape sys_open's path argument takes. Returns ok=false if no NUL
// is found within maxCString bytes or any touched page isn't mapped.
func (p *Process) aspaceReadCString(va uint64) (string, bool) {
	var b []byte
	for i := 0; i < maxCString; i++ {
		var c [1]byte
		if !p.aspaceReadUser(va+uint64(i), c[:]) {
			return "", false
		}
		if c[0] == 0 {
			return string(b), true
		}
		b = append(b, c[0])
	}
	return "", false
}

// AllocFd installs f at the lowest free descriptor and returns it.
func (p *Process) AllocFd(f fs.File) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := lowestFreeSlot(func(i int) bool { return p.fdTable[i] != nil }, len(p.fdTable))
	if idx == len(p.fdTable) {
		p.fdTable = append(p.fdTable, f)
	} else {
		p.fdTable[idx] = f
	}
	return idx
}

// Fd returns the file installed at fd, if any.
func (p *Process) Fd(fd int) (fs.File, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fd < 0 || fd >= len(p.fdTable) || p.fdTable[fd] == nil {
		return nil, false
	}
	return p.fdTable[fd], true
}

// CloseFd removes the file at fd, freeing the slot for reuse. Free
// slots at the end of the table are dropped, so an open followed by a
// close leaves the table exactly as it was before the open.
func (p *Process) CloseFd(fd int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fd < 0 || fd >= len(p.fdTable) || p.fdTable[fd] == nil {
		return false
	}
	p.fdTable[fd] = nil
	for len(p.fdTable) > 0 && p.fdTable[len(p.fdTable)-1] == nil {
		p.fdTable = p.fdTable[:len(p.fdTable)-1]
	}
	return true
}

// AllocMutex/AllocSemaphore/AllocCondvar install a new sync primitive
// at the lowest free slot, matching the fd table's recycling
// discipline.
func (p *Process) AllocMutex(m UserMutex) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := lowestFreeSlot(func(i int) bool { return p.mutexes[i] != nil }, len(p.mutexes))
	if idx == len(p.mutexes) {
		p.mutexes = append(p.mutexes, m)
	} else {
		p.mutexes[idx] = m
	}
	return idx
}

func (p *Process) Mutex(id int) (UserMutex, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.mutexes) || p.mutexes[id] == nil {
		return nil, false
	}
	return p.mutexes[id], true
}

func (p *Process) AllocSemaphore(s *Semaphore) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := lowestFreeSlot(func(i int) bool { return p.semaphores[i] != nil }, len(p.semaphores))
	if idx == len(p.semaphores) {
		p.semaphores = append(p.semaphores, s)
	} else {
		p.semaphores[idx] = s
	}
	return idx
}

func (p *Process) Semaphore(id int) (*Semaphore, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.semaphores) || p.semaphores[id] == nil {
		return nil, false
	}
	return p.semaphores[id], true
}

func (p *Process) AllocCondvar(c *Condvar) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := lowestFreeSlot(func(i int) bool { return p.condvars[i] != nil }, len(p.condvars))
	if idx == len(p.condvars) {
		p.condvars = append(p.condvars, c)
	} else {
		p.condvars[idx] = c
	}
	return idx
}

func (p *Process) Condvar(id int) (*Condvar, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.condvars) || p.condvars[id] == nil {
		return nil, false
	}
	return p.condvars[id], true
}

// fork creates a child process sharing no memory with the parent: a
// deep copy of the address space (no copy-on-write), a copy of the fd
// table (shared file references), and a single task running
// childEntry, the explicit continuation the caller supplies for "the
// code after fork() in the child." A true register-level fork would
// resume the same program counter in both processes; since user
// programs are Go closures rather than mapped instructions, the caller
// names the child's body directly instead of the kernel replaying one
// program from a saved PC.
func (p *Process) fork(k *Kernel, curr *Task, childEntry UserEntry, childArgv []string) (*Process, bool) {
	p.mu.Lock()
	aspace, ok := p.aspace.Clone()
	fdTable := append([]fs.File(nil), p.fdTable...)
	sigActions := p.sigActions
	p.mu.Unlock()
	if !ok {
		return nil, false
	}

	child := newProcess(procUser, p)
	child.mu.Lock()
	child.aspace = aspace
	child.fdTable = fdTable
	child.sigActions = sigActions
	childTask := child.newTaskLocked()
	child.mu.Unlock()

	childTask.kind = entryUser
	childTask.userEntry = childEntry
	childTask.userArgv = childArgv
	if curr.trapFrame != nil {
		childTask.trapFrame = curr.trapFrame.Fork()
	}

	k.manager.SpawnProc(child)
	k.startTask(childTask)
	return child, true
}

// execInto replaces p's image with a new user program: the address
// space is cleared and rebuilt with a fresh stack mapping, argv is
// pushed onto that stack exactly as a freshly loaded image would
// receive it, and every task but the caller's is discarded since exec
// does not preserve extra threads. Returns argc.
func (p *Process) execInto(entry UserEntry, argv []string, caller *Task) int {
	p.mu.Lock()
	p.aspace.Clear()
	p.tasks = newIDMap[*Task]()
	p.tasks.Set(caller.TID, caller)
	p.mu.Unlock()

	top := mapUserStack(p.aspace, 0)
	argvBase, argc := p.pushArgv(top, argv)
	caller.trapFrame = arch.NewUserArg(0, argvBase, uint64(argc), argvBase)
	caller.userEntry = entry
	caller.userArgv = argv
	caller.kind = entryUser
	return argc
}
