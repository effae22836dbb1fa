package kernel

import (
	"encoding/binary"

	"github.com/armos-project/armos/internal/abi"
	"github.com/armos-project/armos/internal/arch"
	"github.com/armos-project/armos/internal/fs"
)

// Proc is the syscall surface a simulated user program closure is
// handed (see UserEntry in userprog.go). Its methods are the same
// kernel effects internal/abi's syscall table names and trap.go's
// Dispatch decodes a raw TrapFrame into; Proc just calls them directly,
// since a simulated program has no register file to trap from.
type Proc struct {
	k *Kernel
	t *Task
}

func (p *Proc) Pid() uint64 { return p.t.Process().ID }
func (p *Proc) Tid() uint64 { return p.t.TID }

// Write implements sys_write: looks up fd, checks it is writable, and
// forwards to the file.
func (p *Proc) Write(fd int, buf []byte) int {
	p.consultSignals()
	f, ok := p.t.Process().Fd(fd)
	if !ok || !f.Writable() {
		return abi.ErrInval
	}
	return f.Write(buf)
}

// Read implements sys_read.
func (p *Proc) Read(fd int, buf []byte) int {
	p.consultSignals()
	f, ok := p.t.Process().Fd(fd)
	if !ok || !f.Readable() {
		return abi.ErrInval
	}
	return f.Read(buf)
}

// Close implements sys_close.
func (p *Proc) Close(fd int) bool {
	p.consultSignals()
	return p.t.Process().CloseFd(fd)
}

// Open implements sys_open: resolve pathVA to a NUL-terminated path in
// user memory, open it against the kernel's file system, and install
// the result at the lowest free fd.
func (p *Proc) Open(pathVA uint64, flags fs.OpenFlags) int {
	p.consultSignals()
	path, ok := p.t.Process().aspaceReadCString(pathVA)
	if !ok {
		return abi.ErrInval
	}
	f, ok := p.k.fsys.Open(path, flags)
	if !ok {
		return abi.ErrInval
	}
	return p.t.Process().AllocFd(f)
}

// Pipe2Direct allocates a fresh pipe's two ends at the lowest free fds
// (reader below writer) and returns them directly, the way
// Fork/ThreadCreate bypass the trap-frame ABI for simulated Go-closure
// programs (see userprog.go) since there is no real register file to
// carry a user pointer through.
func (p *Proc) Pipe2Direct() (r, w int, ok bool) {
	p.consultSignals()
	proc := p.t.Process()
	hooks := taskHooks{k: p.k, t: p.t}
	rf, wf := fs.NewPipe(hooks)
	rfd := proc.AllocFd(rf)
	wfd := proc.AllocFd(wf)
	return rfd, wfd, true
}

// Pipe2 implements sys_pipe2 through the trap ABI: allocate the pipe
// via Pipe2Direct, then write the two resulting fds to user memory at
// fdsVA as little-endian int32 values, the shape a real pipe2(2)
// caller passes an `int[2]` pointer to receive.
func (p *Proc) Pipe2(fdsVA uint64) int {
	rfd, wfd, _ := p.Pipe2Direct()

	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(rfd))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(wfd))
	if !p.t.Process().aspaceWriteUser(fdsVA, buf[:]) {
		return abi.ErrInval
	}
	return 0
}

// Dup3 implements sys_dup3: the new fd aliases the same file
// capability, and closing one does not affect the other. The requested
// newfd/flags arguments have no home in that simplified contract, so
// this always picks the lowest free slot.
func (p *Proc) Dup3(oldfd int) int {
	p.consultSignals()
	f, ok := p.t.Process().Fd(oldfd)
	if !ok {
		return abi.ErrInval
	}
	return p.t.Process().AllocFd(f)
}

// Yield implements sys_yield.
func (p *Proc) Yield() {
	p.consultSignals()
	p.k.manager.YieldCurrent(p.t)
}

// Sleep implements sys_sleep.
func (p *Proc) Sleep(ms int64) {
	p.consultSignals()
	p.k.timer.Sleep(p.k, p.t, ms)
}

// GetTimeMs implements sys_get_time.
func (p *Proc) GetTimeMs() int64 {
	p.consultSignals()
	return p.k.timer.GetTimeMs()
}

// Fork implements sys_fork. childEntry is the explicit continuation
// the caller supplies for "the code that runs in the child after
// fork()" — see the comment on Process.fork for why this tree can't
// replay a single program's counter across both processes. Returns -1
// on address-space-clone failure.
func (p *Proc) Fork(childEntry UserEntry, childArgv []string) int64 {
	p.consultSignals()
	child, ok := p.t.Process().fork(p.k, p.t, childEntry, childArgv)
	if !ok {
		return abi.ErrInval
	}
	return int64(child.ID)
}

// Exec implements sys_exec. execInto pushes argv onto a freshly mapped
// user stack and builds the (entry, sp, argc, argv_base) trap frame a
// real image's first instruction would see in its registers — but
// since this tree's "entry" is a Go closure rather than a mapped
// address to resume into, the new program's body is run directly
// afterward and ITS result, not argc, is what Exec's Go-level caller
// observes: argc only ever lived in a trap frame's x0, a register a
// real return-from-exception would have overwritten with the syscall's
// own return value anyway, and which this tree's closures have no way
// to read. Exec never returns to the caller's old code, so UserEntry
// closures that call Exec must immediately `return p.Exec(...)`.
func (p *Proc) Exec(name string, argv []string) int32 {
	p.consultSignals()
	entry, ok := lookupUserProgram(name)
	if !ok {
		return abi.ErrInval
	}
	p.t.Process().execInto(entry, argv, p.t)
	return entry(p, argv)
}

// ThreadCreate implements sys_thread_create: a new task in the same
// process, sharing its address space and fd table, with its own mapped
// stack and argv. The stack layout is the same one exec builds, just
// at the new tid's stack slot.
func (p *Proc) ThreadCreate(entry UserEntry, argv []string) uint64 {
	p.consultSignals()
	proc := p.t.Process()
	proc.mu.Lock()
	t := proc.newTaskLocked()
	proc.mu.Unlock()
	t.kind = entryUser
	t.userEntry = entry
	t.userArgv = argv
	top := mapUserStack(proc.aspace, int(t.TID))
	argvBase, argc := proc.pushArgv(top, argv)
	t.trapFrame = arch.NewUserArg(0, argvBase, uint64(argc), argvBase)
	p.k.startTask(t)
	return t.TID
}

// WaitTid implements sys_waittid: if tid does not name a task of this
// process at all, return -1 immediately; if the task is still running,
// -2 so the caller can yield and retry; otherwise reap it.
func (p *Proc) WaitTid(tid uint64) (code int32, status int64) {
	p.consultSignals()
	proc := p.t.Process()
	proc.mu.Lock()
	target, ok := proc.tasks.Get(tid)
	if !ok {
		proc.mu.Unlock()
		return 0, abi.ErrInval
	}
	if target.State() != TaskZombie {
		proc.mu.Unlock()
		return 0, abi.ErrAgain
	}
	proc.tasks.Delete(tid)
	proc.mu.Unlock()
	return target.ExitCode(), 0
}

// WaitPid implements sys_waitpid: pid == -1 matches any child. Returns
// (-1, 0) if no matching child exists at all, (-2, 0) if one exists
// but hasn't exited, otherwise the reaped child's pid and its latched
// exit code.
func (p *Proc) WaitPid(pid int64) (childPid int64, code int32) {
	p.consultSignals()
	proc := p.t.Process()
	proc.mu.Lock()
	defer proc.mu.Unlock()

	found := false
	for i, c := range proc.children {
		if pid != -1 && int64(c.ID) != pid {
			continue
		}
		found = true
		if c.State() == ProcZombie {
			proc.children = append(proc.children[:i], proc.children[i+1:]...)
			p.k.manager.removeProc(c.ID)
			return int64(c.ID), c.ExitCode()
		}
	}
	if !found {
		return abi.ErrInval, 0
	}
	return abi.ErrAgain, 0
}

// consultSignals is the "on the way back to user mode, consult the
// signal subsystem" step: the I/O, process, scheduling and sync-op Proc
// methods call this first (Pid, Tid, the *Create calls and the
// signal-control calls do not), so a pending SIGKILL/SIGSTOP/SIGCONT raised by another task
// (Kill/Task.Raise) actually takes effect here instead of only
// flipping bits nothing ever reads. It keeps delivering kernel-handled
// signals and invoking registered handlers until the pending set is
// exhausted, yields in a loop while frozen (re-checking for the SIGCONT
// that clears it), and panics with killedSignal the instant the task is
// killed — caught by startTask, the only place it's safe to stop a
// simulated program's closure outright.
func (p *Proc) consultSignals() {
	for {
		sig, act, deliver := p.t.handleSignals()
		if deliver {
			p.runSignalHandler(sig, act)
			continue
		}
		if p.t.Killed() {
			panic(killedSignal{})
		}
		if !p.t.Frozen() {
			return
		}
		p.k.manager.YieldCurrent(p.t)
	}
}

// runSignalHandler dispatches a deliverable user signal to its
// registered closure (see SigActionFunc). A SigAction-installed handler
// id with no backing closure — a raw, real-ABI-shaped handler value this
// tree has no register file to resume into — force-kills the task
// instead, the same outcome a real kernel gives an address it can't
// actually jump to.
func (p *Proc) runSignalHandler(sig SignalFlags, act SignalAction) {
	fn, ok := p.t.Process().handlerFunc(act.Handler)
	if !ok {
		p.t.forceKill()
		return
	}
	p.t.enterHandler(act)
	fn(p, sig)
}

// SigActionFunc is the closure-based counterpart of SigAction: it
// registers fn as sig's handler and returns whether the install
// succeeded, the same substitution-for-an-address idiom UserEntry
// applies to program entry points (see userprog.go). fn must call
// p.SigReturn() itself before returning, matching a real handler
// trampoline's call to sys_sigreturn.
func (p *Proc) SigActionFunc(sig SignalFlags, mask SignalFlags, fn SignalHandler) bool {
	proc := p.t.Process()
	id := proc.registerHandlerFunc(fn)
	_, ok := proc.SetSignalAction(sig, SignalAction{Handler: id, Mask: mask})
	return ok
}

// Kill implements sys_kill: posts sig to every task of the target
// process that has not yet exited. Returns false on an unknown pid, a
// malformed signal value, or a target with no live task left to receive
// it — killing an already-dead process is an error, not a silent
// success.
func (p *Proc) Kill(pid uint64, sig SignalFlags) bool {
	if !validSignal(sig) {
		return false
	}
	proc, ok := p.k.manager.Pid2Proc(pid)
	if !ok {
		return false
	}
	return proc.raiseAll(sig)
}

// SigAction implements sys_sigaction, returning the action it
// replaced: installing the returned value back restores the table
// entry exactly.
func (p *Proc) SigAction(sig SignalFlags, act SignalAction) (SignalAction, bool) {
	return p.t.Process().SetSignalAction(sig, act)
}

// SigProcMask implements sys_sigprocmask, returning the previous mask.
func (p *Proc) SigProcMask(mask SignalFlags) SignalFlags {
	old := p.t.Mask()
	p.t.SetMask(mask)
	return old
}

// SigReturn implements sys_sigreturn.
func (p *Proc) SigReturn() bool { return p.t.sigreturn() }

// MutexCreate implements sys_mutex_create; blocking selects the FIFO
// wait-queue flavor over the busy-wait one.
func (p *Proc) MutexCreate(blocking bool) int {
	var m UserMutex
	if blocking {
		m = NewMutexBlocking()
	} else {
		m = NewMutexSpin()
	}
	return p.t.Process().AllocMutex(m)
}

func (p *Proc) MutexLock(id int) bool {
	p.consultSignals()
	m, ok := p.t.Process().Mutex(id)
	if !ok {
		return false
	}
	m.Lock(p.k, p.t)
	return true
}

func (p *Proc) MutexUnlock(id int) bool {
	p.consultSignals()
	m, ok := p.t.Process().Mutex(id)
	if !ok {
		return false
	}
	m.Unlock(p.k, p.t)
	return true
}

func (p *Proc) SemaphoreCreate(initial int64) int {
	return p.t.Process().AllocSemaphore(NewSemaphore(initial))
}

func (p *Proc) SemaphoreUp(id int) bool {
	p.consultSignals()
	s, ok := p.t.Process().Semaphore(id)
	if !ok {
		return false
	}
	s.Up(p.k)
	return true
}

func (p *Proc) SemaphoreDown(id int) bool {
	p.consultSignals()
	s, ok := p.t.Process().Semaphore(id)
	if !ok {
		return false
	}
	s.Down(p.k, p.t)
	return true
}

func (p *Proc) CondvarCreate() int {
	return p.t.Process().AllocCondvar(NewCondvar())
}

func (p *Proc) CondvarSignal(id int) bool {
	p.consultSignals()
	c, ok := p.t.Process().Condvar(id)
	if !ok {
		return false
	}
	c.Signal(p.k)
	return true
}

func (p *Proc) CondvarWait(id, mutexID int) bool {
	p.consultSignals()
	c, ok := p.t.Process().Condvar(id)
	if !ok {
		return false
	}
	m, ok := p.t.Process().Mutex(mutexID)
	if !ok {
		return false
	}
	c.Wait(p.k, p.t, m)
	return true
}
