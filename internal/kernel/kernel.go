package kernel

import (
	"fmt"
	"time"

	"github.com/armos-project/armos/internal/abi"
	"github.com/armos-project/armos/internal/arch"
	"github.com/armos-project/armos/internal/device"
	"github.com/armos-project/armos/internal/fs"
)

// Kernel is the top-level object wiring the scheduler, the signal and
// sync primitives, the timer queue, and the fake devices together. A
// real boot only ever constructs one; tests construct fresh ones
// freely for isolation.
type Kernel struct {
	manager *manager
	timer   *timerQueue
	root    *Process

	uart *device.FakeUART
	gic  *device.FakeGIC
	fsys *fs.InMemoryFS

	stopTicks chan struct{}
}

// NewKernel builds a Kernel with its idle process already running and
// the timer IRQ unmasked; Boot then spawns the init process on top.
func NewKernel(boot time.Time) *Kernel {
	k := &Kernel{
		manager: newManager(),
		timer:   newTimerQueue(boot),
		uart:    device.NewFakeUART(),
		gic:     device.NewFakeGIC(),
		fsys:    fs.NewInMemoryFS(),
	}

	k.gic.SetMask(abi.IRQTimer, false)

	idleProc := newProcess(procIdle, nil)
	idleProc.mu.Lock()
	idleTask := idleProc.newTaskLocked()
	idleProc.mu.Unlock()
	idleTask.kind = entryKernel
	idleTask.kernelEntry = k.idleLoop

	k.manager.cpu = initPerCPU(0, idleTask)
	k.manager.SpawnProc(idleProc)
	k.startKernelTask(idleTask, false)

	return k
}

// idleLoop is the body of CPU 0's idle task: when nothing else is
// Ready, park briefly (standing in for "wait for interrupt") and
// yield. The idle task is never enqueued on the ready queue; the
// scheduler falls back to it only when the queue is empty.
func (k *Kernel) idleLoop(arg uint64) int32 {
	for {
		time.Sleep(time.Millisecond)
		k.manager.YieldCurrent(k.manager.cpu.IdleTask())
	}
}

// startKernelTask launches a kernel task's goroutine. If makeReady is
// true it is immediately scheduler-visible; the idle task instead
// becomes "current" directly, since it is the first thing NewKernel
// ever runs and there is nothing to switch away from yet.
func (k *Kernel) startKernelTask(t *Task, makeReady bool) {
	if makeReady {
		t.setState(TaskReady)
		k.manager.SpawnTask(t)
	} else {
		t.setState(TaskRunning)
	}
	go func() {
		if makeReady {
			<-t.wake
		}
		code := t.kernelEntry(t.kernelArg)
		proc := t.Process()
		k.manager.ExitCurrent(t, code)
		if !proc.anyTaskAlive() {
			k.reapExit(proc, code)
		}
	}()
}

// SpawnKernelTask creates a new kernel-mode task in proc, running
// entry(arg) to completion.
func (k *Kernel) SpawnKernelTask(proc *Process, entry KernelEntry, arg uint64) *Task {
	proc.mu.Lock()
	t := proc.newTaskLocked()
	proc.mu.Unlock()
	t.kind = entryKernel
	t.kernelEntry = entry
	t.kernelArg = arg
	k.startKernelTask(t, true)
	return t
}

// startTask launches a user task's goroutine: it calls userEntry
// through a Proc handle that gives the closure the same syscall
// surface the dispatch table exposes, then retires the task with
// whatever code the program returned. It is the single choke point
// every user-task launch funnels through (boot, fork's child,
// thread_create), so it is also where a mid-execution SIGKILL's
// panic/recover unwind (see killedSignal) is caught.
func (k *Kernel) startTask(t *Task) {
	t.setState(TaskReady)
	k.manager.SpawnTask(t)
	go func() {
		<-t.wake
		p := &Proc{k: k, t: t}
		code := runUserTask(p, t)
		proc := t.Process()
		k.manager.ExitCurrent(t, code)
		if !proc.anyTaskAlive() {
			k.reapExit(proc, code)
		}
	}()
}

// killedSignal is the panic sentinel Proc.consultSignals throws the
// instant a SIGKILL (or an unhandled-default signal) takes effect. A
// goroutine mid-loop inside a simulated user closure has no
// trap-return point to discover it is dead the way a real task does on
// its way back to EL0; panic/recover, caught only here and only for
// this sentinel, is this tree's stand-in for "never resumes past the
// kernel."
type killedSignal struct{}

// runUserTask runs a user task's closure to completion, turning a
// killedSignal unwind into the exit code a killed process reports —
// the same -1 convention trap.go's unknown-syscall path uses for
// "terminated by the kernel, not by its own sys_exit."
func runUserTask(p *Proc, t *Task) (code int32) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if _, ok := r.(killedSignal); !ok {
			panic(r)
		}
		code = abi.ErrInval
	}()
	return t.userEntry(p, t.userArgv)
}

// NewUserProcess creates the first task of a brand new user process
// running the named registered program, parented to parent (nil for
// the root process itself). Returns false if name isn't a registered
// program.
func (k *Kernel) NewUserProcess(name string, argv []string, parent *Process) (*Process, bool) {
	entry, ok := lookupUserProgram(name)
	if !ok {
		return nil, false
	}
	proc := newProcess(procUser, parent)
	proc.mu.Lock()
	t := proc.newTaskLocked()
	proc.mu.Unlock()
	top := mapUserStack(proc.aspace, 0)
	argvBase, argc := proc.pushArgv(top, argv)
	t.trapFrame = arch.NewUserArg(0, argvBase, uint64(argc), argvBase)
	t.kind = entryUser
	t.userEntry = entry
	t.userArgv = argv
	k.installStdio(proc, t)

	k.manager.SpawnProc(proc)
	k.startTask(t)
	return proc, true
}

// installStdio gives a fresh process fd 0 (console input), 1 and 2
// (console output).
func (k *Kernel) installStdio(proc *Process, t *Task) {
	hooks := taskHooks{k: k, t: t}
	proc.AllocFd(&fs.Stdin{Console: k.uart, Hooks: hooks})
	proc.AllocFd(&fs.Stdout{Console: k.uart})
	proc.AllocFd(&fs.Stdout{Console: k.uart})
}

// Boot creates the root (init) process running the named registered
// program, with no parent of its own; every orphaned process is
// reparented to it as parents exit.
func (k *Kernel) Boot(initName string, argv []string) (*Process, bool) {
	proc, ok := k.NewUserProcess(initName, argv, nil)
	if ok {
		k.root = proc
	}
	return proc, ok
}

// reapExit finalizes a process whose last task has exited: latch the
// exit code, mark Zombie, and reparent any live children to the root
// process so they can still be waited on.
func (k *Kernel) reapExit(proc *Process, code int32) {
	proc.exitCode.Store(code)
	proc.setState(ProcZombie)

	proc.mu.Lock()
	children := proc.children
	proc.children = nil
	proc.mu.Unlock()

	if k.root != nil && proc != k.root {
		k.root.mu.Lock()
		for _, c := range children {
			c.mu.Lock()
			c.parent = k.root
			c.mu.Unlock()
		}
		k.root.children = append(k.root.children, children...)
		k.root.mu.Unlock()
	}
}

// RunTicks raises the timer IRQ at abi.TicksPerSec and services it
// until stopped, standing in for the periodic interrupt a real boot
// would take. Call it in its own goroutine from the boot harness;
// tests instead call timer.Tick directly for deterministic control.
func (k *Kernel) RunTicks() {
	k.stopTicks = make(chan struct{})
	ticker := time.NewTicker(tickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			k.gic.Raise(abi.IRQTimer)
			k.handleIRQ()
		case <-k.stopTicks:
			return
		}
	}
}

// handleIRQ drains the interrupt controller: the timer IRQ reprograms
// nothing here (the ticker is periodic already) but drives the sleep
// queue and the scheduler's quantum hook; an IRQ with no known source
// is logged and dismissed.
func (k *Kernel) handleIRQ() {
	for {
		irq, ok := k.gic.PendingIRQ()
		if !ok {
			return
		}
		switch irq {
		case abi.IRQTimer:
			k.timer.Tick(k)
		default:
			log.WithField("irq", irq).Warn("unhandled irq dismissed")
		}
		k.gic.EOI()
	}
}

func (k *Kernel) StopTicks() {
	if k.stopTicks != nil {
		close(k.stopTicks)
	}
}

// Console exposes the fake UART as the stdio collaborator internal/fs
// needs. The kernel itself builds each new process's fd 0/1/2 over it
// at process creation time (installStdio).
func (k *Kernel) Console() fs.Console { return k.uart }

// FeedConsole queues bytes at the fake UART as if typed at boot, used
// by the CLI's --feed flag to make a run reproducible without a real
// keyboard.
func (k *Kernel) FeedConsole(b []byte) { k.uart.Feed(b...) }

// ConsoleOutput returns everything the fake UART has printed so far.
func (k *Kernel) ConsoleOutput() []byte { return k.uart.Output() }

// taskHooks adapts a (*Kernel, *Task) pair to fs.TaskHooks, letting
// internal/fs's Stdin and pipe ends yield and raise SIGINT without
// importing kernel. Both hooks act on the task running when they fire,
// which is the reading task, so a forked child or a second thread
// sharing the file yields and receives SIGINT itself.
type taskHooks struct {
	k *Kernel
	t *Task
}

func (h taskHooks) YieldNow()    { h.k.manager.YieldCurrent(h.k.CurrentTask()) }
func (h taskHooks) RaiseSIGINT() { h.k.CurrentTask().Raise(SIGINT) }

// CurrentTask returns the task CPU 0 is running right now.
func (k *Kernel) CurrentTask() *Task { return currentCPU().CurrentTask() }

// DumpTasks returns a snapshot of every live process's tasks and their
// states, with the currently running task starred. Backs the
// --dump-tasks diagnostic in cmd/armos.
func (k *Kernel) DumpTasks() string {
	curr := k.CurrentTask()
	out := ""
	k.manager.procMu.Lock()
	k.manager.procMap.Ascend(func(pid uint64, p *Process) bool {
		p.mu.Lock()
		out += fmt.Sprintf("proc %d (kind=%d, state=%d):\n", pid, p.Kind, p.State())
		p.tasks.Ascend(func(tid uint64, t *Task) bool {
			mark := ""
			if t == curr {
				mark = " *"
			}
			out += fmt.Sprintf("  task %d: %s%s\n", tid, t.State(), mark)
			return true
		})
		p.mu.Unlock()
		return true
	})
	k.manager.procMu.Unlock()
	return out
}
