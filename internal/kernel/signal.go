package kernel

import (
	"math/bits"

	"github.com/armos-project/armos/internal/abi"
	"github.com/armos-project/armos/internal/arch"
)

// SignalFlags is the bitset of deliverable signals. Only a handful are
// meaningful without a real process-group/tty layer; the rest are
// carried so sigaction/sigprocmask accept the same mask values a real
// program would pass.
type SignalFlags uint32

const (
	SIGDEF  SignalFlags = 1 << 0 // default action: terminate
	SIGHUP  SignalFlags = 1 << 1
	SIGINT  SignalFlags = 1 << 2
	SIGQUIT SignalFlags = 1 << 3
	SIGILL  SignalFlags = 1 << 4
	SIGTRAP SignalFlags = 1 << 5
	SIGABRT SignalFlags = 1 << 6
	SIGBUS  SignalFlags = 1 << 7
	SIGFPE  SignalFlags = 1 << 8
	SIGKILL SignalFlags = 1 << 9
	SIGUSR1 SignalFlags = 1 << 10
	SIGSEGV SignalFlags = 1 << 11
	SIGUSR2 SignalFlags = 1 << 12
	SIGPIPE SignalFlags = 1 << 13
	SIGALRM SignalFlags = 1 << 14
	SIGTERM SignalFlags = 1 << 15
	SIGSTOP SignalFlags = 1 << 17
	SIGCONT SignalFlags = 1 << 18
)

// kernelSignals is the set the kernel handles itself without ever
// giving user code a chance to install a handler: STOP, CONT, KILL and
// DEF all have a fixed meaning.
var kernelSignals = SIGSTOP | SIGCONT | SIGKILL | SIGDEF

// validSignal reports whether sig names exactly one signal bit; kill
// with zero or several bits set is malformed.
func validSignal(sig SignalFlags) bool {
	return sig != 0 && sig&(sig-1) == 0
}

// SignalAction is a process-wide, inherited-on-fork handler table
// entry. Handler == 0 means "default action."
type SignalAction struct {
	Handler uint64
	Mask    SignalFlags
}

// SignalHandler is a simulated user signal handler: the same
// closure-stands-in-for-an-address idiom UserEntry uses for a program's
// entry point (see userprog.go) applied to sigaction's handler field,
// since this tree has no mapped instructions to resume into. Registered
// through Proc.SigActionFunc and invoked synchronously by
// Proc.runSignalHandler; it must call p.SigReturn() itself before
// returning, the way a real handler's trampoline calls sys_sigreturn.
type SignalHandler func(p *Proc, sig SignalFlags)

func defaultSignalActions() [abi.MaxSig + 1]SignalAction {
	var a [abi.MaxSig + 1]SignalAction
	for i := range a {
		a[i] = SignalAction{Mask: SIGDEF}
	}
	return a
}

// signalState is the per-task half of the signal subsystem: the
// pending set, the task's own mask, whether it is currently inside a
// user handler (and if so, the state to restore on sigreturn), and the
// two latched flags (killed, frozen) the kernel-handled signals set
// directly.
type signalState struct {
	pending SignalFlags
	mask    SignalFlags

	handling        bool
	maskBackup      SignalFlags
	trapFrameBackup arch.TrapFrame

	killed bool
	frozen bool
}

func (s *signalState) init() {
	s.mask = 0
	s.pending = 0
}

// raise adds sig to the task's pending set.
func (s *signalState) raise(sig SignalFlags) {
	s.pending |= sig
}

// deliverable returns the lowest-numbered pending, unmasked signal.
// Delivery order is strictly ascending by signal number; whether a bit
// is kernel-handled or user-handled is decided at its own position,
// never by hoisting one class ahead of the other.
func (s *signalState) deliverable() (SignalFlags, bool) {
	ready := s.pending &^ s.mask
	if ready == 0 {
		return 0, false
	}
	return SignalFlags(1) << bits.TrailingZeros32(uint32(ready)), true
}

func (s *signalState) clear(sig SignalFlags) { s.pending &^= sig }

// handleKernelSignal applies SIGSTOP/SIGCONT/SIGKILL/SIGDEF directly,
// without ever giving user code a handler dispatch. Returns true if
// sig was one of these and was consumed.
func (s *signalState) handleKernelSignal(sig SignalFlags) bool {
	switch sig {
	case SIGKILL:
		s.killed = true
		s.clear(sig)
		return true
	case SIGSTOP:
		s.frozen = true
		s.clear(sig)
		return true
	case SIGCONT:
		s.frozen = false
		s.clear(sig)
		return true
	case SIGDEF:
		s.killed = true
		s.clear(sig)
		return true
	}
	return false
}

// handleSignals is run on the way back to user mode: it keeps
// delivering kernel-handled signals and freeze/continue checks until
// either a user-handled signal is found (returned for the caller to
// dispatch) or the pending set is exhausted. It never touches a signal
// masked out by the task's own sigprocmask.
func (t *Task) handleSignals() (sig SignalFlags, act SignalAction, deliver bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		s, ok := t.sig.deliverable()
		if !ok {
			return 0, SignalAction{}, false
		}
		if t.sig.handleKernelSignal(s) {
			if t.sig.killed {
				return 0, SignalAction{}, false
			}
			continue
		}
		proc := t.Process()
		a := proc.signalAction(s)
		if a.Handler == 0 { // default action: terminate the process
			t.sig.killed = true
			t.sig.clear(s)
			return 0, SignalAction{}, false
		}
		t.sig.clear(s)
		return s, a, true
	}
}

// enterHandler saves the trap frame and mask so sigreturn can restore
// them, then installs the handler's own mask while it runs: the
// handler's declared mask applies for its duration, on top of whatever
// was already masked.
func (t *Task) enterHandler(act SignalAction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sig.handling = true
	t.sig.maskBackup = t.sig.mask
	t.sig.trapFrameBackup = *t.trapFrame
	t.sig.mask |= act.Mask
}

// sigreturn restores the trap frame and mask saved by enterHandler.
func (t *Task) sigreturn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.sig.handling {
		return false
	}
	*t.trapFrame = t.sig.trapFrameBackup
	t.sig.mask = t.sig.maskBackup
	t.sig.handling = false
	return true
}

// Killed reports whether the task's pending signal handling decided it
// should be torn down (SIGKILL, unhandled-default, or plain SIGDEF).
func (t *Task) Killed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sig.killed
}

// Frozen reports whether a SIGSTOP is outstanding with no matching
// SIGCONT yet.
func (t *Task) Frozen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sig.frozen
}

// Raise adds sig to the task's pending set.
func (t *Task) Raise(sig SignalFlags) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sig.raise(sig)
}

// SetMask installs this task's sigprocmask.
func (t *Task) SetMask(mask SignalFlags) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sig.mask = mask
}

// forceKill marks the task killed outright, without going through
// handleKernelSignal's pending-bit dance. Used when a signal action
// names a handler id this task has no registered closure for — there
// is no address to resume into, so the task terminates.
func (t *Task) forceKill() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sig.killed = true
}

func (t *Task) Mask() SignalFlags {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sig.mask
}
