package kernel

import (
	"encoding/binary"

	"github.com/armos-project/armos/internal/abi"
	"github.com/armos-project/armos/internal/arch"
	"github.com/armos-project/armos/internal/fs"
)

// Dispatch is the syscall dispatcher: given the trap frame a
// synchronous exception left behind, read the syscall number out of x8
// and the first three arguments out of x0-x2, run the corresponding
// kernel effect, and write the result back into x0. It exists
// independently of Proc (proc.go) so the dispatcher itself — argument
// decoding, the unknown-syscall path, user-memory marshaling for
// read/write — can be exercised with synthetic trap frames, the way a
// real trap handler would be driven by hardware rather than by a Go
// closure calling Proc's methods directly.
//
// sys_fork, sys_exec and sys_thread_create are not reachable through
// this path: the register ABI has nowhere to carry the Go closure that
// stands in for a child/new program's code (see userprog.go), so those
// three are only available through Proc. A real trap frame would
// instead carry a userspace return address the new image jumps to;
// since this tree simulates programs as closures rather than mapped
// instructions, that address doesn't exist to decode.
//
// Like the Proc syscall methods, dispatch consults the signal subsystem
// before acting; a killed task unwinds via the same killedSignal panic
// startTask recovers from. A real caller driving this path from an
// actual trap loop would need the same recover around its own dispatch
// loop — this tree's only caller is Dispatch's own tests, none of
// which raise a signal that would trigger it.
func Dispatch(k *Kernel, t *Task, tf *arch.TrapFrame) {
	args := tf.SyscallArgs()
	ret := dispatch(k, t, tf.SyscallNum(), args)
	tf.SetReturn(ret)
}

// userCopyChunk bounds a single user-memory copy inside sys_write, so
// one syscall never pins an arbitrarily large kernel buffer.
const userCopyChunk = 256

// writeUserChunked marshals a sys_write in chunks of at most
// userCopyChunk bytes. A fault on the first chunk fails the whole call;
// after that, whatever was written so far is reported.
func writeUserChunked(p *Proc, fd int, va uint64, n int) int64 {
	total := 0
	for total < n {
		c := n - total
		if c > userCopyChunk {
			c = userCopyChunk
		}
		buf := make([]byte, c)
		if !p.t.Process().aspaceReadUser(va+uint64(total), buf) {
			if total == 0 {
				return abi.ErrInval
			}
			break
		}
		got := p.Write(fd, buf)
		if got < 0 {
			if total == 0 {
				return int64(got)
			}
			break
		}
		total += got
		if got < c {
			break
		}
	}
	return int64(total)
}

func dispatch(k *Kernel, t *Task, num uint64, args [3]uint64) int64 {
	p := &Proc{k: k, t: t}
	p.consultSignals()
	switch num {
	case abi.SysWrite:
		fd, va, n := int(args[0]), args[1], int(args[2])
		return writeUserChunked(p, fd, va, n)

	case abi.SysRead:
		fd, va, n := int(args[0]), args[1], int(args[2])
		buf := make([]byte, n)
		got := p.Read(fd, buf)
		if got > 0 {
			t.Process().aspaceWriteUser(va, buf[:got])
		}
		return int64(got)

	case abi.SysClose:
		if p.Close(int(args[0])) {
			return 0
		}
		return abi.ErrInval

	case abi.SysOpen:
		return int64(p.Open(args[0], fs.OpenFlags(args[1])))

	case abi.SysPipe2:
		return int64(p.Pipe2(args[0]))

	case abi.SysDup3:
		return int64(p.Dup3(int(args[0])))

	case abi.SysExit, abi.SysExitGroup:
		k.manager.ExitCurrent(t, int32(args[0]))
		return 0 // unreachable: ExitCurrent never returns to caller

	case abi.SysYield:
		p.Yield()
		return 0

	case abi.SysSleep:
		p.Sleep(int64(args[0]))
		return 0

	case abi.SysGetTime:
		return p.GetTimeMs()

	case abi.SysGetpid:
		return int64(p.Pid())

	case abi.SysGettid:
		return int64(p.Tid())

	case abi.SysWaittid:
		code, status := p.WaitTid(args[0])
		if status != 0 {
			return status
		}
		return int64(code)

	case abi.SysWaitpid:
		pid, code := p.WaitPid(int64(args[0]))
		if pid < 0 {
			return pid
		}
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(code))
		t.Process().aspaceWriteUser(args[1], buf[:])
		return pid

	case abi.SysKill:
		if p.Kill(args[0], SignalFlags(args[1])) {
			return 0
		}
		return abi.ErrInval

	case abi.SysSigaction:
		_, ok := p.SigAction(SignalFlags(args[0]), SignalAction{Handler: args[1], Mask: SignalFlags(args[2])})
		if ok {
			return 0
		}
		return abi.ErrInval

	case abi.SysSigprocmask:
		return int64(p.SigProcMask(SignalFlags(args[0])))

	case abi.SysSigreturn:
		if p.SigReturn() {
			return 0
		}
		return abi.ErrInval

	case abi.SysMutexCreate:
		return int64(p.MutexCreate(args[0] != 0))

	case abi.SysMutexLock:
		if p.MutexLock(int(args[0])) {
			return 0
		}
		return abi.ErrInval

	case abi.SysMutexUnlock:
		if p.MutexUnlock(int(args[0])) {
			return 0
		}
		return abi.ErrInval

	case abi.SysSemaphoreCreate:
		return int64(p.SemaphoreCreate(int64(args[0])))

	case abi.SysSemaphoreUp:
		if p.SemaphoreUp(int(args[0])) {
			return 0
		}
		return abi.ErrInval

	case abi.SysSemaphoreDown:
		if p.SemaphoreDown(int(args[0])) {
			return 0
		}
		return abi.ErrInval

	case abi.SysCondvarCreate:
		return int64(p.CondvarCreate())

	case abi.SysCondvarSignal:
		if p.CondvarSignal(int(args[0])) {
			return 0
		}
		return abi.ErrInval

	case abi.SysCondvarWait:
		if p.CondvarWait(int(args[0]), int(args[1])) {
			return 0
		}
		return abi.ErrInval

	default:
		log.WithField("num", num).WithField("tid", t.TID).Error("unknown syscall")
		k.manager.ExitCurrent(t, -1)
		return 0 // unreachable
	}
}
