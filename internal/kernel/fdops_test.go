package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armos-project/armos/internal/abi"
	"github.com/armos-project/armos/internal/fs"
)

// TestPipeHelloWorldRoundTrip drives a pipe across fork: a pipe's two
// fds (r < w), a child writing "hello" to w, the parent reading
// exactly 5 bytes back, and a post-close read returning 0.
func TestPipeHelloWorldRoundTrip(t *testing.T) {
	k := newTestKernel(t)

	RegisterUserProgram("pipe-main", func(p *Proc, argv []string) int32 {
		r, w, ok := p.Pipe2Direct()
		if !ok || !(r < w) {
			return -1
		}

		childPid := p.Fork(func(p2 *Proc, argv2 []string) int32 {
			n := p2.Write(w, []byte("hello"))
			if n != 5 {
				return -1
			}
			p2.Close(w)
			return 0
		}, nil)
		if childPid < 0 {
			return -2
		}
		p.Close(w)

		buf := make([]byte, 5)
		n := p.Read(r, buf)
		if n != 5 || string(buf) != "hello" {
			return -3
		}

		for {
			pid, code := p.WaitPid(-1)
			if pid == abi.ErrAgain {
				p.Yield()
				continue
			}
			if pid != childPid || code != 0 {
				return -4
			}
			break
		}

		eof := make([]byte, 1)
		if n := p.Read(r, eof); n != 0 {
			return -5
		}
		return 0
	})

	proc, ok := k.Boot("pipe-main", nil)
	require.True(t, ok)
	require.Eventually(t, func() bool { return proc.State() == ProcZombie }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), proc.ExitCode())
}

// TestDup3AliasesSameFileIndependentOfClose: dup3 picks the lowest
// free fd, aliases the same file capability, and closing one end
// leaves the other usable.
func TestDup3AliasesSameFileIndependentOfClose(t *testing.T) {
	k := newTestKernel(t)

	RegisterUserProgram("dup3-main", func(p *Proc, argv []string) int32 {
		r, w, ok := p.Pipe2Direct()
		if !ok {
			return -1
		}
		dup := p.Dup3(w)
		if dup < 0 || dup == r || dup == w {
			return -5
		}
		if n := p.Write(dup, []byte("hi")); n != 2 {
			return -2
		}
		p.Close(w)
		// dup is still writable/usable even though w was closed.
		if n := p.Write(dup, []byte("!")); n != 1 {
			return -3
		}

		buf := make([]byte, 3)
		if n := p.Read(r, buf); n != 3 || string(buf) != "hi!" {
			return -4
		}
		return 0
	})

	proc, ok := k.Boot("dup3-main", nil)
	require.True(t, ok)
	require.Eventually(t, func() bool { return proc.State() == ProcZombie }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), proc.ExitCode())
}

// TestOpenCloseLeavesFdTableUnchanged exercises open/close idempotence
// directly against the fd table, and confirms a second open of the
// same path observes the first open's writes.
func TestOpenCloseLeavesFdTableUnchanged(t *testing.T) {
	k := newTestKernel(t)

	RegisterUserProgram("open-close-main", func(p *Proc, argv []string) int32 {
		proc := p.t.Process()
		before := len(proc.fdTable)

		f, ok := k.fsys.Open("/greeting", fs.OpenCreate|fs.OpenRDWR)
		if !ok {
			return -1
		}
		fd := proc.AllocFd(f)
		if n := p.Write(fd, []byte("hi")); n != 2 {
			return -2
		}
		if !p.Close(fd) {
			return -3
		}
		if len(proc.fdTable) != before {
			return -4
		}

		f2, ok := k.fsys.Open("/greeting", fs.OpenRDOnly)
		if !ok {
			return -5
		}
		buf := make([]byte, 2)
		if n := f2.Read(buf); n != 2 || string(buf) != "hi" {
			return -6
		}
		return 0
	})

	proc, ok := k.Boot("open-close-main", nil)
	require.True(t, ok)
	require.Eventually(t, func() bool { return proc.State() == ProcZombie }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), proc.ExitCode())
}
