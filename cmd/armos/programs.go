package main

import (
	"fmt"

	"github.com/armos-project/armos/internal/kernel"
)

// registerDemoPrograms installs the simulated user programs armos can
// boot into, standing in for the binaries a real ELF loader would map.
// shell is the default init; usertests is an end-to-end smoke test.
func registerDemoPrograms() {
	kernel.RegisterUserProgram("shell", shellProgram)
	kernel.RegisterUserProgram("usertests", usertestsProgram)
}

func shellProgram(p *kernel.Proc, argv []string) int32 {
	p.Write(1, []byte("armos shell booted\n"))
	return 0
}

// usertestsProgram runs a short fork/wait smoke test: spawn a child,
// have it print its own pid, and reap it via waitpid.
func usertestsProgram(p *kernel.Proc, argv []string) int32 {
	p.Write(1, []byte("usertests: starting\n"))

	childPid := p.Fork(func(p2 *kernel.Proc, argv2 []string) int32 {
		p2.Write(1, []byte(fmt.Sprintf("usertests: child pid=%d\n", p2.Pid())))
		return 0
	}, nil)
	if childPid < 0 {
		p.Write(1, []byte("usertests: fork failed\n"))
		return -1
	}

	for {
		pid, code := p.WaitPid(-1)
		if pid == -2 {
			p.Yield()
			continue
		}
		if pid != childPid || code != 0 {
			p.Write(1, []byte("usertests: FAILED\n"))
			return -1
		}
		break
	}

	p.Write(1, []byte("usertests: all tests passed\n"))
	return 0
}
