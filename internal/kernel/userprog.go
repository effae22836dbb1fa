package kernel

import (
	"sync"

	"github.com/armos-project/armos/internal/abi"
)

// UserEntry is a simulated user program: a Go closure given a Proc
// handle — the same syscall surface a trap-dispatched program reaches
// through the dispatch table in trap.go — and its argv. There is no
// ELF loader in this tree, so a closure stands in for a program
// image's mapped instructions; its return value stands in for the
// argument a real program would have passed to sys_exit.
type UserEntry func(p *Proc, argv []string) int32

// userProgramRegistry maps a path (as sys_exec takes one) to the
// closure simulating its behavior, mirroring the name-to-image table a
// real loader would consult.
var userProgramRegistry = struct {
	mu    sync.Mutex
	progs map[string]UserEntry
}{progs: make(map[string]UserEntry)}

// RegisterUserProgram installs a simulated user program under name, for
// new_user/exec to find by path. Call during boot setup, before any
// task looks it up.
func RegisterUserProgram(name string, entry UserEntry) {
	userProgramRegistry.mu.Lock()
	defer userProgramRegistry.mu.Unlock()
	userProgramRegistry.progs[name] = entry
}

func lookupUserProgram(name string) (UserEntry, bool) {
	userProgramRegistry.mu.Lock()
	defer userProgramRegistry.mu.Unlock()
	e, ok := userProgramRegistry.progs[name]
	return e, ok
}

// mapUserStack installs the tid-indexed user stack mapping
// (abi.UserStackRange). exec and thread_create push argv onto it; the
// guard page between consecutive tids is simply never mapped.
func mapUserStack(as *AddressSpace, tid int) uint64 {
	bottom, top := abi.UserStackRange(tid)
	as.Insert(bottom, top, PermRead|PermWrite|PermUser)
	return top
}
