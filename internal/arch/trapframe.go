// Package arch models the AArch64 register file that crosses the
// EL0/EL1 boundary. The real vector table and eret sequence live in
// exception-entry assembly this tree does not carry; this package only
// holds the state the kernel core consumes.
package arch

// TrapFrame is the saved user register state at kernel entry. Indices
// follow AArch64 convention: R[0..30] are x0-x30, SP is the user stack
// pointer, ELR is the saved return PC, SPSR the saved program status.
type TrapFrame struct {
	R    [31]uint64
	SP   uint64
	ELR  uint64
	SPSR uint64
}

// SyscallNum reads the syscall number out of x8, the AArch64 SVC ABI
// register.
func (tf *TrapFrame) SyscallNum() uint64 { return tf.R[8] }

// SyscallArgs reads the first three syscall arguments out of x0-x2.
func (tf *TrapFrame) SyscallArgs() [3]uint64 {
	return [3]uint64{tf.R[0], tf.R[1], tf.R[2]}
}

// SetReturn writes an isize syscall return value back into x0.
func (tf *TrapFrame) SetReturn(v int64) { tf.R[0] = uint64(v) }

// NewUser builds a fresh user trap frame for a newly execed or forked
// image: PC at entry, SP at the top of the user stack, all else zeroed.
func NewUser(entry, sp uint64) *TrapFrame {
	return &TrapFrame{SP: sp, ELR: entry}
}

// NewUserArg builds a user trap frame carrying the two argument
// registers thread_create's user-thread entry and exec's
// argc/argv_base delivery use.
func NewUserArg(entry, sp uint64, a0, a1 uint64) *TrapFrame {
	tf := &TrapFrame{SP: sp, ELR: entry}
	tf.R[0] = a0
	tf.R[1] = a1
	return tf
}

// Fork returns a copy of tf suitable for the child task produced by
// fork(): identical register state except the return value register is
// cleared so the child observes 0 from fork().
func (tf *TrapFrame) Fork() *TrapFrame {
	cp := *tf
	cp.R[0] = 0
	return &cp
}
