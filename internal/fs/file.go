// Package fs gives the kernel core the file surface it consumes:
// Open(path, flags) resolving to a File capability of {readable,
// writable, read, write}. The on-disk format, the VirtIO block driver,
// and the ELF-backed program loader stay outside this tree; an
// in-memory registry backs the same interface so everything above it
// is testable without real hardware.
package fs

// File is the capability interface every fd-table slot holds. Regular
// files, pipe ends, and the console all implement it and are
// dispatched dynamically.
type File interface {
	Readable() bool
	Writable() bool
	Read(buf []byte) int
	Write(buf []byte) int
}
