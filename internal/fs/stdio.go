package fs

// Console is the UART surface the stdio files are built over: GetChar
// returns the next typed byte if one is queued, PutChar emits one.
type Console interface {
	GetChar() (byte, bool)
	PutChar(b byte)
}

// TaskHooks lets Stdin suspend the calling task instead of
// busy-spinning the host CPU, and lets it raise SIGINT on the reader
// when Ctrl-C arrives. Implemented by internal/kernel and injected
// here so fs never has to import kernel.
type TaskHooks interface {
	YieldNow()
	RaiseSIGINT()
}

const sigintByte = 3 // Ctrl-C

// Stdin is the read-only console file installed at fd 0.
type Stdin struct {
	Console Console
	Hooks   TaskHooks
}

func (s *Stdin) Readable() bool { return true }
func (s *Stdin) Writable() bool { return false }

// Read blocks (by yielding) until a byte is available; a read with
// nothing typed is a suspension point, not an error.
func (s *Stdin) Read(buf []byte) int {
	if len(buf) == 0 {
		return 0
	}
	for {
		b, ok := s.Console.GetChar()
		if !ok {
			s.Hooks.YieldNow()
			continue
		}
		if b == sigintByte {
			s.Hooks.RaiseSIGINT()
			buf[0] = b
			return 1
		}
		buf[0] = b
		return 1
	}
}

func (s *Stdin) Write(buf []byte) int {
	panic("fs: cannot write to stdin")
}

// Stdout is the write-only console file installed at fd 1 and fd 2.
type Stdout struct {
	Console Console
}

func (s *Stdout) Readable() bool { return false }
func (s *Stdout) Writable() bool { return true }

func (s *Stdout) Read(buf []byte) int {
	panic("fs: cannot read from stdout")
}

func (s *Stdout) Write(buf []byte) int {
	for _, b := range buf {
		s.Console.PutChar(b)
	}
	return len(buf)
}
