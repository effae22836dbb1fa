package fs

import "sync"

// OpenFlags is the subset of open(2) flags the kernel's open path
// understands.
type OpenFlags uint32

const (
	OpenRDOnly OpenFlags = 0
	OpenWROnly OpenFlags = 1 << 0
	OpenRDWR   OpenFlags = 1 << 1
	OpenCreate OpenFlags = 1 << 9
	OpenTrunc  OpenFlags = 1 << 10
)

func (f OpenFlags) readable() bool { return f&OpenWROnly == 0 }
func (f OpenFlags) writable() bool { return f&(OpenWROnly|OpenRDWR) != 0 }

// inode is the shared, named byte buffer a path resolves to: every
// fd opened against the same path aliases the same inode, matching a
// real file system's behavior (two opens of the same path observe each
// other's writes), unlike a pipe's anonymous buffer.
type inode struct {
	mu   sync.Mutex
	data []byte
}

// RegularFile is the File capability backing an opened path. Each
// open(2) call gets its own cursor and permission bits over the shared
// inode.
type RegularFile struct {
	node   *inode
	flags  OpenFlags
	cursor int
}

func (f *RegularFile) Readable() bool { return f.flags.readable() }
func (f *RegularFile) Writable() bool { return f.flags.writable() }

func (f *RegularFile) Read(buf []byte) int {
	f.node.mu.Lock()
	defer f.node.mu.Unlock()
	if f.cursor >= len(f.node.data) {
		return 0
	}
	n := copy(buf, f.node.data[f.cursor:])
	f.cursor += n
	return n
}

func (f *RegularFile) Write(buf []byte) int {
	f.node.mu.Lock()
	defer f.node.mu.Unlock()
	end := f.cursor + len(buf)
	if end > len(f.node.data) {
		grown := make([]byte, end)
		copy(grown, f.node.data)
		f.node.data = grown
	}
	copy(f.node.data[f.cursor:end], buf)
	f.cursor = end
	return len(buf)
}

// InMemoryFS stands in for the on-disk file system and the VirtIO
// block driver under it: Open(path, flags) resolves to a shared inode,
// creating one on first touch when OpenCreate is set.
type InMemoryFS struct {
	mu    sync.Mutex
	nodes map[string]*inode
}

func NewInMemoryFS() *InMemoryFS {
	return &InMemoryFS{nodes: make(map[string]*inode)}
}

// Open resolves path to a File, creating a fresh empty inode when
// OpenCreate is set and the path doesn't exist yet, and returning
// ok=false when it doesn't exist and OpenCreate is absent.
func (fsys *InMemoryFS) Open(path string, flags OpenFlags) (File, bool) {
	fsys.mu.Lock()
	n, ok := fsys.nodes[path]
	if !ok {
		if flags&OpenCreate == 0 {
			fsys.mu.Unlock()
			return nil, false
		}
		n = &inode{}
		fsys.nodes[path] = n
	}
	fsys.mu.Unlock()

	if flags&OpenTrunc != 0 {
		n.mu.Lock()
		n.data = nil
		n.mu.Unlock()
	}
	return &RegularFile{node: n, flags: flags}, true
}
