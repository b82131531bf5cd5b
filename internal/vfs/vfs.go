package vfs

import (
	"fmt"
	"io/fs"
	"sync"

	"bbbfs/internal/logging"
	"bbbfs/internal/path"
)

// DefaultCapacity is the number of descriptor slots of a VFS.
const DefaultCapacity = 1024

// Standard descriptors, reserved when the VFS is built WithStdio.
const (
	Stdin  = 0
	Stdout = 1
	Stderr = 2
)

var (
	vfsLogger = logging.GetLogger().WithPrefix("vfs")

	// reserved holds a slot while a backend Open runs
	reserved = &File{}
)

// VFS resolves paths to backends and owns the descriptor table.
type VFS struct {
	mu       sync.Mutex // protects files and resolver
	files    []*File    // nil marks a free slot
	resolver Resolver
	paths    *path.Context
	stdio    FileOps
}

// Option configures a VFS.
type Option func(*VFS)

// WithResolver injects the backend resolver.
func WithResolver(r Resolver) Option {
	return func(v *VFS) {
		v.resolver = r
	}
}

// WithCapacity sets the number of descriptor slots. Non-positive values
// keep the default.
func WithCapacity(n int) Option {
	return func(v *VFS) {
		if n > 0 {
			v.files = make([]*File, n)
		}
	}
}

// WithPathContext shares a current directory with other users.
func WithPathContext(c *path.Context) Option {
	return func(v *VFS) {
		v.paths = c
	}
}

// WithStdio binds descriptors 0, 1 and 2 to ops.
func WithStdio(ops FileOps) Option {
	return func(v *VFS) {
		v.stdio = ops
	}
}

// New creates a VFS. Without options it has DefaultCapacity slots, a
// current directory of "/" and resolves nothing.
func New(opts ...Option) *VFS {
	v := &VFS{
		files:    make([]*File, DefaultCapacity),
		resolver: NotFound,
		paths:    path.NewContext(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.resolver == nil {
		v.resolver = NotFound
	}
	if v.paths == nil {
		v.paths = path.NewContext()
	}

	if v.stdio != nil {
		if len(v.files) < 3 {
			v.files = append(v.files, make([]*File, 3-len(v.files))...)
		}
		for fd, name := range []string{"stdin", "stdout", "stderr"} {
			v.files[fd] = &File{Ops: v.stdio, Name: name}
		}
	}

	vfsLogger.Debug("Created VFS with %d descriptor slots", len(v.files))
	return v
}

// SetResolver replaces the resolver. Descriptors already open keep their
// backend.
func (v *VFS) SetResolver(r Resolver) {
	if r == nil {
		r = NotFound
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resolver = r
}

func (v *VFS) currentResolver() Resolver {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resolver
}

// Paths returns the current directory state of v.
func (v *VFS) Paths() *path.Context {
	return v.paths
}

// Capacity returns the number of descriptor slots.
func (v *VFS) Capacity() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.files)
}

// OpenFiles returns the number of bound descriptor slots.
func (v *VFS) OpenFiles() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, f := range v.files {
		if f != nil {
			n++
		}
	}
	return n
}

// file returns the File bound to fd. A File is never reused once its
// descriptor is closed, but a descriptor must not be closed while another
// call on it is still running.
func (v *VFS) file(op string, fd int) (*File, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if fd < 0 || fd >= len(v.files) || v.files[fd] == nil || v.files[fd] == reserved {
		return nil, NewError(op, fdName(fd), ErrBadDescriptor)
	}
	return v.files[fd], nil
}

func fdName(fd int) string {
	return fmt.Sprintf("fd %d", fd)
}

// Open resolves name to a file backend, binds it to the first free
// descriptor and returns that descriptor. On failure it returns -1 and the
// slot stays free.
func (v *VFS) Open(name string, flags int, mode fs.FileMode) (int, error) {
	buf := make([]byte, v.paths.FullSize(name))
	full := string(v.paths.BuildFullInto(buf, name))
	vfsLogger.Trace("open %q -> %q flags=%#x mode=%v", name, full, flags, mode)

	ops, residual := v.currentResolver().ResolveFile(full)
	if ops == nil {
		vfsLogger.Debug("No file backend for %q", full)
		return -1, NewError(OpOpen, full, ErrNotFound)
	}

	v.mu.Lock()
	fd := -1
	for i, slot := range v.files {
		if slot == nil {
			fd = i
			break
		}
	}
	if fd < 0 {
		v.mu.Unlock()
		vfsLogger.Warn("Descriptor table full (%d slots), cannot open %q", len(v.files), full)
		return -1, NewError(OpOpen, full, ErrTableFull)
	}
	// reserve the slot while the backend runs
	f := &File{Ops: ops, Name: residual, Flags: flags, Mode: mode}
	v.files[fd] = reserved
	v.mu.Unlock()

	id, err := ops.Open(f, flags, mode)
	v.mu.Lock()
	if err != nil {
		v.files[fd] = nil
		v.mu.Unlock()
		vfsLogger.Debug("Backend rejected open of %q: %v", full, err)
		return -1, NewError(OpOpen, full, err)
	}
	f.ID = id
	v.files[fd] = f
	v.mu.Unlock()

	vfsLogger.Debug("Opened %q as fd %d", full, fd)
	return fd, nil
}

// Read reads from fd into p. It returns 0 at end of file and -1 on error.
func (v *VFS) Read(fd int, p []byte) (int, error) {
	f, err := v.file(OpRead, fd)
	if err != nil {
		return -1, err
	}
	n, err := f.Ops.Read(f, p)
	if err != nil {
		return -1, NewError(OpRead, f.Name, err)
	}
	vfsLogger.Trace("read fd %d: %d bytes", fd, n)
	return n, nil
}

// Write writes p to fd.
func (v *VFS) Write(fd int, p []byte) (int, error) {
	f, err := v.file(OpWrite, fd)
	if err != nil {
		return -1, err
	}
	n, err := f.Ops.Write(f, p)
	if err != nil {
		return -1, NewError(OpWrite, f.Name, err)
	}
	vfsLogger.Trace("write fd %d: %d bytes", fd, n)
	return n, nil
}

// Seek sets the offset of fd, io.Seek* style.
func (v *VFS) Seek(fd int, offset int64, whence int) (int64, error) {
	f, err := v.file(OpSeek, fd)
	if err != nil {
		return -1, err
	}
	off, err := f.Ops.Seek(f, offset, whence)
	if err != nil {
		return -1, NewError(OpSeek, f.Name, err)
	}
	return off, nil
}

// IsTTY reports whether fd is bound to a terminal. Free descriptors are
// not terminals.
func (v *VFS) IsTTY(fd int) bool {
	f, err := v.file("isatty", fd)
	if err != nil {
		return false
	}
	return f.Ops.IsTTY(f)
}

// Fstat describes the file bound to fd.
func (v *VFS) Fstat(fd int) (Stat, error) {
	f, err := v.file(OpFstat, fd)
	if err != nil {
		return Stat{}, err
	}
	st, err := f.Ops.Fstat(f)
	if err != nil {
		return Stat{}, NewError(OpFstat, f.Name, err)
	}
	return st, nil
}

// Fcntl forwards a control command to the backend of fd.
func (v *VFS) Fcntl(fd int, cmd int, arg int) (int, error) {
	f, err := v.file(OpFcntl, fd)
	if err != nil {
		return -1, err
	}
	res, err := f.Ops.Fcntl(f, cmd, arg)
	if err != nil {
		return -1, NewError(OpFcntl, f.Name, err)
	}
	return res, nil
}

// Close releases fd. The slot is freed before the backend runs, so it is
// free even when the backend fails; the backend error is still returned.
func (v *VFS) Close(fd int) error {
	v.mu.Lock()
	if fd < 0 || fd >= len(v.files) || v.files[fd] == nil || v.files[fd] == reserved {
		v.mu.Unlock()
		return NewError(OpClose, fdName(fd), ErrBadDescriptor)
	}
	f := v.files[fd]
	v.files[fd] = nil
	v.mu.Unlock()

	name := f.Name
	berr := f.Ops.Close(f)

	if berr != nil {
		vfsLogger.Warn("Backend failed to close fd %d (%s): %v", fd, name, berr)
		return NewError(OpClose, name, berr)
	}
	vfsLogger.Debug("Closed fd %d (%s)", fd, name)
	return nil
}
