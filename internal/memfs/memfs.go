// Package memfs implements an in-memory storage backend with both the file
// and the directory capability sets.
package memfs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"bbbfs/internal/logging"
	"bbbfs/internal/vfs"
)

var (
	memLogger = logging.GetLogger().WithPrefix("memfs")
)

// Default permissions for nodes created with a zero mode.
const (
	DefaultFileMode fs.FileMode = 0644
	DefaultDirMode  fs.FileMode = 0755
)

// MaxFileSize bounds the size a write may grow a file to.
const MaxFileSize = 64 << 20

// node is a directory or a regular file.
type node struct {
	ino      uint32
	name     string
	mode     fs.FileMode
	modTime  time.Time
	data     []byte
	parent   *node
	children map[string]*node // nil for regular files
}

func (n *node) isDir() bool {
	return n.children != nil
}

func (n *node) stat() vfs.Stat {
	return vfs.Stat{
		Ino:     n.ino,
		Mode:    n.mode,
		Size:    int64(len(n.data)),
		ModTime: n.modTime,
	}
}

// FS is an in-memory tree. The zero value is not usable; call New.
type FS struct {
	mu      sync.Mutex
	root    *node
	nextIno uint32
	now     func() time.Time
}

// ensure FS implements both capability sets
var (
	_ vfs.FileOps = (*FS)(nil)
	_ vfs.DirOps  = (*FS)(nil)
)

// New returns a tree holding only the root directory, inode 1.
func New() *FS {
	m := &FS{now: time.Now}
	m.reset()
	return m
}

func (m *FS) reset() {
	m.nextIno = 1
	m.root = m.newNode("", fs.ModeDir|DefaultDirMode, nil)
}

func (m *FS) newNode(name string, mode fs.FileMode, parent *node) *node {
	n := &node{
		ino:     m.nextIno,
		name:    name,
		mode:    mode,
		modTime: m.now(),
		parent:  parent,
	}
	m.nextIno++
	if mode.IsDir() {
		n.children = make(map[string]*node)
	}
	if parent != nil {
		parent.children[name] = n
		parent.modTime = n.modTime
	}
	return n
}

func split(name string) []string {
	var parts []string
	for _, p := range strings.Split(name, "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}

// lookup walks name from the root. The caller holds m.mu.
func (m *FS) lookup(name string) (*node, error) {
	n := m.root
	for _, part := range split(name) {
		if !n.isDir() {
			return nil, vfs.ErrNotDir
		}
		if part == ".." {
			if n.parent != nil {
				n = n.parent
			}
			continue
		}
		child, ok := n.children[part]
		if !ok {
			return nil, fs.ErrNotExist
		}
		n = child
	}
	return n, nil
}

// lookupParent returns the directory that holds name and the last
// component of name. The caller holds m.mu.
func (m *FS) lookupParent(name string) (*node, string, error) {
	parts := split(name)
	if len(parts) == 0 {
		return nil, "", fs.ErrExist
	}
	base := parts[len(parts)-1]
	if base == ".." {
		return nil, "", fs.ErrInvalid
	}
	dir, err := m.lookup(strings.Join(parts[:len(parts)-1], "/"))
	if err != nil {
		return nil, "", err
	}
	if !dir.isDir() {
		return nil, "", vfs.ErrNotDir
	}
	return dir, base, nil
}

// handle is the per-descriptor state kept in vfs.File.UserData.
type handle struct {
	n   *node
	off int64
}

func fileHandle(f *vfs.File) (*handle, error) {
	h, ok := f.UserData.(*handle)
	if !ok || h == nil {
		return nil, fs.ErrClosed
	}
	return h, nil
}

// Open opens or creates the regular file name.
func (m *FS) Open(f *vfs.File, flags int, mode fs.FileMode) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.lookup(f.Name)
	switch {
	case err == nil:
		if flags&os.O_CREATE != 0 && flags&os.O_EXCL != 0 {
			return 0, fs.ErrExist
		}
		if n.isDir() {
			return 0, vfs.ErrIsDir
		}
		if flags&os.O_TRUNC != 0 && flags&(os.O_WRONLY|os.O_RDWR) != 0 {
			n.data = nil
			n.modTime = m.now()
		}
	case errors.Is(err, fs.ErrNotExist) && flags&os.O_CREATE != 0:
		dir, base, perr := m.lookupParent(f.Name)
		if perr != nil {
			return 0, perr
		}
		perm := mode.Perm()
		if perm == 0 {
			perm = DefaultFileMode
		}
		n = m.newNode(base, perm, dir)
		memLogger.Debug("Created file %q (ino %d)", f.Name, n.ino)
	default:
		return 0, err
	}

	f.UserData = &handle{n: n}
	return int(n.ino), nil
}

// Read reads from the descriptor offset. It returns 0 at end of file.
func (m *FS) Read(f *vfs.File, p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := fileHandle(f)
	if err != nil {
		return 0, err
	}
	if h.off >= int64(len(h.n.data)) {
		return 0, nil
	}
	n := copy(p, h.n.data[h.off:])
	h.off += int64(n)
	return n, nil
}

// Write writes at the descriptor offset, or at the end of the file for
// descriptors opened with O_APPEND. A write that would end past
// MaxFileSize fails with EFBIG and changes nothing.
func (m *FS) Write(f *vfs.File, p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := fileHandle(f)
	if err != nil {
		return 0, err
	}
	if f.Flags&os.O_APPEND != 0 {
		h.off = int64(len(h.n.data))
	}
	end := h.off + int64(len(p))
	if end < h.off || end > MaxFileSize {
		memLogger.Debug("Write of %d bytes at offset %d exceeds %d", len(p), h.off, MaxFileSize)
		return 0, syscall.EFBIG
	}
	if end > int64(len(h.n.data)) {
		grown := make([]byte, end)
		copy(grown, h.n.data)
		h.n.data = grown
	}
	copy(h.n.data[h.off:], p)
	h.off = end
	h.n.modTime = m.now()
	return len(p), nil
}

// Seek moves the descriptor offset. Seeking past the end is allowed; a
// later write fills the gap with zeros.
func (m *FS) Seek(f *vfs.File, offset int64, whence int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := fileHandle(f)
	if err != nil {
		return 0, err
	}
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = h.off
	case io.SeekEnd:
		base = int64(len(h.n.data))
	default:
		return 0, fs.ErrInvalid
	}
	if base+offset < 0 {
		return 0, fs.ErrInvalid
	}
	h.off = base + offset
	return h.off, nil
}

// IsTTY implements vfs.FileOps.
func (m *FS) IsTTY(f *vfs.File) bool {
	return false
}

// Fstat describes the open file.
func (m *FS) Fstat(f *vfs.File) (vfs.Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := fileHandle(f)
	if err != nil {
		return vfs.Stat{}, err
	}
	return h.n.stat(), nil
}

// Close drops the per-descriptor state.
func (m *FS) Close(f *vfs.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := fileHandle(f); err != nil {
		return err
	}
	f.UserData = nil
	return nil
}

// Fcntl supports FGetFL and FSetFL.
func (m *FS) Fcntl(f *vfs.File, cmd int, arg int) (int, error) {
	switch cmd {
	case vfs.FGetFL:
		return f.Flags, nil
	case vfs.FSetFL:
		f.Flags = arg
		return 0, nil
	default:
		return -1, vfs.ErrUnsupported
	}
}

// dirCursor iterates a sorted copy of a directory's entries.
type dirCursor struct {
	entries []vfs.DirEntry
	next    int
}

// Opendir snapshots the entries of the directory name.
func (m *FS) Opendir(d *vfs.Dir, name string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	if !n.isDir() {
		return nil, vfs.ErrNotDir
	}

	names := make([]string, 0, len(n.children))
	for child := range n.children {
		names = append(names, child)
	}
	sort.Strings(names)

	c := &dirCursor{entries: make([]vfs.DirEntry, len(names))}
	for i, child := range names {
		cn := n.children[child]
		c.entries[i] = vfs.DirEntry{Ino: cn.ino, Type: vfs.TypeOf(cn.mode), Name: child}
	}
	return c, nil
}

// Readdir returns the next entry or io.EOF.
func (m *FS) Readdir(d *vfs.Dir, cursor any) (*vfs.DirEntry, error) {
	c, ok := cursor.(*dirCursor)
	if !ok {
		return nil, fs.ErrInvalid
	}
	if c.next >= len(c.entries) {
		return nil, io.EOF
	}
	e := c.entries[c.next]
	c.next++
	return &e, nil
}

// Closedir implements vfs.DirOps.
func (m *FS) Closedir(d *vfs.Dir, cursor any) error {
	if _, ok := cursor.(*dirCursor); !ok {
		return fs.ErrInvalid
	}
	return nil
}

// Mkdir creates the directory name. The parent must exist.
func (m *FS) Mkdir(d *vfs.Dir, name string, mode fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir, base, err := m.lookupParent(name)
	if err != nil {
		return err
	}
	if _, ok := dir.children[base]; ok {
		return fs.ErrExist
	}
	perm := mode.Perm()
	if perm == 0 {
		perm = DefaultDirMode
	}
	n := m.newNode(base, fs.ModeDir|perm, dir)
	memLogger.Debug("Created directory %q (ino %d)", name, n.ino)
	return nil
}

// Rmdir removes the empty directory name. The root cannot be removed.
func (m *FS) Rmdir(d *vfs.Dir, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.lookup(name)
	if err != nil {
		return err
	}
	if n == m.root {
		return fs.ErrPermission
	}
	if !n.isDir() {
		return vfs.ErrNotDir
	}
	if len(n.children) > 0 {
		return vfs.ErrNotEmpty
	}
	delete(n.parent.children, n.name)
	n.parent.modTime = m.now()
	memLogger.Debug("Removed directory %q (ino %d)", name, n.ino)
	return nil
}

// Remove deletes the regular file name. Descriptors open on it keep
// working until closed.
func (m *FS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.lookup(name)
	if err != nil {
		return err
	}
	if n.isDir() {
		return vfs.ErrIsDir
	}
	delete(n.parent.children, n.name)
	n.parent.modTime = m.now()
	return nil
}

// Stat describes the node at name.
func (m *FS) Stat(d *vfs.Dir, name string) (vfs.Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.lookup(name)
	if err != nil {
		return vfs.Stat{}, err
	}
	return n.stat(), nil
}
