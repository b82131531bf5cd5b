package mount

import (
	"io"
	"io/fs"

	"bbbfs/internal/path"
	"bbbfs/internal/vfs"
)

// devDir serves /dev as a read-only listing of the registered devices.
type devDir struct {
	t *Table
}

// ensure devDir implements vfs.DirOps
var _ vfs.DirOps = devDir{}

type devCursor struct {
	entries []vfs.DirEntry
	next    int
}

func (dd devDir) Opendir(d *vfs.Dir, name string) (any, error) {
	if name != path.Root {
		return nil, vfs.ErrNotDir
	}

	dd.t.mu.RLock()
	names := dd.t.deviceNames()
	dd.t.mu.RUnlock()

	c := &devCursor{entries: make([]vfs.DirEntry, len(names))}
	for i, n := range names {
		c.entries[i] = vfs.DirEntry{Ino: uint32(i + 1), Type: vfs.DTChr, Name: n}
	}
	return c, nil
}

func (dd devDir) Readdir(d *vfs.Dir, cursor any) (*vfs.DirEntry, error) {
	c, ok := cursor.(*devCursor)
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

func (dd devDir) Closedir(d *vfs.Dir, cursor any) error {
	return nil
}

func (dd devDir) Mkdir(d *vfs.Dir, name string, mode fs.FileMode) error {
	return fs.ErrPermission
}

func (dd devDir) Rmdir(d *vfs.Dir, name string) error {
	return fs.ErrPermission
}

func (dd devDir) Stat(d *vfs.Dir, name string) (vfs.Stat, error) {
	if name == path.Root {
		return vfs.Stat{Mode: fs.ModeDir | 0755}, nil
	}

	dd.t.mu.RLock()
	defer dd.t.mu.RUnlock()

	if _, ok := dd.t.devices[name[1:]]; !ok {
		return vfs.Stat{}, fs.ErrNotExist
	}
	return vfs.Stat{Mode: fs.ModeDevice | fs.ModeCharDevice | 0620}, nil
}
