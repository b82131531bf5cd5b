package vfs

import (
	"errors"
	"io"
	"io/fs"
	"sort"
	"strings"
)

var errBackend = errors.New("backend failure")

// fakeFile is a file backend keeping one byte slice per name.
type fakeFile struct {
	data      map[string][]byte
	opened    []string
	failOpen  bool
	failClose bool
	closed    int
}

type fakeHandle struct {
	name string
	off  int
}

func newFakeFile() *fakeFile {
	return &fakeFile{data: map[string][]byte{}}
}

func (b *fakeFile) Open(f *File, flags int, mode fs.FileMode) (int, error) {
	if b.failOpen {
		return -1, errBackend
	}
	b.opened = append(b.opened, f.Name)
	f.UserData = &fakeHandle{name: f.Name}
	return len(b.opened), nil
}

func (b *fakeFile) Read(f *File, p []byte) (int, error) {
	h := f.UserData.(*fakeHandle)
	data := b.data[h.name]
	if h.off >= len(data) {
		return 0, nil
	}
	n := copy(p, data[h.off:])
	h.off += n
	return n, nil
}

func (b *fakeFile) Write(f *File, p []byte) (int, error) {
	h := f.UserData.(*fakeHandle)
	b.data[h.name] = append(b.data[h.name], p...)
	return len(p), nil
}

func (b *fakeFile) Seek(f *File, offset int64, whence int) (int64, error) {
	h := f.UserData.(*fakeHandle)
	if whence != io.SeekStart {
		return 0, ErrUnsupported
	}
	h.off = int(offset)
	return offset, nil
}

func (b *fakeFile) IsTTY(f *File) bool { return false }

func (b *fakeFile) Fstat(f *File) (Stat, error) {
	h := f.UserData.(*fakeHandle)
	return Stat{Mode: 0644, Size: int64(len(b.data[h.name]))}, nil
}

func (b *fakeFile) Close(f *File) error {
	b.closed++
	if b.failClose {
		return errBackend
	}
	return nil
}

func (b *fakeFile) Fcntl(f *File, cmd int, arg int) (int, error) {
	if cmd != FSetFL {
		return -1, ErrUnsupported
	}
	f.Flags = arg
	return 0, nil
}

// fakeDir is a directory backend over a flat set of directory names.
type fakeDir struct {
	dirs          map[string]bool
	closed        int
	failClosedir  bool
	nilCursor     bool
	readdirCalled int
}

type fakeCursor struct {
	names []string
}

func newFakeDir(names ...string) *fakeDir {
	d := &fakeDir{dirs: map[string]bool{"/": true}}
	for _, n := range names {
		d.dirs[n] = true
	}
	return d
}

func (b *fakeDir) children(name string) []string {
	prefix := strings.TrimSuffix(name, "/") + "/"
	var out []string
	for d := range b.dirs {
		if d != "/" && strings.HasPrefix(d, prefix) && !strings.Contains(d[len(prefix):], "/") {
			out = append(out, d[len(prefix):])
		}
	}
	sort.Strings(out)
	return out
}

func (b *fakeDir) Opendir(d *Dir, name string) (any, error) {
	if b.nilCursor {
		return nil, nil
	}
	if !b.dirs[name] {
		return nil, fs.ErrNotExist
	}
	return &fakeCursor{names: b.children(name)}, nil
}

func (b *fakeDir) Closedir(d *Dir, cursor any) error {
	b.closed++
	if b.failClosedir {
		return errBackend
	}
	return nil
}

func (b *fakeDir) Readdir(d *Dir, cursor any) (*DirEntry, error) {
	b.readdirCalled++
	c := cursor.(*fakeCursor)
	if len(c.names) == 0 {
		return nil, io.EOF
	}
	e := &DirEntry{Type: DTDir, Name: c.names[0]}
	c.names = c.names[1:]
	return e, nil
}

func (b *fakeDir) Mkdir(d *Dir, name string, mode fs.FileMode) error {
	if b.dirs[name] {
		return fs.ErrExist
	}
	b.dirs[name] = true
	return nil
}

func (b *fakeDir) Rmdir(d *Dir, name string) error {
	if !b.dirs[name] {
		return fs.ErrNotExist
	}
	if len(b.children(name)) > 0 {
		return ErrNotEmpty
	}
	delete(b.dirs, name)
	return nil
}

func (b *fakeDir) Stat(d *Dir, name string) (Stat, error) {
	if b.dirs[name] {
		return Stat{Mode: fs.ModeDir | 0755}, nil
	}
	return Stat{}, fs.ErrNotExist
}

// newFakeResolver sends /dev/* to files and everything else to dirs.
func newFakeResolver(files *fakeFile, dirs *fakeDir) Resolver {
	return ResolverFuncs{
		Dir: func(name string) (DirOps, string) {
			return dirs, name
		},
		File: func(name string) (FileOps, string) {
			if strings.HasPrefix(name, "/dev/") {
				return files, strings.TrimPrefix(name, "/dev")
			}
			return nil, name
		},
	}
}
