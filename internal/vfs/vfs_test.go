package vfs

import (
	"errors"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestVFS(t *testing.T, opts ...Option) (*VFS, *fakeFile, *fakeDir) {
	t.Helper()
	files := newFakeFile()
	dirs := newFakeDir("/home", "/home/debian")
	opts = append([]Option{WithResolver(newFakeResolver(files, dirs))}, opts...)
	return New(opts...), files, dirs
}

func TestNewDefaults(t *testing.T) {
	v := New()
	require.Equal(t, DefaultCapacity, v.Capacity())
	require.Equal(t, 0, v.OpenFiles())
	require.Equal(t, "/", v.Getwd())

	fd, err := v.Open("/dev/console", 0, 0)
	require.Equal(t, -1, fd)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = v.Stat("/")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStdioReserved(t *testing.T) {
	console := newFakeFile()
	v, files, _ := setupTestVFS(t, WithStdio(console), WithCapacity(8))

	require.Equal(t, 3, v.OpenFiles())
	fd, err := v.Open("/dev/ttyS1", 0, 0)
	require.NoError(t, err)
	require.Equal(t, 3, fd)
	require.Equal(t, []string{"/ttyS1"}, files.opened)

	// stdio is bound without calling the backend Open
	require.Empty(t, console.opened)

	small := New(WithStdio(console), WithCapacity(1))
	require.Equal(t, 3, small.Capacity())
}

func TestOpenReadWriteClose(t *testing.T) {
	v, files, _ := setupTestVFS(t)

	fd, err := v.Open("/dev/null/../log", 0, 0644)
	require.NoError(t, err)
	require.Equal(t, 0, fd)

	n, err := v.Write(fd, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(files.data["/log"]))

	off, err := v.Seek(fd, 1, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(1), off)

	buf := make([]byte, 16)
	n, err = v.Read(fd, buf)
	require.NoError(t, err)
	require.Equal(t, "ello", string(buf[:n]))

	n, err = v.Read(fd, buf)
	require.NoError(t, err)
	require.Zero(t, n)

	st, err := v.Fstat(fd)
	require.NoError(t, err)
	require.Equal(t, int64(5), st.Size)
	require.False(t, v.IsTTY(fd))

	_, err = v.Seek(fd, 0, io.SeekEnd)
	require.ErrorIs(t, err, ErrUnsupported)

	require.NoError(t, v.Close(fd))
	require.Equal(t, 0, v.OpenFiles())

	_, err = v.Read(fd, buf)
	require.ErrorIs(t, err, ErrBadDescriptor)
	require.ErrorIs(t, v.Close(fd), ErrBadDescriptor)
}

func TestOpenRelativeToCurrentDir(t *testing.T) {
	v, files, _ := setupTestVFS(t)
	v.Paths().SetCurrentDir("/dev")

	fd, err := v.Open("ttyS0", 0, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"/ttyS0"}, files.opened)

	v.Paths().SetCurrentDir("/home")
	_, err = v.Open("ttyS0", 0, 0)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, v.Close(fd))
}

func TestOpenBackendRejectLeavesSlotFree(t *testing.T) {
	v, files, _ := setupTestVFS(t)

	files.failOpen = true
	fd, err := v.Open("/dev/a", 0, 0)
	require.Equal(t, -1, fd)
	require.ErrorIs(t, err, errBackend)
	require.Equal(t, 0, v.OpenFiles())

	files.failOpen = false
	fd, err = v.Open("/dev/a", 0, 0)
	require.NoError(t, err)
	require.Equal(t, 0, fd)
}

func TestDescriptorTableFull(t *testing.T) {
	v, files, _ := setupTestVFS(t, WithCapacity(4))

	for i := 0; i < 4; i++ {
		fd, err := v.Open("/dev/a", 0, 0)
		require.NoError(t, err)
		require.Equal(t, i, fd)
	}
	_, err := v.Write(2, []byte("x"))
	require.NoError(t, err)

	fd, err := v.Open("/dev/b", 0, 0)
	require.Equal(t, -1, fd)
	require.ErrorIs(t, err, ErrTableFull)
	require.Equal(t, syscall.EMFILE, ToErrno(err))

	// existing slots are untouched
	require.Equal(t, 4, v.OpenFiles())
	st, err := v.Fstat(2)
	require.NoError(t, err)
	require.Equal(t, int64(1), st.Size)

	// a freed slot is reused first
	require.NoError(t, v.Close(1))
	fd, err = v.Open("/dev/c", 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, fd)
	require.Equal(t, []string{"/a", "/a", "/a", "/a", "/c"}, files.opened)
}

func TestCloseFreesSlotOnBackendError(t *testing.T) {
	v, files, _ := setupTestVFS(t)
	fd, err := v.Open("/dev/a", 0, 0)
	require.NoError(t, err)

	files.failClose = true
	err = v.Close(fd)
	require.ErrorIs(t, err, errBackend)
	require.Equal(t, 0, v.OpenFiles())
	require.Equal(t, 1, files.closed)
}

func TestClosedFileIsNotReused(t *testing.T) {
	v, files, _ := setupTestVFS(t)
	files.data["/a"] = []byte("aaaa")
	files.data["/b"] = []byte("bbbb")

	fd, err := v.Open("/dev/a", 0, 0)
	require.NoError(t, err)
	stale, err := v.file(OpRead, fd)
	require.NoError(t, err)
	require.NoError(t, v.Close(fd))

	reopened, err := v.Open("/dev/b", 0, 0)
	require.NoError(t, err)
	require.Equal(t, fd, reopened)
	current, err := v.file(OpRead, reopened)
	require.NoError(t, err)
	require.NotSame(t, stale, current)

	// a call that fetched the old File before Close still sees its own file
	require.Equal(t, "/a", stale.Name)
	require.Equal(t, "/a", stale.UserData.(*fakeHandle).name)

	buf := make([]byte, 4)
	n, err := v.Read(reopened, buf)
	require.NoError(t, err)
	require.Equal(t, "bbbb", string(buf[:n]))
}

func TestFcntl(t *testing.T) {
	v, _, _ := setupTestVFS(t)
	fd, err := v.Open("/dev/a", 0, 0)
	require.NoError(t, err)

	res, err := v.Fcntl(fd, FSetFL, ONonblock)
	require.NoError(t, err)
	require.Zero(t, res)

	_, err = v.Fcntl(fd, FGetFL, 0)
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = v.Fcntl(99, FSetFL, 0)
	require.ErrorIs(t, err, ErrBadDescriptor)
}

func TestBadDescriptors(t *testing.T) {
	v, _, _ := setupTestVFS(t, WithCapacity(2))
	for _, fd := range []int{-1, 0, 1, 2, 1024} {
		_, err := v.Write(fd, []byte("x"))
		assert.ErrorIs(t, err, ErrBadDescriptor, "fd %d", fd)
		assert.False(t, v.IsTTY(fd))
		_, err = v.Fstat(fd)
		assert.ErrorIs(t, err, ErrBadDescriptor)
	}
}

func TestSetResolver(t *testing.T) {
	v := New()
	files := newFakeFile()
	v.SetResolver(ResolverFuncs{File: func(name string) (FileOps, string) { return files, name }})

	fd, err := v.Open("x", 0, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"/x"}, files.opened)
	require.NoError(t, v.Close(fd))

	v.SetResolver(nil)
	_, err = v.Open("x", 0, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestToErrno(t *testing.T) {
	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{NewError(OpOpen, "/x", ErrNotFound), syscall.ENOENT},
		{NewError(OpRead, "fd 3", ErrBadDescriptor), syscall.EBADF},
		{NewError(OpRead, "/console", ErrWouldBlock), syscall.EAGAIN},
		{NewError(OpRmdir, "/a", ErrNotEmpty), syscall.ENOTEMPTY},
		{NewError(OpMkdir, "/a", syscall.EROFS), syscall.EROFS},
		{errors.New("strange"), syscall.EIO},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToErrno(tt.err), "%v", tt.err)
	}

	assert.True(t, IsTemporary(NewError(OpRead, "", ErrWouldBlock)))
	assert.False(t, IsTemporary(NewError(OpRead, "", ErrBadDescriptor)))
}

func TestErrorMessage(t *testing.T) {
	err := NewError(OpOpen, "/dev/x", ErrNotFound)
	require.Equal(t, "open /dev/x: no backend for path", err.Error())
	require.Equal(t, "readdir: directory stream closed", NewError(OpReaddir, "", ErrClosed).Error())
}
