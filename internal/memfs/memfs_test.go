package memfs

import (
	"io"
	"io/fs"
	"math"
	"os"
	"syscall"
	"testing"
	"time"

	"bbbfs/internal/state"
	"bbbfs/internal/vfs"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func setupTestVFS(t *testing.T) (*vfs.VFS, *FS) {
	t.Helper()
	m := New()
	clock := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	v := vfs.New(vfs.WithResolver(vfs.ResolverFuncs{
		Dir:  func(name string) (vfs.DirOps, string) { return m, name },
		File: func(name string) (vfs.FileOps, string) { return m, name },
	}))
	return v, m
}

func writeFile(t *testing.T, v *vfs.VFS, name, content string) {
	t.Helper()
	fd, err := v.Open(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	require.NoError(t, err)
	n, err := v.Write(fd, []byte(content))
	require.NoError(t, err)
	require.Equal(t, len(content), n)
	require.NoError(t, v.Close(fd))
}

func readFile(t *testing.T, v *vfs.VFS, name string) string {
	t.Helper()
	fd, err := v.Open(name, os.O_RDONLY, 0)
	require.NoError(t, err)
	defer v.Close(fd)

	var out []byte
	buf := make([]byte, 3)
	for {
		n, err := v.Read(fd, buf)
		require.NoError(t, err)
		if n == 0 {
			return string(out)
		}
		out = append(out, buf[:n]...)
	}
}

func TestWriteAndReadBack(t *testing.T) {
	v, _ := setupTestVFS(t)

	writeFile(t, v, "/motd", "hello, board\n")
	require.Equal(t, "hello, board\n", readFile(t, v, "/motd"))

	st, err := v.Stat("/motd")
	require.NoError(t, err)
	require.Equal(t, int64(13), st.Size)
	require.Equal(t, fs.FileMode(0644), st.Mode)
	require.Equal(t, uint32(2), st.Ino)
}

func TestOpenFlags(t *testing.T) {
	v, _ := setupTestVFS(t)

	_, err := v.Open("/missing", os.O_RDONLY, 0)
	require.ErrorIs(t, err, fs.ErrNotExist)

	writeFile(t, v, "/f", "abcdef")

	_, err = v.Open("/f", os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	require.ErrorIs(t, err, fs.ErrExist)

	fd, err := v.Open("/f", os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = v.Write(fd, []byte("gh"))
	require.NoError(t, err)
	require.NoError(t, v.Close(fd))
	require.Equal(t, "abcdefgh", readFile(t, v, "/f"))

	// O_TRUNC without write access leaves the data alone
	fd, err = v.Open("/f", os.O_RDONLY|os.O_TRUNC, 0)
	require.NoError(t, err)
	require.NoError(t, v.Close(fd))
	require.Equal(t, "abcdefgh", readFile(t, v, "/f"))

	writeFile(t, v, "/f", "x")
	require.Equal(t, "x", readFile(t, v, "/f"))

	_, err = v.Open("/nodir/f", os.O_CREATE|os.O_WRONLY, 0)
	require.ErrorIs(t, err, fs.ErrNotExist)

	_, err = v.Open("/f/g", os.O_CREATE|os.O_WRONLY, 0)
	require.ErrorIs(t, err, vfs.ErrNotDir)

	require.NoError(t, v.Mkdir("/d", 0))
	_, err = v.Open("/d", os.O_RDONLY, 0)
	require.ErrorIs(t, err, vfs.ErrIsDir)
	require.Equal(t, syscall.EISDIR, vfs.ToErrno(err))
}

func TestSeek(t *testing.T) {
	v, _ := setupTestVFS(t)
	writeFile(t, v, "/f", "0123456789")

	fd, err := v.Open("/f", os.O_RDWR, 0)
	require.NoError(t, err)
	defer v.Close(fd)

	off, err := v.Seek(fd, 4, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(4), off)

	buf := make([]byte, 2)
	n, err := v.Read(fd, buf)
	require.NoError(t, err)
	require.Equal(t, "45", string(buf[:n]))

	off, err = v.Seek(fd, -1, io.SeekCurrent)
	require.NoError(t, err)
	require.Equal(t, int64(5), off)

	off, err = v.Seek(fd, -3, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(7), off)

	_, err = v.Seek(fd, -20, io.SeekEnd)
	require.ErrorIs(t, err, fs.ErrInvalid)
	_, err = v.Seek(fd, 0, 7)
	require.ErrorIs(t, err, fs.ErrInvalid)

	// writing past the end zero fills the gap
	_, err = v.Seek(fd, 12, io.SeekStart)
	require.NoError(t, err)
	_, err = v.Write(fd, []byte("!"))
	require.NoError(t, err)

	st, err := v.Fstat(fd)
	require.NoError(t, err)
	require.Equal(t, int64(13), st.Size)
	require.Equal(t, "0123456789\x00\x00!", readFile(t, v, "/f"))
}

func TestWriteBeyondMaxFileSize(t *testing.T) {
	v, _ := setupTestVFS(t)
	writeFile(t, v, "/f", "data")

	fd, err := v.Open("/f", os.O_RDWR, 0)
	require.NoError(t, err)
	defer v.Close(fd)

	for _, off := range []int64{math.MaxInt64 - 1, 1 << 40, MaxFileSize - 1} {
		_, err = v.Seek(fd, off, io.SeekStart)
		require.NoError(t, err)
		n, err := v.Write(fd, []byte("abcd"))
		require.Equal(t, -1, n, "offset %d", off)
		require.ErrorIs(t, err, syscall.EFBIG, "offset %d", off)
		require.Equal(t, syscall.EFBIG, vfs.ToErrno(err))
	}

	st, err := v.Fstat(fd)
	require.NoError(t, err)
	require.Equal(t, int64(4), st.Size)

	// a write ending exactly at the limit is accepted
	_, err = v.Seek(fd, MaxFileSize-4, io.SeekStart)
	require.NoError(t, err)
	n, err := v.Write(fd, []byte("abcd"))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	st, err = v.Fstat(fd)
	require.NoError(t, err)
	require.Equal(t, int64(MaxFileSize), st.Size)
}

func TestFcntlAndTTY(t *testing.T) {
	v, _ := setupTestVFS(t)
	writeFile(t, v, "/f", "")

	fd, err := v.Open("/f", os.O_WRONLY, 0)
	require.NoError(t, err)
	defer v.Close(fd)

	require.False(t, v.IsTTY(fd))

	flags, err := v.Fcntl(fd, vfs.FGetFL, 0)
	require.NoError(t, err)
	require.Equal(t, os.O_WRONLY, flags)

	_, err = v.Fcntl(fd, vfs.FSetFL, os.O_WRONLY|os.O_APPEND)
	require.NoError(t, err)
	flags, err = v.Fcntl(fd, vfs.FGetFL, 0)
	require.NoError(t, err)
	require.Equal(t, os.O_WRONLY|os.O_APPEND, flags)

	_, err = v.Fcntl(fd, 99, 0)
	require.ErrorIs(t, err, vfs.ErrUnsupported)
}

func TestMkdirRmdir(t *testing.T) {
	v, _ := setupTestVFS(t)

	require.NoError(t, v.Mkdir("/a", 0))
	require.NoError(t, v.Mkdir("/a/b", 0700))
	require.ErrorIs(t, v.Mkdir("/a", 0), fs.ErrExist)
	require.ErrorIs(t, v.Mkdir("/x/y", 0), fs.ErrNotExist)
	require.ErrorIs(t, v.Mkdir("/", 0), fs.ErrExist)

	st, err := v.Stat("/a/b")
	require.NoError(t, err)
	require.True(t, st.IsDir())
	require.Equal(t, fs.ModeDir|0700, st.Mode)

	require.ErrorIs(t, v.Rmdir("/a"), vfs.ErrNotEmpty)
	require.ErrorIs(t, v.Rmdir("/"), fs.ErrPermission)
	require.ErrorIs(t, v.Rmdir("/nope"), fs.ErrNotExist)

	writeFile(t, v, "/a/file", "x")
	require.ErrorIs(t, v.Rmdir("/a/file"), vfs.ErrNotDir)

	require.NoError(t, v.Rmdir("/a/b"))
	_, err = v.Stat("/a/b")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRemove(t *testing.T) {
	v, m := setupTestVFS(t)
	writeFile(t, v, "/f", "data")
	require.NoError(t, v.Mkdir("/d", 0))

	fd, err := v.Open("/f", os.O_RDONLY, 0)
	require.NoError(t, err)

	require.ErrorIs(t, m.Remove("/d"), vfs.ErrIsDir)
	require.NoError(t, m.Remove("/f"))
	require.ErrorIs(t, m.Remove("/f"), fs.ErrNotExist)

	// the open descriptor still reads the unlinked data
	buf := make([]byte, 8)
	n, err := v.Read(fd, buf)
	require.NoError(t, err)
	require.Equal(t, "data", string(buf[:n]))
	require.NoError(t, v.Close(fd))
}

func TestReaddirSorted(t *testing.T) {
	v, _ := setupTestVFS(t)

	require.NoError(t, v.Mkdir("/zeta", 0))
	writeFile(t, v, "/alpha", "")
	require.NoError(t, v.Mkdir("/mid", 0))

	entries, err := v.ReadDirAll("/")
	require.NoError(t, err)
	want := []vfs.DirEntry{
		{Ino: 3, Type: vfs.DTReg, Name: "alpha"},
		{Ino: 4, Type: vfs.DTDir, Name: "mid"},
		{Ino: 2, Type: vfs.DTDir, Name: "zeta"},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}

	_, err = v.Opendir("/alpha")
	require.ErrorIs(t, err, vfs.ErrNotDir)
}

func TestRelativePaths(t *testing.T) {
	v, _ := setupTestVFS(t)

	require.NoError(t, v.Mkdir("/home", 0))
	require.NoError(t, v.Chdir("home"))
	require.Equal(t, "/home", v.Getwd())

	writeFile(t, v, "notes", "relative")
	require.Equal(t, "relative", readFile(t, v, "/home/notes"))
	require.Equal(t, "relative", readFile(t, v, "../home/./notes"))

	require.ErrorIs(t, v.Chdir("notes"), vfs.ErrNotDir)
	require.Equal(t, "/home", v.Getwd())
}

func TestExportImport(t *testing.T) {
	v, m := setupTestVFS(t)

	require.NoError(t, v.Mkdir("/etc", 0))
	writeFile(t, v, "/etc/hostname", "beaglebone\n")
	writeFile(t, v, "/empty", "")

	snap := m.Export()
	paths := make([]string, len(snap.Nodes))
	for i, n := range snap.Nodes {
		paths[i] = n.Path
	}
	require.Equal(t, []string{"/", "/empty", "/etc", "/etc/hostname"}, paths)
	require.Equal(t, []byte("beaglebone\n"), snap.Nodes[3].Data)

	restored := New()
	require.NoError(t, restored.Import(snap))
	if diff := cmp.Diff(snap, restored.Export()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	st, err := restored.Stat(nil, "/etc/hostname")
	require.NoError(t, err)
	require.Equal(t, uint32(4), st.Ino)
}

func TestImportRejectsOrphans(t *testing.T) {
	m := New()
	snap := m.Export()
	snap.Nodes = append(snap.Nodes, state.Node{Path: "/missing/child", Mode: 0644})

	require.ErrorIs(t, m.Import(snap), fs.ErrNotExist)

	// a failed import leaves an empty tree
	require.Len(t, m.Export().Nodes, 1)
}
