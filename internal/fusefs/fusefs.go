// Package fusefs exports a VFS instance to the host through FUSE.
package fusefs

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"bbbfs/internal/logging"
	"bbbfs/internal/vfs"

	"bazil.org/fuse"
	fusesrv "bazil.org/fuse/fs"
)

var (
	fuseLogger = logging.GetLogger().WithPrefix("fuse")
)

// serveStopTimeout is how long Unmount waits for the serve loop to return.
const serveStopTimeout = 5 * time.Second

// FS serves the tree of a *vfs.VFS. Every FUSE request is turned into
// dispatch calls on absolute paths, so the VFS current directory is never
// consulted.
type FS struct {
	vfs    *vfs.VFS
	conn   *fuse.Conn
	served chan struct{} // closed when the serve loop returns
	uid    uint32 // User ID reported for every node
	gid    uint32 // Group ID reported for every node
	sync   func() error
	unlink func(name string) error
	mu     sync.Mutex // serializes sync
}

// Option configures an FS.
type Option func(*FS)

// WithSync registers fn to run after every change to the tree, for
// example to persist a storage snapshot.
func WithSync(fn func() error) Option {
	return func(f *FS) {
		f.sync = fn
	}
}

// WithUnlink registers fn to remove regular files. Without it, removing a
// file fails with EPERM.
func WithUnlink(fn func(name string) error) Option {
	return func(f *FS) {
		f.unlink = fn
	}
}

// New creates an FS over v. Node ownership defaults to the calling user
// and can be overridden with the PUID and PGID environment variables.
func New(v *vfs.VFS, opts ...Option) *FS {
	uid := safeIntToUint32(os.Getuid())
	gid := safeIntToUint32(os.Getgid())

	if puidStr := os.Getenv("PUID"); puidStr != "" {
		if puid, err := strconv.ParseUint(puidStr, 10, 32); err == nil {
			uid = uint32(puid)
			fuseLogger.Debug("Using PUID from environment: %d", uid)
		}
	}
	if pgidStr := os.Getenv("PGID"); pgidStr != "" {
		if pgid, err := strconv.ParseUint(pgidStr, 10, 32); err == nil {
			gid = uint32(pgid)
			fuseLogger.Debug("Using PGID from environment: %d", gid)
		}
	}

	f := &FS{vfs: v, uid: uid, gid: gid}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Root implements the fusesrv.FS interface, returning the root directory node.
func (f *FS) Root() (fusesrv.Node, error) {
	fuseLogger.Trace("Getting root directory node")
	return &Dir{fs: f, path: "/"}, nil
}

// changed runs the sync hook. Failures are logged; the change itself has
// already happened.
func (f *FS) changed(what string) {
	if f.sync == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sync(); err != nil {
		fuseLogger.Error("Failed to sync after %s: %v", what, err)
	}
}

func waitForMount(mountpoint string) error {
	for i := 0; i < 30; i++ {
		info, err := os.Stat(mountpoint)
		if err == nil && info.IsDir() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("mount point not available after 3 seconds")
}

// Mount mounts the tree at mountPoint and serves it in the background.
func (f *FS) Mount(mountPoint string) error {
	fuseLogger.Info("Mounting bbbfs")
	fuseLogger.Debug("Mount point: %s", mountPoint)
	fuseLogger.Debug("UID: %d, GID: %d", f.uid, f.gid)

	mountOpts := []fuse.MountOption{
		fuse.FSName("bbbfs"),
		fuse.Subtype("bbbfs"),
		fuse.DefaultPermissions(),
		fuse.AsyncRead(),
	}

	c, err := fuse.Mount(mountPoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}
	f.conn = c
	served := make(chan struct{})
	f.served = served

	go func() {
		defer close(served)
		if err := fusesrv.Serve(c, f); err != nil {
			fuseLogger.Error("FUSE server error: %v", err)
		}
	}()

	if err := waitForMount(mountPoint); err != nil {
		c.Close()
		fuseLogger.Error("Mount point not ready: %v", err)
		return fmt.Errorf("mount point failed to initialize: %w", err)
	}

	fuseLogger.Info("Filesystem mounted successfully")
	return nil
}

// Unmount unmounts the tree from mountPoint.
func (f *FS) Unmount(mountPoint string) error {
	fuseLogger.Info("Unmounting filesystem from: %s", mountPoint)
	if f.conn == nil {
		return nil
	}
	if err := fuse.Unmount(mountPoint); err != nil {
		fuseLogger.Error("Unmount failed: %v", err)
		return err
	}
	select {
	case <-f.served:
	case <-time.After(serveStopTimeout):
		fuseLogger.Warn("FUSE server still running %v after unmount", serveStopTimeout)
	}
	f.conn.Close()
	f.conn = nil
	fuseLogger.Info("Unmount completed successfully")
	return nil
}

// errno converts a dispatch error to the error FUSE replies with.
func errno(err error) error {
	if err == nil {
		return nil
	}
	return fuse.Errno(vfs.ToErrno(err))
}

// fillAttr copies st into a. Inode numbers are left to the server: two
// backends may hand out the same number.
func (f *FS) fillAttr(st vfs.Stat, a *fuse.Attr) {
	a.Mode = st.Mode
	a.Size = safeInt64ToUint64(st.Size)
	a.Mtime = st.ModTime
	a.Atime = st.ModTime // We don't track access time
	a.Ctime = st.ModTime // We don't track change time
	a.Uid = f.uid
	a.Gid = f.gid
	a.BlockSize = 4096
	a.Blocks = safeInt64ToUint64((st.Size + 511) / 512)
}

// join returns the absolute path of name inside dir.
func join(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

func safeInt64ToUint64(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}
