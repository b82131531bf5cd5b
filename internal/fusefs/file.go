package fusefs

import (
	"context"
	"io"
	"os"
	"sync"
	"syscall"

	"bbbfs/internal/logging"

	"bazil.org/fuse"
	fusesrv "bazil.org/fuse/fs"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("file")
)

// File is a regular file or device node.
type File struct {
	fs   *FS
	path string
}

// ensure File implements the file node interfaces
var (
	_ fusesrv.Node          = (*File)(nil)
	_ fusesrv.NodeOpener    = (*File)(nil)
	_ fusesrv.NodeSetattrer = (*File)(nil)
)

// Attr implements the Node interface, returning the file's attributes.
func (f *File) Attr(_ context.Context, a *fuse.Attr) error {
	fileLogger.Trace("Getting attributes for file: %q", f.path)

	st, err := f.fs.vfs.Stat(f.path)
	if err != nil {
		fileLogger.Debug("Stat failed for %q: %v", f.path, err)
		return errno(err)
	}
	f.fs.fillAttr(st, a)
	return nil
}

// Open implements the NodeOpener interface, binding a descriptor to the
// file for the life of the handle.
func (f *File) Open(_ context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusesrv.Handle, error) {
	flags := int(req.Flags)
	fileLogger.Debug("Opening file %q with flags %#x", f.path, flags)

	fd, err := f.fs.vfs.Open(f.path, flags, 0)
	if err != nil {
		fileLogger.Warn("Failed to open file %q: %v", f.path, err)
		return nil, errno(err)
	}

	// Direct IO keeps device reads unbuffered
	resp.Flags |= fuse.OpenDirectIO

	return newHandle(f.fs, fd, f.path, flags&os.O_TRUNC != 0), nil
}

// Setattr implements the NodeSetattrer interface. Only truncation to zero
// is supported; other attribute changes are accepted and ignored.
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid.Size() {
		if req.Size != 0 {
			fileLogger.Debug("Refusing to resize %q to %d", f.path, req.Size)
			return fuse.Errno(syscall.ENOTSUP)
		}
		fd, err := f.fs.vfs.Open(f.path, os.O_WRONLY|os.O_TRUNC, 0)
		if err != nil {
			return errno(err)
		}
		if err := f.fs.vfs.Close(fd); err != nil {
			return errno(err)
		}
		f.fs.changed("truncate")
	}
	return f.Attr(ctx, &resp.Attr)
}

// Handle is an open file. Each handle owns one VFS descriptor.
type Handle struct {
	fs    *FS
	fd    int
	path  string // For logging purposes
	dirty bool
	mu    sync.Mutex
}

// ensure Handle implements the handle interfaces
var (
	_ fusesrv.HandleReader   = (*Handle)(nil)
	_ fusesrv.HandleWriter   = (*Handle)(nil)
	_ fusesrv.HandleReleaser = (*Handle)(nil)
)

func newHandle(fs *FS, fd int, path string, dirty bool) *Handle {
	return &Handle{fs: fs, fd: fd, path: path, dirty: dirty}
}

// Read implements the HandleReader interface. It issues a single backend
// read, so a character device returns what it has without waiting for
// req.Size bytes.
func (h *Handle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	fileLogger.Trace("Reading %d bytes from %q at offset %d", req.Size, h.path, req.Offset)

	if _, err := h.fs.vfs.Seek(h.fd, req.Offset, io.SeekStart); err != nil {
		return errno(err)
	}
	buf := make([]byte, req.Size)
	n, err := h.fs.vfs.Read(h.fd, buf)
	if err != nil {
		fileLogger.Debug("Failed to read from %q: %v", h.path, err)
		return errno(err)
	}
	resp.Data = buf[:n]
	return nil
}

// Write implements the HandleWriter interface.
func (h *Handle) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	fileLogger.Trace("Writing %d bytes to %q at offset %d", len(req.Data), h.path, req.Offset)

	if _, err := h.fs.vfs.Seek(h.fd, req.Offset, io.SeekStart); err != nil {
		return errno(err)
	}
	n, err := h.fs.vfs.Write(h.fd, req.Data)
	if err != nil {
		fileLogger.Warn("Failed to write to %q: %v", h.path, err)
		return errno(err)
	}
	resp.Size = n
	h.dirty = true
	return nil
}

// Release implements the HandleReleaser interface, closing the descriptor.
func (h *Handle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	fileLogger.Debug("Closing %q (fd %d)", h.path, h.fd)
	err := h.fs.vfs.Close(h.fd)
	if h.dirty {
		h.fs.changed("write")
	}
	return errno(err)
}
