package fusefs

import (
	"context"
	"os"

	"bbbfs/internal/logging"

	"bazil.org/fuse"
	fusesrv "bazil.org/fuse/fs"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// Dir is a directory node.
type Dir struct {
	fs   *FS
	path string
}

// ensure Dir implements the directory node interfaces
var (
	_ fusesrv.Node               = (*Dir)(nil)
	_ fusesrv.NodeStringLookuper = (*Dir)(nil)
	_ fusesrv.HandleReadDirAller = (*Dir)(nil)
	_ fusesrv.NodeMkdirer        = (*Dir)(nil)
	_ fusesrv.NodeRemover        = (*Dir)(nil)
	_ fusesrv.NodeCreater        = (*Dir)(nil)
)

// Attr implements the Node interface, returning directory attributes.
func (d *Dir) Attr(_ context.Context, a *fuse.Attr) error {
	dirLogger.Trace("Getting attributes for directory: %q", d.path)

	st, err := d.fs.vfs.Stat(d.path)
	if err != nil {
		dirLogger.Debug("Stat failed for %q: %v", d.path, err)
		return errno(err)
	}
	d.fs.fillAttr(st, a)
	return nil
}

// Lookup implements the NodeStringLookuper interface, finding a child node.
func (d *Dir) Lookup(_ context.Context, name string) (fusesrv.Node, error) {
	child := join(d.path, name)
	dirLogger.Debug("Looking up %q", child)

	st, err := d.fs.vfs.Stat(child)
	if err != nil {
		dirLogger.Debug("Path not found: %q", child)
		return nil, errno(err)
	}
	if st.IsDir() {
		return &Dir{fs: d.fs, path: child}, nil
	}
	return &File{fs: d.fs, path: child}, nil
}

// ReadDirAll implements the HandleReadDirAller interface, listing directory contents.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	dirLogger.Debug("Reading directory contents: %q", d.path)

	entries, err := d.fs.vfs.ReadDirAll(d.path)
	if err != nil {
		dirLogger.Warn("Failed to read directory %q: %v", d.path, err)
		return nil, errno(err)
	}

	dirents := make([]fuse.Dirent, 0, len(entries)+2)
	dirents = append(dirents, fuse.Dirent{Name: ".", Type: fuse.DT_Dir})
	dirents = append(dirents, fuse.Dirent{Name: "..", Type: fuse.DT_Dir})
	for _, e := range entries {
		// vfs.DirType uses the d_type numbering
		dirents = append(dirents, fuse.Dirent{Name: e.Name, Type: fuse.DirentType(e.Type)})
	}

	dirLogger.Debug("Directory %q contains %d entries", d.path, len(entries))
	return dirents, nil
}

// Mkdir implements the NodeMkdirer interface, creating a new directory.
func (d *Dir) Mkdir(_ context.Context, req *fuse.MkdirRequest) (fusesrv.Node, error) {
	child := join(d.path, req.Name)
	dirLogger.Info("Creating new directory %q", child)

	if err := d.fs.vfs.Mkdir(child, req.Mode.Perm()); err != nil {
		dirLogger.Warn("Failed to create directory %q: %v", child, err)
		return nil, errno(err)
	}
	d.fs.changed("mkdir")
	return &Dir{fs: d.fs, path: child}, nil
}

// Remove implements the NodeRemover interface, removing a file or directory.
func (d *Dir) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	child := join(d.path, req.Name)
	dirLogger.Info("Removing %q (isDir=%v)", child, req.Dir)

	var err error
	switch {
	case req.Dir:
		err = d.fs.vfs.Rmdir(child)
	case d.fs.unlink != nil:
		err = d.fs.unlink(child)
	default:
		err = os.ErrPermission
	}
	if err != nil {
		dirLogger.Warn("Failed to remove %q: %v", child, err)
		return errno(err)
	}
	d.fs.changed("remove")
	return nil
}

// Create implements the NodeCreater interface, creating and opening a
// regular file.
func (d *Dir) Create(_ context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fusesrv.Node, fusesrv.Handle, error) {
	child := join(d.path, req.Name)
	dirLogger.Info("Creating file %q", child)

	flags := int(req.Flags) | os.O_CREATE
	fd, err := d.fs.vfs.Open(child, flags, req.Mode.Perm())
	if err != nil {
		dirLogger.Warn("Failed to create %q: %v", child, err)
		return nil, nil, errno(err)
	}

	st, err := d.fs.vfs.Fstat(fd)
	if err == nil {
		d.fs.fillAttr(st, &resp.Attr)
	}
	resp.Flags |= fuse.OpenDirectIO
	d.fs.changed("create")

	return &File{fs: d.fs, path: child}, newHandle(d.fs, fd, child, true), nil
}
