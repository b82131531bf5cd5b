package vfs

import (
	"errors"
	"io"
	"io/fs"
)

// resolveDir builds the full path of name and resolves it to a directory
// backend. The returned Dir is transient unless Opendir keeps it.
func (v *VFS) resolveDir(op, name string) (*Dir, string, error) {
	full := v.paths.BuildFull(name)
	ops, residual := v.currentResolver().ResolveDir(full)
	if ops == nil {
		vfsLogger.Debug("No directory backend for %q", full)
		return nil, full, NewError(op, full, ErrNotFound)
	}
	vfsLogger.Trace("%s %q -> %q (residual %q)", op, name, full, residual)
	return &Dir{Ops: ops, Name: residual}, full, nil
}

// Stat describes the file at name, as seen by the directory backend that
// owns its path.
func (v *VFS) Stat(name string) (Stat, error) {
	d, full, err := v.resolveDir(OpStat, name)
	if err != nil {
		return Stat{}, err
	}
	st, err := d.Ops.Stat(d, d.Name)
	if err != nil {
		return Stat{}, NewError(OpStat, full, err)
	}
	return st, nil
}

// Mkdir creates the directory name.
func (v *VFS) Mkdir(name string, mode fs.FileMode) error {
	d, full, err := v.resolveDir(OpMkdir, name)
	if err != nil {
		return err
	}
	if err := d.Ops.Mkdir(d, d.Name, mode); err != nil {
		return NewError(OpMkdir, full, err)
	}
	vfsLogger.Debug("Created directory %q", full)
	return nil
}

// Rmdir removes the directory name.
func (v *VFS) Rmdir(name string) error {
	d, full, err := v.resolveDir(OpRmdir, name)
	if err != nil {
		return err
	}
	if err := d.Ops.Rmdir(d, d.Name); err != nil {
		return NewError(OpRmdir, full, err)
	}
	vfsLogger.Debug("Removed directory %q", full)
	return nil
}

// Getwd returns the current directory.
func (v *VFS) Getwd() string {
	return v.paths.CurrentDir()
}

// Chdir changes the current directory to name, which must stat as a
// directory.
func (v *VFS) Chdir(name string) error {
	full := v.paths.BuildFull(name)
	st, err := v.Stat(full)
	if err != nil {
		return NewError(OpChdir, full, errors.Unwrap(err))
	}
	if !st.IsDir() {
		return NewError(OpChdir, full, ErrNotDir)
	}
	v.paths.SetCurrentDir(full)
	return nil
}

// Opendir opens a directory stream on name.
func (v *VFS) Opendir(name string) (*Dir, error) {
	d, full, err := v.resolveDir(OpOpendir, name)
	if err != nil {
		return nil, err
	}
	cursor, err := d.Ops.Opendir(d, d.Name)
	if err != nil {
		return nil, NewError(OpOpendir, full, err)
	}
	if cursor == nil {
		return nil, NewError(OpOpendir, full, ErrNotFound)
	}
	d.cursor = cursor
	vfsLogger.Debug("Opened directory stream on %q", full)
	return d, nil
}

// Readdir returns the next entry of d, or io.EOF once the stream is
// exhausted. A stream is read once; after io.EOF every call returns io.EOF.
func (v *VFS) Readdir(d *Dir) (*DirEntry, error) {
	if d == nil || d.closed {
		return nil, NewError(OpReaddir, "", ErrClosed)
	}
	if d.eof {
		return nil, io.EOF
	}
	entry, err := d.Ops.Readdir(d, d.cursor)
	if errors.Is(err, io.EOF) || (entry == nil && err == nil) {
		d.eof = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, NewError(OpReaddir, d.Name, err)
	}
	return entry, nil
}

// Closedir releases d and its backend cursor. A backend failure is logged
// and otherwise ignored: the stream is gone either way.
func (v *VFS) Closedir(d *Dir) error {
	if d == nil || d.closed {
		return NewError(OpClosedir, "", ErrClosed)
	}
	if err := d.Ops.Closedir(d, d.cursor); err != nil {
		vfsLogger.Warn("Backend failed to close directory %q: %v", d.Name, err)
	}
	d.cursor = nil
	d.closed = true
	return nil
}

// ReadDirAll reads every entry of the directory name.
func (v *VFS) ReadDirAll(name string) ([]DirEntry, error) {
	d, err := v.Opendir(name)
	if err != nil {
		return nil, err
	}
	defer v.Closedir(d)

	var entries []DirEntry
	for {
		e, err := v.Readdir(d)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, *e)
	}
}
