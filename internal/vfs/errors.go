// Package vfs dispatches POSIX style calls to file and directory backends.
//
// This file contains error types and error handling utilities.
package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"

	"bbbfs/internal/logging"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")

	// ErrNotFound indicates no backend claims a path
	ErrNotFound = errors.New("no backend for path")

	// ErrTableFull indicates every descriptor slot is in use
	ErrTableFull = errors.New("descriptor table full")

	// ErrBadDescriptor indicates a descriptor that is out of range or free
	ErrBadDescriptor = errors.New("bad file descriptor")

	// ErrWouldBlock indicates a non-blocking read found no data
	ErrWouldBlock = errors.New("operation would block")

	// ErrUnsupported indicates a backend does not implement a call
	ErrUnsupported = errors.New("operation not supported")

	// ErrClosed indicates use of a directory stream after Closedir
	ErrClosed = errors.New("directory stream closed")

	// ErrNotDir indicates a directory operation on something else
	ErrNotDir = errors.New("not a directory")

	// ErrIsDir indicates a file operation on a directory
	ErrIsDir = errors.New("is a directory")

	// ErrNotEmpty indicates removal of a non-empty directory
	ErrNotEmpty = errors.New("directory not empty")
)

// Error records the operation and path of a failed call.
type Error struct {
	Op   string // Operation that failed (e.g., "open", "readdir")
	Path string // Affected path or descriptor
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given operation, path, and underlying error
func NewError(op string, path string, err error) *Error {
	e := &Error{
		Op:   op,
		Path: path,
		Err:  err,
	}
	errLogger.Trace("Created new Error: %v", e)
	return e
}

// Operation names for consistent logging and error reporting
const (
	OpOpen     = "open"
	OpRead     = "read"
	OpWrite    = "write"
	OpSeek     = "lseek"
	OpFstat    = "fstat"
	OpFcntl    = "fcntl"
	OpClose    = "close"
	OpStat     = "stat"
	OpOpendir  = "opendir"
	OpReaddir  = "readdir"
	OpClosedir = "closedir"
	OpMkdir    = "mkdir"
	OpRmdir    = "rmdir"
	OpChdir    = "chdir"
)

// ToErrno converts an error returned by this package or by a backend to
// the errno a C runtime or FUSE expects.
func ToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	var errno syscall.Errno
	switch {
	case errors.As(err, &errno):
		return errno
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, ErrTableFull):
		return syscall.EMFILE
	case errors.Is(err, ErrBadDescriptor), errors.Is(err, ErrClosed), errors.Is(err, fs.ErrClosed):
		return syscall.EBADF
	case errors.Is(err, ErrWouldBlock):
		return syscall.EAGAIN
	case errors.Is(err, ErrUnsupported), errors.Is(err, fs.ErrInvalid):
		return syscall.EINVAL
	case errors.Is(err, ErrNotDir):
		return syscall.ENOTDIR
	case errors.Is(err, ErrIsDir):
		return syscall.EISDIR
	case errors.Is(err, ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, fs.ErrExist):
		return syscall.EEXIST
	case errors.Is(err, fs.ErrPermission):
		return syscall.EPERM
	default:
		errLogger.Debug("Unknown error type, returning EIO: %v", err)
		return syscall.EIO
	}
}

// IsTemporary returns true if the call could succeed when retried, which
// is the polling contract of non-blocking reads.
func IsTemporary(err error) bool {
	switch {
	case errors.Is(err, ErrWouldBlock):
		return true
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
		return true
	default:
		return false
	}
}
