package path

import (
	"sync"

	"bbbfs/internal/logging"
)

// MaxPath is the capacity of the current directory in bytes, terminator
// included. Longer values are truncated silently.
const MaxPath = 2048

var (
	pathLogger = logging.GetLogger().WithPrefix("path")
)

// Context holds the current working directory of one file system instance.
// The zero value is ready to use and starts at the root.
type Context struct {
	mu  sync.RWMutex
	cwd string
}

// NewContext returns a Context whose current directory is "/".
func NewContext() *Context {
	return &Context{cwd: Root}
}

func (c *Context) current() string {
	if c.cwd == "" {
		return Root
	}
	return c.cwd
}

// CurrentDir returns the current working directory.
func (c *Context) CurrentDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current()
}

// SetCurrentDir replaces the current directory when p is absolute and
// appends p to it otherwise, then normalizes the result. The directory is
// not checked for existence.
func (c *Context) SetCurrentDir(p string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := p
	if !IsAbs(p) {
		next = c.current() + "/" + p
	}
	if len(next) > MaxPath-1 {
		pathLogger.Warn("Current directory truncated to %d bytes", MaxPath-1)
		next = next[:MaxPath-1]
	}
	c.cwd = Normalize(next)
	pathLogger.Debug("Current directory: %q -> %q", p, c.cwd)
	return c.cwd
}

// BuildFull returns the normalized absolute form of p, relative names being
// resolved against the current directory.
func (c *Context) BuildFull(p string) string {
	if IsAbs(p) {
		return Normalize(p)
	}
	return Normalize(c.CurrentDir() + "/" + p)
}

// FullSize returns the buffer size BuildFullInto needs to hold the full
// path of p without truncation.
func (c *Context) FullSize(p string) int {
	return len(c.CurrentDir()) + 1 + len(p) + 1
}

// BuildFullInto is the buffer form of BuildFull. At most len(buf)-1 bytes
// are used; a longer result is truncated silently before normalization, so
// callers should size buf with FullSize.
func (c *Context) BuildFullInto(buf []byte, p string) []byte {
	if len(buf) == 0 {
		return buf
	}
	limit := len(buf) - 1

	var n, want int
	if IsAbs(p) {
		n = copy(buf[:limit], p)
		want = len(p)
	} else {
		cwd := c.CurrentDir()
		n = copy(buf[:limit], cwd)
		n += copy(buf[n:limit], "/")
		n += copy(buf[n:limit], p)
		want = len(cwd) + 1 + len(p)
	}
	if n < want {
		pathLogger.Debug("Full path of %q truncated to %d bytes", p, n)
	}
	return NormalizeBytes(buf[:n])
}
