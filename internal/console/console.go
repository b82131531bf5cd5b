// Package console implements the console character device on top of a
// serial line.
package console

import (
	"errors"
	"io"
	"io/fs"

	"bbbfs/internal/logging"
	"bbbfs/internal/uart"
	"bbbfs/internal/vfs"
)

// Name is the device name the console is registered under.
const Name = "console"

var (
	consoleLogger = logging.GetLogger().WithPrefix("console")
)

// Console is the file backend of the console device.
type Console struct {
	line uart.UART
}

// ensure Console implements vfs.FileOps
var _ vfs.FileOps = (*Console)(nil)

// New returns a console over line. Call Init before use.
func New(line uart.UART) *Console {
	return &Console{line: line}
}

// Init initializes the serial line.
func (c *Console) Init() error {
	consoleLogger.Debug("Initializing console line")
	return c.line.Init()
}

// Open records flags and mode; it never fails.
func (c *Console) Open(f *vfs.File, flags int, mode fs.FileMode) (int, error) {
	f.Flags = flags
	f.Mode = mode
	return 1, nil
}

// Read returns exactly one character. A non-blocking descriptor fails with
// vfs.ErrWouldBlock when nothing is pending; otherwise Read waits. Once the
// line has hung up Read returns 0, and a line fault is returned as the
// error.
func (c *Console) Read(f *vfs.File, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := c.lineErr(); err != nil {
		return lineClosed(err)
	}
	if f.Flags&vfs.ONonblock != 0 && !c.line.Tstc() {
		return 0, vfs.ErrWouldBlock
	}
	b := c.line.Getc()
	if err := c.lineErr(); err != nil {
		consoleLogger.Debug("Console line gone: %v", err)
		return lineClosed(err)
	}
	p[0] = b
	return 1, nil
}

func (c *Console) lineErr() error {
	if r, ok := c.line.(uart.ErrReporter); ok {
		return r.Err()
	}
	return nil
}

func lineClosed(err error) (int, error) {
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	return 0, err
}

// Write sends p one byte at a time.
func (c *Console) Write(f *vfs.File, p []byte) (int, error) {
	for _, b := range p {
		c.line.Putc(b)
	}
	return len(p), nil
}

// Seek is a no-op on a character device.
func (c *Console) Seek(f *vfs.File, offset int64, whence int) (int64, error) {
	return 0, nil
}

// IsTTY implements vfs.FileOps.
func (c *Console) IsTTY(f *vfs.File) bool {
	return true
}

// Fstat reports a character device.
func (c *Console) Fstat(f *vfs.File) (vfs.Stat, error) {
	return vfs.Stat{Mode: fs.ModeDevice | fs.ModeCharDevice | 0620}, nil
}

// Close implements vfs.FileOps.
func (c *Console) Close(f *vfs.File) error {
	return nil
}

// Fcntl supports FSetFL only.
func (c *Console) Fcntl(f *vfs.File, cmd int, arg int) (int, error) {
	if cmd != vfs.FSetFL {
		consoleLogger.Debug("Unsupported fcntl command %d", cmd)
		return -1, vfs.ErrUnsupported
	}
	f.Flags = arg
	return 0, nil
}
