//go:build !linux

package uart

import (
	"errors"
	"os"
)

var errNoTermios = errors.New("terminal lines are only supported on linux")

// TTY is unavailable on this platform; Init always fails.
type TTY struct {
	in, out *os.File
}

// ensure TTY implements UART and ErrReporter
var (
	_ UART        = (*TTY)(nil)
	_ ErrReporter = (*TTY)(nil)
)

// NewTTY wraps terminal files.
func NewTTY(in, out *os.File, baud int) *TTY {
	return &TTY{in: in, out: out}
}

// OpenTTY fails on this platform.
func OpenTTY(device string, baud int) (*TTY, error) {
	return nil, errNoTermios
}

func (t *TTY) Init() error    { return errNoTermios }
func (t *TTY) Restore() error { return nil }
func (t *TTY) Tstc() bool     { return false }
func (t *TTY) Getc() byte     { return 0 }
func (t *TTY) Putc(c byte)    {}
func (t *TTY) Err() error     { return errNoTermios }
