//go:build linux

package uart

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

// TTY is a UART over a Linux terminal device: a serial port or the
// controlling terminal of the process.
type TTY struct {
	in    *os.File
	out   *os.File
	baud  int
	saved *unix.Termios
	owned bool

	mu   sync.Mutex
	rerr error // sticky receive error, io.EOF after a hangup
	werr error
}

// ensure TTY implements UART and ErrReporter
var (
	_ UART        = (*TTY)(nil)
	_ ErrReporter = (*TTY)(nil)
)

// NewTTY wraps already open terminal files. baud 0 keeps the current speed.
func NewTTY(in, out *os.File, baud int) *TTY {
	return &TTY{in: in, out: out, baud: baud}
}

// OpenTTY opens a serial device for reading and writing.
func OpenTTY(device string, baud int) (*TTY, error) {
	f, err := os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", device, err)
	}
	t := NewTTY(f, f, baud)
	t.owned = true
	return t, nil
}

// Init puts the input side in raw mode: no echo, no line buffering, no
// signal characters, byte at a time reads.
func (t *TTY) Init() error {
	fd := int(t.in.Fd())
	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to read termios of %s: %w", t.in.Name(), err)
	}
	saved := *tio
	t.saved = &saved

	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.Cflag &^= unix.CSIZE | unix.PARENB
	tio.Cflag |= unix.CS8
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0

	if t.baud != 0 {
		rate, ok := baudRates[t.baud]
		if !ok {
			return fmt.Errorf("unsupported baud rate %d", t.baud)
		}
		tio.Cflag &^= unix.CBAUD
		tio.Cflag |= rate
		tio.Ispeed = rate
		tio.Ospeed = rate
	}

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		return fmt.Errorf("failed to set termios of %s: %w", t.in.Name(), err)
	}
	uartLogger.Debug("Terminal %s in raw mode (baud %d)", t.in.Name(), t.baud)
	return nil
}

// Restore puts back the terminal settings found by Init and closes a
// device opened with OpenTTY.
func (t *TTY) Restore() error {
	var err error
	if t.saved != nil {
		err = unix.IoctlSetTermios(int(t.in.Fd()), unix.TCSETS, t.saved)
		t.saved = nil
	}
	if t.owned {
		if cerr := t.in.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Tstc implements UART with a zero timeout poll. A hung up line counts as
// ready so that the next Getc reports it.
func (t *TTY) Tstc() bool {
	if t.Err() != nil {
		return true
	}
	fds := []unix.PollFd{{Fd: int32(t.in.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	if err != nil {
		uartLogger.Trace("poll %s: %v", t.in.Name(), err)
		return false
	}
	return n > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
}

// Getc implements UART. EAGAIN is retried. Any other error, end of file
// included, ends the line: Getc returns 0 from then on and Err reports
// the cause.
func (t *TTY) Getc() byte {
	if t.Err() != nil {
		return 0
	}
	var b [1]byte
	for {
		n, err := t.in.Read(b[:])
		if n == 1 {
			return b[0]
		}
		if err != nil && !errors.Is(err, unix.EAGAIN) {
			t.mu.Lock()
			t.rerr = err
			t.mu.Unlock()
			uartLogger.Warn("Line %s closed: %v", t.in.Name(), err)
			return 0
		}
	}
}

// Err implements ErrReporter.
func (t *TTY) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rerr
}

// Putc implements UART. After the first failed write the line drops
// output silently.
func (t *TTY) Putc(c byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.werr != nil {
		return
	}
	if _, err := t.out.Write([]byte{c}); err != nil {
		t.werr = err
		uartLogger.Error("write %s: %v", t.out.Name(), err)
	}
}
