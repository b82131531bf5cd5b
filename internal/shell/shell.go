// Package shell implements a line oriented command shell that talks to the
// user through descriptors of a VFS.
package shell

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"bbbfs/internal/logging"
	"bbbfs/internal/vfs"
)

var (
	shellLogger = logging.GetLogger().WithPrefix("shell")

	// ErrExit is returned by Exec for the exit command
	ErrExit = errors.New("exit")
)

// DefaultPrompt is printed before every line.
const DefaultPrompt = "bbb> "

// pollInterval is how long a read on a non-blocking input waits before
// trying again.
const pollInterval = 10 * time.Millisecond

const (
	eot       = 0x04
	backspace = 0x08
	del       = 0x7f
)

type command struct {
	usage string
	run   func(s *Shell, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"pwd":   {"pwd", (*Shell).pwd},
		"cd":    {"cd [dir]", (*Shell).cd},
		"ls":    {"ls [dir]", (*Shell).ls},
		"mkdir": {"mkdir dir...", (*Shell).mkdir},
		"rmdir": {"rmdir dir...", (*Shell).rmdir},
		"stat":  {"stat name...", (*Shell).stat},
		"cat":   {"cat file...", (*Shell).cat},
		"write": {"write file text...", (*Shell).write},
		"sync":  {"sync", (*Shell).syncCmd},
		"help":  {"help", (*Shell).help},
		"exit":  {"exit", func(*Shell, []string) error { return ErrExit }},
	}
}

// Shell reads commands from one descriptor and writes results to others.
type Shell struct {
	v      *vfs.VFS
	in     int
	out    int
	errOut int
	prompt string
	sync   func() error
}

// Option configures a Shell.
type Option func(*Shell)

// WithPrompt replaces DefaultPrompt.
func WithPrompt(p string) Option {
	return func(s *Shell) {
		s.prompt = p
	}
}

// WithSync registers the action of the sync command.
func WithSync(fn func() error) Option {
	return func(s *Shell) {
		s.sync = fn
	}
}

// WithDescriptors replaces the standard input, output and error
// descriptors.
func WithDescriptors(in, out, errOut int) Option {
	return func(s *Shell) {
		s.in, s.out, s.errOut = in, out, errOut
	}
}

// New returns a shell over v using descriptors 0, 1 and 2.
func New(v *vfs.VFS, opts ...Option) *Shell {
	s := &Shell{
		v:      v,
		in:     vfs.Stdin,
		out:    vfs.Stdout,
		errOut: vfs.Stderr,
		prompt: DefaultPrompt,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads and executes lines until exit or end of input.
func (s *Shell) Run() error {
	shellLogger.Info("Shell started on fd %d", s.in)
	for {
		s.print(s.out, s.prompt)
		line, err := s.ReadLine()
		if errors.Is(err, io.EOF) {
			shellLogger.Info("End of input")
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.Exec(line); errors.Is(err, ErrExit) {
			shellLogger.Info("Shell exited")
			return nil
		}
	}
}

// ReadLine reads one line, echoing input and handling backspace. It
// returns io.EOF when the input descriptor reaches end of file or when
// Ctrl-D is typed on an empty line.
func (s *Shell) ReadLine() (string, error) {
	var line []byte
	b := make([]byte, 1)
	for {
		n, err := s.v.Read(s.in, b)
		if vfs.IsTemporary(err) {
			time.Sleep(pollInterval)
			continue
		}
		if err != nil {
			return "", err
		}
		if n == 0 {
			if len(line) > 0 {
				return string(line), nil
			}
			return "", io.EOF
		}

		switch c := b[0]; {
		case c == '\r' || c == '\n':
			s.print(s.out, "\r\n")
			return string(line), nil
		case c == eot:
			if len(line) == 0 {
				s.print(s.out, "\r\n")
				return "", io.EOF
			}
		case c == backspace || c == del:
			if len(line) > 0 {
				line = line[:len(line)-1]
				s.print(s.out, "\b \b")
			}
		case c < ' ':
			// other control characters are dropped
		default:
			line = append(line, c)
			s.print(s.out, string(c))
		}
	}
}

// Exec runs one command line. Command failures are reported on the error
// descriptor and returned.
func (s *Shell) Exec(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	shellLogger.Debug("Executing %q", line)

	cmd, ok := commands[args[0]]
	if !ok {
		err := fmt.Errorf("unknown command, try help")
		s.printf(s.errOut, "%s: %v\n", args[0], err)
		return err
	}
	err := cmd.run(s, args[1:])
	if err != nil && !errors.Is(err, ErrExit) {
		s.printf(s.errOut, "%s: %v\n", args[0], err)
	}
	return err
}

// print writes text to fd. Line feeds become CR LF on terminals.
func (s *Shell) print(fd int, text string) {
	p := []byte(text)
	if s.v.IsTTY(fd) {
		p = toCRLF(p)
	}
	if _, err := s.v.Write(fd, p); err != nil {
		shellLogger.Warn("Failed to write to fd %d: %v", fd, err)
	}
}

func (s *Shell) printf(fd int, format string, args ...any) {
	s.print(fd, fmt.Sprintf(format, args...))
}

// toCRLF expands bare line feeds.
func toCRLF(p []byte) []byte {
	if !bytes.Contains(p, []byte{'\n'}) {
		return p
	}
	out := make([]byte, 0, len(p)+8)
	for i, c := range p {
		if c == '\n' && (i == 0 || p[i-1] != '\r') {
			out = append(out, '\r')
		}
		out = append(out, c)
	}
	return out
}

func (s *Shell) pwd(args []string) error {
	s.printf(s.out, "%s\n", s.v.Getwd())
	return nil
}

func (s *Shell) cd(args []string) error {
	dir := "/"
	if len(args) > 0 {
		dir = args[0]
	}
	return s.v.Chdir(dir)
}

func (s *Shell) ls(args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	entries, err := s.v.ReadDirAll(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		s.printf(s.out, "%-4s %6d %s\n", e.Type, e.Ino, e.Name)
	}
	return nil
}

func (s *Shell) mkdir(args []string) error {
	if len(args) == 0 {
		return errUsage("mkdir")
	}
	for _, dir := range args {
		if err := s.v.Mkdir(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func (s *Shell) rmdir(args []string) error {
	if len(args) == 0 {
		return errUsage("rmdir")
	}
	for _, dir := range args {
		if err := s.v.Rmdir(dir); err != nil {
			return err
		}
	}
	return nil
}

func (s *Shell) stat(args []string) error {
	if len(args) == 0 {
		return errUsage("stat")
	}
	for _, name := range args {
		st, err := s.v.Stat(name)
		if err != nil {
			return err
		}
		s.printf(s.out, "%s: %s %v size=%d ino=%d mtime=%s\n",
			name, vfs.TypeOf(st.Mode), st.Mode, st.Size, st.Ino, st.ModTime.Format(time.RFC3339))
	}
	return nil
}

func (s *Shell) cat(args []string) error {
	if len(args) == 0 {
		return errUsage("cat")
	}
	buf := make([]byte, 512)
	for _, name := range args {
		fd, err := s.v.Open(name, os.O_RDONLY, 0)
		if err != nil {
			return err
		}
		for {
			n, err := s.v.Read(fd, buf)
			if err != nil {
				s.v.Close(fd)
				return err
			}
			if n == 0 {
				break
			}
			s.print(s.out, string(buf[:n]))
		}
		if err := s.v.Close(fd); err != nil {
			return err
		}
	}
	return nil
}

func (s *Shell) write(args []string) error {
	if len(args) < 2 {
		return errUsage("write")
	}
	fd, err := s.v.Open(args[0], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	text := strings.Join(args[1:], " ") + "\n"
	if _, err := s.v.Write(fd, []byte(text)); err != nil {
		s.v.Close(fd)
		return err
	}
	return s.v.Close(fd)
}

func (s *Shell) syncCmd(args []string) error {
	if s.sync == nil {
		s.print(s.out, "nothing to sync\n")
		return nil
	}
	return s.sync()
}

func (s *Shell) help(args []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.printf(s.out, "  %s\n", commands[name].usage)
	}
	return nil
}

func errUsage(name string) error {
	return fmt.Errorf("usage: %s", commands[name].usage)
}
