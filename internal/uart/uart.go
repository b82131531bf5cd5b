// Package uart provides the serial line the console device talks to.
package uart

import (
	"io"
	"sync"

	"bbbfs/internal/logging"
)

var (
	uartLogger = logging.GetLogger().WithPrefix("uart")
)

// UART is a byte oriented serial line.
type UART interface {
	// Init prepares the line for use.
	Init() error
	// Tstc reports whether a received character is pending.
	Tstc() bool
	// Getc waits for and returns the next received character.
	Getc() byte
	// Putc transmits c, waiting until the line accepts it.
	Putc(c byte)
}

// ErrReporter is implemented by lines that can go away. Once Getc has
// failed, Err returns the cause: io.EOF for a hangup, another error for a
// line fault. It returns nil while the line is up.
type ErrReporter interface {
	Err() error
}

// Sim is an in-memory line. Bytes made to arrive with Feed are returned by
// Getc in order; bytes sent with Putc are collected for Output.
type Sim struct {
	mu      sync.Mutex
	arrived *sync.Cond
	rx      []byte
	tx      []byte
	inits   int
	hungup  bool
	err     error
}

// ensure Sim implements UART and ErrReporter
var (
	_ UART        = (*Sim)(nil)
	_ ErrReporter = (*Sim)(nil)
)

// NewSim returns an idle simulated line.
func NewSim() *Sim {
	s := &Sim{}
	s.arrived = sync.NewCond(&s.mu)
	return s
}

// Init implements UART.
func (s *Sim) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits++
	uartLogger.Debug("Simulated line initialized")
	return nil
}

// Inits returns how many times Init was called.
func (s *Sim) Inits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inits
}

// Feed makes b arrive on the receive side.
func (s *Sim) Feed(b ...byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rx = append(s.rx, b...)
	s.arrived.Broadcast()
}

// Hangup disconnects the receive side. Bytes already fed are still
// returned; after them Getc returns 0 and Err reports io.EOF.
func (s *Sim) Hangup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hungup = true
	s.arrived.Broadcast()
}

// FeedString makes the bytes of str arrive on the receive side.
func (s *Sim) FeedString(str string) {
	s.Feed([]byte(str)...)
}

// Pending returns the number of received bytes not read yet.
func (s *Sim) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rx)
}

// Tstc implements UART.
func (s *Sim) Tstc() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rx) > 0 || s.hungup
}

// Getc implements UART. It blocks until a byte arrives or the line is
// hung up.
func (s *Sim) Getc() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.rx) == 0 && !s.hungup {
		s.arrived.Wait()
	}
	if len(s.rx) == 0 {
		s.err = io.EOF
		return 0
	}
	c := s.rx[0]
	s.rx = s.rx[1:]
	return c
}

// Err implements ErrReporter.
func (s *Sim) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Putc implements UART.
func (s *Sim) Putc(c byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tx = append(s.tx, c)
}

// Output returns a copy of everything transmitted so far.
func (s *Sim) Output() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.tx...)
}

// ResetOutput discards the transmitted bytes.
func (s *Sim) ResetOutput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tx = nil
}
