package main

import (
	"fmt"
	"io/fs"
	"os"

	"bbbfs/internal/config"
	"bbbfs/internal/console"
	"bbbfs/internal/memfs"
	"bbbfs/internal/mount"
	"bbbfs/internal/state"
	"bbbfs/internal/uart"
	"bbbfs/internal/vfs"
)

// system is the assembled board: a console on a serial line, the storage
// backend and the dispatch layer in front of both.
type system struct {
	con   *console.Console
	store *memfs.FS
	table *mount.Table
	vfs   *vfs.VFS
	state *state.Manager // nil without a state file
}

// newSystem wires the components described by cfg around line. The line is
// not initialized.
func newSystem(cfg *config.Config, line uart.UART) (*system, error) {
	s := &system{
		con:   console.New(line),
		store: memfs.New(),
		table: mount.NewTable(),
	}

	if cfg.Storage.StateFile != "" {
		logger.Info("Initializing state manager...")
		m, err := state.NewManager(cfg.Storage.StateFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize state manager: %w", err)
		}
		snap, err := m.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load state: %w", err)
		}
		if err := s.store.Import(snap); err != nil {
			return nil, fmt.Errorf("failed to import state: %w", err)
		}
		s.state = m
	}

	if err := s.table.Mount(cfg.Storage.Mount, s.store, s.store); err != nil {
		return nil, err
	}
	if err := s.table.AddDevice(console.Name, s.con); err != nil {
		return nil, err
	}

	s.vfs = vfs.New(
		vfs.WithCapacity(cfg.FDCapacity),
		vfs.WithResolver(s.table),
		vfs.WithStdio(s.con),
	)
	return s, nil
}

// sync saves a snapshot of the storage backend.
func (s *system) sync() error {
	if s.state == nil {
		return nil
	}
	return s.state.Save(s.store.Export())
}

// syncHook returns sync, or nil when there is nowhere to save to.
func (s *system) syncHook() func() error {
	if s.state == nil {
		return nil
	}
	return s.sync
}

// unlink removes a regular file of the storage backend.
func (s *system) unlink(name string) error {
	ops, rest := s.table.ResolveFile(name)
	if ops != vfs.FileOps(s.store) {
		return fs.ErrPermission
	}
	return s.store.Remove(rest)
}

// openLine returns the serial line named by cfg: a terminal device, or the
// terminal of the process when no device is configured.
func openLine(cfg *config.Config) (*uart.TTY, error) {
	if cfg.Console.Device == "" {
		return uart.NewTTY(os.Stdin, os.Stdout, 0), nil
	}
	return uart.OpenTTY(cfg.Console.Device, cfg.Console.Baud)
}
