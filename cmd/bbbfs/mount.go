package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"bbbfs/internal/fusefs"

	"github.com/spf13/cobra"
)

var mountCmd = &cobra.Command{
	Use:   "mount MOUNTPOINT",
	Short: "Export the VFS through FUSE until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cleanMount := filepath.Clean(args[0])
		logger.Debug("Mount point: %s", cleanMount)

		line, err := openLine(cfg)
		if err != nil {
			return err
		}
		defer line.Restore()

		s, err := newSystem(cfg, line)
		if err != nil {
			return err
		}
		// the console is optional when serving FUSE
		if err := s.con.Init(); err != nil {
			logger.Warn("Console line not in raw mode: %v", err)
		}

		logger.Debug("Setting up signal handlers...")
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		fsys := fusefs.New(s.vfs, fusefs.WithSync(s.syncHook()), fusefs.WithUnlink(s.unlink))
		if err := fsys.Mount(cleanMount); err != nil {
			return err
		}
		logger.Info("Filesystem mounted and ready")

		sig := <-sigChan
		logger.Info("Received signal %v", sig)
		if err := fsys.Unmount(cleanMount); err != nil {
			logger.Error("Unmount error: %v", err)
		}

		if err := s.sync(); err != nil {
			return err
		}
		logger.Info("Clean shutdown complete")
		return nil
	},
}
