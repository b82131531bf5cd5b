package main

import (
	"bbbfs/internal/shell"

	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run the console shell over the VFS",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := openLine(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := line.Restore(); err != nil {
				logger.Warn("Failed to restore terminal: %v", err)
			}
		}()

		s, err := newSystem(cfg, line)
		if err != nil {
			return err
		}
		if err := s.con.Init(); err != nil {
			return err
		}

		sh := shell.New(s.vfs, shell.WithSync(s.syncHook()))
		if err := sh.Run(); err != nil {
			return err
		}

		logger.Debug("Saving state on exit")
		return s.sync()
	},
}
