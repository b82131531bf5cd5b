package main

import (
	"os"

	"bbbfs/internal/config"
	"bbbfs/internal/logging"

	"github.com/spf13/cobra"
)

var (
	logger = logging.GetLogger()

	cfgFile string
	cfg     *config.Config
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "bbbfs",
	Short: "Virtual file system layer of a BeagleBone Black class board",
	Long: `bbbfs runs the board's file system dispatch layer on a host: an
in-memory storage tree and the console device behind POSIX style
descriptors, driven by a console shell or exported through FUSE.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		logger.SetLevel(c.Level())
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().String("state", "", "storage snapshot file")
	rootCmd.PersistentFlags().String("device", "", "console serial device (default: this terminal)")
	rootCmd.PersistentFlags().Int("baud", 115200, "console baud rate")

	v.BindPFlag(config.KeyVerbose, rootCmd.PersistentFlags().Lookup("verbose"))
	v.BindPFlag(config.KeyStateFile, rootCmd.PersistentFlags().Lookup("state"))
	v.BindPFlag(config.KeyConsoleDev, rootCmd.PersistentFlags().Lookup("device"))
	v.BindPFlag(config.KeyConsoleBaud, rootCmd.PersistentFlags().Lookup("baud"))

	rootCmd.AddCommand(shellCmd, mountCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
