// Package config loads bbbfs settings from an optional YAML file, BBBFS_
// environment variables and command line flags.
package config

import (
	"strings"

	"bbbfs/internal/logging"
	"bbbfs/internal/path"
	"bbbfs/internal/vfs"

	"github.com/spf13/viper"
)

var (
	configLogger = logging.GetLogger().WithPrefix("config")
)

// EnvPrefix prefixes every environment variable, e.g. BBBFS_CONSOLE_BAUD.
const EnvPrefix = "BBBFS"

// Keys understood by Load.
const (
	KeyFDCapacity  = "fd_capacity"
	KeyLogLevel    = "log_level"
	KeyVerbose     = "verbose"
	KeyConsoleDev  = "console.device"
	KeyConsoleBaud = "console.baud"
	KeyMount       = "storage.mount"
	KeyStateFile   = "storage.state_file"
)

// Config is the resolved configuration.
type Config struct {
	FDCapacity int           `mapstructure:"fd_capacity"`
	LogLevel   string        `mapstructure:"log_level"`
	Verbose    bool          `mapstructure:"verbose"`
	Console    ConsoleConfig `mapstructure:"console"`
	Storage    StorageConfig `mapstructure:"storage"`
}

// ConsoleConfig selects the serial line of the console device. An empty
// Device uses the standard input and output of the process.
type ConsoleConfig struct {
	Device string `mapstructure:"device"`
	Baud   int    `mapstructure:"baud"`
}

// StorageConfig places the in-memory storage backend and its snapshot.
// An empty StateFile disables persistence.
type StorageConfig struct {
	Mount     string `mapstructure:"mount"`
	StateFile string `mapstructure:"state_file"`
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyFDCapacity, vfs.DefaultCapacity)
	v.SetDefault(KeyLogLevel, logging.LevelInfo.String())
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyConsoleDev, "")
	v.SetDefault(KeyConsoleBaud, 115200)
	v.SetDefault(KeyMount, path.Root)
	v.SetDefault(KeyStateFile, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file when it is not empty and returns the validated result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		if !IsFile(file) {
			return nil, Fatalf("config file not found: %s", file)
		}
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, Fatal(err)
		}
		configLogger.Info("Loaded config file %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	configLogger.Debug("Config: %+v", cfg)
	return &cfg, nil
}

// Validate checks value ranges and normalizes the storage mount point.
func (c *Config) Validate() error {
	if c.FDCapacity < 3 {
		return Fatalf("%s must be at least 3, got %d", KeyFDCapacity, c.FDCapacity)
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return Fatalf("unknown %s %q", KeyLogLevel, c.LogLevel)
	}
	if c.Console.Baud <= 0 {
		return Fatalf("%s must be positive, got %d", KeyConsoleBaud, c.Console.Baud)
	}
	if !path.IsAbs(c.Storage.Mount) {
		return Fatalf("%s must be absolute, got %q", KeyMount, c.Storage.Mount)
	}
	c.Storage.Mount = path.Normalize(c.Storage.Mount)
	return nil
}

// Level returns the configured log level; Verbose raises it to DEBUG.
func (c *Config) Level() logging.LogLevel {
	level, _ := logging.ParseLevel(c.LogLevel)
	if c.Verbose && level < logging.LevelDebug {
		level = logging.LevelDebug
	}
	return level
}
