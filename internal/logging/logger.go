package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	// LevelError only logs errors
	LevelError LogLevel = iota
	// LevelWarn logs warnings and errors
	LevelWarn
	// LevelInfo logs general information, warnings and errors
	LevelInfo
	// LevelDebug logs detailed debug information and all above
	LevelDebug
	// LevelTrace logs every dispatched call and all above
	LevelTrace
)

var levelNames = map[LogLevel]string{
	LevelError: "ERROR",
	LevelWarn:  "WARN",
	LevelInfo:  "INFO",
	LevelDebug: "DEBUG",
	LevelTrace: "TRACE",
}

// String returns the upper case name of the level.
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel converts a level name such as "debug" or "TRACE" to a LogLevel.
func ParseLevel(name string) (LogLevel, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for level, n := range levelNames {
		if n == name {
			return level, true
		}
	}
	return LevelInfo, false
}

// levelState is shared between a logger and every logger derived from it
// with WithPrefix, so that one SetLevel call reconfigures a whole tree.
type levelState struct {
	mu    sync.RWMutex
	level LogLevel
}

// Logger provides leveled, prefixed logging.
type Logger struct {
	state  *levelState
	prefix string
	tag    string // set on derived loggers only
	logger *log.Logger
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// GetLogger returns the default logger instance. The initial level comes
// from BBBFS_LOG_LEVEL; BBBFS_DEBUG forces DEBUG.
func GetLogger() *Logger {
	once.Do(func() {
		defaultLogger = NewLogger("BBBFS")

		if level, ok := ParseLevel(os.Getenv("BBBFS_LOG_LEVEL")); ok {
			defaultLogger.SetLevel(level)
		}

		if os.Getenv("BBBFS_DEBUG") != "" {
			defaultLogger.SetLevel(LevelDebug)
		}
	})
	return defaultLogger
}

// NewLogger creates a new logger with the given prefix writing to stderr.
// Standard output belongs to the console device.
func NewLogger(prefix string) *Logger {
	flags := log.Ldate | log.Ltime | log.Lmicroseconds | log.LUTC
	if os.Getenv("BBBFS_LOG_LONGFILE") != "" {
		flags |= log.Llongfile
	} else {
		flags |= log.Lshortfile
	}

	return &Logger{
		state:  &levelState{level: LevelInfo},
		prefix: prefix,
		logger: log.New(os.Stderr, prefix+": ", flags),
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	l.state.level = level
}

// Level returns the current logging level
func (l *Logger) Level() LogLevel {
	l.state.mu.RLock()
	defer l.state.mu.RUnlock()
	return l.state.level
}

// SetOutput redirects the logger, and every logger sharing its output, to w.
func (l *Logger) SetOutput(w io.Writer) {
	l.logger.SetOutput(w)
}

func (l *Logger) shouldLog(level LogLevel) bool {
	return level <= l.Level()
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if !l.shouldLog(level) {
		return
	}

	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] %s", level, msg)
	if l.tag != "" {
		line = fmt.Sprintf("[%s] %s: %s", level, l.tag, msg)
	}
	if err := l.logger.Output(3, line); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write log message: %v\n", err)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Trace logs a trace message
func (l *Logger) Trace(format string, args ...interface{}) {
	l.log(LevelTrace, format, args...)
}

// WithPrefix derives a logger tagging its lines with prefix. The derived
// logger shares level and output with l.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{
		state:  l.state,
		prefix: l.prefix,
		tag:    prefix,
		logger: l.logger,
	}
}
