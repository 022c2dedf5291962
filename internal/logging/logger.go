// Package logging provides a structured logging wrapper around Go's log/slog
// with file rotation and execution timing helpers.
//
// The terminal belongs to the dashboard, so logs only ever go to a file. With
// no file configured every call is a no-op.
package logging

import (
	"io"
	"log/slog"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps slog.Logger with convenience methods for kscope
type Logger struct {
	logger *slog.Logger
	noop   bool
}

// LogFormat represents the output format for logs
type LogFormat string

const (
	// FormatText outputs human-readable text logs
	FormatText LogFormat = "text"
	// FormatJSON outputs structured JSON logs
	FormatJSON LogFormat = "json"
)

// Config holds configuration for logger initialization
type Config struct {
	// FilePath is the path to the log file (empty = no logging)
	FilePath string
	// Level is the minimum log level (debug, info, warn, error)
	Level slog.Level
	// Format is the output format (text or json)
	Format LogFormat
	// MaxSizeMB is the maximum size in MB before rotation
	MaxSizeMB int
	// MaxBackups is the maximum number of old log files to keep
	MaxBackups int
}

var (
	mu           sync.RWMutex
	globalLogger *Logger
	writer       io.Closer

	noopLogger = &Logger{logger: slog.New(slog.NewTextHandler(io.Discard, nil)), noop: true}
)

// Init initializes the global logger with the given configuration.
// If config.FilePath is empty, logging is disabled (noop logger).
func Init(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	closeWriter()

	if config.FilePath == "" {
		globalLogger = noopLogger
		return nil
	}

	rotating := &lumberjack.Logger{
		Filename:   config.FilePath,
		MaxSize:    config.MaxSizeMB,
		MaxBackups: config.MaxBackups,
		Compress:   true,
	}

	opts := &slog.HandlerOptions{
		Level: config.Level,
	}

	var handler slog.Handler
	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(rotating, opts)
	default:
		handler = slog.NewTextHandler(rotating, opts)
	}

	globalLogger = &Logger{logger: slog.New(handler)}
	writer = rotating
	return nil
}

// Shutdown closes the log file. Later calls log nowhere until Init runs again.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()

	globalLogger = noopLogger
	return closeWriter()
}

func closeWriter() error {
	if writer == nil {
		return nil
	}
	err := writer.Close()
	writer = nil
	return err
}

// Get returns the global logger instance.
// Returns a noop logger if Init was not called or logging is disabled.
func Get() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	if globalLogger == nil {
		return noopLogger
	}
	return globalLogger
}

// Component returns a child of the global logger tagged with a component name
func Component(name string) *Logger {
	return Get().With("component", name)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// With returns a new Logger with the given key-value pairs added as context
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		logger: l.logger.With(args...),
		noop:   l.noop,
	}
}

// IsEnabled returns true if logging is enabled (not noop)
func (l *Logger) IsEnabled() bool {
	return !l.noop
}

// Package-level convenience functions

// Debug logs a debug message using the global logger
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Info logs an info message using the global logger
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message using the global logger
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error message using the global logger
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

// IsEnabled returns true if logging is enabled globally
func IsEnabled() bool {
	return Get().IsEnabled()
}

// ParseLevel converts a string to slog.Level
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat converts a string to LogFormat
func ParseFormat(format string) LogFormat {
	switch format {
	case "json":
		return FormatJSON
	default:
		return FormatText
	}
}
