package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Log is the global structured logger
	Log *slog.Logger
	// logWriter is the rotating log file, nil when logging to stderr only
	logWriter *lumberjack.Logger
)

// ParseLevel maps a config string to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init configures the global logger. Records go to stderr, and also to a
// rotated file when logPath is set.
func Init(level string, logPath string) error {
	return InitWithWriter(level, logPath, os.Stderr)
}

// InitWithWriter is Init with a custom console writer
func InitWithWriter(level string, logPath string, console io.Writer) error {
	Close()

	writer := console
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return err
		}
		logWriter = &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		}
		writer = io.MultiWriter(console, logWriter)
	}

	Log = slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
	slog.SetDefault(Log)
	return nil
}

// Close flushes and closes the log file
func Close() {
	if logWriter != nil {
		logWriter.Close()
		logWriter = nil
	}
}

func getLogger() *slog.Logger {
	if Log != nil {
		return Log
	}
	return slog.Default()
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	getLogger().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	getLogger().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	getLogger().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	getLogger().Error(msg, args...)
}

// With returns a logger carrying the given attributes
func With(args ...any) *slog.Logger {
	return getLogger().With(args...)
}
