// Package logger is a process-wide file logger. It is silent until Init or
// SetOutput is called.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the level tag used in log lines.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel parses a level name (case-insensitive).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

var (
	globalLogger *log.Logger
	logFile      *os.File
	writer       io.Writer
	minLevel     = LevelDebug
	mu           sync.Mutex
)

// Init initializes the global logger with the specified log file path.
// Missing parent directories are created.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	// Close previous log file if exists
	closeLocked()

	if dir := filepath.Dir(logPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	logFile = f
	writer = f
	globalLogger = log.New(f, "", log.Ltime|log.Lmicroseconds)

	return nil
}

// SetOutput logs to w instead of a file. A nil w silences the logger.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	if w == nil {
		return
	}
	writer = w
	globalLogger = log.New(w, "", log.Ltime|log.Lmicroseconds)
}

// SetLevel drops messages below l.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// Close closes the log file and silences the logger.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	writer = nil
	globalLogger = nil
}

func logf(l Level, format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil && l >= minLevel {
		globalLogger.Printf("["+l.String()+"] "+format, v...)
	}
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) { logf(LevelDebug, format, v...) }

// Info logs an info message.
func Info(format string, v ...interface{}) { logf(LevelInfo, format, v...) }

// Warn logs a warning message.
func Warn(format string, v ...interface{}) { logf(LevelWarn, format, v...) }

// Error logs an error message.
func Error(format string, v ...interface{}) { logf(LevelError, format, v...) }

// GetWriter returns the underlying writer for use by drivers.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if writer != nil {
		return writer
	}
	return io.Discard
}
