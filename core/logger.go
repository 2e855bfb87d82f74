package core

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel orders message severities from chattiest to fatal.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

// String returns the level name as it appears in log lines.
func (l LogLevel) String() string {
	if l < LogLevelDebug || l > LogLevelFatal {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLogLevel maps a config string to a log level, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "info", "":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	case "fatal":
		return LogLevelFatal
	default:
		return LogLevelInfo
	}
}

// Logger writes timestamped, leveled lines with the caller's file and
// line number. All methods are safe for concurrent use.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	level LogLevel
	exit  func(int)
}

// NewLogger returns a logger writing to stdout at the given level.
func NewLogger(level LogLevel) *Logger {
	return &Logger{
		out:   os.Stdout,
		level: level,
		exit:  os.Exit,
	}
}

// SetLevel sets the minimum level that still gets written.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// Level reports the current minimum level.
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetOutput redirects log output, e.g. into a build log or a test buffer.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.out = w
	l.mu.Unlock()
}

// output writes one line. Callers must sit exactly one frame above it
// so the file:line attribution lands on the real call site.
func (l *Logger) output(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file, line = "???", 0
	}

	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	b.WriteString("] ")
	b.WriteString(level.String())
	b.WriteByte(' ')
	b.WriteString(filepath.Base(file))
	fmt.Fprintf(&b, ":%d ", line)
	fmt.Fprintf(&b, format, args...)
	b.WriteByte('\n')
	io.WriteString(l.out, b.String())

	if level == LogLevelFatal {
		l.exit(1)
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.output(LogLevelDebug, format, args...)
}

// Info logs an info message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.output(LogLevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.output(LogLevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.output(LogLevelError, format, args...)
}

// Fatal logs the message and exits the process.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.output(LogLevelFatal, format, args...)
}

// GlobalLogger is the process-wide logger. The cmd layer wires the
// configured level into it at startup.
var GlobalLogger = NewLogger(LogLevelInfo)

// Debug logs a debug message through the global logger.
func Debug(format string, args ...interface{}) {
	GlobalLogger.output(LogLevelDebug, format, args...)
}

// Info logs an info message through the global logger.
func Info(format string, args ...interface{}) {
	GlobalLogger.output(LogLevelInfo, format, args...)
}

// Warn logs a warning message through the global logger.
func Warn(format string, args ...interface{}) {
	GlobalLogger.output(LogLevelWarn, format, args...)
}

// Error logs an error message through the global logger.
func Error(format string, args ...interface{}) {
	GlobalLogger.output(LogLevelError, format, args...)
}

// Fatal logs a fatal message through the global logger and exits.
func Fatal(format string, args ...interface{}) {
	GlobalLogger.output(LogLevelFatal, format, args...)
}
