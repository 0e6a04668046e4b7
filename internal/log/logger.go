// SPDX-License-Identifier: MIT
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// --- Global Logger State ---

// currentLevel holds the current global log level atomically.
var currentLevel atomic.Uint32

// output is the standard logger every component writes through.
// Date and time with microseconds.
var output = stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects all log output, mainly for tests.
func SetOutput(w io.Writer) {
	output.SetOutput(w)
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

// Logger writes leveled messages tagged with a component name, e.g.
// "[INFO]  engine: started". Loggers are cheap values sharing the global
// level and output.
type Logger struct {
	prefix string
}

// New returns a logger for the named component.
func New(component string) Logger {
	if component == "" {
		return Logger{}
	}
	return Logger{prefix: component + ": "}
}

func (l Logger) write(level LogLevel, msg string) {
	if level == LevelFatal {
		output.Fatalf("[%s] %s%s", level, l.prefix, msg)
	}
	// Keep INFO and WARN aligned with the five letter levels.
	pad := " "
	if len(level.String()) == 4 {
		pad = "  "
	}
	output.Printf("[%s]%s%s%s", level, pad, l.prefix, msg)
}

// Debugf logs a formatted debug message if the level is appropriate.
func (l Logger) Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		l.write(LevelDebug, fmt.Sprintf(format, v...))
	}
}

// Infof logs a formatted info message if the level is appropriate.
func (l Logger) Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		l.write(LevelInfo, fmt.Sprintf(format, v...))
	}
}

// Warnf logs a formatted warning message if the level is appropriate.
func (l Logger) Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		l.write(LevelWarn, fmt.Sprintf(format, v...))
	}
}

// Errorf logs a formatted error message if the level is appropriate.
func (l Logger) Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		l.write(LevelError, fmt.Sprintf(format, v...))
	}
}

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func (l Logger) Fatalf(format string, v ...any) {
	l.write(LevelFatal, fmt.Sprintf(format, v...))
}

// --- Package level functions write without a component prefix ---

var std Logger

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) { std.Debugf(format, v...) }

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) { std.Infof(format, v...) }

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) { std.Warnf(format, v...) }

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) { std.Errorf(format, v...) }

// Fatalf logs a formatted fatal message and exits the application.
func Fatalf(format string, v ...any) { std.Fatalf(format, v...) }
