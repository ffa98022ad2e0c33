package logging

import (
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents a log level
type Level int32

const (
	// DebugLevel covers per-item merge decisions and poll-by-poll detail
	DebugLevel Level = iota
	// InfoLevel is the default; state transitions log here
	InfoLevel
	// WarnLevel marks partner-side trouble that the relay recovers from on its own
	WarnLevel
	// ErrorLevel marks local faults that abort a poll cycle
	ErrorLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < DebugLevel || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel converts a string to a Level, defaulting to InfoLevel
func ParseLevel(s string) Level {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "WARNING" {
		return WarnLevel
	}
	for i, n := range levelNames {
		if n == name {
			return Level(i)
		}
	}
	return InfoLevel
}

// Field is one key/value pair on a log line
type Field struct {
	Key   string
	Value any
}

// Logger is the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// With creates a child logger with the given fields pre-set
	With(fields ...Field) Logger
	SetLevel(level Level)
	GetLevel() Level
}

// Keys owned by the line envelope. Fields using them are written as "field.<key>".
const (
	keyTime    = "time"
	keyStampMS = "ts_ms"
	keyLevel   = "level"
	keyMessage = "msg"
)

func reserved(key string) bool {
	switch key {
	case keyTime, keyStampMS, keyLevel, keyMessage:
		return true
	}
	return false
}

// JSONLogger writes one flat JSON object per line. Children created by With
// share the parent's writer lock and level.
type JSONLogger struct {
	out    *sink
	level  *atomic.Int32
	fields []Field
}

type sink struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NopLogger discards everything
type NopLogger struct{}

func (NopLogger) Debug(msg string, fields ...Field) {}
func (NopLogger) Info(msg string, fields ...Field)  {}
func (NopLogger) Warn(msg string, fields ...Field)  {}
func (NopLogger) Error(msg string, fields ...Field) {}
func (n NopLogger) With(fields ...Field) Logger     { return n }
func (NopLogger) SetLevel(level Level)              {}
func (NopLogger) GetLevel() Level                   { return InfoLevel }

// NewNopLogger creates a logger that discards all output
func NewNopLogger() Logger {
	return NopLogger{}
}
