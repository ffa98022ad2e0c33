package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// NewJSONLogger creates a logger writing to writer at level
func NewJSONLogger(writer io.Writer, level Level) *JSONLogger {
	return newJSONLogger(writer, level, time.Now)
}

func newJSONLogger(writer io.Writer, level Level, now func() time.Time) *JSONLogger {
	lv := &atomic.Int32{}
	lv.Store(int32(level))
	return &JSONLogger{
		out:   &sink{w: writer, now: now},
		level: lv,
	}
}

func (l *JSONLogger) log(level Level, msg string, fields ...Field) {
	if level < l.GetLevel() {
		return
	}

	now := l.out.now()
	line := make(map[string]any, len(l.fields)+len(fields)+4)
	for _, set := range [][]Field{l.fields, fields} {
		for _, f := range set {
			key := f.Key
			if reserved(key) {
				key = "field." + key
			}
			line[key] = f.Value
		}
	}
	line[keyTime] = now.UTC().Format(time.RFC3339Nano)
	line[keyStampMS] = now.UnixMilli()
	line[keyLevel] = level.String()
	line[keyMessage] = msg

	data, err := json.Marshal(line)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"level":"ERROR","msg":"unencodable log line","error":%q}`, err.Error()))
	}
	data = append(data, '\n')

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.w.Write(data)
}

// Debug logs a debug-level message
func (l *JSONLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields...) }

// Info logs an info-level message
func (l *JSONLogger) Info(msg string, fields ...Field) { l.log(InfoLevel, msg, fields...) }

// Warn logs a warning-level message
func (l *JSONLogger) Warn(msg string, fields ...Field) { l.log(WarnLevel, msg, fields...) }

// Error logs an error-level message
func (l *JSONLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields...) }

// With returns a child logger carrying fields on every line
func (l *JSONLogger) With(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &JSONLogger{out: l.out, level: l.level, fields: merged}
}

// SetLevel changes the level for this logger and every logger sharing its root
func (l *JSONLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// GetLevel returns the current log level
func (l *JSONLogger) GetLevel() Level {
	return Level(l.level.Load())
}

var (
	defaultLogger Logger
	once          sync.Once
)

// DefaultLogger returns the process logger, writing to stderr at LOG_LEVEL (default INFO)
func DefaultLogger() Logger {
	once.Do(func() {
		defaultLogger = NewJSONLogger(os.Stderr, ParseLevel(os.Getenv("LOG_LEVEL")))
	})
	return defaultLogger
}

// OrDefault returns l, or the default logger when l is nil
func OrDefault(l Logger) Logger {
	if l == nil {
		return DefaultLogger()
	}
	return l
}
