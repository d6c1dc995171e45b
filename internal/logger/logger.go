// Package logger is the module-aware structured logger of tf-analyzer, built
// on log/slog.
//
// A CentralLogger is created from the logging settings and installed with
// SetGlobal. Packages log through Global().Module(name):
//
//	log := logger.Global().Module("pipeline")
//	log.Info("entry processed", logger.String("entry", "A_3_2"), logger.Int("regions", 42))
//
// Modules nest with a dot ("segment.stardist"). A run id stored with
// WithTraceID is attached to every record of a WithContext logger.
//
// Console records are text without timestamps; file records are JSON.
package logger

import (
	"context"
	"time"
)

// LogLevel is a severity name as written in the settings
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

const (
	errorKey   = "error"
	moduleKey  = "module"
	traceIDKey = "trace_id"
)

// Field is one structured key/value pair of a record
type Field struct {
	Key   string
	Value any
}

// Logger is implemented by module loggers and by NewSlogLogger
type Logger interface {
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger

	Log(level LogLevel, msg string, fields ...Field)

	Flush() error
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Float64 values are written rounded to three decimals
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Duration values are written as strings rounded to the millisecond
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

func Any(key string, value any) Field { return Field{Key: key, Value: value} }

// Error always uses the "error" key. A nil error logs a nil value.
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey}
	}
	return Field{Key: errorKey, Value: err.Error()}
}
