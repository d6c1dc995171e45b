package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "time/tzdata"
)

// traceLevelValue sits below slog.LevelDebug (-4)
const traceLevelValue = slog.Level(-8)

var (
	global   *CentralLogger
	globalMu sync.Mutex
)

// SetGlobal installs cl as the process logger. Call it once after the
// settings are loaded.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	global = cl
	globalMu.Unlock()
}

// Global returns the process logger, falling back to an info level console
// logger until SetGlobal is called.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global == nil {
		global = &CentralLogger{
			config:   &LoggingConfig{DefaultLevel: string(LogLevelInfo)},
			timezone: time.Local,
			levels:   map[string]slog.Level{},
			handler:  newTextHandler(os.Stderr, slog.LevelInfo, time.Local),
		}
	}
	return global
}

type traceIDContextKey struct{}

// WithTraceID returns a context whose loggers tag every record with id
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDContextKey{}, id)
}

func traceIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDContextKey{}).(string)
	return id
}

// CentralLogger owns the log outputs and hands out module loggers. Console
// records are plain text on stderr so tables printed on stdout stay clean;
// the optional log file receives JSON records.
type CentralLogger struct {
	config   *LoggingConfig
	timezone *time.Location
	levels   map[string]slog.Level
	handler  slog.Handler

	mu   sync.Mutex
	file *BufferedFileWriter
}

// NewCentralLogger builds the outputs described by cfg
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz := time.Local
	if cfg.Timezone != "" && cfg.Timezone != "Local" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %s: %w", cfg.Timezone, err)
		}
		tz = loc
	}

	cl := &CentralLogger{
		config:   cfg,
		timezone: tz,
		levels:   make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, level := range cfg.ModuleLevels {
		cl.levels[module] = parseLogLevel(level)
	}

	var handlers []slog.Handler
	if cfg.Console.Enabled {
		handlers = append(handlers, newTextHandler(os.Stderr, parseLogLevel(cfg.Console.Level), tz))
	}
	if cfg.FileOutput.Enabled {
		if dir := filepath.Dir(cfg.FileOutput.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
			}
		}
		w, err := NewBufferedFileWriter(cfg.FileOutput.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		cl.file = w
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       parseLogLevel(cfg.FileOutput.Level),
			ReplaceAttr: replaceLevelNames,
		}))
	}

	switch len(handlers) {
	case 0:
		cl.handler = newTextHandler(os.Stderr, parseLogLevel(cfg.DefaultLevel), tz)
	case 1:
		cl.handler = handlers[0]
	default:
		cl.handler = newMultiWriterHandler(handlers...)
	}
	return cl, nil
}

// Module returns a logger for one package. Its level is the module override
// when configured, else the default level.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	level, ok := cl.levels[name]
	if !ok {
		level = parseLogLevel(cl.config.DefaultLevel)
	}
	return &moduleLogger{
		module:   name,
		logger:   slog.New(cl.handler),
		level:    level,
		timezone: cl.timezone,
	}
}

// Flush pushes buffered file records to the OS
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.file == nil {
		return nil
	}
	return cl.file.Flush()
}

// Close flushes and closes the log file
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.file == nil {
		return nil
	}
	err := cl.file.Close()
	cl.file = nil
	return err
}

func parseLogLevel(level string) slog.Level {
	return parseSlogLevel(LogLevel(level))
}

func parseSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelTrace:
		return traceLevelValue
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
