package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "time/tzdata"

	"github.com/kickspeed/kickspeed/internal/errors"
)

// traceLevel sits below slog's Debug (-4)
const traceLevel = slog.Level(-8)

var (
	globalMu sync.Mutex
	global   *CentralLogger
)

// SetGlobal installs cl as the process logger. Call it once after the
// configuration is loaded.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = cl
}

// Global returns the process logger. Before SetGlobal it is an info level
// console logger, so package loggers work during startup and in tests.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = &CentralLogger{
			handler:      newTextHandler(os.Stdout, slog.LevelInfo, time.Local),
			defaultLevel: slog.LevelInfo,
		}
	}
	return global
}

// CentralLogger routes module loggers to the console (text) and optionally to
// a log file (JSON). Each module gets its level from ModuleLevels, falling
// back to the parent module ("api.middleware" uses "api") and then to
// DefaultLevel.
type CentralLogger struct {
	handler      slog.Handler
	defaultLevel slog.Level
	moduleLevels map[string]slog.Level

	mu   sync.Mutex
	file *BufferedFileWriter
}

// NewCentralLogger builds the logger described by cfg. Nil output sections are
// filled with defaults.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, errors.NewStd("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		defaultLevel: parseLogLevel(cfg.DefaultLevel),
		moduleLevels: make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, level := range cfg.ModuleLevels {
		cl.moduleLevels[module] = parseLogLevel(level)
	}

	var handlers []slog.Handler
	if cfg.Console.Enabled {
		handlers = append(handlers, newTextHandler(os.Stdout, parseLogLevel(cfg.Console.Level), tz))
	}
	if cfg.FileOutput.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.FileOutput.Path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		w, err := NewBufferedFileWriter(cfg.FileOutput.Path, DefaultFlushInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		cl.file = w
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.FileOutput.Level),
		}))
	}

	switch len(handlers) {
	case 0:
		cl.handler = newTextHandler(os.Stdout, cl.defaultLevel, tz)
	case 1:
		cl.handler = handlers[0]
	default:
		cl.handler = newMultiWriterHandler(handlers...)
	}
	return cl, nil
}

// NewSlogLogger returns a text logger writing to w, for tests and tools
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if tz == nil {
		tz = time.UTC
	}
	lvl := parseLogLevel(string(level))
	return &moduleLogger{handler: newTextHandler(w, lvl, tz), level: lvl}
}

// Module returns the logger for a package or component
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	return &moduleLogger{
		central: cl,
		module:  name,
		handler: cl.handler,
		level:   cl.levelFor(name),
	}
}

func (cl *CentralLogger) levelFor(module string) slog.Level {
	for name := module; name != ""; {
		if level, ok := cl.moduleLevels[name]; ok {
			return level
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			break
		}
		name = name[:i]
	}
	return cl.defaultLevel
}

// Flush writes buffered file output
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

func loadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

func parseLogLevel(level string) slog.Level {
	switch LogLevel(strings.ToLower(level)) {
	case LogLevelTrace:
		return traceLevel
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
