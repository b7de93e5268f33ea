package logger

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"time"
)

// moduleLogger is the Logger handed out by CentralLogger.Module.
// Error records bypass the module level.
type moduleLogger struct {
	central *CentralLogger // nil for NewSlogLogger
	module  string
	handler slog.Handler
	level   slog.Level
	attrs   []slog.Attr
}

// Module returns a sub-module logger such as "pipeline.media"
func (m *moduleLogger) Module(name string) Logger {
	if m == nil {
		return nil
	}
	child := *m
	if m.module != "" {
		child.module = m.module + "." + name
	} else {
		child.module = name
	}
	if m.central != nil {
		child.level = m.central.levelFor(child.module)
	}
	child.attrs = slices.Clone(m.attrs)
	return &child
}

// With returns a logger that adds fields to every record
func (m *moduleLogger) With(fields ...Field) Logger {
	if m == nil {
		return nil
	}
	child := *m
	child.attrs = slices.Grow(slices.Clone(m.attrs), len(fields))
	for _, f := range fields {
		child.attrs = append(child.attrs, fieldToAttr(f))
	}
	return &child
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.log(traceLevel, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.log(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.log(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.log(slog.LevelWarn, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.log(slog.LevelError, msg, fields) }

// Flush flushes the owning CentralLogger's file output
func (m *moduleLogger) Flush() error {
	if m == nil || m.central == nil {
		return nil
	}
	return m.central.Flush()
}

func (m *moduleLogger) log(level slog.Level, msg string, fields []Field) {
	if m == nil || (level < m.level && level < slog.LevelError) {
		return
	}
	ctx := context.Background()
	if !m.handler.Enabled(ctx, level) {
		return
	}

	r := slog.NewRecord(time.Now(), level, msg, 0)
	if m.module != "" {
		r.AddAttrs(slog.String(moduleKey, m.module))
	}
	r.AddAttrs(m.attrs...)
	for _, f := range fields {
		r.AddAttrs(fieldToAttr(f))
	}
	_ = m.handler.Handle(ctx, r)
}

// fieldToAttr maps a Field to a slog attribute. Floats keep three decimals
// and durations are rounded to milliseconds.
func fieldToAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case uint64:
		return slog.Uint64(f.Key, v)
	case float64:
		return slog.Float64(f.Key, math.Round(v*1000)/1000)
	case bool:
		return slog.Bool(f.Key, v)
	case time.Time:
		return slog.Time(f.Key, v)
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	default:
		return slog.Any(f.Key, v)
	}
}
