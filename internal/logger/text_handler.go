package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// textHandler renders records as "LEVEL [module] message key=value ..." lines.
type textHandler struct {
	mu       *sync.Mutex
	w        io.Writer
	level    slog.Leveler
	timezone *time.Location
	attrs    []slog.Attr
}

func newTextHandler(w io.Writer, level slog.Leveler, tz *time.Location) *textHandler {
	if tz == nil {
		tz = time.Local
	}
	return &textHandler{mu: &sync.Mutex{}, w: w, level: level, timezone: tz}
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

//nolint:gocritic // slog.Handler interface requires record by value
func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString(padLevel(levelName(r.Level)))

	module := ""
	var rest []slog.Attr
	collect := func(a slog.Attr) bool {
		if a.Key == moduleKey {
			module = a.Value.String()
			return true
		}
		rest = append(rest, a)
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	if module != "" {
		buf.WriteString(" [")
		buf.WriteString(module)
		buf.WriteByte(']')
	}
	buf.WriteByte(' ')
	buf.WriteString(r.Message)

	for _, a := range rest {
		buf.WriteByte(' ')
		buf.WriteString(a.Key)
		buf.WriteByte('=')
		buf.WriteString(h.formatValue(a.Value))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup is not used by the module loggers; groups are flattened.
func (h *textHandler) WithGroup(string) slog.Handler {
	return h
}

func (h *textHandler) formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindTime:
		return v.Time().In(h.timezone).Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Any())
	}
}

func levelName(l slog.Level) string {
	if l <= traceLevel {
		return "TRACE"
	}
	return l.String()
}

// padLevel left-aligns level names to the width of "TRACE"
func padLevel(s string) string {
	const width = 5
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
