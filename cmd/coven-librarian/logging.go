// ABOUTME: Logger setup for coven-librarian
// ABOUTME: JSON handler for machines, colorized text handler for terminals

package main

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/coven-librarian/internal/config"
)

func setupLogger(cfg config.LoggingConfig, out io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = &colorHandler{
			mu:    &sync.Mutex{},
			out:   out,
			level: level,
		}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// colorHandler writes one colorized line per record:
//
//	15:04:05 INF response delivered component=dispatch round=1
//
// Attributes bound with WithAttrs are rendered once, when bound. Derived
// handlers share the writer lock.
type colorHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	level slog.Level
	// bound holds the rendered WithAttrs attributes, each with a leading space.
	bound string
	// group is the dotted WithGroup path, with a trailing dot when set.
	group string
}

var levelLabels = []struct {
	min   slog.Level
	label string
	color *color.Color
}{
	{slog.LevelError, "ERR", color.New(color.FgRed, color.Bold)},
	{slog.LevelWarn, "WRN", color.New(color.FgYellow)},
	{slog.LevelInfo, "INF", color.New(color.FgCyan)},
}

func levelLabel(l slog.Level) string {
	for _, ll := range levelLabels {
		if l >= ll.min {
			return ll.color.Sprint(ll.label)
		}
	}
	return color.MagentaString("DBG")
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var line strings.Builder
	line.WriteString(color.HiBlackString(r.Time.Format("15:04:05")))
	line.WriteByte(' ')
	line.WriteString(levelLabel(r.Level))
	line.WriteByte(' ')
	line.WriteString(r.Message)
	line.WriteString(h.bound)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&line, h.group, a)
		return true
	})
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line.String())
	return err
}

// appendAttr renders a as " prefix.key=value", flattening group values.
func appendAttr(line *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(line, inner, ga)
		}
		return
	}

	line.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
	v := a.Value.String()
	if strings.ContainsAny(v, " \t\n\"") {
		v = strconv.Quote(v)
	}
	line.WriteString(v)
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var rendered strings.Builder
	rendered.WriteString(h.bound)
	for _, a := range attrs {
		appendAttr(&rendered, h.group, a)
	}
	derived := *h
	derived.bound = rendered.String()
	return &derived
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	derived := *h
	derived.group = h.group + name + "."
	return &derived
}
