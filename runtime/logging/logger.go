// Package logging provides the log/slog handler used by the packgen tool.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"time"
)

type Options struct {
	Component string // e.g. "generate"
	Pass      string // id of the generation pass, if any

	Attrs []slog.Attr
}

// LogHandler writes JSON records with a DateTime timestamp, the source
// location and the attributes of Options.
type LogHandler struct {
	opts Options
	*slog.JSONHandler
}

// NewLogHandler returns a handler writing to w records at or above level.
func NewLogHandler(w io.Writer, opts Options, level slog.Leveler) *LogHandler {
	h := &LogHandler{
		opts: Options{Component: opts.Component, Pass: opts.Pass, Attrs: slices.Clone(opts.Attrs)},
		JSONHandler: slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if len(groups) == 0 && a.Key == slog.TimeKey {
					a.Value = slog.StringValue(a.Value.Time().Format(time.DateTime))
				}
				return a
			},
		}),
	}

	if opts.Component != "" {
		h.opts.Attrs = append(h.opts.Attrs, slog.String("component", opts.Component))
	}
	if opts.Pass != "" {
		h.opts.Attrs = append(h.opts.Attrs, slog.String("pass", opts.Pass))
	}

	return h
}

var _ slog.Handler = (*LogHandler)(nil)

func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.JSONHandler.Enabled(ctx, level)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.opts.Attrs = append(slices.Clip(h.opts.Attrs), attrs...)
	return &c
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	return h
}

func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	r = r.Clone()
	if r.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := fs.Next()
		r.AddAttrs(slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", f.File, f.Line)))
	}
	if len(h.opts.Attrs) > 0 {
		r.AddAttrs(h.opts.Attrs...)
	}
	return h.JSONHandler.Handle(ctx, r)
}

// ParseLevel parses a level name such as "debug" or "WARN".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
