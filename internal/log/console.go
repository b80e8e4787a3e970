package log

import (
	"context"
	"log/slog"
	"strings"
)

// ConsoleFunc receives one formatted line per log record.
type ConsoleFunc func(level slog.Level, line string)

// ConsoleHandler passes records to another handler and also renders them
// as short "msg key=value" lines for an operator console.
type ConsoleHandler struct {
	next    slog.Handler
	console ConsoleFunc
	prefix  string
	group   string
}

// NewConsoleHandler wraps next.
func NewConsoleHandler(next slog.Handler, console ConsoleFunc) *ConsoleHandler {
	return &ConsoleHandler{next: next, console: console}
}

// Enabled defers to the wrapped handler.
func (h *ConsoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle forwards the record and emits the console line.
func (h *ConsoleHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.next.Handle(ctx, r)

	var b strings.Builder
	b.WriteString(r.Message)
	b.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	h.console(r.Level, b.String())

	return err
}

// WithAttrs returns a handler that includes attrs on every line.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.prefix)
	for _, a := range attrs {
		writeAttr(&b, h.group, a)
	}
	return &ConsoleHandler{
		next:    h.next.WithAttrs(attrs),
		console: h.console,
		prefix:  b.String(),
		group:   h.group,
	}
}

// WithGroup returns a handler that qualifies later keys with name.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &ConsoleHandler{
		next:    h.next.WithGroup(name),
		console: h.console,
		prefix:  h.prefix,
		group:   group,
	}
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := a.Key
		if group != "" && sub != "" {
			sub = group + "." + sub
		} else if sub == "" {
			sub = group
		}
		for _, ga := range a.Value.Group() {
			writeAttr(b, sub, ga)
		}
		return
	}

	b.WriteByte(' ')
	if group != "" {
		b.WriteString(group)
		b.WriteByte('.')
	}
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(a.Value.String())
}
