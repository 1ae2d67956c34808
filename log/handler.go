// Package log provides a slog handler for plugins: records are encoded as
// wireformat.LogMessage JSON and handed to the host's log_message import.
package log

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strconv"

	"github.com/reglet-dev/reglet-collect/wireformat"
)

// Handler implements slog.Handler by forwarding records to the host.
type Handler struct {
	opts   handlerConfig
	attrs  []wireformat.LogAttr
	prefix string
}

// HandlerOption configures the Handler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	send      func(payload []byte)
	level     slog.Leveler
	addSource bool
}

// defaultHandlerConfig returns the default configuration.
func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		level: slog.LevelInfo,
		send:  sendToHost,
	}
}

// WithLevel sets the minimum log level to report.
// Records below this level will be filtered on the guest side.
func WithLevel(level slog.Leveler) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource enables reporting of source location (file/line).
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// WithSink replaces the host transport. Each call receives one encoded record.
func WithSink(send func(payload []byte)) HandlerOption {
	return func(c *handlerConfig) {
		c.send = send
	}
}

// NewHandler creates a new Handler with the given options.
func NewHandler(opts ...HandlerOption) *Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Handler{opts: cfg}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.level.Level()
}

// Handle encodes record and sends it to the host.
func (h *Handler) Handle(_ context.Context, record slog.Record) error {
	payload, err := json.Marshal(h.message(record))
	if err != nil {
		return fmt.Errorf("log: encode record: %w", err)
	}
	h.opts.send(payload)
	return nil
}

// WithAttrs returns a new Handler that includes the given attributes.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.attrs = slices.Clip(h.attrs)
	for _, attr := range attrs {
		next.attrs = appendAttr(next.attrs, h.prefix, attr)
	}
	return &next
}

// WithGroup returns a new Handler whose later attributes are qualified by name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *Handler) message(record slog.Record) wireformat.LogMessage {
	msg := wireformat.LogMessage{
		Level:     record.Level.String(),
		Message:   record.Message,
		Timestamp: record.Time,
		Attrs:     slices.Clip(h.attrs),
	}
	if h.opts.addSource && record.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
		msg.Attrs = append(msg.Attrs, wireformat.LogAttr{
			Key:   slog.SourceKey,
			Type:  "string",
			Value: frame.File + ":" + strconv.Itoa(frame.Line),
		})
	}
	record.Attrs(func(attr slog.Attr) bool {
		msg.Attrs = appendAttr(msg.Attrs, h.prefix, attr)
		return true
	})
	return msg
}
