package entities

import (
	"fmt"
	"log/slog"
	"sort"
)

// ErrorDetail is the structured form of a failed collect call, suitable for
// logs and machine-readable reports.
//
// Type is one of "guest", "timeout", "memory", "decode", "layout", "config",
// "validation" or "internal". Code narrows it down, for example
// "out_of_bounds" or the name of the export that trapped.
type ErrorDetail struct {
	// Details carries the addresses and sizes involved, when known.
	Details map[string]any `json:"details,omitempty"`

	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`

	// IsTimeout is set when the guest call was cut short by the call timeout.
	IsTimeout bool `json:"is_timeout,omitempty"`

	// IsNotFound is set when a required export or file was absent.
	IsNotFound bool `json:"is_not_found,omitempty"`
}

// Error implements the error interface.
func (e *ErrorDetail) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Type != "" && e.Type != "internal" {
		msg = fmt.Sprintf("%s: %s", e.Type, msg)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	return msg
}

// LogValue implements slog.LogValuer so a detail logs as a group.
func (e *ErrorDetail) LogValue() slog.Value {
	if e == nil {
		return slog.Value{}
	}
	attrs := []slog.Attr{
		slog.String("type", e.Type),
		slog.String("message", e.Message),
	}
	if e.Code != "" {
		attrs = append(attrs, slog.String("code", e.Code))
	}
	if e.IsTimeout {
		attrs = append(attrs, slog.Bool("timeout", true))
	}

	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, e.Details[k]))
	}
	return slog.GroupValue(attrs...)
}
