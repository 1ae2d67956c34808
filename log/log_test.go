package log

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/reglet-collect/wireformat"
)

func TestToLogAttr(t *testing.T) {
	tests := []struct {
		name     string
		attr     slog.Attr
		wantType string
		wantVal  string
	}{
		{
			name:     "string",
			attr:     slog.String("key", "value"),
			wantType: "string",
			wantVal:  "value",
		},
		{
			name:     "int64",
			attr:     slog.Int64("key", 123),
			wantType: "int64",
			wantVal:  "123",
		},
		{
			name:     "bool",
			attr:     slog.Bool("key", true),
			wantType: "bool",
			wantVal:  "true",
		},
		{
			name:     "float64",
			attr:     slog.Float64("key", 1.23),
			wantType: "float64",
			wantVal:  "1.23",
		},
		{
			name:     "time",
			attr:     slog.Time("key", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
			wantType: "time",
			wantVal:  "2024-01-01T00:00:00Z",
		},
		{
			name:     "duration",
			attr:     slog.Duration("key", 1*time.Hour),
			wantType: "duration",
			wantVal:  "1h0m0s",
		},
		{
			name:     "error",
			attr:     slog.Any("key", errors.New("test error")),
			wantType: "error",
			wantVal:  "test error",
		},
		{
			name:     "nil",
			attr:     slog.Any("key", nil),
			wantType: "any",
			wantVal:  "<nil>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := toLogAttr(tt.attr)
			assert.Equal(t, tt.attr.Key, wire.Key)
			assert.Equal(t, tt.wantType, wire.Type)
			assert.Equal(t, tt.wantVal, wire.Value)
		})
	}
}

func TestToLogAttr_JSON(t *testing.T) {
	// Test structured object that should be serialized as JSON
	type MyStruct struct {
		Field string `json:"field"`
	}
	obj := MyStruct{Field: "data"}
	attr := slog.Any("key", obj)

	wire := toLogAttr(attr)
	assert.Equal(t, "key", wire.Key)
	assert.Equal(t, "json", wire.Type)

	var decoded MyStruct
	err := json.Unmarshal([]byte(wire.Value), &decoded)
	require.NoError(t, err)
	assert.Equal(t, obj, decoded)
}

func TestToLogAttr_LogValuer(t *testing.T) {
	// Test types that implement LogValuer
	attr := slog.Any("key", logValuer{val: "resolved"})
	wire := toLogAttr(attr)

	assert.Equal(t, "key", wire.Key)
	assert.Equal(t, "string", wire.Type)
	assert.Equal(t, "resolved", wire.Value)
}

type logValuer struct {
	val string
}

func (l logValuer) LogValue() slog.Value {
	return slog.StringValue(l.val)
}

func TestNewHandler_Defaults(t *testing.T) {
	h := NewHandler()
	assert.NotNil(t, h)
	// Check default level via Enabled
	assert.True(t, h.Enabled(context.TODO(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.TODO(), slog.LevelDebug))
}

func TestNewHandler_Options(t *testing.T) {
	h := NewHandler(
		WithLevel(slog.LevelDebug),
		WithSource(true),
	)
	assert.NotNil(t, h)
	assert.True(t, h.Enabled(context.TODO(), slog.LevelDebug))
	assert.True(t, h.opts.addSource)
}

// capture returns a logger whose records are decoded into the returned slice.
func capture(t *testing.T, opts ...HandlerOption) (*slog.Logger, *[]wireformat.LogMessage) {
	t.Helper()
	var got []wireformat.LogMessage
	sink := WithSink(func(payload []byte) {
		var msg wireformat.LogMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		got = append(got, msg)
	})
	return slog.New(NewHandler(append(opts, sink)...)), &got
}

func TestHandler_Handle(t *testing.T) {
	logger, got := capture(t)

	logger.Info("collect done", "capability", 8080, "ok", true)
	logger.Debug("filtered")

	require.Len(t, *got, 1)
	msg := (*got)[0]
	assert.Equal(t, "INFO", msg.Level)
	assert.Equal(t, "collect done", msg.Message)
	assert.False(t, msg.Timestamp.IsZero())
	assert.Equal(t, []wireformat.LogAttr{
		{Key: "capability", Type: "int64", Value: "8080"},
		{Key: "ok", Type: "bool", Value: "true"},
	}, msg.Attrs)
}

func TestHandler_WithAttrsAndGroup(t *testing.T) {
	logger, got := capture(t, WithLevel(slog.LevelDebug))

	scoped := logger.With("plugin", "ports").WithGroup("heap")
	scoped.Debug("alloc", "size", 96, slog.Group("block", "addr", 1032))
	logger.Debug("unscoped")

	require.Len(t, *got, 2)
	assert.Equal(t, []wireformat.LogAttr{
		{Key: "plugin", Type: "string", Value: "ports"},
		{Key: "heap.size", Type: "int64", Value: "96"},
		{Key: "heap.block.addr", Type: "int64", Value: "1032"},
	}, (*got)[0].Attrs)
	assert.Empty(t, (*got)[1].Attrs, "attributes must not leak into the parent logger")
}

func TestHandler_Source(t *testing.T) {
	logger, got := capture(t, WithSource(true))

	logger.Warn("with source")

	require.Len(t, *got, 1)
	require.NotEmpty(t, (*got)[0].Attrs)
	src := (*got)[0].Attrs[0]
	assert.Equal(t, slog.SourceKey, src.Key)
	assert.Contains(t, src.Value, "log_test.go:")
}
