package entities

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorDetail_Error(t *testing.T) {
	tests := []struct {
		name   string
		detail *ErrorDetail
		want   string
	}{
		{"nil", nil, ""},
		{"internal omits type", &ErrorDetail{Type: "internal", Message: "boom"}, "boom"},
		{"typed with code", &ErrorDetail{Type: "memory", Code: "out_of_bounds", Message: "span outside memory"}, "memory: span outside memory [out_of_bounds]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.detail.Error())
		})
	}
}

func TestErrorDetail_LogValue(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger.Error("collect failed", "error", &ErrorDetail{
		Type:      "timeout",
		Code:      "collect",
		Message:   "deadline exceeded",
		IsTimeout: true,
		Details:   map[string]any{"memory_size": 65536, "address": 1024},
	})

	out := buf.String()
	assert.Contains(t, out, "error.type=timeout")
	assert.Contains(t, out, "error.code=collect")
	assert.Contains(t, out, "error.timeout=true")
	assert.Contains(t, out, "error.address=1024 error.memory_size=65536")
}
