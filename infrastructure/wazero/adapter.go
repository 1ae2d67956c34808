package wazero

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/reglet-dev/reglet-collect/internal/abi"
	"github.com/reglet-dev/reglet-collect/wireformat"
)

const (
	// DefaultModuleName is the import module name of the host functions.
	DefaultModuleName = "collect_host"

	// DefaultMaxRequestSize limits a single log message read from guest memory.
	DefaultMaxRequestSize = 64 * 1024

	// LogMessageFunc is the name of the log forwarding import.
	LogMessageFunc = "log_message"
)

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	// Logger receives guest log records. Defaults to slog.Default().
	Logger *slog.Logger

	// ModuleName is the host module name (default: "collect_host").
	ModuleName string

	// CacheDir enables the on-disk compilation cache when set.
	CacheDir string

	// MaxRequestSize limits the size of log messages read from guest memory.
	MaxRequestSize uint32

	// MemoryLimitPages caps guest linear memory (64 KiB pages). Zero keeps wazero's default.
	MemoryLimitPages uint32

	// CloseOnContextDone lets a cancelled context interrupt a running guest call.
	CloseOnContextDone bool
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name (default: "collect_host").
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

// WithMaxRequestSize sets the maximum log message size read from guest memory.
func WithMaxRequestSize(size uint32) AdapterOption {
	return func(c *AdapterConfig) {
		c.MaxRequestSize = size
	}
}

// WithMemoryLimitPages caps the linear memory of every module in the runtime.
func WithMemoryLimitPages(pages uint32) AdapterOption {
	return func(c *AdapterConfig) {
		c.MemoryLimitPages = pages
	}
}

// WithCloseOnContextDone makes guest calls observe context cancellation.
func WithCloseOnContextDone(enabled bool) AdapterOption {
	return func(c *AdapterConfig) {
		c.CloseOnContextDone = enabled
	}
}

// WithCompilationCacheDir stores compiled modules under dir between runs.
func WithCompilationCacheDir(dir string) AdapterOption {
	return func(c *AdapterConfig) {
		c.CacheDir = dir
	}
}

// WithLogger sets the logger that receives forwarded guest logs.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(c *AdapterConfig) {
		c.Logger = logger
	}
}

// defaultAdapterConfig returns the default adapter configuration.
func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName:     DefaultModuleName,
		MaxRequestSize: DefaultMaxRequestSize,
	}
}

// NewAdapterConfig applies opts to the default configuration.
func NewAdapterConfig(opts ...AdapterOption) AdapterConfig {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// NewRuntime creates a wazero runtime with WASI preview1 and the host module
// instantiated, ready for plugin modules.
func NewRuntime(ctx context.Context, cfg AdapterConfig) (wazero.Runtime, error) {
	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(cfg.CloseOnContextDone)
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.CacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open compilation cache: %w", err)
		}
		rc = rc.WithCompilationCache(cache)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rc)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}
	if err := RegisterHostModule(ctx, rt, cfg); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host module: %w", err)
	}
	return rt, nil
}

// RegisterHostModule instantiates the host module exporting log_message(i64).
// The argument is a packed pointer and length of a JSON wireformat.LogMessage.
func RegisterHostModule(ctx context.Context, runtime wazero.Runtime, cfg AdapterConfig) error {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	_, err := runtime.NewHostModuleBuilder(cfg.ModuleName).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			handleLogMessage(ctx, mod, stack[0], cfg)
		}), []api.ValueType{api.ValueTypeI64}, []api.ValueType{}).
		Export(LogMessageFunc).
		Instantiate(ctx)
	return err
}

// handleLogMessage reads a log record from guest memory and re-emits it on the host logger.
func handleLogMessage(ctx context.Context, mod api.Module, packed uint64, cfg AdapterConfig) {
	call := callInfo(ctx, mod)

	ptr, length, ok := abi.UnpackPtrLen(packed)
	if !ok || length == 0 {
		cfg.Logger.WarnContext(ctx, "wazero: empty or null log message", call.attrs()...)
		return
	}
	if length > cfg.MaxRequestSize {
		cfg.Logger.WarnContext(ctx, "wazero: log message too large",
			append(call.attrs(), "size", length, "max", cfg.MaxRequestSize)...)
		return
	}

	payload, ok := mod.Memory().Read(ptr, length)
	if !ok {
		cfg.Logger.ErrorContext(ctx, "wazero: failed to read log message from guest memory", call.attrs()...)
		return
	}

	var msg wireformat.LogMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		cfg.Logger.InfoContext(ctx, "Plugin Log (raw)", append(call.attrs(), "payload", string(payload))...)
		return
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(msg.Level)); err != nil {
		level = slog.LevelInfo
	}

	args := call.attrs()
	for _, attr := range msg.Attrs {
		args = append(args, attr.Key, attr.Value)
	}
	cfg.Logger.Log(ctx, level, msg.Message, args...)
}
