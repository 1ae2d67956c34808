// Package runner loads a collect plugin, invokes it once and reports the
// response. It backs the `runner collect` command.
package runner

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/reglet-dev/reglet-collect/application/config"
	"github.com/reglet-dev/reglet-collect/domain/errors"
	"github.com/reglet-dev/reglet-collect/host"
	"github.com/reglet-dev/reglet-collect/wireformat"
)

// Report describes one collect call.
type Report struct {
	Plugin     string
	Encoded    string
	Text       string
	Descriptor wireformat.Descriptor
	Address    uint32
	MemorySize uint32
	Capability int32
}

// Service runs collect calls.
type Service struct {
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

// NewService creates a service. Guest stdio goes to stdout and stderr when
// the configuration inherits it.
func NewService(logger *slog.Logger, stdout, stderr io.Writer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, stdout: stdout, stderr: stderr}
}

// Collect loads the plugin named by cfg and collects one response for
// cfg.Capability. The response is always released before returning.
func (s *Service) Collect(ctx context.Context, cfg *config.RunnerConfig) (report *Report, err error) {
	wasmBytes, err := os.ReadFile(cfg.Plugin.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin: %w", err)
	}

	exec, err := host.NewExecutor(ctx, s.executorOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := exec.Close(ctx); closeErr != nil {
			s.logger.Warn("failed to close runtime", "error", closeErr)
		}
	}()

	name := strings.TrimSuffix(filepath.Base(cfg.Plugin.Path), filepath.Ext(cfg.Plugin.Path))
	plugin, err := exec.LoadPlugin(ctx, name, wasmBytes)
	if err != nil {
		return nil, err
	}

	lease, err := plugin.Invoke(ctx, cfg.Capability)
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := lease.Release(ctx); relErr != nil {
			report, err = nil, stdErrors.Join(err, relErr)
		}
	}()
	s.logger.Debug("descriptor address", "plugin", name, "addr", lease.Address())

	resp, err := lease.Response()
	if err != nil {
		s.logger.Error("collect failed", "plugin", name, "error", errors.ToErrorDetail(err))
		return nil, err
	}
	s.logger.Debug("descriptor", "plugin", name, "descriptor", resp.Descriptor.String())
	s.logger.Debug("encoded payload", "plugin", name, "encoded", string(resp.Encoded))

	text, err := wireformat.Text(wireformat.Base64, resp.Data)
	if err != nil {
		return nil, err
	}
	s.logger.Info("collected", "plugin", name, "capability", cfg.Capability, "bytes", len(resp.Data))

	return &Report{
		Plugin:     name,
		Capability: cfg.Capability,
		Address:    resp.Address,
		Descriptor: resp.Descriptor,
		Encoded:    string(resp.Encoded),
		Text:       text,
		MemorySize: plugin.MemorySize(),
	}, nil
}

func (s *Service) executorOptions(cfg *config.RunnerConfig) []host.Option {
	opts := []host.Option{
		host.WithLogger(s.logger),
		host.WithExports(host.ExportNames{
			Collect:    cfg.Plugin.Exports.Collect,
			Deallocate: cfg.Plugin.Exports.Deallocate,
			Memory:     cfg.Plugin.Exports.Memory,
			ABIVersion: cfg.Plugin.Exports.ABIVersion,
		}),
		host.WithCallTimeout(cfg.Runtime.CallTimeout),
		host.WithMemoryLimitPages(cfg.Runtime.MemoryLimitPages),
		host.WithCompilationCacheDir(cfg.Runtime.CacheDir),
	}
	if cfg.Runtime.InheritStdio {
		opts = append(opts, host.WithStdio(s.stdout, s.stderr))
	}
	return opts
}
