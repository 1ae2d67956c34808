package host

import (
	"io"
	"log/slog"
	"time"

	"github.com/reglet-dev/reglet-collect/wireformat"
)

// ExportNames are the guest exports the host binds to.
type ExportNames struct {
	Collect    string
	Deallocate string
	Memory     string
	ABIVersion string
}

// DefaultExportNames returns the export names used by the guest package.
func DefaultExportNames() ExportNames {
	return ExportNames{
		Collect:    "collect",
		Deallocate: "deallocate",
		Memory:     "memory",
		ABIVersion: "abi_version",
	}
}

// Option defines a functional option for configuring the Executor.
type Option func(*Executor)

// WithLogger sets the logger for host diagnostics and forwarded guest logs.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithCodec sets the payload codec. It must match the codec the guest encodes with.
func WithCodec(codec wireformat.PayloadCodec) Option {
	return func(e *Executor) {
		e.codec = codec
	}
}

// WithExports overrides the export names. Empty fields keep their defaults.
func WithExports(names ExportNames) Option {
	return func(e *Executor) {
		if names.Collect != "" {
			e.exports.Collect = names.Collect
		}
		if names.Deallocate != "" {
			e.exports.Deallocate = names.Deallocate
		}
		if names.Memory != "" {
			e.exports.Memory = names.Memory
		}
		if names.ABIVersion != "" {
			e.exports.ABIVersion = names.ABIVersion
		}
	}
}

// WithStdio connects the guest's stdout and stderr. By default guest output is discarded.
func WithStdio(stdout, stderr io.Writer) Option {
	return func(e *Executor) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

// WithCallTimeout bounds each guest call. Zero, the default, waits indefinitely.
// A timed out call closes the plugin instance.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.callTimeout = d
	}
}

// WithMemoryLimitPages caps guest linear memory in 64 KiB pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(e *Executor) {
		e.memoryLimitPages = pages
	}
}

// WithCompilationCacheDir keeps compiled plugins on disk between runs.
func WithCompilationCacheDir(dir string) Option {
	return func(e *Executor) {
		e.cacheDir = dir
	}
}
