package host

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/reglet-dev/reglet-collect/domain/errors"
	wazeroadapter "github.com/reglet-dev/reglet-collect/infrastructure/wazero"
	"github.com/reglet-dev/reglet-collect/wireformat"
)

// Executor manages the wazero runtime that plugins are loaded into.
type Executor struct {
	runtime          wazero.Runtime
	logger           *slog.Logger
	codec            wireformat.PayloadCodec
	stdout           io.Writer
	stderr           io.Writer
	exports          ExportNames
	cacheDir         string
	callTimeout      time.Duration
	memoryLimitPages uint32
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(ctx context.Context, opts ...Option) (*Executor, error) {
	e := &Executor{
		codec:   wireformat.Base64,
		exports: DefaultExportNames(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	rt, err := wazeroadapter.NewRuntime(ctx, wazeroadapter.NewAdapterConfig(
		wazeroadapter.WithLogger(e.logger),
		wazeroadapter.WithMemoryLimitPages(e.memoryLimitPages),
		wazeroadapter.WithCloseOnContextDone(e.callTimeout > 0),
		wazeroadapter.WithCompilationCacheDir(e.cacheDir),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}
	e.runtime = rt
	return e, nil
}

// Close releases resources held by the executor, including loaded plugins.
func (e *Executor) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// LoadPlugin compiles and instantiates a plugin module and verifies that it
// exports the collect ABI this host was built against.
func (e *Executor) LoadPlugin(ctx context.Context, name string, wasmBytes []byte) (*PluginInstance, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile module: %w", err)
	}
	if err := e.checkExports(compiled); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	cfg := wazero.NewModuleConfig().WithName(name).WithStartFunctions()
	if e.stdout != nil {
		cfg = cfg.WithStdout(e.stdout)
	}
	if e.stderr != nil {
		cfg = cfg.WithStderr(e.stderr)
	}

	ctx = wazeroadapter.WithCallInfo(ctx, wazeroadapter.CallInfo{Plugin: name})
	mod, err := e.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}

	p := &PluginInstance{
		module:      mod,
		name:        name,
		memory:      mod.ExportedMemory(e.exports.Memory),
		collect:     mod.ExportedFunction(e.exports.Collect),
		deallocate:  mod.ExportedFunction(e.exports.Deallocate),
		exports:     e.exports,
		codec:       e.codec,
		logger:      e.logger.With("plugin", name),
		callTimeout: e.callTimeout,
	}

	// Reactor modules (Go -buildmode=c-shared) initialise their runtime here.
	if initFn := mod.ExportedFunction("_initialize"); initFn != nil {
		if _, err := p.call(ctx, initFn, "_initialize"); err != nil {
			_ = mod.Close(ctx)
			return nil, err
		}
	}

	if err := p.checkABIVersion(ctx); err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}

	p.logger.Debug("plugin loaded", "layout_version", wireformat.LayoutVersion, "codec", e.codec.Name())
	return p, nil
}

// checkExports verifies names and signatures before the module runs any code.
func (e *Executor) checkExports(compiled wazero.CompiledModule) error {
	i32 := []api.ValueType{api.ValueTypeI32}
	want := []struct {
		name    string
		params  []api.ValueType
		results []api.ValueType
	}{
		{e.exports.Collect, i32, i32},
		{e.exports.Deallocate, i32, nil},
		{e.exports.ABIVersion, nil, i32},
	}

	funcs := compiled.ExportedFunctions()
	for _, w := range want {
		def, ok := funcs[w.name]
		if !ok {
			return &errors.MissingExportError{Name: w.name, Kind: "function"}
		}
		if !sameTypes(def.ParamTypes(), w.params) || !sameTypes(def.ResultTypes(), w.results) {
			return &errors.LayoutError{Reason: fmt.Sprintf("export %q has signature (%s) -> (%s), want (%s) -> (%s)",
				w.name, typeNames(def.ParamTypes()), typeNames(def.ResultTypes()), typeNames(w.params), typeNames(w.results))}
		}
	}

	if _, ok := compiled.ExportedMemories()[e.exports.Memory]; !ok {
		return &errors.MissingExportError{Name: e.exports.Memory, Kind: "memory"}
	}
	return nil
}

func sameTypes(got, want []api.ValueType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func typeNames(types []api.ValueType) string {
	s := ""
	for i, t := range types {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(t)
	}
	return s
}

// CallStats counts guest calls made through a PluginInstance.
type CallStats struct {
	Collects    int
	Deallocates int
}

// PluginInstance represents an instantiated plugin. Calls are serialised and
// at most one response Lease is outstanding at a time.
type PluginInstance struct {
	module      api.Module
	memory      api.Memory
	collect     api.Function
	deallocate  api.Function
	codec       wireformat.PayloadCodec
	logger      *slog.Logger
	active      *Lease
	name        string
	exports     ExportNames
	stats       CallStats
	callTimeout time.Duration
	mu          sync.Mutex
}

// Name returns the module name the plugin was loaded under.
func (p *PluginInstance) Name() string { return p.name }

// MemorySize returns the current size of the plugin's linear memory in bytes.
func (p *PluginInstance) MemorySize() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.memory.Size()
}

// Stats returns the number of collect and deallocate calls issued so far.
func (p *PluginInstance) Stats() CallStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Invoke calls the collect export and returns a Lease on the response.
// The lease must be released before the next Invoke.
func (p *PluginInstance) Invoke(ctx context.Context, capability int32) (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil {
		return nil, errors.ErrLeaseOutstanding
	}

	results, err := p.call(ctx, p.collect, p.exports.Collect, api.EncodeI32(capability))
	if err != nil {
		return nil, err
	}
	p.stats.Collects++

	addr := api.DecodeU32(results[0])
	p.logger.Debug("collect returned", "capability", capability, "descriptor_addr", addr)
	if addr == 0 {
		return nil, &errors.NullResultError{Export: p.exports.Collect, Capability: capability}
	}

	p.active = &Lease{plugin: p, addr: addr}
	return p.active, nil
}

// Collect invokes the plugin, decodes its response as text and releases it.
// The response is released even when reading fails.
func (p *PluginInstance) Collect(ctx context.Context, capability int32) (text string, err error) {
	lease, err := p.Invoke(ctx, capability)
	if err != nil {
		return "", err
	}
	defer func() {
		if relErr := lease.Release(ctx); relErr != nil {
			text, err = "", stdErrors.Join(err, relErr)
		}
	}()
	return lease.Text()
}

// Close closes the plugin module.
func (p *PluginInstance) Close(ctx context.Context) error {
	return p.module.Close(ctx)
}

func (p *PluginInstance) checkABIVersion(ctx context.Context) error {
	fn := p.module.ExportedFunction(p.exports.ABIVersion)
	results, err := p.call(ctx, fn, p.exports.ABIVersion)
	if err != nil {
		return err
	}
	if v := api.DecodeU32(results[0]); v != wireformat.LayoutVersion {
		return &errors.ABIVersionError{Guest: v, Host: wireformat.LayoutVersion}
	}
	return nil
}

// call invokes a guest export, applying the call timeout.
func (p *PluginInstance) call(ctx context.Context, fn api.Function, export string, params ...uint64) ([]uint64, error) {
	ctx = wazeroadapter.WithCallInfo(ctx, wazeroadapter.CallInfo{Plugin: p.name, Export: export})
	if p.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		var exitErr *sys.ExitError
		timeout := stdErrors.As(err, &exitErr) && exitErr.ExitCode() == sys.ExitCodeDeadlineExceeded
		return nil, &errors.GuestCallError{Export: export, Err: err, Timeout: timeout}
	}
	return results, nil
}
