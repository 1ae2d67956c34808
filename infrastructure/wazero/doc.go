// Package wazero builds the wazero runtime that hosts collect plugins.
//
// It handles:
//
//   - Runtime configuration (memory limit, compilation cache, cancellation)
//   - WASI preview1, which Go wasip1 plugins import
//   - The "collect_host" module with the log_message(i64) import, which
//     reads a packed pointer+length JSON log record from guest memory
//
// # Basic Usage
//
//	cfg := wazero.NewAdapterConfig(
//	    wazero.WithMemoryLimitPages(256),
//	    wazero.WithLogger(logger),
//	)
//	rt, err := wazero.NewRuntime(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer rt.Close(ctx)
package wazero
