// Package host loads collect plugins and reads their responses.
//
// A plugin's collect export can only return one i32, so it returns the
// address of a fixed 8-byte descriptor (offset, length) that points at an
// encoded payload in the plugin's linear memory. This package resolves both
// addresses against the memory size observed at read time, decodes the
// payload, and calls the plugin's deallocate export exactly once per
// response through the Lease handle.
//
//	exec, err := host.NewExecutor(ctx, host.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer exec.Close(ctx)
//
//	plugin, err := exec.LoadPlugin(ctx, "collector", wasmBytes)
//	if err != nil {
//	    return err
//	}
//	text, err := plugin.Collect(ctx, 8080)
package host
