package wazero

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// CallInfo identifies the guest call in progress. The host module attaches
// it to every log record a plugin forwards during that call.
type CallInfo struct {
	Plugin string
	Export string
}

type callInfoKey struct{}

// WithCallInfo returns a context carrying info.
func WithCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, info)
}

// CallInfoFromContext returns the CallInfo stored in ctx, if any.
func CallInfoFromContext(ctx context.Context) (CallInfo, bool) {
	info, ok := ctx.Value(callInfoKey{}).(CallInfo)
	return info, ok
}

// callInfo resolves the call for a host function invocation. Without one in
// ctx the plugin is named after the calling module.
func callInfo(ctx context.Context, mod api.Module) CallInfo {
	info, _ := CallInfoFromContext(ctx)
	if info.Plugin == "" {
		info.Plugin = mod.Name()
	}
	return info
}

// attrs returns the logger arguments describing the call.
func (c CallInfo) attrs() []any {
	if c.Export == "" {
		return []any{"plugin", c.Plugin}
	}
	return []any{"plugin", c.Plugin, "export", c.Export}
}
