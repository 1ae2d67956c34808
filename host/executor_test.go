package host

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/reglet-collect/domain/errors"
	"github.com/reglet-dev/reglet-collect/guest"
	"github.com/reglet-dev/reglet-collect/internal/testutil"
	"github.com/reglet-dev/reglet-collect/internal/wasmtest"
	"github.com/reglet-dev/reglet-collect/wireformat"
)

func newTestExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	ctx := context.Background()
	e, err := NewExecutor(ctx, append([]Option{WithLogger(testutil.DiscardLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func load(t *testing.T, p wasmtest.Plugin, opts ...Option) *PluginInstance {
	t.Helper()
	plugin, err := newTestExecutor(t, opts...).LoadPlugin(context.Background(), "collector", p.Encode())
	require.NoError(t, err)
	return plugin
}

// portReportPlugin returns a fixture whose collect hands out a response
// built by the real guest collector for capability 8080.
func portReportPlugin() wasmtest.Plugin {
	image, addr := wasmtest.Respond(guest.PortReport, 8080, 4096)
	return wasmtest.Plugin{Image: image, Result: addr}
}

func globalU32(p *PluginInstance, name string) uint32 {
	return api.DecodeU32(p.module.ExportedGlobal(name).Get())
}

func TestNewExecutor(t *testing.T) {
	ctx := context.Background()
	e, err := NewExecutor(ctx)
	assert.NoError(t, err)
	assert.NotNil(t, e)
	if e != nil {
		err := e.Close(ctx)
		assert.NoError(t, err)
	}
}

func TestCollect_PortReport(t *testing.T) {
	fixture := portReportPlugin()
	plugin := load(t, fixture)

	text, err := plugin.Collect(context.Background(), 8080)
	require.NoError(t, err)
	assert.Equal(t, portReport8080, text)

	assert.Equal(t, uint32(1), globalU32(plugin, wasmtest.ExportDeallocations), "deallocate must run exactly once")
	assert.Equal(t, fixture.Result, globalU32(plugin, wasmtest.ExportLastDeallocated))
	assert.Equal(t, CallStats{Collects: 1, Deallocates: 1}, plugin.Stats())
}

func TestCollect_Repeated(t *testing.T) {
	plugin := load(t, portReportPlugin())

	for i := 0; i < 3; i++ {
		_, err := plugin.Collect(context.Background(), 8080)
		require.NoError(t, err)
	}
	assert.Equal(t, uint32(3), globalU32(plugin, wasmtest.ExportDeallocations))
}

func TestCollect_NullResult(t *testing.T) {
	plugin := load(t, wasmtest.Plugin{Result: 0})

	_, err := plugin.Collect(context.Background(), 8080)
	require.ErrorIs(t, err, errors.ErrNullResult)

	var nullErr *errors.NullResultError
	require.True(t, stdErrors.As(err, &nullErr))
	assert.Equal(t, int32(8080), nullErr.Capability)
	assert.Zero(t, globalU32(plugin, wasmtest.ExportDeallocations), "nothing to release for a null result")
}

func TestCollect_DescriptorOutOfBounds(t *testing.T) {
	plugin := load(t, wasmtest.Plugin{Result: 70000})

	_, err := plugin.Collect(context.Background(), 1)
	require.ErrorIs(t, err, errors.ErrOutOfBounds)
	assert.Equal(t, uint32(1), globalU32(plugin, wasmtest.ExportDeallocations), "release runs on the failure path too")
}

func TestCollect_PayloadPastEndOfMemory(t *testing.T) {
	desc, err := wireformat.Descriptor{Offset: 65000, Length: 1000}.MarshalBinary()
	require.NoError(t, err)
	plugin := load(t, wasmtest.Plugin{Result: 16, Data: map[uint32][]byte{16: desc}})

	_, err = plugin.Collect(context.Background(), 1)
	assert.ErrorIs(t, err, errors.ErrOutOfBounds)
}

func TestCollect_MalformedPayload(t *testing.T) {
	desc, err := wireformat.Descriptor{Offset: 64, Length: 10}.MarshalBinary()
	require.NoError(t, err)
	plugin := load(t, wasmtest.Plugin{
		Result: 16,
		Data:   map[uint32][]byte{16: desc, 64: []byte("not*base64")},
	})

	_, err = plugin.Collect(context.Background(), 1)
	require.ErrorIs(t, err, errors.ErrDecode)
	assert.Equal(t, uint32(1), globalU32(plugin, wasmtest.ExportDeallocations))
}

func TestCollect_InvalidUTF8(t *testing.T) {
	image, addr := wasmtest.Respond(wasmtest.Payload([]byte{0xff, 0xfe}), 1, 256)
	plugin := load(t, wasmtest.Plugin{Image: image, Result: addr})

	_, err := plugin.Collect(context.Background(), 1)
	assert.ErrorIs(t, err, errors.ErrInvalidUTF8)
}

func TestCollect_MemoryGrownDuringCall(t *testing.T) {
	// The descriptor address only exists after collect grows memory by one
	// page. The zero-filled page decodes to a null payload offset, which
	// shows the bounds check used the grown size.
	plugin := load(t, wasmtest.Plugin{Result: 65536 + 128, GrowPages: 1})

	_, err := plugin.Collect(context.Background(), 1)
	assert.ErrorIs(t, err, errors.ErrNullPointer)
	assert.Equal(t, uint32(2*65536), plugin.memory.Size())
}

func TestCollect_MemoryGrowKeepsResponse(t *testing.T) {
	fixture := portReportPlugin()
	fixture.GrowPages = 3
	plugin := load(t, fixture)

	text, err := plugin.Collect(context.Background(), 8080)
	require.NoError(t, err)
	assert.Equal(t, portReport8080, text)
}

func TestLease_ReleaseOnce(t *testing.T) {
	ctx := context.Background()
	plugin := load(t, portReportPlugin())

	lease, err := plugin.Invoke(ctx, 8080)
	require.NoError(t, err)

	data, err := lease.Read()
	require.NoError(t, err)
	assert.Equal(t, portReport8080, string(data))

	require.NoError(t, lease.Release(ctx))
	assert.ErrorIs(t, lease.Release(ctx), errors.ErrLeaseReleased)
	assert.Equal(t, uint32(1), globalU32(plugin, wasmtest.ExportDeallocations), "second release must not reach the guest")

	_, err = lease.Read()
	assert.ErrorIs(t, err, errors.ErrLeaseReleased)
	_, err = lease.Descriptor()
	assert.ErrorIs(t, err, errors.ErrLeaseReleased)
}

func TestLease_ReadOnce(t *testing.T) {
	ctx := context.Background()
	plugin := load(t, portReportPlugin())

	lease, err := plugin.Invoke(ctx, 8080)
	require.NoError(t, err)
	defer func() { _ = lease.Release(ctx) }()

	desc, err := lease.Descriptor()
	require.NoError(t, err)
	assert.Equal(t, int32(84), desc.Length)

	_, err = lease.Read()
	require.NoError(t, err)
	_, err = lease.Read()
	assert.ErrorIs(t, err, errors.ErrLeaseConsumed)
}

func TestInvoke_OneOutstandingLease(t *testing.T) {
	ctx := context.Background()
	plugin := load(t, portReportPlugin())

	lease, err := plugin.Invoke(ctx, 8080)
	require.NoError(t, err)
	assert.Same(t, lease, plugin.active)

	_, err = plugin.Invoke(ctx, 8080)
	require.ErrorIs(t, err, errors.ErrLeaseOutstanding)
	assert.Equal(t, 1, plugin.Stats().Collects, "a refused invoke must not call the guest")

	require.NoError(t, lease.Release(ctx))

	lease, err = plugin.Invoke(ctx, 8080)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestInvoke_Trap(t *testing.T) {
	plugin := load(t, wasmtest.Plugin{Trap: true})

	_, err := plugin.Invoke(context.Background(), 1)
	callErr := testutil.RequireErrorAs[*errors.GuestCallError](t, err)
	assert.Equal(t, "collect", callErr.Export)
	assert.False(t, callErr.Timeout)
	assert.Nil(t, plugin.active)
}

func TestInvoke_Timeout(t *testing.T) {
	plugin := load(t, wasmtest.Plugin{Spin: true}, WithCallTimeout(50*time.Millisecond))

	_, err := plugin.Invoke(context.Background(), 1)
	callErr := testutil.RequireErrorAs[*errors.GuestCallError](t, err)
	assert.True(t, callErr.Timeout)
	assert.True(t, errors.ToErrorDetail(err).IsTimeout)
}

func TestLoadPlugin_MissingExports(t *testing.T) {
	for _, name := range []string{
		wasmtest.ExportCollect,
		wasmtest.ExportDeallocate,
		wasmtest.ExportABIVersion,
		wasmtest.ExportMemory,
	} {
		t.Run(name, func(t *testing.T) {
			e := newTestExecutor(t)
			_, err := e.LoadPlugin(context.Background(), "collector", wasmtest.Plugin{Omit: []string{name}}.Encode())
			require.ErrorIs(t, err, errors.ErrMissingExport)

			var missing *errors.MissingExportError
			require.True(t, stdErrors.As(err, &missing))
			assert.Equal(t, name, missing.Name)
		})
	}
}

func TestLoadPlugin_WrongSignature(t *testing.T) {
	e := newTestExecutor(t)
	_, err := e.LoadPlugin(context.Background(), "collector", wasmtest.Plugin{WideCollect: true}.Encode())
	assert.ErrorIs(t, err, errors.ErrLayout)
}

func TestLoadPlugin_ABIVersionMismatch(t *testing.T) {
	e := newTestExecutor(t)
	_, err := e.LoadPlugin(context.Background(), "collector", wasmtest.Plugin{ABIVersion: 99}.Encode())

	var versionErr *errors.ABIVersionError
	require.True(t, stdErrors.As(err, &versionErr))
	assert.Equal(t, uint32(99), versionErr.Guest)
	assert.Equal(t, wireformat.LayoutVersion, versionErr.Host)
}

func TestLoadPlugin_InvalidModule(t *testing.T) {
	e := newTestExecutor(t)
	_, err := e.LoadPlugin(context.Background(), "collector", []byte("not wasm"))
	assert.Error(t, err)
}

func TestLoadPlugin_CustomExportNames(t *testing.T) {
	fixture := portReportPlugin()
	fixture.Omit = []string{wasmtest.ExportABIVersion}

	e := newTestExecutor(t, WithExports(ExportNames{ABIVersion: wasmtest.ExportCollect}))
	// collect takes a parameter, so it cannot stand in for abi_version.
	_, err := e.LoadPlugin(context.Background(), "collector", fixture.Encode())
	assert.ErrorIs(t, err, errors.ErrLayout)
}

func TestLoadPlugin_MemoryLimit(t *testing.T) {
	plugin := load(t, wasmtest.Plugin{Result: 0, GrowPages: 4}, WithMemoryLimitPages(2))

	// memory.grow past the limit returns -1 instead of trapping.
	_, err := plugin.Collect(context.Background(), 1)
	require.ErrorIs(t, err, errors.ErrNullResult)
	assert.Equal(t, uint32(65536), plugin.memory.Size())
}

func TestCollect_ForwardsGuestLogs(t *testing.T) {
	payload := []byte(`{"level":"DEBUG","message":"building report","attrs":[{"key":"port","type":"int64","value":"8080"}]}`)
	fixture := portReportPlugin()
	fixture.LogAddr = 64
	fixture.LogLen = uint32(len(payload)) //nolint:gosec // G115: small test payload
	fixture.Data = map[uint32][]byte{64: payload}

	logger, logs := testutil.NewCaptureLogger()
	plugin := load(t, fixture, WithLogger(logger))

	_, err := plugin.Collect(context.Background(), 8080)
	require.NoError(t, err)

	rec, ok := logs.Find(t, "building report")
	require.True(t, ok)
	assert.Equal(t, "collector", rec["plugin"])
	assert.Equal(t, "collect", rec["export"])
	assert.Equal(t, "8080", rec["port"])
}
