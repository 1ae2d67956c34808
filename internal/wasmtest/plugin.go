package wasmtest

import (
	"log/slog"
	"slices"

	"github.com/reglet-dev/reglet-collect/guest"
	"github.com/reglet-dev/reglet-collect/internal/abi"
	"github.com/reglet-dev/reglet-collect/wireformat"
)

// Export and import names used by Plugin.
const (
	ExportCollect         = "collect"
	ExportDeallocate      = "deallocate"
	ExportABIVersion      = "abi_version"
	ExportMemory          = "memory"
	ExportDeallocations   = "deallocations"
	ExportLastDeallocated = "last_deallocated"

	HostModule = "collect_host"
	HostLog    = "log_message"
)

// ImageBase is where Respond places its heap in linear memory.
const ImageBase = 1024

// Plugin describes a fixture guest. Its collect export returns Result after
// the optional side effects, deallocate counts its calls in the exported
// mutable global "deallocations" and stores its argument in
// "last_deallocated".
type Plugin struct {
	// Image is copied into memory at ImageBase.
	Image []byte

	// Extra data segments, keyed by address.
	Data map[uint32][]byte

	// Omit lists exports to leave out.
	Omit []string

	// Pages is the initial memory size. Zero means one page.
	Pages uint32

	// MaxPages bounds memory growth. Zero means unbounded.
	MaxPages uint32

	// Result is the value collect returns.
	Result uint32

	// GrowPages is passed to memory.grow before collect returns.
	GrowPages uint32

	// ABIVersion is returned by abi_version. Zero means wireformat.LayoutVersion.
	ABIVersion uint32

	// LogAddr and LogLen, when LogLen is set, make collect call the
	// collect_host.log_message import with the packed span.
	LogAddr uint32
	LogLen  uint32

	// Trap makes collect execute unreachable.
	Trap bool

	// Spin makes collect loop forever.
	Spin bool

	// WideCollect declares collect as (i64) -> i32.
	WideCollect bool
}

// Encode builds the module binary.
func (p Plugin) Encode() []byte {
	var m Module

	logFn := uint32(0)
	if p.LogLen > 0 {
		logFn = m.ImportFunc(HostModule, HostLog, []byte{I64}, nil)
	}

	pages := p.Pages
	if pages == 0 {
		pages = 1
	}
	m.Memory(pages, p.MaxPages)

	deallocations := m.Global(I32, true, 0)
	lastDeallocated := m.Global(I32, true, 0)

	var collect Code
	switch {
	case p.Trap:
		collect.Op(OpUnreachable)
	case p.Spin:
		collect.Spin()
	}
	if p.LogLen > 0 {
		collect.I64Const(int64(abi.PackPtrLen(p.LogAddr, p.LogLen))) //nolint:gosec // G115: bit pattern is preserved
		collect.Op(OpCall, logFn)
	}
	if p.GrowPages > 0 {
		collect.I32Const(int32(p.GrowPages)).MemoryGrow().Op(OpDrop) //nolint:gosec // G115: small page count
	}
	collect.I32Const(int32(p.Result)) //nolint:gosec // G115: i32 results are reinterpreted as u32 by the host

	collectParams := []byte{I32}
	if p.WideCollect {
		collectParams = []byte{I64}
	}
	collectFn := m.Func(collectParams, []byte{I32}, collect.Bytes())

	var dealloc Code
	dealloc.Op(OpGlobalGet, deallocations).I32Const(1).Op(OpI32Add).Op(OpGlobalSet, deallocations)
	dealloc.Op(OpLocalGet, 0).Op(OpGlobalSet, lastDeallocated)
	deallocFn := m.Func([]byte{I32}, nil, dealloc.Bytes())

	version := p.ABIVersion
	if version == 0 {
		version = wireformat.LayoutVersion
	}
	var abiVersion Code
	abiVersion.I32Const(int32(version)) //nolint:gosec // G115: small version number
	abiVersionFn := m.Func(nil, []byte{I32}, abiVersion.Bytes())

	export := func(name string, kind byte, idx uint32) {
		if !slices.Contains(p.Omit, name) {
			m.Export(name, kind, idx)
		}
	}
	export(ExportCollect, KindFunc, collectFn)
	export(ExportDeallocate, KindFunc, deallocFn)
	export(ExportABIVersion, KindFunc, abiVersionFn)
	export(ExportMemory, KindMemory, 0)
	export(ExportDeallocations, KindGlobal, deallocations)
	export(ExportLastDeallocated, KindGlobal, lastDeallocated)

	if len(p.Image) > 0 {
		m.Data(ImageBase, p.Image)
	}
	addrs := make([]uint32, 0, len(p.Data))
	for addr := range p.Data {
		addrs = append(addrs, addr)
	}
	slices.Sort(addrs)
	for _, addr := range addrs {
		m.Data(addr, p.Data[addr])
	}

	return m.Encode()
}

// Respond runs a collector for capability over a heap of size bytes placed
// at ImageBase and returns the resulting memory image together with the
// descriptor address collect returned.
func Respond(source guest.Source, capability int32, size int) (image []byte, addr uint32) {
	image = make([]byte, size)
	heap := abi.NewHeap(image, ImageBase)
	c := guest.NewCollector(heap, source, guest.WithLogger(slog.New(slog.DiscardHandler)))
	return image, c.Collect(capability)
}

// Payload is a guest.Source that always returns data.
func Payload(data []byte) guest.Source {
	return guest.SourceFunc(func(int32) ([]byte, error) { return data, nil })
}
