// Package wasmtest encodes small WebAssembly modules for tests that need a
// real guest but cannot depend on a wasm toolchain at test time.
package wasmtest

import (
	"bytes"
	"encoding/binary"
)

// Value types.
const (
	I32 byte = 0x7f
	I64 byte = 0x7e
)

// Export kinds.
const (
	KindFunc   byte = 0x00
	KindMemory byte = 0x02
	KindGlobal byte = 0x03
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	funcTypeByte = 0x60
)

// Opcodes used by the fixture bodies.
const (
	OpUnreachable = 0x00
	OpLoop        = 0x03
	OpBr          = 0x0c
	OpEnd         = 0x0b
	OpCall        = 0x10
	OpDrop        = 0x1a
	OpLocalGet    = 0x20
	OpGlobalGet   = 0x23
	OpGlobalSet   = 0x24
	OpMemoryGrow  = 0x40
	OpI32Const    = 0x41
	OpI64Const    = 0x42
	OpI32Add      = 0x6a

	blockTypeEmpty = 0x40
)

// FuncType is a function signature.
type FuncType struct {
	Params  []byte
	Results []byte
}

type funcImport struct {
	module, name string
	typeIdx      uint32
}

type global struct {
	valType byte
	mutable bool
	init    int64
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type dataSegment struct {
	data   []byte
	offset uint32
}

// Module is a minimal module builder. Imports must be added before functions
// so that function indices stay stable.
type Module struct {
	types    []FuncType
	imports  []funcImport
	funcs    []uint32
	code     [][]byte
	globals  []global
	exports  []export
	data     []dataSegment
	memory   *[2]uint32 // min, max
	hasLimit bool
}

// Type adds a signature and returns its index.
func (m *Module) Type(params, results []byte) uint32 {
	for i, t := range m.types {
		if bytes.Equal(t.Params, params) && bytes.Equal(t.Results, results) {
			return uint32(i) //nolint:gosec // G115: small index
		}
	}
	m.types = append(m.types, FuncType{Params: params, Results: results})
	return uint32(len(m.types) - 1) //nolint:gosec // G115: small index
}

// ImportFunc declares an imported function and returns its function index.
func (m *Module) ImportFunc(module, name string, params, results []byte) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmtest: imports must precede functions")
	}
	m.imports = append(m.imports, funcImport{module: module, name: name, typeIdx: m.Type(params, results)})
	return uint32(len(m.imports) - 1) //nolint:gosec // G115: small index
}

// Func defines a function without locals. body is the instruction sequence
// without the final end opcode.
func (m *Module) Func(params, results []byte, body []byte) uint32 {
	m.funcs = append(m.funcs, m.Type(params, results))
	m.code = append(m.code, body)
	return uint32(len(m.imports) + len(m.funcs) - 1) //nolint:gosec // G115: small index
}

// Memory declares the single linear memory, in 64 KiB pages. max of 0 means
// unbounded.
func (m *Module) Memory(minPages, maxPages uint32) {
	m.memory = &[2]uint32{minPages, maxPages}
	m.hasLimit = maxPages > 0
}

// Global declares a global initialised to init and returns its index.
func (m *Module) Global(valType byte, mutable bool, init int64) uint32 {
	m.globals = append(m.globals, global{valType: valType, mutable: mutable, init: init})
	return uint32(len(m.globals) - 1) //nolint:gosec // G115: small index
}

// Export exports the item of the given kind and index under name.
func (m *Module) Export(name string, kind byte, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: kind, idx: idx})
}

// Data places data at offset in memory 0 when the module is instantiated.
func (m *Module) Data(offset uint32, data []byte) {
	m.data = append(m.data, dataSegment{offset: offset, data: data})
}

// Encode returns the binary module.
func (m *Module) Encode() []byte {
	var w bytes.Buffer
	w.WriteString("\x00asm")
	_ = binary.Write(&w, binary.LittleEndian, uint32(1))

	if len(m.types) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.types))) //nolint:gosec // G115: small count
		for _, t := range m.types {
			sec.WriteByte(funcTypeByte)
			writeBytes(&sec, t.Params)
			writeBytes(&sec, t.Results)
		}
		writeSection(&w, sectionType, sec.Bytes())
	}

	if len(m.imports) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.imports))) //nolint:gosec // G115: small count
		for _, imp := range m.imports {
			writeName(&sec, imp.module)
			writeName(&sec, imp.name)
			sec.WriteByte(KindFunc)
			writeU32(&sec, imp.typeIdx)
		}
		writeSection(&w, sectionImport, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.funcs))) //nolint:gosec // G115: small count
		for _, idx := range m.funcs {
			writeU32(&sec, idx)
		}
		writeSection(&w, sectionFunction, sec.Bytes())
	}

	if m.memory != nil {
		var sec bytes.Buffer
		writeU32(&sec, 1)
		if m.hasLimit {
			sec.WriteByte(0x01)
			writeU32(&sec, m.memory[0])
			writeU32(&sec, m.memory[1])
		} else {
			sec.WriteByte(0x00)
			writeU32(&sec, m.memory[0])
		}
		writeSection(&w, sectionMemory, sec.Bytes())
	}

	if len(m.globals) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.globals))) //nolint:gosec // G115: small count
		for _, g := range m.globals {
			sec.WriteByte(g.valType)
			if g.mutable {
				sec.WriteByte(0x01)
			} else {
				sec.WriteByte(0x00)
			}
			if g.valType == I64 {
				sec.WriteByte(OpI64Const)
			} else {
				sec.WriteByte(OpI32Const)
			}
			writeS64(&sec, g.init)
			sec.WriteByte(OpEnd)
		}
		writeSection(&w, sectionGlobal, sec.Bytes())
	}

	if len(m.exports) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.exports))) //nolint:gosec // G115: small count
		for _, e := range m.exports {
			writeName(&sec, e.name)
			sec.WriteByte(e.kind)
			writeU32(&sec, e.idx)
		}
		writeSection(&w, sectionExport, sec.Bytes())
	}

	if len(m.code) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.code))) //nolint:gosec // G115: small count
		for _, body := range m.code {
			var fn bytes.Buffer
			writeU32(&fn, 0) // no local declarations
			fn.Write(body)
			fn.WriteByte(OpEnd)
			writeBytes(&sec, fn.Bytes())
		}
		writeSection(&w, sectionCode, sec.Bytes())
	}

	if len(m.data) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.data))) //nolint:gosec // G115: small count
		for _, d := range m.data {
			writeU32(&sec, 0) // active, memory 0
			sec.WriteByte(OpI32Const)
			writeS64(&sec, int64(int32(d.offset))) //nolint:gosec // G115: i32.const is signed
			sec.WriteByte(OpEnd)
			writeBytes(&sec, d.data)
		}
		writeSection(&w, sectionData, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, content []byte) {
	w.WriteByte(id)
	writeBytes(w, content)
}

// Code accumulates a function body.
type Code struct {
	buf bytes.Buffer
}

// I32Const pushes v.
func (c *Code) I32Const(v int32) *Code {
	c.buf.WriteByte(OpI32Const)
	writeS64(&c.buf, int64(v))
	return c
}

// I64Const pushes v.
func (c *Code) I64Const(v int64) *Code {
	c.buf.WriteByte(OpI64Const)
	writeS64(&c.buf, v)
	return c
}

// Op appends a single opcode, or an opcode followed by one unsigned immediate.
func (c *Code) Op(op byte, imm ...uint32) *Code {
	c.buf.WriteByte(op)
	for _, v := range imm {
		writeU32(&c.buf, v)
	}
	return c
}

// MemoryGrow grows memory 0 by the page count on the stack.
func (c *Code) MemoryGrow() *Code {
	c.buf.WriteByte(OpMemoryGrow)
	c.buf.WriteByte(0x00)
	return c
}

// Spin appends a loop that never exits.
func (c *Code) Spin() *Code {
	c.buf.WriteByte(OpLoop)
	c.buf.WriteByte(blockTypeEmpty)
	c.buf.WriteByte(OpBr)
	writeU32(&c.buf, 0)
	c.buf.WriteByte(OpEnd)
	return c
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte { return c.buf.Bytes() }
