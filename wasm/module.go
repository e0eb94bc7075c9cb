// Package wasm defines the structural representation of a WebAssembly MVP
// binary module used as the common currency between every pass in this
// repository, along with a decoder/encoder for the standard binary format.
package wasm

// Module is a parsed wasm binary: an ordered list of sections. Only sections
// that are present carry entries; absent sections are represented by nil
// slices so callers can distinguish "empty section present" is not tracked
// separately from "section absent" — neither this format nor the passes
// built on it need that distinction.
type Module struct {
	Types    []FunctionType
	Imports  []ImportEntry
	Funcs    []uint32 // type index per defined function, function section
	Tables   []TableType
	Mems     []MemoryType
	Globals  []GlobalEntry
	Exports  []ExportEntry
	Start    *uint32
	Elements []ElementSegment
	Code     []FunctionBody
	Data     []DataSegment

	// Customs preserves custom sections in encounter order along with the
	// canonical section id each one followed (CustomSection.After), so
	// re-encoding can interleave them back at their original position. A
	// custom section that preceded every known section has After ==
	// SectionCustom (0); one at the tail (e.g. "name") carries the id of the
	// last known section.
	Customs []CustomSection
}

// CustomSection is a named, opaque payload preserved verbatim.
type CustomSection struct {
	Name    string
	Payload []byte
	// After is the canonical section id this custom section followed in
	// the source binary (0 if it preceded every known section).
	After SectionID
}

// SectionID enumerates the eleven canonical wasm sections plus the implicit
// custom id 0, in binary-format order.
type SectionID byte

const (
	SectionCustom   SectionID = 0
	SectionType     SectionID = 1
	SectionImport   SectionID = 2
	SectionFunction SectionID = 3
	SectionTable    SectionID = 4
	SectionMemory   SectionID = 5
	SectionGlobal   SectionID = 6
	SectionExport   SectionID = 7
	SectionStart    SectionID = 8
	SectionElement  SectionID = 9
	SectionCode     SectionID = 10
	SectionData     SectionID = 11
)

// ValueType is one of the four MVP value types.
type ValueType byte

const (
	ValueTypeI32 ValueType = 0x7F
	ValueTypeI64 ValueType = 0x7E
	ValueTypeF32 ValueType = 0x7D
	ValueTypeF64 ValueType = 0x7C
)

// FunctionType is a (params) -> (results) signature. The MVP allows at most
// one result; the decoder does not enforce that limit and fills Results
// with whatever count the binary declares, and the slice form matches how
// the rest of the pipeline enumerates "arity" generically.
type FunctionType struct {
	Params  []ValueType
	Results []ValueType
}

// External tags what kind of combined-index space an import or export
// entry addresses.
type External byte

const (
	ExternalFunction External = 0x00
	ExternalTable    External = 0x01
	ExternalMemory   External = 0x02
	ExternalGlobal   External = 0x03
)

// Limits describes a resizable table or memory's page/element bounds.
type Limits struct {
	Initial uint32
	Maximum *uint32
}

type TableType struct {
	ElemType byte // 0x70: funcref
	Limits   Limits
}

type MemoryType struct {
	Limits Limits
}

type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// ImportEntry is a single import-section entry. Exactly one of the typed
// fields is meaningful, selected by Kind.
type ImportEntry struct {
	Module string
	Field  string
	Kind   External

	FuncTypeIdx uint32
	Table       TableType
	Mem         MemoryType
	Global      GlobalType
}

// GlobalEntry is a defined (non-imported) global.
type GlobalEntry struct {
	Type Global
	Init []Instr
}

type Global struct {
	ValType ValueType
	Mutable bool
}

// ExportEntry binds a name to an index in one of the combined spaces.
type ExportEntry struct {
	Field string
	Kind  External
	Index uint32
}

// SegmentMode distinguishes an element/data segment's placement. Passive and
// explicit-memory/table-index forms are bulk-memory features outside MVP +
// mutable globals; Active is the only form this pipeline needs to produce,
// but Passive/indexed forms round-trip unmodified where present.
type SegmentMode byte

const (
	SegmentActive  SegmentMode = 0
	SegmentPassive SegmentMode = 1
	SegmentActiveX SegmentMode = 2 // active with explicit table/memory index
)

type ElementSegment struct {
	Mode    SegmentMode
	TableIdx uint32 // meaningful for SegmentActive/SegmentActiveX
	Offset  []Instr
	Members []uint32
}

type DataSegment struct {
	Mode   SegmentMode
	MemIdx uint32
	Offset []Instr
	Value  []byte
}

// FunctionBody is the code-section entry paired positionally with a
// Funcs[i] type index.
type FunctionBody struct {
	Locals []LocalGroup
	Code   []Instr
}

// LocalGroup is a run-length-encoded group of same-typed locals, as wasm
// encodes them; NumLocals below totals the counts for instrumenting passes
// that need the number of declared locals.
type LocalGroup struct {
	Count uint32
	Type  ValueType
}

// NumLocals returns the total number of locals declared across all groups
// (not counting parameters).
func (b FunctionBody) NumLocals() uint32 {
	var n uint32
	for _, g := range b.Locals {
		n += g.Count
	}
	return n
}

// FuncImportCount returns the number of function-kind imports, i.e. the
// size of the "imports" prefix of the combined function index space.
func (m *Module) FuncImportCount() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ExternalFunction {
			n++
		}
	}
	return n
}

// GlobalImportCount returns the number of global-kind imports.
func (m *Module) GlobalImportCount() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ExternalGlobal {
			n++
		}
	}
	return n
}

// FuncsSpace returns the size of the combined function index space: function
// imports followed by defined functions.
func (m *Module) FuncsSpace() int {
	return m.FuncImportCount() + len(m.Funcs)
}

// GlobalsSpace returns the size of the combined global index space.
func (m *Module) GlobalsSpace() int {
	return m.GlobalImportCount() + len(m.Globals)
}

// FuncTypeIndex returns the type index of the function at combined index fi,
// whether it is an import or a defined function.
func (m *Module) FuncTypeIndex(fi uint32) (uint32, bool) {
	importCount := uint32(m.FuncImportCount())
	if fi < importCount {
		var seen uint32
		for _, imp := range m.Imports {
			if imp.Kind != ExternalFunction {
				continue
			}
			if seen == fi {
				return imp.FuncTypeIdx, true
			}
			seen++
		}
		return 0, false
	}
	idx := fi - importCount
	if int(idx) >= len(m.Funcs) {
		return 0, false
	}
	return m.Funcs[idx], true
}

// FuncSignature resolves the combined function index to its FunctionType.
func (m *Module) FuncSignature(fi uint32) (FunctionType, bool) {
	ti, ok := m.FuncTypeIndex(fi)
	if !ok || int(ti) >= len(m.Types) {
		return FunctionType{}, false
	}
	return m.Types[ti], true
}

// ExportedFuncIndices returns the combined function index of every export
// entry that names a function.
func (m *Module) ExportedFuncIndices() []uint32 {
	var out []uint32
	for _, e := range m.Exports {
		if e.Kind == ExternalFunction {
			out = append(out, e.Index)
		}
	}
	return out
}

// ElementFuncIndices returns every function index referenced as a member of
// any element segment, in encounter order (duplicates preserved).
func (m *Module) ElementFuncIndices() []uint32 {
	var out []uint32
	for _, seg := range m.Elements {
		out = append(out, seg.Members...)
	}
	return out
}
