// Package graph implements the reference-tracking intermediate
// representation: a module where every cross-section integer index is
// replaced by a reflist.Ref, so passes that add, remove, or reorder entries
// never need to hand-maintain index fixup tables. Re-emission reads each
// index directly off the handle's current order.
package graph

import (
	"github.com/paritytech/wasm-utils/reflist"
	"github.com/paritytech/wasm-utils/wasm"
)

// InstrKind tags which of the four referential instruction forms an
// Instruction holds, or whether it is an ordinary, non-referential
// instruction carried through verbatim.
type InstrKind int

const (
	KindPlain InstrKind = iota
	KindCall
	KindCallIndirect
	KindGetGlobal
	KindSetGlobal
)

// Instruction is one instruction in a graph-module function body or
// initializer expression. Call, CallIndirect, GetGlobal and SetGlobal hold
// a handle into the relevant reflist instead of a raw index; every other
// instruction is carried in Plain unchanged.
type Instruction struct {
	Kind InstrKind
	Plain wasm.Instr

	Func         reflist.Ref[*Func]         // KindCall
	Type         reflist.Ref[*FunctionType] // KindCallIndirect
	CallIndirect wasm.Instr                 // KindCallIndirect: the instruction as ingested; Generate rebuilds it from Type and does not read this field
	Global       reflist.Ref[*Global]       // KindGetGlobal, KindSetGlobal
}

// FunctionType wraps wasm.FunctionType so the types reflist has a stable
// element identity distinct from value equality.
type FunctionType struct {
	Sig wasm.FunctionType
}

// Origin describes whether an entity of a given space came from an import
// or was declared locally in the module. The one Origin type is used by
// Func, Table, Memory, and Global alike.
type Origin struct {
	Imported bool
	Module   string
	Field    string
}

// FuncBody is a declared function's locals and instrumented-or-original
// instruction stream.
type FuncBody struct {
	Locals []wasm.LocalGroup
	Code   []Instruction
}

// Func is a function-space entry: either an import (Body == nil) or a
// declared function with a body, attached once the code section is
// ingested.
type Func struct {
	TypeRef reflist.Ref[*FunctionType]
	Origin  Origin
	Body    *FuncBody
}

// Table is a table-space entry.
type Table struct {
	Origin Origin
	Type   wasm.TableType
}

// Memory is a memory-space entry.
type Memory struct {
	Origin Origin
	Type   wasm.MemoryType
}

// Global is a global-space entry: either an import (Init == nil) or a
// declared global with a constant initializer expression.
type Global struct {
	ValType wasm.ValueType
	Mutable bool
	Origin  Origin
	Init    []Instruction
}

// SegmentLocation is an element/data segment's placement: Passive segments
// carry no offset; Active ones target the implicit table/memory 0; ActiveX
// ones carry an explicit index (a bulk-memory feature that round-trips
// unmodified through this representation without being produced by any
// core pass).
type SegmentLocation struct {
	Mode   wasm.SegmentMode
	Index  uint32
	Offset []Instruction
}

type ElementSegment struct {
	Location SegmentLocation
	Members  []reflist.Ref[*Func]
}

type DataSegment struct {
	Location SegmentLocation
	Value    []byte
}

// ExportLocal is the internal an export entry names, tagged by kind.
type ExportLocal struct {
	Kind   wasm.External
	Func   reflist.Ref[*Func]
	Global reflist.Ref[*Global]
	Table  reflist.Ref[*Table]
	Memory reflist.Ref[*Memory]
}

type Export struct {
	Field string
	Local ExportLocal
}

// Module is the graph-module representation: every combined-space index in
// the structural wasm.Module is replaced by a reflist handle. Imports and
// locally declared entries for a given space share one list, imports
// first, matching the combined index space's "imports, then declared"
// ordering rule.
type Module struct {
	Types    *reflist.List[*FunctionType]
	Funcs    *reflist.List[*Func]
	Tables   *reflist.List[*Table]
	Memories *reflist.List[*Memory]
	Globals  *reflist.List[*Global]

	Start *reflist.Ref[*Func]

	Exports  []Export
	Elements []ElementSegment
	Data     []DataSegment

	Customs []wasm.CustomSection
}
