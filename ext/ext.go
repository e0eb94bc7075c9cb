// Package ext collects the smaller module-massaging passes that prepare a
// compiler's raw output for a specific host ABI: turning a defined function
// into a host-provided import, pulling the sole memory out into an import,
// patching a compiler-emitted stack-pointer constant, toggling the
// leading-underscore naming convention emscripten output uses, and stamping
// a runtime-type/version pair into a pair of new globals.
package ext

import (
	"encoding/binary"
	"fmt"

	"github.com/paritytech/wasm-utils/wasm"
)

// Externalize replaces each named function export's defined body with a
// function import of the same signature (module "env", field the export
// name), redirecting every call site, element member, other export, and the
// start function to the new import. Names are processed one at a time, each
// fully committed before the next, so later lookups always see a consistent
// module.
func Externalize(m *wasm.Module, names []string) error {
	for _, name := range names {
		if err := externalizeOne(m, name); err != nil {
			return err
		}
	}
	return nil
}

func externalizeOne(m *wasm.Module, name string) error {
	expIdx := -1
	for i, e := range m.Exports {
		if e.Field == name && e.Kind == wasm.ExternalFunction {
			expIdx = i
			break
		}
	}
	if expIdx < 0 {
		return fmt.Errorf("ext: externalize: no function export named %q", name)
	}

	origCombined := m.Exports[expIdx].Index
	importCount := uint32(m.FuncImportCount())
	if origCombined < importCount {
		return fmt.Errorf("ext: externalize: %q already names an imported function", name)
	}
	typeIdx, ok := m.FuncTypeIndex(origCombined)
	if !ok {
		return fmt.Errorf("ext: externalize: %q has no resolvable signature", name)
	}
	definedIdx := origCombined - importCount

	insertPos := 0
	for i, imp := range m.Imports {
		if imp.Kind == wasm.ExternalFunction {
			insertPos = i + 1
		}
	}
	m.Imports = insertAt(m.Imports, insertPos, wasm.ImportEntry{
		Module: "env", Field: name, Kind: wasm.ExternalFunction, FuncTypeIdx: typeIdx,
	})
	newCombined := importCount

	m.Funcs = append(m.Funcs[:definedIdx], m.Funcs[definedIdx+1:]...)
	m.Code = append(m.Code[:definedIdx], m.Code[definedIdx+1:]...)

	redirect := func(x uint32) uint32 {
		switch {
		case x == origCombined:
			return newCombined
		case x < importCount:
			return x
		case x < origCombined:
			return x + 1
		default:
			return x
		}
	}

	for i := range m.Code {
		for j := range m.Code[i].Code {
			if m.Code[i].Code[j].Op == wasm.OpCall {
				m.Code[i].Code[j].FuncIdx = redirect(m.Code[i].Code[j].FuncIdx)
			}
		}
	}
	for i := range m.Exports {
		if m.Exports[i].Kind == wasm.ExternalFunction {
			m.Exports[i].Index = redirect(m.Exports[i].Index)
		}
	}
	for i := range m.Elements {
		for j := range m.Elements[i].Members {
			m.Elements[i].Members[j] = redirect(m.Elements[i].Members[j])
		}
	}
	if m.Start != nil {
		shifted := redirect(*m.Start)
		m.Start = &shifted
	}
	return nil
}

func insertAt[T any](s []T, pos int, v T) []T {
	out := make([]T, 0, len(s)+1)
	out = append(out, s[:pos]...)
	out = append(out, v)
	out = append(out, s[pos:]...)
	return out
}

// ExternalizeMemory converts the module's sole memory entry into an
// imported memory (module "env", field "memory"). If initialPages is
// non-nil it overrides the entry's initial page count; if the entry has no
// declared maximum, defaultMaxPages is used so the imported memory is
// always bounded.
func ExternalizeMemory(m *wasm.Module, initialPages *uint32, defaultMaxPages uint32) error {
	if len(m.Mems) != 1 {
		return fmt.Errorf("ext: externalize_mem: module has %d memory entries, want exactly 1", len(m.Mems))
	}
	mem := m.Mems[0]
	initial := mem.Limits.Initial
	if initialPages != nil {
		initial = *initialPages
	}
	maximum := defaultMaxPages
	if mem.Limits.Maximum != nil {
		maximum = *mem.Limits.Maximum
	}
	m.Mems = nil
	m.Imports = append(m.Imports, wasm.ImportEntry{
		Module: "env", Field: "memory", Kind: wasm.ExternalMemory,
		Mem: wasm.MemoryType{Limits: wasm.Limits{Initial: initial, Maximum: &maximum}},
	})
	return nil
}

// ShrinkUnknownStack rewrites the 4-byte little-endian value stored at every
// data segment whose offset expression is the literal `i32.const 4; end`
// (the compiler-emitted stack-pointer cell) to newSize. It does not stop at
// the first match — a module can carry more than one such segment — and
// returns the value written along with whether any segment matched.
func ShrinkUnknownStack(m *wasm.Module, newSize uint32) (uint32, bool) {
	var last uint32
	found := false
	for i := range m.Data {
		seg := &m.Data[i]
		if !isStackPointerOffset(seg.Offset) || len(seg.Value) < 4 {
			continue
		}
		binary.LittleEndian.PutUint32(seg.Value, newSize)
		last = newSize
		found = true
	}
	return last, found
}

func isStackPointerOffset(offset []wasm.Instr) bool {
	if len(offset) != 2 {
		return false
	}
	return offset[0].Op == wasm.OpI32Const && offset[0].I32 == 4 && offset[1].Op == wasm.OpEnd
}

const underscore = "_"

// UnderscoreFuncs prepends "_" to every function import's and function
// export's field name, the naming convention emscripten output expects of
// its public API before this pipeline's later passes run.
func UnderscoreFuncs(m *wasm.Module) {
	for i := range m.Imports {
		if m.Imports[i].Kind == wasm.ExternalFunction {
			m.Imports[i].Field = underscore + m.Imports[i].Field
		}
	}
	for i := range m.Exports {
		if m.Exports[i].Kind == wasm.ExternalFunction {
			m.Exports[i].Field = underscore + m.Exports[i].Field
		}
	}
}

// UnUnderscoreFuncs strips one leading "_" from every function import's and
// function export's field name, undoing UnderscoreFuncs.
func UnUnderscoreFuncs(m *wasm.Module) {
	for i := range m.Imports {
		if m.Imports[i].Kind == wasm.ExternalFunction {
			m.Imports[i].Field = trimLeadingUnderscore(m.Imports[i].Field)
		}
	}
	for i := range m.Exports {
		if m.Exports[i].Kind == wasm.ExternalFunction {
			m.Exports[i].Field = trimLeadingUnderscore(m.Exports[i].Field)
		}
	}
}

func trimLeadingUnderscore(s string) string {
	if len(s) > 0 && s[0] == '_' {
		return s[1:]
	}
	return s
}

// InjectRuntimeType appends two immutable i32 globals holding runtimeType
// (interpreted as a little-endian u32 over its 4 bytes) and runtimeVersion,
// and exports them as RUNTIME_TYPE and RUNTIME_VERSION.
func InjectRuntimeType(m *wasm.Module, runtimeType [4]byte, runtimeVersion uint32) {
	typeVal := int32(binary.LittleEndian.Uint32(runtimeType[:]))
	base := uint32(m.GlobalsSpace())

	m.Globals = append(m.Globals,
		wasm.GlobalEntry{
			Type: wasm.Global{ValType: wasm.ValueTypeI32, Mutable: false},
			Init: []wasm.Instr{wasm.I32Const(typeVal), wasm.End()},
		},
		wasm.GlobalEntry{
			Type: wasm.Global{ValType: wasm.ValueTypeI32, Mutable: false},
			Init: []wasm.Instr{wasm.I32Const(int32(runtimeVersion)), wasm.End()},
		},
	)
	m.Exports = append(m.Exports,
		wasm.ExportEntry{Field: "RUNTIME_TYPE", Kind: wasm.ExternalGlobal, Index: base},
		wasm.ExportEntry{Field: "RUNTIME_VERSION", Kind: wasm.ExternalGlobal, Index: base + 1},
	)
}
