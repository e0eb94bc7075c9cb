// Package pack implements the constructor packer: given a finished runtime
// module's serialized bytes and a candidate constructor module, it embeds
// the bytes as a new data segment and rewrites the constructor's create
// entry into a call/deploy/ret wrapper that returns them to the host.
package pack

import (
	"errors"

	"github.com/paritytech/wasm-utils/target"
	"github.com/paritytech/wasm-utils/wasm"
)

var (
	ErrNoCreateExport      = errors.New("pack: constructor has no create export")
	ErrCreateNotFunction   = errors.New("pack: create export does not name a function")
	ErrCreateIsImport      = errors.New("pack: create export names an imported function, not a defined one")
	ErrInvalidCreateSig    = errors.New("pack: create function must take no parameters and return nothing")
	ErrMalformedConstructor = errors.New("pack: constructor module's internal references are inconsistent")
)

// Pack embeds raw (the serialized bytes of the already-optimized runtime
// module) as a new data segment inside ctor, and rewrites ctor's create
// export (rt.Create) into a wrapper, exported as rt.Call, that calls the
// original create body and then rt.Ret(ptr, len) with ptr/len describing
// the embedded segment. It mutates ctor in place and returns it.
func Pack(raw []byte, ctor *wasm.Module, rt target.Runtime) (*wasm.Module, error) {
	createCombined, err := findFunctionExport(ctor, rt.Create)
	if err != nil {
		return nil, err
	}

	importCount := uint32(ctor.FuncImportCount())
	if createCombined < importCount {
		return nil, ErrCreateIsImport
	}
	createDefinedIdx := createCombined - importCount
	if int(createDefinedIdx) >= len(ctor.Funcs) {
		return nil, ErrMalformedConstructor
	}
	sig, ok := ctor.FuncSignature(createCombined)
	if !ok {
		return nil, ErrMalformedConstructor
	}
	if len(sig.Params) != 0 || len(sig.Results) != 0 {
		return nil, ErrInvalidCreateSig
	}

	retCombined := ensureRetImport(ctor, rt.Ret)

	// ensureRetImport may have inserted a new function import, which shifts
	// every defined function's combined index (including create's) up by
	// one; re-resolve rather than adjusting createCombined by hand.
	createCombined, err = findFunctionExport(ctor, rt.Create)
	if err != nil {
		return nil, ErrMalformedConstructor
	}

	lastFunctionIndex := uint32(ctor.FuncsSpace())

	codeDataAddress := appendCodeDataSegment(ctor, raw)

	voidType := wasm.FuncType(nil, nil)
	newTypeIdx := uint32(len(ctor.Types))
	ctor.Types = append(ctor.Types, voidType)
	ctor.Funcs = append(ctor.Funcs, newTypeIdx)
	ctor.Code = append(ctor.Code, wasm.FunctionBody{Code: []wasm.Instr{
		wasm.Call(createCombined),
		wasm.I32Const(codeDataAddress),
		wasm.I32Const(int32(len(raw))),
		wasm.Call(retCombined),
		wasm.End(),
	}})

	for i := range ctor.Exports {
		if ctor.Exports[i].Kind == wasm.ExternalFunction && ctor.Exports[i].Field == rt.Create {
			ctor.Exports[i].Field = rt.Call
			ctor.Exports[i].Index = lastFunctionIndex
		}
	}

	return ctor, nil
}

func findFunctionExport(m *wasm.Module, name string) (uint32, error) {
	for _, e := range m.Exports {
		if e.Field != name {
			continue
		}
		if e.Kind != wasm.ExternalFunction {
			return 0, ErrCreateNotFunction
		}
		return e.Index, nil
	}
	return 0, ErrNoCreateExport
}

// ensureRetImport returns the combined function index of the ret import
// named retName, inserting it (after the last existing function import,
// shifting every later function reference by one) if absent.
func ensureRetImport(m *wasm.Module, retName string) uint32 {
	insertPos := 0
	rank := uint32(0)
	for i, imp := range m.Imports {
		if imp.Kind != wasm.ExternalFunction {
			continue
		}
		if imp.Field == retName {
			return rank
		}
		rank++
		insertPos = i + 1
	}

	typeIdx := uint32(len(m.Types))
	m.Types = append(m.Types, wasm.FuncType([]wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, nil))
	newIdx := rank
	m.Imports = insertAt(m.Imports, insertPos, wasm.ImportEntry{
		Module: "env", Field: retName, Kind: wasm.ExternalFunction, FuncTypeIdx: typeIdx,
	})

	shift := func(x uint32) uint32 {
		if x >= newIdx {
			return x + 1
		}
		return x
	}
	for i := range m.Code {
		for j := range m.Code[i].Code {
			if m.Code[i].Code[j].Op == wasm.OpCall {
				m.Code[i].Code[j].FuncIdx = shift(m.Code[i].Code[j].FuncIdx)
			}
		}
	}
	for i := range m.Exports {
		if m.Exports[i].Kind == wasm.ExternalFunction {
			m.Exports[i].Index = shift(m.Exports[i].Index)
		}
	}
	for i := range m.Elements {
		for j := range m.Elements[i].Members {
			m.Elements[i].Members[j] = shift(m.Elements[i].Members[j])
		}
	}
	if m.Start != nil {
		shifted := shift(*m.Start)
		m.Start = &shifted
	}
	return newIdx
}

func insertAt[T any](s []T, pos int, v T) []T {
	out := make([]T, 0, len(s)+1)
	out = append(out, s[:pos]...)
	out = append(out, v)
	out = append(out, s[pos:]...)
	return out
}

// appendCodeDataSegment appends raw as a new active data segment, choosing
// an offset that sits immediately after the prior last segment's end,
// rounded up to the next 4-byte boundary. Unlike round_up_4(len) = (len+4)
// - len%4, this rounds the *end address*, so an already 4-aligned end
// isn't padded with an unnecessary extra word.
func appendCodeDataSegment(m *wasm.Module, raw []byte) int32 {
	var offset int32
	if n := len(m.Data); n > 0 {
		last := m.Data[n-1]
		if len(last.Offset) == 2 && last.Offset[0].Op == wasm.OpI32Const && last.Offset[1].Op == wasm.OpEnd {
			end := last.Offset[0].I32 + int32(len(last.Value))
			offset = roundUp4(end)
		}
	}
	m.Data = append(m.Data, wasm.DataSegment{
		Mode:   wasm.SegmentActive,
		Offset: []wasm.Instr{wasm.I32Const(offset), wasm.End()},
		Value:  raw,
	})
	return offset
}

func roundUp4(x int32) int32 {
	return (x + 3) &^ 3
}
