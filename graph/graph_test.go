package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paritytech/wasm-utils/graph"
	"github.com/paritytech/wasm-utils/wasm"
)

// a module exercising every section kind the round-trip property covers:
// an imported function, a declared function calling it and touching a
// declared global, an element segment, and a data segment.
func roundTripModule() *wasm.Module {
	tableMax := uint32(1)
	startFunc := uint32(1)
	return &wasm.Module{
		Types: []wasm.FunctionType{
			wasm.FuncType(nil, nil),
			wasm.FuncType([]wasm.ValueType{wasm.ValueTypeI32}, nil),
		},
		Imports: []wasm.ImportEntry{
			{Module: "env", Field: "log", Kind: wasm.ExternalFunction, FuncTypeIdx: 1},
		},
		Funcs:  []uint32{0},
		Tables: []wasm.TableType{{ElemType: 0x70, Limits: wasm.Limits{Initial: 1, Maximum: &tableMax}}},
		Mems:   []wasm.MemoryType{{Limits: wasm.Limits{Initial: 1}}},
		Globals: []wasm.GlobalEntry{
			{Type: wasm.Global{ValType: wasm.ValueTypeI32, Mutable: true}, Init: []wasm.Instr{wasm.I32Const(0), wasm.End()}},
		},
		Exports: []wasm.ExportEntry{
			{Field: "call", Kind: wasm.ExternalFunction, Index: 1},
		},
		Start: &startFunc, // points at the declared function (combined index 1)
		Elements: []wasm.ElementSegment{
			{Mode: wasm.SegmentActive, Offset: []wasm.Instr{wasm.I32Const(0), wasm.End()}, Members: []uint32{1}},
		},
		Code: []wasm.FunctionBody{
			{Code: []wasm.Instr{
				wasm.GlobalGet(0),
				wasm.Call(0),
				wasm.GlobalSet(0),
				wasm.End(),
			}},
		},
		Data: []wasm.DataSegment{
			{Mode: wasm.SegmentActive, Offset: []wasm.Instr{wasm.I32Const(0), wasm.End()}, Value: []byte{1, 2, 3}},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	m := roundTripModule()

	g, err := graph.From(m)
	require.NoError(t, err)

	out, err := g.Generate()
	require.NoError(t, err)

	require.Equal(t, m, out)
}

func TestEmitDetachedReferenceFails(t *testing.T) {
	m := roundTripModule()
	g, err := graph.From(m)
	require.NoError(t, err)

	// Detach the called import by deleting it from the funcs reflist
	// directly, simulating what an optimizer pass built on this
	// representation would do before re-emitting.
	g.Funcs.Delete([]int{0})

	_, err = g.Generate()
	require.Error(t, err)
}
