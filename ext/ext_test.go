package ext_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paritytech/wasm-utils/ext"
	"github.com/paritytech/wasm-utils/wasm"
)

func TestExternalize(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FunctionType{wasm.FuncType(nil, nil)},
		Funcs: []uint32{0, 0},
		Code: []wasm.FunctionBody{
			{Code: []wasm.Instr{wasm.Call(1), wasm.End()}}, // func0 calls func1
			{Code: []wasm.Instr{wasm.End()}},                // func1: the target to externalize
		},
		Exports: []wasm.ExportEntry{
			{Field: "call", Kind: wasm.ExternalFunction, Index: 0},
			{Field: "malloc", Kind: wasm.ExternalFunction, Index: 1},
		},
	}

	err := ext.Externalize(m, []string{"malloc"})
	require.NoError(t, err)

	require.Len(t, m.Funcs, 1)
	require.Len(t, m.Code, 1)
	require.Len(t, m.Imports, 1)
	require.Equal(t, "malloc", m.Imports[0].Field)
	require.Equal(t, wasm.ExternalFunction, m.Imports[0].Kind)

	// "call" (func0) is now at combined index 1 (one import ahead of it).
	require.Equal(t, uint32(1), m.Exports[0].Index)
	require.Equal(t, uint32(0), m.Code[0].Code[0].FuncIdx) // call now targets the import
	require.Equal(t, uint32(0), m.Exports[1].Index)        // malloc export now names the import
}

func TestExternalizeMemory(t *testing.T) {
	m := &wasm.Module{Mems: []wasm.MemoryType{{Limits: wasm.Limits{Initial: 1}}}}
	err := ext.ExternalizeMemory(m, nil, 16)
	require.NoError(t, err)

	require.Empty(t, m.Mems)
	require.Len(t, m.Imports, 1)
	require.Equal(t, wasm.ExternalMemory, m.Imports[0].Kind)
	require.Equal(t, uint32(1), m.Imports[0].Mem.Limits.Initial)
	require.Equal(t, uint32(16), *m.Imports[0].Mem.Limits.Maximum)
}

func TestShrinkUnknownStack(t *testing.T) {
	m := &wasm.Module{
		Data: []wasm.DataSegment{
			{Offset: []wasm.Instr{wasm.I32Const(4), wasm.End()}, Value: []byte{0, 0, 0, 0}},
			{Offset: []wasm.Instr{wasm.I32Const(8), wasm.End()}, Value: []byte{1, 2, 3, 4}},
		},
	}
	got, found := ext.ShrinkUnknownStack(m, 0x10000)
	require.True(t, found)
	require.Equal(t, uint32(0x10000), got)
	require.Equal(t, []byte{0x00, 0x00, 0x01, 0x00}, m.Data[0].Value)
	require.Equal(t, []byte{1, 2, 3, 4}, m.Data[1].Value)
}

func TestUnderscoreRoundTrip(t *testing.T) {
	m := &wasm.Module{
		Imports: []wasm.ImportEntry{{Module: "env", Field: "call", Kind: wasm.ExternalFunction}},
		Exports: []wasm.ExportEntry{{Field: "deploy", Kind: wasm.ExternalFunction}},
	}
	ext.UnderscoreFuncs(m)
	require.Equal(t, "_call", m.Imports[0].Field)
	require.Equal(t, "_deploy", m.Exports[0].Field)

	ext.UnUnderscoreFuncs(m)
	require.Equal(t, "call", m.Imports[0].Field)
	require.Equal(t, "deploy", m.Exports[0].Field)
}

func TestInjectRuntimeType(t *testing.T) {
	m := &wasm.Module{
		Globals: []wasm.GlobalEntry{{Type: wasm.Global{ValType: wasm.ValueTypeI32}, Init: []wasm.Instr{wasm.I32Const(42), wasm.End()}}},
	}
	ext.InjectRuntimeType(m, [4]byte{'e', 'm', 'c', 'c'}, 1)

	require.Len(t, m.Globals, 3)
	require.Len(t, m.Exports, 2)
	require.Equal(t, "RUNTIME_TYPE", m.Exports[0].Field)
	require.Equal(t, uint32(1), m.Exports[0].Index)
	require.Equal(t, "RUNTIME_VERSION", m.Exports[1].Field)
	require.Equal(t, uint32(2), m.Exports[1].Index)
}
