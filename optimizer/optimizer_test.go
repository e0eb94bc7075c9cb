package optimizer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paritytech/wasm-utils/optimizer"
	"github.com/paritytech/wasm-utils/wasm"
)

// buildModule constructs: two function types (void->void, i32->void), two
// functions (the second unused), one global, two exports (_call reaching
// function 0 and the global; _unused reaching function 1 only).
func buildModule() *wasm.Module {
	voidToVoid := wasm.FuncType(nil, nil)
	i32ToVoid := wasm.FuncType([]wasm.ValueType{wasm.ValueTypeI32}, nil)

	m := &wasm.Module{
		Types: []wasm.FunctionType{voidToVoid, i32ToVoid},
		Funcs: []uint32{0, 1},
		Globals: []wasm.GlobalEntry{
			{Type: wasm.Global{ValType: wasm.ValueTypeI32, Mutable: true}, Init: []wasm.Instr{wasm.I32Const(0), wasm.End()}},
		},
		Exports: []wasm.ExportEntry{
			{Field: "_call", Kind: wasm.ExternalFunction, Index: 0},
			{Field: "_unused", Kind: wasm.ExternalFunction, Index: 1},
		},
		Code: []wasm.FunctionBody{
			{Code: []wasm.Instr{wasm.GlobalGet(0), wasm.End()}},
			{Code: []wasm.Instr{wasm.End()}},
		},
	}
	return m
}

func TestOptimizeKeepCall(t *testing.T) {
	m := buildModule()
	_, err := optimizer.Optimize(m, []string{"_call"})
	require.NoError(t, err)

	require.Len(t, m.Exports, 1)
	require.Equal(t, "_call", m.Exports[0].Field)
	require.Len(t, m.Funcs, 1)
	require.Len(t, m.Code, 1)
	require.Len(t, m.Globals, 1)
	require.Len(t, m.Types, 1)

	require.Equal(t, uint32(0), m.Exports[0].Index)
	require.Equal(t, wasm.OpGlobalGet, m.Code[0].Code[0].Op)
	require.Equal(t, uint32(0), m.Code[0].Code[0].GlobalIdx)
}

func TestOptimizeNoExportSectionErrors(t *testing.T) {
	m := &wasm.Module{}
	_, err := optimizer.Optimize(m, []string{"_call"})
	require.ErrorIs(t, err, optimizer.ErrNoExportSection)
}

func TestOptimizeEmptyKeepListIsNoop(t *testing.T) {
	m := &wasm.Module{}
	_, err := optimizer.Optimize(m, nil)
	require.NoError(t, err)
}
