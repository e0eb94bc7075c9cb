package stackheight_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paritytech/wasm-utils/stackheight"
	"github.com/paritytech/wasm-utils/wasm"
)

// buildModule is the STACK-SIMPLE fixture: a single exported function with
// one local and a body whose value stack peaks at height 2.
func buildModule() *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FunctionType{wasm.FuncType(nil, nil)},
		Funcs: []uint32{0},
		Code: []wasm.FunctionBody{{
			Locals: []wasm.LocalGroup{{Count: 1, Type: wasm.ValueTypeI32}},
			Code: []wasm.Instr{
				wasm.I32Const(1), wasm.I32Const(2), wasm.I32Add(), wasm.Instr{Op: wasm.OpDrop}, wasm.End(),
			},
		}},
		Exports: []wasm.ExportEntry{{Field: "call", Kind: wasm.ExternalFunction, Index: 0}},
	}
}

func TestInstrumentGeneratesThunkMatchingScenario(t *testing.T) {
	m := buildModule()
	out, err := stackheight.Instrument(m, 1024)
	require.NoError(t, err)

	require.Len(t, out.Globals, 1)
	require.Equal(t, out.Exports[0].Index, uint32(1))

	want := []wasm.Instr{
		wasm.GlobalGet(0), wasm.I32Const(3), wasm.I32Add(), wasm.GlobalSet(0),
		wasm.GlobalGet(0), wasm.I32Const(1024), wasm.I32GtU(),
		wasm.IfInstr(wasm.BlockTypeEmpty), wasm.Unreachable(), wasm.End(),
		wasm.Call(0),
		wasm.GlobalGet(0), wasm.I32Const(3), wasm.I32Sub(), wasm.GlobalSet(0),
		wasm.End(),
	}
	require.Equal(t, want, out.Code[1].Code)
}

func TestInstrumentSkipsZeroCostExport(t *testing.T) {
	m := &wasm.Module{
		Types:   []wasm.FunctionType{wasm.FuncType(nil, nil)},
		Funcs:   []uint32{0},
		Code:    []wasm.FunctionBody{{Code: []wasm.Instr{wasm.End()}}},
		Exports: []wasm.ExportEntry{{Field: "call", Kind: wasm.ExternalFunction, Index: 0}},
	}
	out, err := stackheight.Instrument(m, 1024)
	require.NoError(t, err)

	require.Equal(t, uint32(0), out.Exports[0].Index)
	require.Len(t, out.Code, 1)
}

func TestInstrumentCallSite(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FunctionType{wasm.FuncType(nil, nil)},
		Funcs: []uint32{0, 0},
		Code: []wasm.FunctionBody{
			{Code: []wasm.Instr{
				wasm.I32Const(1), wasm.I32Const(2), wasm.I32Add(), wasm.Instr{Op: wasm.OpDrop}, wasm.End(),
			}},
			{Code: []wasm.Instr{wasm.Call(0), wasm.End()}},
		},
	}
	out, err := stackheight.Instrument(m, 1024)
	require.NoError(t, err)

	body := out.Code[1].Code
	require.Equal(t, wasm.OpCall, body[10].Op)
	require.Equal(t, uint32(0), body[10].FuncIdx)
	require.Len(t, body, 16)
}
