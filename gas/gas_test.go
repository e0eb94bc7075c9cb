package gas_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paritytech/wasm-utils/gas"
	"github.com/paritytech/wasm-utils/rules"
	"github.com/paritytech/wasm-utils/wasm"
)

// oneFuncModule builds a module with a single void->void function whose
// body is exactly code, and nothing else.
func oneFuncModule(code []wasm.Instr) *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FunctionType{wasm.FuncType(nil, nil)},
		Funcs: []uint32{0},
		Code:  []wasm.FunctionBody{{Code: code}},
	}
}

func TestInjectSimple(t *testing.T) {
	m := oneFuncModule([]wasm.Instr{wasm.GlobalGet(0), wasm.End()})
	out, err := gas.Inject(m, rules.DefaultSet(), "env", "gas")
	require.NoError(t, err)

	want := []wasm.Instr{
		wasm.I32Const(2), wasm.Call(0),
		wasm.GlobalGet(0), wasm.End(),
	}
	require.Equal(t, want, out.Code[0].Code)
}

func TestInjectNestedBlock(t *testing.T) {
	body := []wasm.Instr{
		wasm.GlobalGet(0),
		wasm.BlockInstr(wasm.BlockTypeEmpty),
		wasm.GlobalGet(0), wasm.GlobalGet(0), wasm.GlobalGet(0),
		wasm.End(),
		wasm.GlobalGet(0),
		wasm.End(),
	}
	m := oneFuncModule(body)
	out, err := gas.Inject(m, rules.DefaultSet(), "env", "gas")
	require.NoError(t, err)

	want := []wasm.Instr{
		wasm.I32Const(4), wasm.Call(0),
		wasm.GlobalGet(0),
		wasm.BlockInstr(wasm.BlockTypeEmpty),
		wasm.I32Const(4), wasm.Call(0),
		wasm.GlobalGet(0), wasm.GlobalGet(0), wasm.GlobalGet(0),
		wasm.End(),
		wasm.GlobalGet(0),
		wasm.End(),
	}
	require.Equal(t, want, out.Code[0].Code)
}

func TestInjectIfElse(t *testing.T) {
	body := []wasm.Instr{
		wasm.GlobalGet(0),
		wasm.IfInstr(wasm.BlockTypeEmpty),
		wasm.GlobalGet(0), wasm.GlobalGet(0), wasm.GlobalGet(0),
		wasm.Else(),
		wasm.GlobalGet(0), wasm.GlobalGet(0),
		wasm.End(),
		wasm.GlobalGet(0),
		wasm.End(),
	}
	m := oneFuncModule(body)
	out, err := gas.Inject(m, rules.DefaultSet(), "env", "gas")
	require.NoError(t, err)

	want := []wasm.Instr{
		wasm.I32Const(4), wasm.Call(0),
		wasm.GlobalGet(0),
		wasm.IfInstr(wasm.BlockTypeEmpty),
		wasm.I32Const(4), wasm.Call(0),
		wasm.GlobalGet(0), wasm.GlobalGet(0), wasm.GlobalGet(0),
		wasm.Else(),
		wasm.I32Const(3), wasm.Call(0),
		wasm.GlobalGet(0), wasm.GlobalGet(0),
		wasm.End(),
		wasm.GlobalGet(0),
		wasm.End(),
	}
	require.Equal(t, want, out.Code[0].Code)
}

func TestInjectGrowMemory(t *testing.T) {
	body := []wasm.Instr{wasm.GlobalGet(0), wasm.MemoryGrow(), wasm.End()}
	m := oneFuncModule(body)
	set := rules.DefaultSet().WithGrowCost(10000)
	out, err := gas.Inject(m, set, "env", "gas")
	require.NoError(t, err)

	want := []wasm.Instr{
		wasm.I32Const(3), wasm.Call(0),
		wasm.GlobalGet(0),
		wasm.Call(2),
		wasm.End(),
	}
	require.Equal(t, want, out.Code[0].Code)

	require.Len(t, out.Code, 2)
	growBody := out.Code[1].Code
	require.Equal(t, []wasm.Instr{
		wasm.LocalGet(0), wasm.LocalGet(0),
		wasm.I32Const(10000), wasm.I32Mul(),
		wasm.Call(0), wasm.MemoryGrow(), wasm.End(),
	}, growBody)
}

func TestInjectForbiddenLeavesModuleUntouched(t *testing.T) {
	body := []wasm.Instr{wasm.Instr{Op: wasm.OpF32Add}, wasm.End()}
	m := oneFuncModule(body)
	set := rules.DefaultSet().WithForbiddenFloats()

	_, err := gas.Inject(m, set, "env", "gas")
	require.Error(t, err)

	var gasErr *gas.Error
	require.ErrorAs(t, err, &gasErr)
	require.Same(t, m, gasErr.Module)
	require.Empty(t, m.Imports)
}

func TestInjectShiftsExistingCalls(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FunctionType{wasm.FuncType(nil, nil)},
		Funcs: []uint32{0, 0},
		Exports: []wasm.ExportEntry{
			{Field: "entry", Kind: wasm.ExternalFunction, Index: 1},
		},
		Code: []wasm.FunctionBody{
			{Code: []wasm.Instr{wasm.End()}},
			{Code: []wasm.Instr{wasm.Call(0), wasm.End()}},
		},
	}
	out, err := gas.Inject(m, rules.DefaultSet(), "env", "gas")
	require.NoError(t, err)

	require.Equal(t, uint32(2), out.Exports[0].Index)
	require.Equal(t, uint32(1), out.Code[1].Code[2].FuncIdx)
}
