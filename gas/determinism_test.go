package gas_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paritytech/wasm-utils/gas"
	"github.com/paritytech/wasm-utils/rules"
	"github.com/paritytech/wasm-utils/wasm"
)

func TestCheckDeterministicFindsFloatOps(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FunctionType{wasm.FuncType(nil, nil)},
		Funcs: []uint32{0},
		Code: []wasm.FunctionBody{
			{Code: []wasm.Instr{
				wasm.Instr{Op: wasm.OpF32Const},
				wasm.Instr{Op: wasm.OpI32Const},
				wasm.Instr{Op: wasm.OpF64Add},
				wasm.End(),
			}},
		},
	}

	violations := gas.CheckDeterministic(m)
	require.Len(t, violations, 2)
	require.Equal(t, 0, violations[0].InstrIndex)
	require.Equal(t, rules.FloatConst, violations[0].Category)
	require.Equal(t, 2, violations[1].InstrIndex)
	require.Equal(t, rules.Float, violations[1].Category)
}

func TestCheckDeterministicCleanModule(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FunctionType{wasm.FuncType(nil, nil)},
		Funcs: []uint32{0},
		Code:  []wasm.FunctionBody{{Code: []wasm.Instr{wasm.I32Const(1), wasm.End()}}},
	}
	require.Empty(t, gas.CheckDeterministic(m))
}
