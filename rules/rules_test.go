package rules_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paritytech/wasm-utils/rules"
	"github.com/paritytech/wasm-utils/wasm"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		op   wasm.Op
		want rules.InstructionType
	}{
		{wasm.OpUnreachable, rules.Unreachable},
		{wasm.OpNop, rules.Nop},
		{wasm.OpCall, rules.ControlFlow},
		{wasm.OpBrTable, rules.ControlFlow},
		{wasm.OpLocalGet, rules.Local},
		{wasm.OpLocalTee, rules.Local},
		{wasm.OpGlobalSet, rules.Global},
		{wasm.OpMemorySize, rules.CurrentMemory},
		{wasm.OpMemoryGrow, rules.GrowMemory},
		{wasm.OpI32Const, rules.Const},
		{wasm.OpF64Const, rules.FloatConst},
		{wasm.OpI32LtS, rules.IntegerComparison},
		{wasm.OpF32Lt, rules.FloatComparison},
		{wasm.OpI32Xor, rules.Bit},
		{wasm.OpI64Rotr, rules.Bit},
		{wasm.OpI32Add, rules.Add},
		{wasm.OpI64Sub, rules.Add},
		{wasm.OpI32Mul, rules.Mul},
		{wasm.OpI32DivU, rules.Div},
		{wasm.OpI64RemS, rules.Div},
		{wasm.OpF32Sqrt, rules.Float},
		{wasm.OpF64Add, rules.Float},
		{wasm.OpI32WrapI64, rules.Conversion},
		{wasm.OpI64TruncF64S, rules.Conversion},
		{wasm.OpF32ConvertI32S, rules.FloatConversion},
		{wasm.OpF64PromoteF32, rules.FloatConversion},
		{wasm.OpI32ReinterpretF32, rules.Reinterpret},
		{wasm.OpF64ReinterpretI64, rules.Reinterpret},
		{wasm.OpI32Load, rules.Load},
		{wasm.OpI64Load32U, rules.Load},
		{wasm.OpI32Store, rules.Store},
		{wasm.OpI64Store32, rules.Store},
	}
	for _, c := range cases {
		require.Equalf(t, c.want, rules.Classify(c.op), "op %v", c.op)
	}
}

func TestSetProcessRegular(t *testing.T) {
	s := rules.NewSet(3, nil)
	cost, forbidden := s.Process(wasm.OpI32Add)
	require.False(t, forbidden)
	require.Equal(t, uint32(3), cost)
}

func TestSetProcessFixedOverride(t *testing.T) {
	s := rules.NewSet(1, map[rules.InstructionType]rules.Metering{
		rules.Mul: rules.FixedMetering(10),
	})
	cost, forbidden := s.Process(wasm.OpI32Mul)
	require.False(t, forbidden)
	require.Equal(t, uint32(10), cost)

	// categories without an override still charge the regular cost.
	cost, forbidden = s.Process(wasm.OpI32Add)
	require.False(t, forbidden)
	require.Equal(t, uint32(1), cost)
}

func TestSetProcessForbidden(t *testing.T) {
	s := rules.NewSet(1, map[rules.InstructionType]rules.Metering{
		rules.Div: rules.ForbiddenMetering(),
	})
	_, forbidden := s.Process(wasm.OpI32DivS)
	require.True(t, forbidden)
}

func TestDefaultSet(t *testing.T) {
	s := rules.DefaultSet()
	cost, forbidden := s.Process(wasm.OpI32Add)
	require.False(t, forbidden)
	require.Equal(t, uint32(1), cost)
	require.Equal(t, uint32(0), s.GrowCost())
}

func TestWithGrowCost(t *testing.T) {
	base := rules.DefaultSet()
	withGrow := base.WithGrowCost(1000)

	require.Equal(t, uint32(0), base.GrowCost())
	require.Equal(t, uint32(1000), withGrow.GrowCost())
}

func TestWithForbiddenFloats(t *testing.T) {
	base := rules.DefaultSet()
	strict := base.WithForbiddenFloats()

	for _, op := range []wasm.Op{wasm.OpF32Add, wasm.OpF64Const, wasm.OpF32Lt, wasm.OpF64PromoteF32} {
		_, forbidden := strict.Process(op)
		require.Truef(t, forbidden, "op %v should be forbidden", op)
	}

	// the base set is untouched by the derived copy.
	_, forbidden := base.Process(wasm.OpF32Add)
	require.False(t, forbidden)

	// reinterpret ops are bit-level, not rounding-sensitive, and stay regular.
	_, forbidden = strict.Process(wasm.OpF32ReinterpretI32)
	require.False(t, forbidden)
}
