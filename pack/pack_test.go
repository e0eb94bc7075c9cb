package pack_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paritytech/wasm-utils/pack"
	"github.com/paritytech/wasm-utils/target"
	"github.com/paritytech/wasm-utils/wasm"
)

func buildCtor() *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FunctionType{wasm.FuncType(nil, nil)},
		Funcs: []uint32{0},
		Code:  []wasm.FunctionBody{{Code: []wasm.Instr{wasm.End()}}},
		Exports: []wasm.ExportEntry{
			{Field: "deploy", Kind: wasm.ExternalFunction, Index: 0},
		},
	}
}

func TestPackNoDataSection(t *testing.T) {
	ctor := buildCtor()
	raw := []byte{1, 2, 3, 4, 5}

	out, err := pack.Pack(raw, ctor, target.PWasm())
	require.NoError(t, err)

	require.Len(t, out.Data, 1)
	require.Equal(t, raw, out.Data[0].Value)
	require.Equal(t, int32(0), out.Data[0].Offset[0].I32)

	require.Len(t, out.Imports, 1)
	require.Equal(t, "ret", out.Imports[0].Field)

	var callExport *wasm.ExportEntry
	for i := range out.Exports {
		if out.Exports[i].Field == "call" {
			callExport = &out.Exports[i]
		}
	}
	require.NotNil(t, callExport)

	wrapperIdx := callExport.Index
	wrapperBody := out.Code[wrapperIdx-uint32(out.FuncImportCount())].Code
	require.Equal(t, wasm.OpCall, wrapperBody[0].Op)
	// "deploy"/create shifted from combined index 0 to 1 once the new ret
	// import is inserted ahead of every defined function.
	require.Equal(t, uint32(1), wrapperBody[0].FuncIdx)
	require.Equal(t, wasm.OpI32Const, wrapperBody[1].Op)
	require.Equal(t, int32(0), wrapperBody[1].I32) // code data address
	require.Equal(t, wasm.OpI32Const, wrapperBody[2].Op)
	require.Equal(t, int32(len(raw)), wrapperBody[2].I32)
	require.Equal(t, wasm.OpCall, wrapperBody[3].Op)
	require.Equal(t, uint32(0), wrapperBody[3].FuncIdx) // the ret import, at combined index 0
	require.Equal(t, wasm.OpEnd, wrapperBody[4].Op)
}

func TestPackRoundsUpOffsetToFourByteBoundary(t *testing.T) {
	ctor := buildCtor()
	ctor.Data = []wasm.DataSegment{
		{Mode: wasm.SegmentActive, Offset: []wasm.Instr{wasm.I32Const(0), wasm.End()}, Value: []byte{1, 2, 3}},
	}
	raw := []byte{9, 9}

	out, err := pack.Pack(raw, ctor, target.PWasm())
	require.NoError(t, err)

	require.Len(t, out.Data, 2)
	// prior segment ends at offset 0 + len 3 = 3, rounded up to 4.
	require.Equal(t, int32(4), out.Data[1].Offset[0].I32)
}

func TestPackExistingRetImportIsReused(t *testing.T) {
	ctor := buildCtor()
	ctor.Imports = []wasm.ImportEntry{
		{Module: "env", Field: "ret", Kind: wasm.ExternalFunction, FuncTypeIdx: 0},
	}
	// Shift create's combined index now that an import precedes it: 0 -> 1.
	ctor.Exports[0].Index = 1

	out, err := pack.Pack([]byte{1}, ctor, target.PWasm())
	require.NoError(t, err)
	require.Len(t, out.Imports, 1) // no new ret import inserted
}

func TestPackRejectsNonVoidCreateSignature(t *testing.T) {
	ctor := &wasm.Module{
		Types:   []wasm.FunctionType{wasm.FuncType([]wasm.ValueType{wasm.ValueTypeI32}, nil)},
		Funcs:   []uint32{0},
		Code:    []wasm.FunctionBody{{Code: []wasm.Instr{wasm.End()}}},
		Exports: []wasm.ExportEntry{{Field: "deploy", Kind: wasm.ExternalFunction, Index: 0}},
	}
	_, err := pack.Pack([]byte{1}, ctor, target.PWasm())
	require.ErrorIs(t, err, pack.ErrInvalidCreateSig)
}
