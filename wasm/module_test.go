package wasm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paritytech/wasm-utils/wasm"
)

// fixtureModule exercises every section kind the decoder/encoder handles:
// an imported function, a declared function calling it and touching a
// declared global, a table with a max, an element segment, and a data
// segment.
func fixtureModule() *wasm.Module {
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
		Start: &startFunc,
		Elements: []wasm.ElementSegment{
			{Mode: wasm.SegmentActive, Offset: []wasm.Instr{wasm.I32Const(0), wasm.End()}, Members: []uint32{1}},
		},
		Code: []wasm.FunctionBody{
			{Locals: []wasm.LocalGroup{{Count: 2, Type: wasm.ValueTypeI32}}, Code: []wasm.Instr{
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

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := fixtureModule()

	b := m.Encode()
	out, err := wasm.Decode(b)
	require.NoError(t, err)
	require.Equal(t, m, out)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	b := fixtureModule().Encode()
	b[0] = 0xff
	_, err := wasm.Decode(b)
	require.Error(t, err)
}

func TestDecodeRejectsShortInput(t *testing.T) {
	_, err := wasm.Decode([]byte{0x00, 0x61, 0x73})
	require.Error(t, err)
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	b := fixtureModule().Encode()
	b[4] = 2
	_, err := wasm.Decode(b)
	require.Error(t, err)
}

func TestCloneIsIndependentOfSource(t *testing.T) {
	m := fixtureModule()
	clone := m.Clone()
	require.Equal(t, m, clone)

	clone.Types = append(clone.Types, wasm.FuncType(nil, []wasm.ValueType{wasm.ValueTypeI64}))
	require.Len(t, m.Types, 2, "mutating the clone's Types must not affect the source")

	clone.Code[0].Code[0] = wasm.Nop()
	require.Equal(t, wasm.GlobalGet(0), m.Code[0].Code[0], "mutating the clone's instructions must not affect the source")

	*clone.Tables[0].Limits.Maximum = 99
	require.Equal(t, uint32(1), *m.Tables[0].Limits.Maximum, "clone must not share the Maximum pointer with the source")
}
