package build_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paritytech/wasm-utils/build"
	"github.com/paritytech/wasm-utils/target"
	"github.com/paritytech/wasm-utils/wasm"
)

// a single void->void function, exported both as "call" (the public API
// entry every keep-list needs) and "deploy" (the constructor entry).
func buildModule() *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FunctionType{wasm.FuncType(nil, nil)},
		Funcs: []uint32{0, 0},
		Mems:  []wasm.MemoryType{{Limits: wasm.Limits{Initial: 1}}},
		Code: []wasm.FunctionBody{
			{Code: []wasm.Instr{wasm.End()}},
			{Code: []wasm.Instr{wasm.End()}},
		},
		Exports: []wasm.ExportEntry{
			{Field: "call", Kind: wasm.ExternalFunction, Index: 0},
			{Field: "deploy", Kind: wasm.ExternalFunction, Index: 1},
		},
	}
}

func TestBuildProducesRuntimeAndConstructor(t *testing.T) {
	m := buildModule()

	runtime, ctor, err := build.Build(m, build.Options{
		SourceTarget: build.SourceUnknown,
		Runtime:      target.PWasm(),
	})
	require.NoError(t, err)
	require.NotNil(t, runtime)
	require.NotNil(t, ctor)

	// The memory was externalized as part of the SourceUnknown path.
	require.Empty(t, runtime.Mems)
	require.Len(t, runtime.Imports, 1)
	require.Equal(t, wasm.ExternalMemory, runtime.Imports[0].Kind)

	var callExport *wasm.ExportEntry
	for i := range ctor.Exports {
		if ctor.Exports[i].Field == "call" {
			callExport = &ctor.Exports[i]
		}
	}
	require.NotNil(t, callExport, "constructor module must rebind its create export to \"call\"")
}

func TestBuildSkipsPackWithoutCreateExport(t *testing.T) {
	m := buildModule()
	m.Exports = m.Exports[:1] // drop "deploy"

	runtime, ctor, err := build.Build(m, build.Options{
		SourceTarget: build.SourceUnknown,
		Runtime:      target.PWasm(),
	})
	require.NoError(t, err)
	require.NotNil(t, runtime)
	require.Nil(t, ctor)
}

func TestBuildRejectsOversizedStack(t *testing.T) {
	m := buildModule()

	_, _, err := build.Build(m, build.Options{
		SourceTarget:           build.SourceUnknown,
		EnforceStackAdjustment: true,
		StackSize:              2 * 1024 * 1024,
		Runtime:                target.PWasm(),
	})
	require.ErrorIs(t, err, build.ErrStackSizeTooLarge)
}
