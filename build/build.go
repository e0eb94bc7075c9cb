// Package build orchestrates the full post-processing pipeline: the
// sequence of ext/optimizer/pack passes a compiled wasm binary goes through
// on its way to becoming a deployable runtime module plus an optional
// constructor-packed module.
package build

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/paritytech/wasm-utils/ext"
	"github.com/paritytech/wasm-utils/optimizer"
	"github.com/paritytech/wasm-utils/pack"
	"github.com/paritytech/wasm-utils/target"
	"github.com/paritytech/wasm-utils/wasm"
)

// SourceTarget names the compiler target the input module was produced by,
// which decides whether the underscore and stack-shrink/memory-externalize
// steps run.
type SourceTarget int

const (
	SourceUnknown SourceTarget = iota
	SourceEmscripten
)

// RuntimeTypeVersion, when set on Options, causes Build to stamp the
// module with a RUNTIME_TYPE/RUNTIME_VERSION global pair.
type RuntimeTypeVersion struct {
	Type    [4]byte
	Version uint32
}

// Options configures one Build call. PublicAPI is the list of export names
// to keep beyond the runtime's own Call entry; Runtime's Call export is
// always added to the keep-list automatically.
type Options struct {
	SourceTarget           SourceTarget
	RuntimeType            *RuntimeTypeVersion
	PublicAPI              []string
	EnforceStackAdjustment bool
	StackSize              uint32
	SkipOptimization       bool
	Runtime                target.Runtime

	// Log receives a trace of which pass ran and what it changed. A nil Log
	// is valid and simply discards the trace.
	Log *logrus.Logger
}

const maxStackSize = 1024 * 1024 // 1MiB, the ceiling build.rs itself asserts against.

// ErrStackSizeTooLarge is returned when Options.StackSize exceeds the 1MiB
// ceiling, which is checked when EnforceStackAdjustment is set on a
// SourceUnknown build.
var ErrStackSizeTooLarge = fmt.Errorf("build: stack size exceeds %d bytes", maxStackSize)

// Build runs the pipeline over m (mutated in place) and returns the
// resulting runtime module plus, if the module exports a create entry, a
// separate constructor-packed module embedding the runtime module's
// serialized bytes. The constructor return is nil when there is no create
// export to pack.
func Build(m *wasm.Module, opts Options) (*wasm.Module, *wasm.Module, error) {
	logf := opts.Log
	trace := func(format string, args ...interface{}) {
		if logf != nil {
			logf.Debugf(format, args...)
		}
	}

	if opts.SourceTarget == SourceEmscripten {
		ext.UnUnderscoreFuncs(m)
		trace("un-underscored emscripten export/import names")
	}

	if opts.SourceTarget == SourceUnknown {
		if opts.EnforceStackAdjustment {
			if opts.StackSize > maxStackSize {
				return nil, nil, ErrStackSizeTooLarge
			}
			newTop, found := ext.ShrinkUnknownStack(m, opts.StackSize)
			if found {
				trace("shrunk unknown-target stack pointer to %d", newTop)
			}
			stackTopPage := newTop / wasmPageSize
			if newTop%wasmPageSize > 0 {
				stackTopPage++
			}
			if err := ext.ExternalizeMemory(m, &stackTopPage, 16); err != nil {
				return nil, nil, fmt.Errorf("build: externalize memory: %w", err)
			}
		} else {
			if err := ext.ExternalizeMemory(m, nil, 16); err != nil {
				return nil, nil, fmt.Errorf("build: externalize memory: %w", err)
			}
		}
		trace("externalized memory for unknown target")
	}

	if opts.RuntimeType != nil {
		ext.InjectRuntimeType(m, opts.RuntimeType.Type, opts.RuntimeType.Version)
		trace("injected runtime type %q version %d", opts.RuntimeType.Type, opts.RuntimeType.Version)
	}

	ctor := m.Clone()

	keep := append(append([]string(nil), opts.PublicAPI...), opts.Runtime.Call)
	if !opts.SkipOptimization {
		res, err := optimizer.Optimize(m, keep)
		if err != nil {
			return nil, nil, fmt.Errorf("build: optimize runtime module: %w", err)
		}
		trace("optimized runtime module: kept %v, eliminated %d funcs, %d globals, %d types",
			keep, len(res.EliminatedFuncs), len(res.EliminatedGlobals), len(res.EliminatedTypes))
	}

	if !hasExport(ctor, opts.Runtime.Create) {
		return m, nil, nil
	}

	if !opts.SkipOptimization {
		if _, err := optimizer.Optimize(ctor, []string{opts.Runtime.Create}); err != nil {
			return nil, nil, fmt.Errorf("build: optimize constructor module: %w", err)
		}
		trace("optimized constructor module: kept [%s]", opts.Runtime.Create)
	}

	packed, err := pack.Pack(m.Encode(), ctor, opts.Runtime)
	if err != nil {
		return nil, nil, fmt.Errorf("build: pack constructor: %w", err)
	}
	trace("packed constructor module")

	return m, packed, nil
}

const wasmPageSize = 65536

func hasExport(m *wasm.Module, name string) bool {
	for _, e := range m.Exports {
		if e.Field == name && e.Kind == wasm.ExternalFunction {
			return true
		}
	}
	return false
}
