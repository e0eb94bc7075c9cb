package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paritytech/wasm-utils/build"
)

type buildParams struct {
	input                  string
	output                 string
	ctorOutput             string
	sourceTarget           string
	publicAPI              []string
	enforceStackAdjustment bool
	stackSize              uint32
	skipOptimization       bool
	runtime                string
	runtimeType            string
	runtimeVersion         uint32
}

func newBuildCmd() *cobra.Command {
	var p buildParams
	cmd := &cobra.Command{
		Use:     "build",
		Short:   "Run the full post-processing pipeline, producing a runtime module and an optional constructor-packed module",
		PreRunE: bindEnv,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			m, err := readModule(p.input)
			if err != nil {
				return err
			}
			rt, err := parseRuntime(p.runtime)
			if err != nil {
				return err
			}

			opts := build.Options{
				PublicAPI:              p.publicAPI,
				EnforceStackAdjustment: p.enforceStackAdjustment,
				StackSize:              p.stackSize,
				SkipOptimization:       p.skipOptimization,
				Runtime:                rt,
				Log:                    log,
			}
			switch p.sourceTarget {
			case "emscripten":
				opts.SourceTarget = build.SourceEmscripten
			case "unknown", "":
				opts.SourceTarget = build.SourceUnknown
			default:
				return fmt.Errorf("unknown source target %q (want \"unknown\" or \"emscripten\")", p.sourceTarget)
			}
			if p.runtimeType != "" {
				tag, err := parseRuntimeTypeTag(p.runtimeType)
				if err != nil {
					return err
				}
				opts.RuntimeType = &build.RuntimeTypeVersion{Type: tag, Version: p.runtimeVersion}
			}

			runtimeModule, ctorModule, err := build.Build(m, opts)
			if err != nil {
				return err
			}
			if err := writeModule(p.output, runtimeModule); err != nil {
				return err
			}
			if ctorModule == nil {
				log.Info("build: module has no constructor entry, nothing packed")
				return nil
			}
			if p.ctorOutput == "" {
				return fmt.Errorf("build: module has a constructor entry, --ctor-output is required")
			}
			return writeModule(p.ctorOutput, ctorModule)
		},
	}
	cmd.Flags().StringVarP(&p.input, "input", "i", "", "input wasm module (required)")
	cmd.Flags().StringVarP(&p.output, "output", "o", "", "output runtime wasm module (required)")
	cmd.Flags().StringVar(&p.ctorOutput, "ctor-output", "", "output constructor-packed wasm module (required if the input exports a constructor)")
	cmd.Flags().StringVar(&p.sourceTarget, "source-target", "unknown", "compiler target the input came from: unknown or emscripten")
	cmd.Flags().StringSliceVar(&p.publicAPI, "public-api", nil, "export name to keep in the runtime module, beyond the runtime's call entry (repeatable)")
	cmd.Flags().BoolVar(&p.enforceStackAdjustment, "enforce-stack-adjustment", false, "shrink the unknown-target stack pointer to --stack-size before externalizing memory")
	cmd.Flags().Uint32Var(&p.stackSize, "stack-size", 49152, "stack size in bytes, used only with --enforce-stack-adjustment")
	cmd.Flags().BoolVar(&p.skipOptimization, "skip-optimization", false, "skip the dead-code elimination passes")
	cmd.Flags().StringVar(&p.runtime, "target", "pwasm", "target runtime preset: pwasm or substrate")
	cmd.Flags().StringVar(&p.runtimeType, "runtime-type", "", "4-byte hex tag to stamp as RUNTIME_TYPE (e.g. 706f7773 for \"pows\"); omit to skip")
	cmd.Flags().Uint32Var(&p.runtimeVersion, "runtime-version", 0, "version to stamp as RUNTIME_VERSION, used only with --runtime-type")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func parseRuntimeTypeTag(s string) ([4]byte, error) {
	var tag [4]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return tag, fmt.Errorf("--runtime-type: %w", err)
	}
	if len(b) != 4 {
		return tag, fmt.Errorf("--runtime-type: want exactly 4 bytes (8 hex characters), got %d", len(b))
	}
	copy(tag[:], b)
	return tag, nil
}

func init() {
	rootCmd.AddCommand(newBuildCmd())
}
