package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/paritytech/wasm-utils/pack"
)

type packParams struct {
	runtimeInput string
	ctorInput    string
	output       string
	runtime      string
}

func newPackCmd() *cobra.Command {
	var p packParams
	cmd := &cobra.Command{
		Use:     "pack",
		Short:   "Embed an already-built runtime module inside a constructor module",
		PreRunE: bindEnv,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(p.runtimeInput)
			if err != nil {
				return err
			}
			ctor, err := readModule(p.ctorInput)
			if err != nil {
				return err
			}
			rt, err := parseRuntime(p.runtime)
			if err != nil {
				return err
			}
			out, err := pack.Pack(raw, ctor, rt)
			if err != nil {
				return err
			}
			log.Infof("pack: embedded %d bytes from %s into %s", len(raw), p.runtimeInput, p.ctorInput)
			return writeModule(p.output, out)
		},
	}
	cmd.Flags().StringVar(&p.runtimeInput, "runtime", "", "path to the already-built, serialized runtime module (required)")
	cmd.Flags().StringVar(&p.ctorInput, "ctor", "", "path to the constructor candidate wasm module (required)")
	cmd.Flags().StringVarP(&p.output, "output", "o", "", "output wasm module (required)")
	cmd.Flags().StringVar(&p.runtime, "target", "pwasm", "target runtime preset: pwasm or substrate")
	_ = cmd.MarkFlagRequired("runtime")
	_ = cmd.MarkFlagRequired("ctor")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func init() {
	rootCmd.AddCommand(newPackCmd())
}
