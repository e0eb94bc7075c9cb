package main

import (
	"github.com/spf13/cobra"

	"github.com/paritytech/wasm-utils/optimizer"
)

type optimizeParams struct {
	input  string
	output string
	keep   []string
}

func newOptimizeCmd() *cobra.Command {
	var p optimizeParams
	cmd := &cobra.Command{
		Use:     "optimize",
		Short:   "Eliminate everything unreachable from a set of kept exports",
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
			res, err := optimizer.Optimize(m, p.keep)
			if err != nil {
				return err
			}
			log.Infof("optimize: kept %v, eliminated %d funcs, %d globals, %d types, %d exports",
				p.keep, len(res.EliminatedFuncs), len(res.EliminatedGlobals), len(res.EliminatedTypes), len(res.EliminatedExports))
			return writeModule(p.output, m)
		},
	}
	cmd.Flags().StringVarP(&p.input, "input", "i", "", "input wasm module (required)")
	cmd.Flags().StringVarP(&p.output, "output", "o", "", "output wasm module (required)")
	cmd.Flags().StringSliceVarP(&p.keep, "keep", "k", nil, "export name to keep (repeatable)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func init() {
	rootCmd.AddCommand(newOptimizeCmd())
}
