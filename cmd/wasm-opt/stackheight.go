package main

import (
	"github.com/spf13/cobra"

	"github.com/paritytech/wasm-utils/stackheight"
)

type stackHeightParams struct {
	input  string
	output string
	limit  uint32
}

func newStackHeightCmd() *cobra.Command {
	var p stackHeightParams
	cmd := &cobra.Command{
		Use:     "stack-height",
		Short:   "Instrument every call site with a stack-height trap check, synthesizing thunks for exports",
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
			out, err := stackheight.Instrument(m, p.limit)
			if err != nil {
				return err
			}
			log.Infof("stack-height: instrumented with limit %d", p.limit)
			return writeModule(p.output, out)
		},
	}
	cmd.Flags().StringVarP(&p.input, "input", "i", "", "input wasm module (required)")
	cmd.Flags().StringVarP(&p.output, "output", "o", "", "output wasm module (required)")
	cmd.Flags().Uint32VarP(&p.limit, "limit", "l", 1024, "maximum allowed stack height")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func init() {
	rootCmd.AddCommand(newStackHeightCmd())
}
