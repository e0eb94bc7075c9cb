package main

import (
	"github.com/spf13/cobra"

	"github.com/paritytech/wasm-utils/gas"
	"github.com/paritytech/wasm-utils/rules"
)

type gasParams struct {
	input         string
	output        string
	module        string
	field         string
	regularCost   uint32
	growCost      uint32
	forbidFloats  bool
	checkOnly     bool
}

func newGasCmd() *cobra.Command {
	var p gasParams
	cmd := &cobra.Command{
		Use:     "gas",
		Short:   "Inject gas metering calls into every function body",
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

			if p.checkOnly {
				violations := gas.CheckDeterministic(m)
				for _, v := range violations {
					log.Warn(v.String())
				}
				if len(violations) > 0 {
					return &nonDeterministicError{count: len(violations)}
				}
				log.Info("check: module contains no floating-point instructions")
				return nil
			}

			set := rules.NewSet(p.regularCost, nil)
			if p.growCost > 0 {
				set = set.WithGrowCost(p.growCost)
			}
			if p.forbidFloats {
				set = set.WithForbiddenFloats()
			}

			out, err := gas.Inject(m, set, p.module, p.field)
			if err != nil {
				return err
			}
			log.Infof("gas: instrumented against %s.%s, regular cost %d, grow cost %d", p.module, p.field, p.regularCost, p.growCost)
			return writeModule(p.output, out)
		},
	}
	cmd.Flags().StringVarP(&p.input, "input", "i", "", "input wasm module (required)")
	cmd.Flags().StringVarP(&p.output, "output", "o", "", "output wasm module (required unless --check-only)")
	cmd.Flags().StringVar(&p.module, "gas-module", "env", "import module name for the gas host function")
	cmd.Flags().StringVar(&p.field, "gas-field", "gas", "import field name for the gas host function")
	cmd.Flags().Uint32Var(&p.regularCost, "cost", 1, "default per-instruction cost")
	cmd.Flags().Uint32Var(&p.growCost, "grow-cost", 0, "per-page memory.grow cost (0 disables grow metering)")
	cmd.Flags().BoolVar(&p.forbidFloats, "forbid-floats", false, "reject modules using floating-point instructions instead of metering them")
	cmd.Flags().BoolVar(&p.checkOnly, "check-only", false, "only report floating-point instructions found, write nothing")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

type nonDeterministicError struct{ count int }

func (e *nonDeterministicError) Error() string {
	if e.count == 1 {
		return "gas: 1 non-deterministic instruction found"
	}
	return "gas: non-deterministic instructions found"
}

func init() {
	rootCmd.AddCommand(newGasCmd())
}
