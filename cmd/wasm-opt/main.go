// Command wasm-opt is the CLI front end for this repository's passes,
// mirroring the five original Rust binaries (build, optimize, gas,
// stack-height, pack) as cobra subcommands of one tool.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/paritytech/wasm-utils/internal/wlog"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "wasm-opt",
	Short:         "Post-process wasm contract binaries: dead-code elimination, gas metering, stack-height limiting, constructor packing",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

// newLogger builds the logger every subcommand's RunE uses to trace
// its pass, honoring the --log-level persistent flag.
func newLogger() (*logrus.Logger, error) {
	return wlog.New(logLevel)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
