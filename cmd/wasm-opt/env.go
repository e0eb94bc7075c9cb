package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/paritytech/wasm-utils/target"
	"github.com/paritytech/wasm-utils/wasm"
)

const envPrefix = "wasm_opt"

// bindEnv lets every subcommand's flags also be set from WASM_OPT_<CMD>_*
// environment variables, for flags the user didn't pass explicitly,
// mirroring the per-command viper binding the rest of the retrieved pack's
// cobra CLIs use.
func bindEnv(cmd *cobra.Command) error {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvPrefix(fmt.Sprintf("%s_%s", envPrefix, cmd.Name()))

	var errs []string
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		name := strings.ReplaceAll(f.Name, "-", "_")
		if !f.Changed && v.IsSet(name) {
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", v.Get(name))); err != nil {
				errs = append(errs, err.Error())
			}
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("binding environment to flags: %s", strings.Join(errs, "; "))
	}
	return nil
}

func readModule(path string) (*wasm.Module, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	m, err := wasm.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return m, nil
}

func writeModule(path string, m *wasm.Module) error {
	if err := os.WriteFile(path, m.Encode(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func parseRuntime(name string) (target.Runtime, error) {
	switch strings.ToLower(name) {
	case "pwasm":
		return target.PWasm(), nil
	case "substrate":
		return target.Substrate(), nil
	default:
		return target.Runtime{}, fmt.Errorf("unknown target runtime %q (want \"pwasm\" or \"substrate\")", name)
	}
}
