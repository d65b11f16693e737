// Package config resolves cobra flags from a config file and the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Options configures InitFileConfig.
type Options struct {
	// FilePath is the config file to load, including its extension. Any format viper supports is
	// accepted. Empty means flags and environment only.
	FilePath string

	// EnvPrefix is prepended to flag names to form environment variables. "CUSTODYD" makes --dataDir
	// readable from CUSTODYD_DATADIR.
	EnvPrefix string
}

// InitFileConfig applies config values to every flag of cmd that was not set on the command line, with
// the following precedence:
// 1. Command line flags
// 2. Environment variables
// 3. Config file
// 4. Cobra default values
func InitFileConfig(cmd *cobra.Command, options Options) error {
	v := viper.New()

	if options.FilePath != "" {
		v.SetConfigFile(options.FilePath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", options.FilePath, err)
		}
	}

	v.SetEnvPrefix(options.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return bindFlags(cmd, v)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed || !v.IsSet(f.Name) {
			return
		}
		if setErr := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); setErr != nil {
			err = fmt.Errorf("failed to bind flag %s: %w", f.Name, setErr)
		}
	})
	return err
}
