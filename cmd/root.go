package cmd

import (
	"fmt"
	"os"

	"github.com/certusone/wormhole/custody/cmd/custodyd"
	"github.com/certusone/wormhole/custody/pkg/version"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "custodyd",
	Short: "Custodial token bridge node",
}

// Top-level version subcommand
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display binary version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&custodyd.ConfigFile, "config", "", "config file (yaml, json or toml); flags and CUSTODYD_* environment variables take precedence")
	rootCmd.AddCommand(custodyd.NodeCmd)
	rootCmd.AddCommand(custodyd.KeygenCmd)
	rootCmd.AddCommand(custodyd.ClientCmd)
	rootCmd.AddCommand(versionCmd)
}
