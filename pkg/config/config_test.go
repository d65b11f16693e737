package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommand(options Options) *cobra.Command {
	var apiAddr *string
	var maxTxAge *time.Duration

	cmd := &cobra.Command{
		Use: "config_test",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return InitFileConfig(cmd, options)
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "apiAddr: %s maxTxAge: %s\n", *apiAddr, *maxTxAge)
		},
	}
	apiAddr = cmd.Flags().String("apiAddr", "[::]:8080", "API listen address")
	maxTxAge = cmd.Flags().Duration("maxTxAge", 2*time.Minute, "Maximum transaction age")
	return cmd
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "custodyd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("apiAddr: \"127.0.0.1:9000\"\nmaxTxAge: 30s\n"), 0600))
	return path
}

func run(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestInitFileConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		out := run(t, newTestCommand(Options{EnvPrefix: "CUSTODYD_TEST"}))
		assert.Equal(t, "apiAddr: [::]:8080 maxTxAge: 2m0s\n", out)
	})

	t.Run("config file", func(t *testing.T) {
		out := run(t, newTestCommand(Options{FilePath: writeConfig(t), EnvPrefix: "CUSTODYD_TEST"}))
		assert.Equal(t, "apiAddr: 127.0.0.1:9000 maxTxAge: 30s\n", out)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("CUSTODYD_TEST_APIADDR", "127.0.0.1:9001")
		out := run(t, newTestCommand(Options{FilePath: writeConfig(t), EnvPrefix: "CUSTODYD_TEST"}))
		assert.Equal(t, "apiAddr: 127.0.0.1:9001 maxTxAge: 30s\n", out)
	})

	t.Run("flag overrides everything", func(t *testing.T) {
		t.Setenv("CUSTODYD_TEST_APIADDR", "127.0.0.1:9001")
		out := run(t, newTestCommand(Options{FilePath: writeConfig(t), EnvPrefix: "CUSTODYD_TEST"}), "--apiAddr", "127.0.0.1:9002")
		assert.Equal(t, "apiAddr: 127.0.0.1:9002 maxTxAge: 30s\n", out)
	})

	t.Run("missing file", func(t *testing.T) {
		cmd := newTestCommand(Options{FilePath: filepath.Join(t.TempDir(), "absent.yaml")})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		assert.Error(t, cmd.Execute())
	})

	t.Run("invalid value", func(t *testing.T) {
		t.Setenv("CUSTODYD_TEST_MAXTXAGE", "soon")
		cmd := newTestCommand(Options{EnvPrefix: "CUSTODYD_TEST"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		assert.Error(t, cmd.Execute())
	})
}
