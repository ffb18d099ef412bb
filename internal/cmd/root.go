// Package cmd wires the provisioning commands into a cobra CLI.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/envkit/attache/internal/config"
	"github.com/envkit/attache/internal/logging"
)

var (
	configPath string
	logLevel   = logging.LogLevelInfo

	logLevelIds = map[logging.Level][]string{
		logging.LogLevelDebug: {"debug"},
		logging.LogLevelInfo:  {"info"},
		logging.LogLevelWarn:  {"warn"},
		logging.LogLevelError: {"error"},
	}
)

var rootCmd = &cobra.Command{
	Use:   "attache",
	Short: "Workspace attach provisioning",
	Long: `attache prepares a container workspace for non-interactive use:
it provisions the ssh trust store for the code hosts the workspace talks to,
and validates (and where safe, repairs) the repository's git configuration
so commits are attributable, signed, and pushed over key-based transport.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/attache/config.yml", "configuration file")
	rootCmd.PersistentFlags().Var(
		enumflag.New(&logLevel, "log-level", logLevelIds, enumflag.EnumCaseInsensitive),
		"log-level", "log verbosity; one of 'debug', 'info', 'warn' or 'error'")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func newLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: logLevel})
}

func loadConfig() (*config.Root, error) {
	return config.Load(configPath)
}
