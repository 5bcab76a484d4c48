package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/meshpeer-go/internal/logging"
)

const (
	appName    = "meshpeer"
	appVersion = "0.1.0"
)

var (
	logLevel string
	logFile  string
	devMode  bool
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "meshpeer - redundant peer connections over a mesh network",
	Long: `meshpeer runs a mesh node that keeps several redundant connections to
each remote node and sends over whichever one is available.

Use 'meshpeer serve' to run a node and 'meshpeer send' to deliver a message.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logging.DefaultLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file, rotated")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Human readable development logging")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func newLogger() (*zap.Logger, error) {
	return logging.New(&logging.Config{
		Level:       logLevel,
		Development: devMode,
		FilePath:    logFile,
		Compress:    true,
	})
}
