// campuschat is an anonymous one-to-one chat server for college students.
//
// Usage:
//
//	campuschat serve              - Start the SSH and WebSocket servers
//	campuschat stats              - Show recent conversations and totals
//	campuschat check [identity]   - Test identities against the configured policy
//	campuschat policies           - List available identity policies
//
// Global flags:
//
//	--config <path>    - Config file (default search: ~/.campuschat, ./configs, built-in)
//	--env-file <path>  - Dotenv file with CAMPUSCHAT_* overrides
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/tui-campuschat/internal/config"
)

var (
	// Global flags
	flagConfig  string
	flagEnvFile string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "campuschat",
	Short: "Campus Chat - anonymous one-to-one chat for college students",
	Long: `Campus Chat pairs students from different colleges for anonymous
one-to-one conversations. Students sign in with a college email and are
matched with someone of the other selected gender.

Available commands:
  serve     - Start the chat servers (SSH terminal client + WebSocket)
  stats     - Show the anonymous conversation log
  check     - Test identities against the configured policy
  policies  - List available identity policies

Examples:
  campuschat serve
  campuschat serve --ssh :2222 --ws ""
  campuschat stats --limit 50
  campuschat check alice@uni.edu bob@gmail.com`,
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "Path to dotenv file with CAMPUSCHAT_* overrides")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(policiesCmd)
}

// loadConfig loads the config file, applies environment overrides and validates the result.
// Commands may adjust the result with their own flags before validating again.
func loadConfig() config.Config {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := config.ApplyEnv(&cfg, flagEnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error applying environment: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// newLogger creates the process logger at the configured level.
func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "campuschat",
	})
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warn("unknown log level, using info", "level", level)
	}
	return logger
}
