// Gray Logic Access - biometric terminal gateway
//
// This is the main entry point for the Gray Logic access gateway. It
// exposes ZKTeco-style attendance terminals (users, attendance log, clock,
// door relay) over a single HTTP API, keeps an audit trail of every
// mutating operation, and reports terminal reachability to MQTT and
// InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/gray-logic-access/migrations"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Each call returns a fresh tree so
// tests can execute commands in isolation.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "graylogic-access",
		Short: "Gray Logic gateway for biometric access terminals",
		Long: "graylogic-access serves a REST API in front of attendance and access\n" +
			"terminals. Every request names its terminal; defaults come from the\n" +
			"configuration file and GRAYLOGIC_ACCESS_* environment variables.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("GRAYLOGIC_ACCESS_CONFIG"),
		"path to the YAML configuration file (default "+defaultConfigPath+")")

	load := func() (*config.Config, error) {
		return loadConfig(configPath)
	}

	root.AddCommand(
		newServeCmd(load),
		newProbeCmd(load),
		newMigrateCmd(load),
		newTokenCmd(load),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads path, or the default path when path is empty. A
// missing default file falls back to built-in defaults plus environment.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = defaultConfigPath
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graylogic-access %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
