// Package cmd implements the mama CLI, grounded on goclaw's cmd/root.go
// cobra wiring (persistent --config/--verbose flags, resolveConfigPath
// env-first resolution) and cmd/migrate.go (migrate subcommand family).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mama-run/mama/internal/config"
	"github.com/mama-run/mama/pkg/protocol"
)

// Version is set at build time via -ldflags "-X github.com/mama-run/mama/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "mama",
	Short: "MAMA — autonomous agent orchestrator",
	Long:  "MAMA mediates between chat gateways, a cron scheduler, and headless LLM subprocesses, providing persistent memory, role-based tool access, and a sandbox.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: "+config.DefaultPath()+" or $MAMA_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(setupCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(restartCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(migrateCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mama %s (protocol %d)\n", Version, protocol.ProtocolVersion)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
