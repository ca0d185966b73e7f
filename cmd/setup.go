package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mama-run/mama/internal/config"
)

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Verify environment-provided secrets and report readiness to start",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup()
		},
	}
}

// runSetup is the non-interactive counterpart to init: it never prompts
// (grounded on goclaw's canAutoOnboard/runAutoOnboard env-driven path,
// the only onboarding flow this rewrite keeps since the interactive
// wizard's charmbracelet stack was dropped as an outer-surface concern —
// see DESIGN.md), writing a starter config if absent and checking the
// environment variables spec §6 requires.
func runSetup() error {
	path := resolveConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := runInit(); err != nil {
			return err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("mama setup check:")
	checkVar("MAMA_POSTGRES_DSN or MAMA_DB_PATH", cfg.Database.PostgresDSN != "" || cfg.Database.SQLitePath != "")
	checkVar("model (agent.model or MAMA_MODEL)", cfg.Agent.Model != "")
	checkVar("subprocess backend (claude CLI default, or CODEX_COMMAND)", true)

	fmt.Println("\nrun `mama start` when ready.")
	return nil
}

func checkVar(name string, ok bool) {
	status := "ok"
	if !ok {
		status = "MISSING"
	}
	fmt.Printf("  [%s] %s\n", status, name)
}
