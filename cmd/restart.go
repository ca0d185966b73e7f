package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func restartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pid, err := readPidFile(); err == nil && processAlive(pid) {
				if err := stopRunning(); err != nil {
					return fmt.Errorf("stop: %w", err)
				}
			}
			return startDaemonized()
		},
	}
}
