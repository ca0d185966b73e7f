package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the orchestrator is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := readPidFile()
			if err != nil {
				fmt.Println("mama is not running")
				return nil
			}
			if !processAlive(pid) {
				fmt.Println("mama is not running (stale pidfile)")
				removePidFile()
				return nil
			}
			fmt.Printf("mama is running (pid %d)\n", pid)
			return nil
		},
	}
}
