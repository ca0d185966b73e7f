package cmd

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return stopRunning()
		},
	}
}

func stopRunning() error {
	pid, err := readPidFile()
	if err != nil {
		return fmt.Errorf("mama is not running (no pidfile)")
	}
	if !processAlive(pid) {
		removePidFile()
		return fmt.Errorf("mama is not running (stale pidfile for pid %d removed)", pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}

	for i := 0; i < 50; i++ {
		if !processAlive(pid) {
			removePidFile()
			fmt.Printf("mama stopped (pid %d)\n", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("pid %d did not exit within 5s after SIGTERM", pid)
}
