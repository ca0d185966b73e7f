package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// pidFilePath is ~/.mama/mama.pid, alongside the other per-user state
// goclaw's cmd package rooted under ~/.mama (config.yaml, logs/, memory/).
func pidFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mama.pid"
	}
	return filepath.Join(home, ".mama", "mama.pid")
}

func writePidFile(pid int) error {
	path := pidFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("pidfile: mkdir: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644)
}

func readPidFile() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("pidfile: malformed pid: %w", err)
	}
	return pid, nil
}

func removePidFile() error {
	err := os.Remove(pidFilePath())
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// processAlive reports whether pid names a live process, using the
// signal-0 probe idiom (os.Process.Signal never actually delivers
// anything with syscall.Signal(0), it only checks existence/permission).
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
