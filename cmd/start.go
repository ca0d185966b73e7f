package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mama-run/mama/internal/config"
)

var foreground bool

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !foreground {
				return startDaemonized()
			}
			return runForeground()
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", false, "run in the foreground instead of daemonizing")
	return cmd
}

// startDaemonized re-execs the current binary with --foreground attached
// to no controlling terminal, recording its pid so stop/restart/status
// can find it — goclaw itself always runs in the foreground under a
// process supervisor (systemd/Docker); this re-exec idiom is the
// standard-library equivalent for a self-supervising standalone binary,
// which is why it is documented as a stdlib-only component in DESIGN.md.
func startDaemonized() error {
	if pid, err := readPidFile(); err == nil && processAlive(pid) {
		return fmt.Errorf("mama already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	args := append([]string{"start", "--foreground"}, passthroughFlags()...)
	proc := exec.Command(exe, args...)
	proc.Stdin = nil
	proc.Stdout = nil
	proc.Stderr = nil
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if err := writePidFile(proc.Process.Pid); err != nil {
		return fmt.Errorf("write pidfile: %w", err)
	}
	fmt.Printf("mama started (pid %d)\n", proc.Process.Pid)
	return nil
}

func passthroughFlags() []string {
	var out []string
	if cfgFile != "" {
		out = append(out, "--config", cfgFile)
	}
	if verbose {
		out = append(out, "--verbose")
	}
	return out
}

func runForeground() error {
	logger := setupLogger(verbose)
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := buildApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer app.Shutdown()

	if err := writePidFile(os.Getpid()); err != nil {
		logger.Warn("write pidfile failed", "error", err)
	}
	defer removePidFile()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Cron.Recover(ctx); err != nil {
		logger.Error("cron recovery failed", "error", err)
		return err
	}
	app.Heartbeat.Start(ctx)
	app.KeepAlive.Start(ctx)

	logger.Info("mama started", "pid", os.Getpid())
	<-ctx.Done()
	logger.Info("mama shutting down")
	return nil
}
