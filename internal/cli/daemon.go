package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dispatchd/dispatchd/internal/client"
	"github.com/dispatchd/dispatchd/internal/config"
	"github.com/dispatchd/dispatchd/internal/daemon"
)

// NewDaemonCmd creates the daemon command group: start, stop, status.
func NewDaemonCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the dispatchd daemon",
	}

	cmd.AddCommand(newDaemonStartCmd(a))
	cmd.AddCommand(newDaemonStopCmd(a))
	cmd.AddCommand(newDaemonStatusCmd(a))

	return cmd
}

func newDaemonStartCmd(a *App) *cobra.Command {
	var (
		foreground bool
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if isDaemonRunning() {
				fmt.Fprintln(cmd.OutOrStdout(), "daemon is already running")
				return nil
			}

			if foreground {
				return runDaemonForeground(cmd.Context(), configPath, a.versionInfo.Version)
			}
			return startDaemonBackground(configPath)
		},
	}

	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run the daemon in the foreground (blocking)")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a settings YAML file")

	return cmd
}

// runDaemonForeground loads settings, builds the Daemon, and blocks serving
// the control plane until SIGINT/SIGTERM.
func runDaemonForeground(ctx context.Context, configPath, version string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	daemonCfg, err := daemon.DefaultConfig()
	if err != nil {
		return fmt.Errorf("failed to resolve daemon paths: %w", err)
	}
	if version != "" {
		daemonCfg.Version = version
	}

	session, err := newFileSession(filepath.Join(filepath.Dir(daemonCfg.SocketPath), "images"))
	if err != nil {
		return fmt.Errorf("failed to prepare image storage: %w", err)
	}

	d, err := daemon.New(daemonCfg, settings, session)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go waitForSignal(cancel)

	return d.Start(runCtx)
}

func isDaemonRunning() bool {
	cfg, err := daemon.DefaultConfig()
	if err != nil {
		return false
	}
	pid, err := daemon.ReadPID(cfg.PIDFile)
	if err != nil {
		return false
	}
	return daemon.IsProcessRunning(pid)
}

// startDaemonBackground re-execs the current binary with "daemon start
// --foreground", detached into its own process group, and polls until the
// PID file appears.
func startDaemonBackground(configPath string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	daemonCfg, err := daemon.DefaultConfig()
	if err != nil {
		return err
	}
	if err := daemonCfg.EnsureDirectories(); err != nil {
		return err
	}
	logPath := filepath.Join(filepath.Dir(daemonCfg.PIDFile), "daemon.log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	args := []string{"daemon", "start", "--foreground"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	runCmd := exec.Command(exe, args...)
	runCmd.Stdout = logFile
	runCmd.Stderr = logFile
	runCmd.Stdin = nil
	runCmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}

	if err := runCmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	pid := runCmd.Process.Pid
	if err := runCmd.Process.Release(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to release process: %v\n", err)
	}

	const maxRetries = 5
	delay := 100 * time.Millisecond
	for i := 0; i < maxRetries; i++ {
		time.Sleep(delay)
		if isDaemonRunning() {
			fmt.Printf("daemon started (pid %d)\n", pid)
			fmt.Printf("logs: %s\n", logPath)
			return nil
		}
		delay *= 2
	}
	return fmt.Errorf("daemon failed to start, check %s for details", logPath)
}

func newDaemonStopCmd(a *App) *cobra.Command {
	var (
		waitForOutstanding bool
		timeout            int
	)

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isDaemonRunning() {
				fmt.Fprintln(cmd.OutOrStdout(), "daemon is not running")
				return nil
			}

			c, err := client.New(defaultSocketPath())
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "daemon is not running")
				return nil
			}
			defer c.Close()

			if err := c.Shutdown(cmd.Context(), waitForOutstanding, timeout); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "daemon stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&waitForOutstanding, "wait", true, "Wait for outstanding batches to finish")
	cmd.Flags().IntVar(&timeout, "timeout", 30, "Shutdown timeout in seconds")

	return cmd
}

func newDaemonStatusCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(defaultSocketPath())
			if err != nil {
				return fmt.Errorf("daemon not running: %w", err)
			}
			defer c.Close()

			health, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", boolToStatus(health.Healthy))
			fmt.Fprintf(cmd.OutOrStdout(), "workers: %d\n", health.WorkerCount)
			fmt.Fprintf(cmd.OutOrStdout(), "version: %s\n", health.Version)
			return nil
		},
	}
}
