package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deskclaw/deskclaw/config"
	"github.com/deskclaw/deskclaw/orchestrator"
)

var (
	startDaemon   bool
	statusJSONOut bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the deskclaw daemon",
	Long: `Run the deskclaw daemon. By default runs in foreground.
Use --daemon to run in background.

Examples:
  deskclaw start           # Run in foreground
  deskclaw start --daemon  # Run in background`,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Long:  `Stop the running deskclaw daemon by sending SIGTERM.`,
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	Long:  `Check if the deskclaw daemon is running and show its PID.`,
	RunE:  runStatus,
}

func init() {
	startCmd.Flags().BoolVar(&startDaemon, "daemon", false, "Run in background as daemon")
	statusCmd.Flags().BoolVar(&statusJSONOut, "json", false, "Output as JSON")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
}

// PID file management

func writePID(pid int) error {
	pidPath := config.PIDPath()
	if err := os.MkdirAll(filepath.Dir(pidPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(pidPath, []byte(strconv.Itoa(pid)), 0o644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(config.PIDPath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() error {
	return os.Remove(config.PIDPath())
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 checks liveness.
	return process.Signal(syscall.Signal(0)) == nil
}

func openLogFile() (*os.File, error) {
	logPath := config.LogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func runStart(cmd *cobra.Command, args []string) error {
	if pid, err := readPID(); err == nil && isProcessRunning(pid) {
		return fmt.Errorf("deskclaw already running (PID %d)", pid)
	}

	if startDaemon {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		// Re-exec without --daemon so the child runs in foreground mode.
		cmdArgs := []string{"start", "--config", cfgPath}
		daemonCmd := exec.Command(execPath, cmdArgs...)
		daemonCmd.Stdout = nil
		daemonCmd.Stderr = nil
		daemonCmd.Stdin = nil
		daemonCmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

		if err := daemonCmd.Start(); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}

		fmt.Printf("deskclaw started in background (PID %d)\n", daemonCmd.Process.Pid)
		return nil
	}

	return runForeground(cmd)
}

func runForeground(cmd *cobra.Command) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if err := writePID(os.Getpid()); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer removePID()

	logFile, err := openLogFile()
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	log.SetFlags(log.Ldate | log.Ltime)

	log.Printf("[deskclaw] starting, PID %d", os.Getpid())
	log.Printf("[deskclaw] config: %s", cfgPath)
	log.Printf("[deskclaw] log: %s", config.LogPath())

	o, err := orchestrator.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = o.Run(ctx)
	log.Printf("[deskclaw] stopped")
	return err
}

func runStop(cmd *cobra.Command, args []string) error {
	pid, err := readPID()
	if err != nil {
		return fmt.Errorf("deskclaw not running (no PID file)")
	}

	if !isProcessRunning(pid) {
		removePID()
		return fmt.Errorf("deskclaw not running (stale PID file removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop deskclaw: %w", err)
	}

	fmt.Printf("deskclaw stopped (PID %d)\n", pid)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	pid, err := readPID()
	if err != nil {
		if statusJSONOut {
			fmt.Println(`{"running": false}`)
		} else {
			fmt.Println("deskclaw is not running")
		}
		return nil
	}

	running := isProcessRunning(pid)
	if !running {
		removePID()
	}

	if statusJSONOut {
		data, _ := json.MarshalIndent(map[string]any{"running": running, "pid": pid}, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if running {
		fmt.Printf("deskclaw is running (PID %d)\n", pid)
	} else {
		fmt.Println("deskclaw is not running (stale PID file removed)")
	}
	return nil
}
