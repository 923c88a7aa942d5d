package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iamgilwell/procguard/internal/config"
	"github.com/iamgilwell/procguard/internal/process"
)

var daemon bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ProcGuard API in background daemon mode",
	Args:  cobra.NoArgs,
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolVar(&daemon, "daemon", false, "run as background daemon")
}

func runStart(cmd *cobra.Command, args []string) error {
	pidFile := config.Global.API.PIDFile

	if pid, ok := runningDaemon(pidFile); ok {
		return fmt.Errorf("ProcGuard daemon already running (PID: %d)", pid)
	}

	if !daemon {
		fmt.Println("Starting ProcGuard in the foreground...")
		fmt.Println("Use --daemon flag to run in background.")
		return runServe(cmd, args)
	}

	// Start as background process
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable: %w", err)
	}

	daemonArgs := []string{"serve"}
	if cfgFile != "" {
		daemonArgs = append(daemonArgs, "--config", cfgFile)
	}

	proc := exec.Command(executable, daemonArgs...)
	proc.Stdout = nil
	proc.Stderr = nil
	proc.Stdin = nil

	if err := proc.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	// serve writes the same pid once it is up.
	if err := writePIDFile(pidFile, proc.Process.Pid); err != nil {
		return err
	}

	fmt.Printf("ProcGuard daemon started (PID: %d)\n", proc.Process.Pid)
	fmt.Printf("PID file: %s\n", pidFile)
	fmt.Printf("API: http://%s\n", config.Global.API.Addr)
	fmt.Println("Use 'procguard stop' to stop the daemon.")
	fmt.Println("Use 'procguard logs --follow' to watch the log output.")

	return nil
}

// runningDaemon reads pidFile and reports the pid if that process is alive.
func runningDaemon(pidFile string) (int, bool) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	id, err := (process.Psutil{}).Lookup(context.Background(), pid)
	if err != nil {
		return pid, false
	}
	exe, err := os.Executable()
	if err != nil {
		return pid, true
	}
	// A recycled pid must not be mistaken for the daemon.
	return pid, sameBinary(id.Name, exe)
}

// commLen is the longest process name Linux reports before truncating.
const commLen = 15

// sameBinary reports whether a process named name runs the executable at exe.
func sameBinary(name, exe string) bool {
	trim := func(s string) string {
		return strings.TrimSuffix(strings.ToLower(s), ".exe")
	}
	name = trim(name)
	base := trim(filepath.Base(exe))
	if name == base {
		return true
	}
	return len(name) == commLen && strings.HasPrefix(base, name)
}
