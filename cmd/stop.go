package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iamgilwell/procguard/internal/config"
	"github.com/iamgilwell/procguard/internal/oserr"
	"github.com/iamgilwell/procguard/internal/process"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the ProcGuard daemon",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	pidFile := config.Global.API.PIDFile

	pid, alive := runningDaemon(pidFile)
	if pid == 0 {
		return fmt.Errorf("ProcGuard daemon is not running (no PID file found)")
	}
	if !alive {
		os.Remove(pidFile)
		return fmt.Errorf("ProcGuard daemon (PID: %d) is not running (PID file cleaned up)", pid)
	}

	if err := (process.Psutil{}).Terminate(context.Background(), pid); err != nil && !errors.Is(err, oserr.ErrNotFound) {
		return fmt.Errorf("stopping PID %d: %w", pid, err)
	}

	os.Remove(pidFile)
	fmt.Printf("ProcGuard daemon stopped (PID: %d)\n", pid)
	return nil
}
