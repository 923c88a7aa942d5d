package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iamgilwell/procguard/internal/config"
	"github.com/iamgilwell/procguard/internal/monitor"
	"github.com/iamgilwell/procguard/internal/safety"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Foreground process monitoring with text output",
	Long:  `Monitors system processes and displays them in a text table, refreshing at the configured interval.`,
	Args:  cobra.NoArgs,
	RunE:  runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg := config.Global

	ctx, cancel := signalContext()
	defer cancel()

	s, err := newStack(ctx, cfg, stackOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	s.notifier.Info("ProcGuard monitor starting...")

	s.monitor.OnUpdate(func(snap *monitor.Snapshot) {
		procs := snap.Records()
		metrics := monitor.GetSystemMetrics(ctx)

		var red, yellow int
		for _, p := range procs {
			switch p.Safety.Tier {
			case safety.TierRed:
				red++
			case safety.TierYellow:
				yellow++
			}
		}

		// Clear screen
		fmt.Print("\033[H\033[2J")

		fmt.Printf("\033[1mProcGuard Monitor\033[0m | Processes: %d (red %d, yellow %d) | CPU: %.1f%% | Mem: %.1f%% | Load: %.2f | Suppressions: %d\n",
			len(procs), red, yellow, metrics.TotalCPU, metrics.TotalMemory, metrics.LoadAvg1, s.engine.ActiveCount())
		fmt.Println("─────────────────────────────────────────────────────────────────────────────────────────────────")
		fmt.Printf("%7s %-20s %-10s %7s %10s %9s %9s %-7s %s\n",
			"PID", "NAME", "USER", "CPU%", "MEM", "DISK R", "DISK W", "TIER", "COMMAND")
		fmt.Println("─────────────────────────────────────────────────────────────────────────────────────────────────")

		// Show top 30 processes
		limit := 30
		if len(procs) < limit {
			limit = len(procs)
		}
		for _, p := range procs[:limit] {
			fmt.Println(monitor.FormatProcessLine(p))
		}

		fmt.Printf("\nPress Ctrl+C to exit | Scan interval: %s\n", cfg.Monitoring.ScanInterval)
	})

	err = s.monitor.Start(ctx)
	s.notifier.Info("Shutting down...")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
