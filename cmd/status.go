package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iamgilwell/procguard/internal/config"
	"github.com/iamgilwell/procguard/internal/monitor"
	"github.com/iamgilwell/procguard/internal/safety"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current system and ProcGuard status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Global
	ctx := context.Background()

	s, err := newStack(ctx, cfg, stackOptions{quiet: true})
	if err != nil {
		return err
	}
	defer s.Close()

	metrics := monitor.GetSystemMetrics(ctx)

	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║   ProcGuard - Process Safety Controller  ║")
	fmt.Println("╚══════════════════════════════════════════╝")
	fmt.Println()

	// Daemon status
	if pid, alive := runningDaemon(cfg.API.PIDFile); alive {
		fmt.Printf("Daemon:     Running (PID: %d) on %s\n", pid, cfg.API.Addr)
	} else {
		fmt.Println("Daemon:     Not running")
	}
	fmt.Println()

	// System metrics
	fmt.Println("System Metrics:")
	fmt.Printf("  CPU Usage:    %.1f%%\n", metrics.TotalCPU)
	fmt.Printf("  Memory:       %.1f%% (%.0f MB / %.0f MB)\n",
		metrics.TotalMemory, metrics.TotalMemMB-metrics.FreeMemMB, metrics.TotalMemMB)
	fmt.Printf("  Load Average: %.2f, %.2f, %.2f\n",
		metrics.LoadAvg1, metrics.LoadAvg5, metrics.LoadAvg15)
	fmt.Printf("  Uptime:       %s\n", metrics.Uptime)
	fmt.Println()

	// Config summary
	fmt.Println("Configuration:")
	fmt.Printf("  Consent Level:  %d (%s)\n", cfg.Safety.ConsentLevel,
		safety.LevelDescription(cfg.Safety.ConsentLevel))
	fmt.Printf("  Scan Interval:  %s\n", cfg.Monitoring.ScanInterval)
	fmt.Printf("  Stop Timeout:   %s\n", cfg.Termination.Timeout)
	fmt.Printf("  Respawn Delay:  %s\n", cfg.Termination.RespawnDelay)
	fmt.Printf("  Ledger:         %s\n", cfg.Suppression.LedgerFile)
	fmt.Printf("  History:        %v\n", s.history != nil)
	fmt.Printf("  AI Describe:    %v (model %s, API key set: %v)\n",
		cfg.Describe.AIEnabled, cfg.Anthropic.Model, cfg.Anthropic.APIKey != "")
	fmt.Println()

	fmt.Printf("Always Critical:     %d configured\n", len(cfg.Safety.AlwaysCritical))
	fmt.Printf("Caution Overrides:   %d configured\n", len(cfg.Safety.CautionOverrides))
	fmt.Printf("Active Suppressions: %d\n", s.engine.ActiveCount())

	return nil
}
