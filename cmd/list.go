package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iamgilwell/procguard/internal/config"
	"github.com/iamgilwell/procguard/internal/monitor"
	"github.com/iamgilwell/procguard/internal/safety"
)

var (
	listName  string
	listTier  string
	listSort  string
	listLimit int
	listJSON  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print one snapshot of running processes",
	Long: `Takes two collection cycles a short interval apart so CPU, disk and
network rates are populated, then prints the second snapshot.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listName, "name", "", "only show processes with this name")
	listCmd.Flags().StringVar(&listTier, "tier", "", "only show processes in this tier (green, yellow, red)")
	listCmd.Flags().StringVar(&listSort, "sort", "cpu", "sort by cpu, mem, pid or name")
	listCmd.Flags().IntVar(&listLimit, "limit", 40, "maximum rows to print (0 for all)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print records as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	var tier safety.Tier
	if listTier != "" {
		t, ok := safety.ParseTier(listTier)
		if !ok {
			return fmt.Errorf("unknown tier %q", listTier)
		}
		tier = t
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := newStack(ctx, config.Global, stackOptions{quiet: true})
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.monitor.Refresh(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(time.Second):
	}
	snap, err := s.monitor.Refresh(ctx)
	if err != nil {
		return err
	}

	var procs []*monitor.ProcessRecord
	if listName != "" {
		procs = snap.ByName(listName)
	} else {
		procs = snap.Records()
	}
	if listTier != "" {
		kept := procs[:0]
		for _, p := range procs {
			if p.Safety.Tier == tier {
				kept = append(kept, p)
			}
		}
		procs = kept
	}
	sortForList(procs, listSort)
	if listLimit > 0 && len(procs) > listLimit {
		procs = procs[:listLimit]
	}

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(procs)
	}

	fmt.Printf("%7s %-20s %-10s %7s %10s %9s %9s %-7s %s\n",
		"PID", "NAME", "USER", "CPU%", "MEM", "DISK R", "DISK W", "TIER", "COMMAND")
	for _, p := range procs {
		fmt.Println(monitor.FormatProcessLine(p))
	}
	fmt.Printf("\n%d of %d processes (collected in %s)\n", len(procs), snap.Len(), snap.Elapsed.Round(time.Millisecond))
	return nil
}

func sortForList(procs []*monitor.ProcessRecord, field string) {
	var less func(a, b *monitor.ProcessRecord) bool
	switch strings.ToLower(field) {
	case "mem", "memory":
		less = func(a, b *monitor.ProcessRecord) bool { return a.MemoryBytes > b.MemoryBytes }
	case "pid":
		less = func(a, b *monitor.ProcessRecord) bool { return a.PID < b.PID }
	case "name":
		less = func(a, b *monitor.ProcessRecord) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	default:
		less = func(a, b *monitor.ProcessRecord) bool { return a.CPUPercent > b.CPUPercent }
	}
	sort.SliceStable(procs, func(i, j int) bool { return less(procs[i], procs[j]) })
}
