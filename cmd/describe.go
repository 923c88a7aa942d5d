package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iamgilwell/procguard/internal/config"
	"github.com/iamgilwell/procguard/internal/monitor"
)

var describeCmd = &cobra.Command{
	Use:   "describe PID|NAME",
	Short: "Explain what a running process is",
	Long: `Looks the process up in the built-in catalog, then derives a description
from its command line. When describe.ai_enabled is set and an API key is
configured, unknown processes are described by Claude.`,
	Args: cobra.ExactArgs(1),
	RunE: runDescribe,
}

func runDescribe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := newStack(ctx, config.Global, stackOptions{quiet: true})
	if err != nil {
		return err
	}
	defer s.Close()

	snap, err := s.monitor.Refresh(ctx)
	if err != nil {
		return err
	}

	var recs []*monitor.ProcessRecord
	if pid, err := strconv.Atoi(args[0]); err == nil {
		if rec, ok := snap.Get(pid); ok {
			recs = append(recs, rec)
		}
	} else {
		recs = snap.ByName(args[0])
	}
	if len(recs) == 0 {
		return fmt.Errorf("no running process matches %q", args[0])
	}

	out := cmd.OutOrStdout()
	for i, rec := range recs {
		if i > 0 {
			fmt.Fprintln(out)
		}
		d, err := s.describer.Describe(ctx, rec)
		fmt.Fprintf(out, "%s (PID %d)\n", rec.Name, rec.PID)
		fmt.Fprintf(out, "  Tier:        %s\n", rec.Safety.Label)
		if rec.Safety.Warning != "" {
			fmt.Fprintf(out, "  Warning:     %s\n", rec.Safety.Warning)
		}
		fmt.Fprintf(out, "  Description: %s\n", d.Text)
		if d.Category != "" {
			fmt.Fprintf(out, "  Category:    %s\n", d.Category)
		}
		if d.KillImpact != "" {
			fmt.Fprintf(out, "  Kill impact: %s\n", d.KillImpact)
		}
		if len(rec.HostedServices) > 0 {
			fmt.Fprintf(out, "  Services:    %s\n", strings.Join(rec.HostedServices, ", "))
		}
		if rec.ExePath != "" {
			fmt.Fprintf(out, "  Path:        %s\n", rec.ExePath)
		}
		source := string(d.Source)
		if d.FromCache {
			source += " (cached)"
		}
		fmt.Fprintf(out, "  Source:      %s\n", source)
		if err != nil {
			fmt.Fprintf(out, "  Note:        %v\n", err)
		}
	}
	return nil
}
