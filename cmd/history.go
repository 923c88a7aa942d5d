package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iamgilwell/procguard/internal/config"
)

const historyTimeFormat = "2006-01-02 15:04:05"

var (
	historyName     string
	historyLimit    int
	historyRespawns bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past terminations and respawns",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyName, "name", "", "only show this process name")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum rows per table")
	historyCmd.Flags().BoolVar(&historyRespawns, "respawns", false, "show respawns instead of terminations")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg := config.Global
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled (history.enabled: false)")
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := newStack(ctx, cfg, stackOptions{quiet: true})
	if err != nil {
		return err
	}
	defer s.Close()
	if s.history == nil {
		return fmt.Errorf("history database %s could not be opened", cfg.History.DBPath)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	if historyRespawns {
		rows, err := s.history.Respawns(ctx, historyName, historyLimit)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "TIME\tNAME\tOLD PID\tNEW PID\tEXE")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
				r.At.Local().Format(historyTimeFormat), r.Name, r.OriginalPID, r.NewPID, r.NewExePath)
		}
		return w.Flush()
	}

	rows, err := s.history.Terminations(ctx, historyName, historyLimit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "TIME\tPID\tNAME\tTIER\tSTATE\tFORCED\tTREE\tRESULT")
	for _, t := range rows {
		result := "ok"
		if !t.Success {
			result = t.Message
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%v\t%v\t%s\n",
			t.At.Local().Format(historyTimeFormat), t.PID, t.Name, t.Tier, t.State, t.Forced, t.Tree, result)
	}
	return w.Flush()
}
