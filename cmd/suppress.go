package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iamgilwell/procguard/internal/config"
	"github.com/iamgilwell/procguard/internal/suppression"
)

var (
	suppressProcess string
	suppressExe     string
)

var suppressCmd = &cobra.Command{
	Use:   "suppress",
	Short: "Disable the trigger that relaunches a process",
	Long: `Applies one suppression and records it in the ledger so it can be
restored with 'procguard suppressions restore ID'.

  service  disable a service so it no longer starts
  startup  remove a startup entry, keeping its value for restore
  task     disable a scheduled task or timer
  ifeo     block an executable from launching`,
}

func init() {
	for _, kind := range []suppression.Kind{
		suppression.KindService,
		suppression.KindStartup,
		suppression.KindTask,
		suppression.KindIFEO,
	} {
		suppressCmd.AddCommand(newSuppressKindCmd(kind))
	}
	suppressCmd.PersistentFlags().StringVar(&suppressProcess, "process", "", "process the suppression is for (default: NAME)")
	suppressCmd.PersistentFlags().StringVar(&suppressExe, "exe", "", "executable path of the process")
}

func newSuppressKindCmd(kind suppression.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   string(kind) + " NAME",
		Short: suppression.Describe(kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			s, err := newStack(ctx, config.Global, stackOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			target := suppression.Target{ProcessName: suppressProcess, ExePath: suppressExe}
			entry, err := s.engine.Apply(ctx, kind, target, args[0])
			if err != nil {
				return fmt.Errorf("%s", suppression.Message(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded as suppression #%d.\n", entry.ID)
			return nil
		},
	}
}

var suppressionsCmd = &cobra.Command{
	Use:     "suppressions",
	Aliases: []string{"ledger"},
	Short:   "List and reverse recorded suppressions",
	Args:    cobra.NoArgs,
	RunE:    runSuppressionsList,
}

func init() {
	suppressionsCmd.AddCommand(&cobra.Command{
		Use:   "restore ID",
		Short: "Reverse one suppression",
		Args:  cobra.ExactArgs(1),
		RunE:  runSuppressionsRestore,
	})
	suppressionsCmd.AddCommand(&cobra.Command{
		Use:   "restore-all",
		Short: "Reverse every active suppression, newest first",
		Args:  cobra.NoArgs,
		RunE:  runSuppressionsRestoreAll,
	})
	suppressionsCmd.AddCommand(&cobra.Command{
		Use:   "forget ID",
		Short: "Drop an entry from the ledger without touching the system",
		Args:  cobra.ExactArgs(1),
		RunE:  runSuppressionsForget,
	})
}

func runSuppressionsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := newStack(ctx, config.Global, stackOptions{quiet: true})
	if err != nil {
		return err
	}
	defer s.Close()

	entries := s.engine.Entries()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMETHOD\tDETAIL\tPROCESS\tCREATED\tSTATE")
	for _, e := range entries {
		state := "active"
		if !e.Restorable() {
			state = "manual restore"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Kind(), e.Detail(), e.ProcessName, e.Created.Local().Format("2006-01-02 15:04"), state)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No suppressions recorded.")
	}
	return nil
}

func runSuppressionsRestore(cmd *cobra.Command, args []string) error {
	id, err := parseEntryID(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := newStack(ctx, config.Global, stackOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.engine.Restore(ctx, id); err != nil {
		return fmt.Errorf("%s", suppression.Message(err))
	}
	return nil
}

func runSuppressionsRestoreAll(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := newStack(ctx, config.Global, stackOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	results := s.engine.RestoreAll(ctx)
	var failed []string
	for _, r := range results {
		if !r.Success {
			failed = append(failed, strconv.Itoa(r.Entry.ID))
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restored %d of %d suppressions.\n", len(results)-len(failed), len(results))
	if len(failed) > 0 {
		return fmt.Errorf("could not restore: %s", strings.Join(failed, ", "))
	}
	return nil
}

func runSuppressionsForget(cmd *cobra.Command, args []string) error {
	id, err := parseEntryID(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := newStack(ctx, config.Global, stackOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	_, err = s.engine.Forget(id)
	return err
}

func parseEntryID(arg string) (int, error) {
	id, err := strconv.Atoi(strings.TrimPrefix(arg, "#"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid suppression id %q", arg)
	}
	return id, nil
}
