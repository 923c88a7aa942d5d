package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/iamgilwell/procguard/internal/config"
	"github.com/iamgilwell/procguard/internal/ui"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Launch htop-like interactive TUI",
	Long: `Launches the full interactive terminal UI with the process table, event
panel, suppression ledger and keyboard controls for termination and
suppression.`,
	Args: cobra.NoArgs,
	RunE: runInteractive,
}

func runInteractive(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The TUI owns the terminal; events still reach the log files.
	s, err := newStack(ctx, config.Global, stackOptions{watchRespawns: true, quiet: true})
	if err != nil {
		return err
	}
	defer s.Close()

	app := ui.NewApp(ui.Deps{
		Monitor:    s.monitor,
		Controller: s.controller,
		Engine:     s.engine,
		Consent:    s.consent,
		Describer:  s.describer,
	})
	s.events.onOutcome(app.HandleOutcome)
	s.events.onRespawn(app.HandleRespawn)
	s.events.onSuppression(app.HandleSuppression)

	return app.Run()
}
