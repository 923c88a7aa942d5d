package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iamgilwell/procguard/internal/config"
	"github.com/iamgilwell/procguard/internal/oserr"
	"github.com/iamgilwell/procguard/internal/process"
	"github.com/iamgilwell/procguard/internal/safety"
)

var (
	killForce bool
	killTree  bool
	killWatch bool
	killYes   bool
)

var killCmd = &cobra.Command{
	Use:   "kill PID",
	Short: "Terminate a process with graceful-then-forced escalation",
	Long: `Asks the process to exit, waits for the configured timeout and then
kills it. Critical (red) processes are refused unless --force is given.

With --watch the command waits for the respawn delay and reports whether
a process with the same name came back.`,
	Args: cobra.ExactArgs(1),
	RunE: runKill,
}

func init() {
	killCmd.Flags().BoolVar(&killForce, "force", false, "kill immediately and override a critical verdict")
	killCmd.Flags().BoolVar(&killTree, "tree", false, "terminate every descendant as well")
	killCmd.Flags().BoolVar(&killWatch, "watch", false, "check for a respawn after termination")
	killCmd.Flags().BoolVarP(&killYes, "yes", "y", false, "skip confirmation prompts")
}

func runKill(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil || pid <= 0 {
		return fmt.Errorf("invalid pid %q", args[0])
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := newStack(ctx, config.Global, stackOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	if s.consent.IsMonitorOnly() {
		return fmt.Errorf("consent level is monitor-only; terminations are disabled")
	}

	id, alive, err := lookupTarget(ctx, process.Psutil{}.Lookup, pid, cmd.OutOrStdout())
	if err != nil || !alive {
		return err
	}
	info := s.classifier.Classify(id.Name, id.PID)

	if !killYes {
		prompt := confirmPrompt(id, info)
		if prompt != "" && (s.consent.NeedsConfirmation(info) || killForce) {
			ok, err := askYesNo(cmd.InOrStdin(), cmd.OutOrStdout(), prompt)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
		}
	}

	var out process.Outcome
	if killTree {
		out = s.controller.TerminateTree(ctx, pid, killForce)
	} else {
		out = s.controller.Terminate(ctx, pid, killForce)
	}
	if !out.Success {
		return fmt.Errorf("%s", out.Message)
	}

	if killWatch {
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for %s...\n", out.Name, s.watcher.Delay())
		if r, found := s.watcher.Check(ctx, out.Identity); found {
			s.observeRespawn(r)
			fmt.Fprintf(cmd.OutOrStdout(), "Run 'procguard suppress service|startup|task|ifeo NAME --process %s' to stop it coming back.\n", r.Name)
		} else if ctx.Err() == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s did not respawn.\n", out.Name)
		}
	}
	return nil
}

// lookupTarget resolves pid before prompting. A pid that is already gone is
// reported on out and is not an error.
func lookupTarget(ctx context.Context, lookup func(context.Context, int) (process.Identity, error), pid int, out io.Writer) (process.Identity, bool, error) {
	id, err := lookup(ctx, pid)
	switch {
	case errors.Is(err, oserr.ErrNotFound):
		fmt.Fprintln(out, "Process already terminated.")
		return process.Identity{}, false, nil
	case err != nil:
		return process.Identity{}, false, fmt.Errorf("process %d: %w", pid, err)
	}
	return id, true, nil
}

// confirmPrompt returns the question for a termination, or "" when only
// force would allow it and force was not requested.
func confirmPrompt(id process.Identity, info safety.Info) string {
	what := fmt.Sprintf("%s (PID %d)", id.Name, id.PID)
	if killTree {
		what += " and its children"
	}
	switch {
	case info.Tier == safety.TierRed && !killForce:
		return ""
	case info.Tier == safety.TierRed:
		return fmt.Sprintf("%s is CRITICAL: %s\nForce kill %s anyway?", id.Name, info.Warning, what)
	case killForce:
		return fmt.Sprintf("Force kill %s without a graceful stop?", what)
	case info.Warning != "":
		return fmt.Sprintf("%s\nTerminate %s?", info.Warning, what)
	default:
		return fmt.Sprintf("Terminate %s?", what)
	}
}

func askYesNo(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
