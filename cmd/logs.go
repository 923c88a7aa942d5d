package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iamgilwell/procguard/internal/config"
)

var (
	followLogs bool
	auditLogs  bool
	logLines   int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View ProcGuard log files",
	Long: `Prints the event log, or with --audit the JSON-lines audit trail of every
termination, respawn and suppression.`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&followLogs, "follow", "f", false, "follow log output (like tail -f)")
	logsCmd.Flags().BoolVar(&auditLogs, "audit", false, "show the audit trail instead of the event log")
	logsCmd.Flags().IntVarP(&logLines, "lines", "n", 0, "only print the last N lines (0 for all)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg := config.Global
	logFile := cfg.Notifications.LogFile
	if auditLogs {
		logFile = cfg.Notifications.AuditFile
	}
	if logFile == "" {
		return fmt.Errorf("no log file configured")
	}

	f, err := os.Open(logFile)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", logFile, err)
	}
	defer f.Close()

	out := cmd.OutOrStdout()
	if err := printTail(f, out, logLines); err != nil {
		return err
	}
	if !followLogs {
		return nil
	}

	fmt.Fprintln(out, "--- Following log output (Ctrl+C to stop) ---")

	ctx, cancel := signalContext()
	defer cancel()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			fmt.Fprint(out, line)
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// printTail copies r to w, keeping only the last n lines when n > 0.
func printTail(r io.Reader, w io.Writer, n int) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	if n <= 0 {
		for scanner.Scan() {
			fmt.Fprintln(w, scanner.Text())
		}
		return scanner.Err()
	}

	ring := make([]string, 0, n)
	for scanner.Scan() {
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	for _, line := range ring {
		fmt.Fprintln(w, line)
	}
	return nil
}
