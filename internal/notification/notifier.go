package notification

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/iamgilwell/procguard/internal/process"
	"github.com/iamgilwell/procguard/internal/safety"
	"github.com/iamgilwell/procguard/internal/suppression"
)

// Color codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// Notifier handles terminal output and file logging.
type Notifier struct {
	mu           sync.Mutex
	out          io.Writer
	logFile      *os.File
	logger       *log.Logger
	colorEnabled bool
	verbose      bool
}

// NewNotifier creates a new notifier.
func NewNotifier(logFilePath string, colorEnabled, verbose bool) (*Notifier, error) {
	n := &Notifier{
		out:          os.Stdout,
		colorEnabled: colorEnabled,
		verbose:      verbose,
	}

	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		n.logFile = f
		n.logger = log.New(f, "", log.LstdFlags)
	}

	return n, nil
}

// SetOutput redirects console output. A nil writer silences it.
func (n *Notifier) SetOutput(w io.Writer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if w == nil {
		w = io.Discard
	}
	n.out = w
}

// Close closes the log file.
func (n *Notifier) Close() {
	if n.logFile != nil {
		n.logFile.Close()
	}
}

// Info logs an informational message.
func (n *Notifier) Info(msg string) {
	n.emit("INFO", colorGreen, msg)
}

// Warn logs a warning message.
func (n *Notifier) Warn(msg string) {
	n.emit("WARN", colorYellow, msg)
}

// Error logs an error message.
func (n *Notifier) Error(msg string) {
	n.emit("ERROR", colorRed, msg)
}

// Debug logs a debug message (only if verbose).
func (n *Notifier) Debug(msg string) {
	if !n.verbose {
		return
	}
	n.emit("DEBUG", colorCyan, msg)
}

func (n *Notifier) emit(level, color, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.colorEnabled {
		fmt.Fprintf(n.out, "%s[%s]%s %s\n", color, level, colorReset, msg)
	} else {
		fmt.Fprintf(n.out, "[%s] %s\n", level, msg)
	}

	if n.logger != nil {
		n.logger.Printf("[%s] %s", level, msg)
	}
}

// Termination logs a termination outcome, colored by tier.
func (n *Notifier) Termination(o process.Outcome) {
	n.mu.Lock()
	defer n.mu.Unlock()

	status := "OK"
	if !o.Success {
		status = "FAIL"
	}
	flags := ""
	if o.Override {
		flags = " override"
	} else if o.Forced {
		flags = " forced"
	}
	if o.Tree {
		flags += " tree"
	}

	if n.colorEnabled {
		fmt.Fprintf(n.out, "%s[KILL]%s %s%-6s%s %-4s PID=%-7d %-20s %-13s%s %s\n",
			colorBold, colorReset,
			tierColor(o.Safety.Tier), o.Safety.Tier, colorReset,
			status, o.PID, o.Name, o.State, flags, o.Message)
	} else {
		fmt.Fprintf(n.out, "[KILL] %-6s %-4s PID=%-7d %-20s %-13s%s %s\n",
			o.Safety.Tier, status, o.PID, o.Name, o.State, flags, o.Message)
	}

	if n.logger != nil {
		n.logger.Printf("[KILL] tier=%s status=%s pid=%d name=%s state=%s%s %s",
			o.Safety.Tier, status, o.PID, o.Name, o.State, flags, o.Message)
	}
}

// Respawn logs a detected respawn.
func (n *Notifier) Respawn(r process.Respawn) {
	msg := fmt.Sprintf("%s respawned: PID %d -> PID %d", r.Name, r.Original.PID, r.New.PID)
	if r.New.ExePath != "" {
		msg += " (" + r.New.ExePath + ")"
	}
	n.emit("RESPAWN", colorBlue, msg)
}

// Suppression logs a suppression engine event.
func (n *Notifier) Suppression(ev suppression.Event) {
	level, color := "SUPPRESS", colorGreen
	if !ev.Success {
		color = colorRed
	}
	if ev.Action != suppression.ActionApply {
		level = "RESTORE"
		if ev.Action == suppression.ActionForget {
			level = "FORGET"
		}
	}
	n.emit(level, color, ev.Message)
}

func tierColor(t safety.Tier) string {
	switch t {
	case safety.TierRed:
		return colorRed
	case safety.TierYellow:
		return colorYellow
	default:
		return colorGreen
	}
}

// FormatTimestamp formats a time for display.
func FormatTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
