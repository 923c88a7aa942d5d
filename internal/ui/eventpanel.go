package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/iamgilwell/procguard/internal/describe"
	"github.com/iamgilwell/procguard/internal/monitor"
	"github.com/iamgilwell/procguard/internal/notification"
	"github.com/iamgilwell/procguard/internal/process"
	"github.com/iamgilwell/procguard/internal/suppression"
)

// EventPanel shows termination outcomes, respawn notices and suppression
// results, and doubles as the detail view for the selected process.
type EventPanel struct {
	app  *App
	view *tview.TextView
}

// NewEventPanel creates the event panel.
func NewEventPanel(app *App) *EventPanel {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)

	tv.SetBorder(true).
		SetTitle(" Events ").
		SetBorderPadding(0, 0, 1, 1)

	return &EventPanel{app: app, view: tv}
}

func (ep *EventPanel) line(color, msg string) {
	fmt.Fprintf(ep.view, "[white]%s %s%s[white]\n", notification.FormatTimestamp(time.Now()), color, tview.Escape(msg))
	ep.view.ScrollToEnd()
}

// Info appends a neutral message.
func (ep *EventPanel) Info(msg string) {
	ep.line("[yellow]", msg)
}

// Error appends a failure message.
func (ep *EventPanel) Error(msg string) {
	ep.line("[red]", msg)
}

// AddOutcome appends a termination outcome.
func (ep *EventPanel) AddOutcome(o process.Outcome) {
	color := "[green]"
	switch {
	case o.State == process.StateInProgress:
		color = "[yellow]"
	case !o.Success:
		color = "[red]"
	}
	msg := o.Message
	if o.Override {
		msg += " (forced past " + o.Safety.Label + " protection)"
	}
	for _, f := range o.Failures {
		msg += fmt.Sprintf("\n    PID %d %s: %s", f.PID, f.Name, f.Err)
	}
	ep.line(color, msg)
}

// AddRespawn appends a respawn notice with the suppression hint.
func (ep *EventPanel) AddRespawn(r process.Respawn) {
	msg := fmt.Sprintf("%s came back as PID %d (was PID %d).", r.Name, r.New.PID, r.Original.PID)
	if r.New.ExePath != "" {
		msg += " Path: " + r.New.ExePath
	}
	ep.line("[orange]", msg+" Press s to suppress it.")
}

// AddSuppression appends a suppression engine event.
func (ep *EventPanel) AddSuppression(ev suppression.Event) {
	color := "[green]"
	if !ev.Success {
		color = "[red]"
	}
	ep.line(color, ev.Message)
}

// ShowDescription replaces the panel with a process description.
func (ep *EventPanel) ShowDescription(rec *monitor.ProcessRecord, d describe.Description, err error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%s[white] (PID %d) %s%s[white]\n", tierTag(rec.Safety.Tier), tview.Escape(rec.Name), rec.PID,
		tierTag(rec.Safety.Tier), rec.Safety.Label)
	fmt.Fprintf(&sb, "%s\n", tview.Escape(d.Text))
	if d.KillImpact != "" {
		fmt.Fprintf(&sb, "[yellow]If terminated:[white] %s\n", tview.Escape(d.KillImpact))
	}
	if rec.Safety.Warning != "" {
		fmt.Fprintf(&sb, "[yellow]Warning:[white] %s\n", tview.Escape(rec.Safety.Warning))
	}
	if rec.ExePath != "" {
		fmt.Fprintf(&sb, "[gray]%s[white]\n", tview.Escape(rec.ExePath))
	}
	if len(rec.HostedServices) > 0 {
		fmt.Fprintf(&sb, "Services: %s\n", strings.Join(rec.HostedServices, ", "))
	}
	if err != nil {
		fmt.Fprintf(&sb, "[gray](%s)[white]\n", tview.Escape(err.Error()))
	}
	ep.view.SetText(sb.String())
}

// ShowTree replaces the panel with the process tree rooted at pid.
func (ep *EventPanel) ShowTree(snap *monitor.Snapshot, pid int) {
	if text, ok := treeText(snap, pid); ok {
		ep.view.SetText(text)
	}
}

func treeText(snap *monitor.Snapshot, pid int) (string, bool) {
	rec, ok := snap.Get(pid)
	if !ok {
		return "", false
	}
	tree := process.TreeFromSnapshot(snap)
	nameOf := func(p int) string {
		if id, ok := tree.Node(p); ok {
			return id.Name
		}
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[yellow]Process Tree for PID %d (%s)[white]\n", pid, tview.Escape(rec.Name))
	parent := tree.ParentOf(pid)
	parentName := nameOf(parent)
	if parentName == "" {
		parentName = rec.ParentName
	}
	fmt.Fprintf(&sb, "├─ Parent: PID %d %s\n", parent, tview.Escape(parentName))
	fmt.Fprintf(&sb, "├─ Safety: %s%s[white]\n", tierTag(rec.Safety.Tier), rec.Safety.Label)

	descendants := tree.AllDescendants(pid)
	if len(descendants) == 0 {
		sb.WriteString("└─ No children\n")
		return sb.String(), true
	}
	if orphans := tree.WouldOrphan(pid); len(orphans) > 0 {
		fmt.Fprintf(&sb, "├─ [orange]Killing only this process orphans %d direct children (use tree kill)[white]\n", len(orphans))
	}
	fmt.Fprintf(&sb, "└─ Descendants (%d), terminated deepest first:\n", len(descendants))
	order := tree.SafeTerminationOrder(pid)
	for i, child := range order[:len(order)-1] {
		prefix := "   ├─"
		if i == len(order)-2 {
			prefix = "   └─"
		}
		fmt.Fprintf(&sb, "%s PID %d: %s\n", prefix, child, tview.Escape(nameOf(child)))
	}
	return sb.String(), true
}
