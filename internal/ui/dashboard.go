package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/iamgilwell/procguard/internal/monitor"
	"github.com/iamgilwell/procguard/internal/safety"
)

// Dashboard is the top status bar.
type Dashboard struct {
	app  *App
	view *tview.TextView
}

// NewDashboard creates the dashboard widget.
func NewDashboard(app *App) *Dashboard {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBorder(true).
		SetTitle(" procguard - Process Safety Manager ").
		SetBorderPadding(0, 0, 1, 1)

	return &Dashboard{app: app, view: tv}
}

// Update refreshes the dashboard display.
func (d *Dashboard) Update(snap *monitor.Snapshot, metrics *monitor.SystemMetrics) {
	if snap == nil || metrics == nil {
		return
	}

	runtime := time.Since(d.app.startTime).Truncate(time.Second)

	consentLevel := d.app.deps.Consent.Level()
	mode := safety.LevelDescription(consentLevel)

	var green, yellow, red int
	for _, r := range snap.Processes {
		switch r.Safety.Tier {
		case safety.TierRed:
			red++
		case safety.TierYellow:
			yellow++
		default:
			green++
		}
	}

	text := fmt.Sprintf(
		" [yellow]Runtime:[white] %s | [yellow]Consent:[white] %s (L%d) | [yellow]Procs:[white] %d "+
			"([%s]%d[white]/[%s]%d[white]/[%s]%d[white]) | [yellow]CPU:[white] %.1f%% | [yellow]Mem:[white] %.1f%% | "+
			"[yellow]Load:[white] %.2f | [yellow]Suppressed:[white] %d",
		runtime, mode, consentLevel, snap.Len(),
		safety.TierGreen.Color(), green, safety.TierYellow.Color(), yellow, safety.TierRed.Color(), red,
		metrics.TotalCPU, metrics.TotalMemory, metrics.LoadAvg1,
		d.app.deps.Engine.ActiveCount(),
	)

	d.view.SetText(text)
}
