package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/iamgilwell/procguard/internal/describe"
	"github.com/iamgilwell/procguard/internal/monitor"
	"github.com/iamgilwell/procguard/internal/safety"
)

func setupKeybindings(app *App) {
	app.processTable.table.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF2:
			app.ledgerPanel.show()
			return nil

		case tcell.KeyF3:
			if rec, ok := app.selectedRecord(); ok {
				go describeProcess(app, rec)
			}
			return nil

		case tcell.KeyF4:
			// Show dependency tree for selected process
			if pid := app.processTable.SelectedPID(); pid > 0 {
				app.eventPanel.ShowTree(app.getSnapshot(), pid)
			}
			return nil

		case tcell.KeyF5:
			go app.deps.Monitor.Refresh(app.ctx)
			return nil

		case tcell.KeyF6:
			app.processTable.CycleSort()
			if snap := app.getSnapshot(); snap != nil {
				app.processTable.Update(snap)
			}
			app.eventPanel.Info("Sorting by: " + app.processTable.SortName())
			return nil

		case tcell.KeyF9:
			requestTermination(app, false, false)
			return nil

		case tcell.KeyRune:
			switch event.Rune() {
			case 'k':
				requestTermination(app, false, false)
				return nil
			case 't':
				requestTermination(app, true, false)
				return nil
			case 'K':
				requestTermination(app, false, true)
				return nil
			case 's':
				if rec, ok := app.selectedRecord(); ok {
					app.showSuppressForm(rec)
				}
				return nil
			case 'c':
				level := nextConsentLevel(app.deps.Consent.Level())
				app.deps.Consent.SetLevel(level)
				app.eventPanel.Info(fmt.Sprintf("Consent level %d: %s", level, safety.LevelDescription(level)))
				if snap := app.getSnapshot(); snap != nil {
					app.dashboard.Update(snap, app.getSysMetrics())
				}
				return nil
			}
		}
		return event
	})

	app.tapp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if front, _ := app.pages.GetFrontPage(); front == pageModal {
			return event
		}
		switch {
		case event.Key() == tcell.KeyF10,
			event.Key() == tcell.KeyRune && (event.Rune() == 'q' || event.Rune() == 'Q'):
			app.stop()
			return nil
		}
		return event
	})
}

// nextConsentLevel cycles through the consent levels, wrapping after
// monitor-only.
func nextConsentLevel(level int) int {
	if level >= safety.ConsentMonitorOnly {
		return safety.ConsentAutomatic
	}
	return level + 1
}

// requestTermination applies the consent policy before running a
// termination. RED processes are only offered a forced kill behind an
// explicit confirmation.
func requestTermination(app *App, tree, force bool) {
	rec, ok := app.selectedRecord()
	if !ok {
		return
	}
	consent := app.deps.Consent
	if consent.IsMonitorOnly() {
		app.eventPanel.Error("Monitor-only mode: terminations are disabled.")
		return
	}

	run := func(force bool) {
		go func() {
			if tree {
				app.deps.Controller.TerminateTree(app.ctx, rec.PID, force)
			} else {
				app.deps.Controller.Terminate(app.ctx, rec.PID, force)
			}
		}()
	}

	what := "Terminate"
	if tree {
		what = "Terminate the process tree of"
	}
	info := rec.Safety

	switch {
	case info.Tier == safety.TierRed:
		text := fmt.Sprintf("%s is %s.\n\n%s\n\nForce termination anyway? This can crash or destabilize the system.",
			rec.Name, info.Label, info.Warning)
		app.confirm(text, "Force", func() { run(true) }, app.processTable.table)
	case force:
		app.confirm(fmt.Sprintf("Force kill %s (PID %d) without a graceful stop?", rec.Name, rec.PID),
			"Kill", func() { run(true) }, app.processTable.table)
	case consent.NeedsConfirmation(info):
		text := fmt.Sprintf("%s %s (PID %d)?", what, rec.Name, rec.PID)
		if info.Warning != "" {
			text += "\n\n" + info.Warning
		}
		app.confirm(text, "Terminate", func() { run(false) }, app.processTable.table)
	default:
		run(false)
	}
}

func describeProcess(app *App, rec *monitor.ProcessRecord) {
	var (
		d   describe.Description
		err error
	)
	if app.deps.Describer != nil {
		d, err = app.deps.Describer.Describe(app.ctx, rec)
	} else {
		d = describe.Description{Name: rec.Name, Text: "No description available."}
	}
	app.tapp.QueueUpdateDraw(func() {
		app.eventPanel.ShowDescription(rec, d, err)
	})
}
