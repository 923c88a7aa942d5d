package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// LedgerPanel lists suppression ledger entries and restores them.
type LedgerPanel struct {
	app    *App
	table  *tview.Table
	layout *tview.Flex
}

// NewLedgerPanel creates the ledger page.
func NewLedgerPanel(app *App) *LedgerPanel {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true).
		SetTitle(" Suppressions ")

	help := tview.NewTextView().
		SetDynamicColors(true).
		SetText(" [yellow]Enter[white]:Restore [yellow]f[white]:Forget [yellow]R[white]:Restore All [yellow]Esc[white]:Back")
	help.SetBackgroundColor(tcell.ColorDarkSlateGray)

	lp := &LedgerPanel{app: app, table: table}
	lp.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 1, true).
		AddItem(help, 1, 0, false)

	table.SetInputCapture(lp.handleKey)
	return lp
}

// Refresh reloads the table from the engine.
func (lp *LedgerPanel) Refresh() {
	lp.table.Clear()
	for i, h := range []string{"ID", "PROCESS", "METHOD", "DETAIL", "CREATED", "RESTORABLE"} {
		lp.table.SetCell(0, i, tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false).
			SetExpansion(1))
	}

	entries := lp.app.deps.Engine.Entries()
	for i, e := range entries {
		row := i + 1
		restorable := "yes"
		color := tcell.ColorWhite
		if !e.Restorable() {
			restorable = "no"
			color = tcell.ColorGray
		}
		lp.table.SetCell(row, 0, tview.NewTableCell(fmt.Sprintf("%d", e.ID)).SetTextColor(color))
		lp.table.SetCell(row, 1, tview.NewTableCell(e.ProcessName).SetTextColor(color))
		lp.table.SetCell(row, 2, tview.NewTableCell(string(e.Kind())).SetTextColor(color))
		lp.table.SetCell(row, 3, tview.NewTableCell(truncate(e.Detail(), 40)).SetTextColor(color))
		lp.table.SetCell(row, 4, tview.NewTableCell(e.Created.Format("2006-01-02 15:04")).SetTextColor(color))
		lp.table.SetCell(row, 5, tview.NewTableCell(restorable).SetTextColor(color))
	}
	if len(entries) == 0 {
		lp.table.SetCell(1, 0, tview.NewTableCell("No active suppressions.").
			SetTextColor(tcell.ColorGray).
			SetSelectable(false))
	}
}

func (lp *LedgerPanel) selectedID() int {
	row, _ := lp.table.GetSelection()
	if row < 1 {
		return 0
	}
	var id int
	fmt.Sscanf(lp.table.GetCell(row, 0).Text, "%d", &id)
	return id
}

func (lp *LedgerPanel) handleKey(event *tcell.EventKey) *tcell.EventKey {
	engine := lp.app.deps.Engine
	switch event.Key() {
	case tcell.KeyEscape:
		lp.app.showMain()
		return nil
	case tcell.KeyEnter:
		if id := lp.selectedID(); id > 0 {
			go engine.Restore(lp.app.ctx, id)
		}
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case 'f':
			if id := lp.selectedID(); id > 0 {
				go engine.Forget(id)
			}
			return nil
		case 'R':
			lp.app.confirm("Restore every active suppression?", "Restore All", func() {
				go func() {
					results := engine.RestoreAll(lp.app.ctx)
					restored := 0
					for _, r := range results {
						if r.Success {
							restored++
						}
					}
					lp.app.tapp.QueueUpdateDraw(func() {
						lp.app.eventPanel.Info(fmt.Sprintf("Restored %d of %d suppressions.", restored, len(results)))
					})
				}()
			}, lp.table)
			return nil
		}
	}
	return event
}

// show switches to the ledger page.
func (lp *LedgerPanel) show() {
	lp.Refresh()
	lp.app.pages.SwitchToPage(pageLedger)
	lp.app.tapp.SetFocus(lp.table)
}
