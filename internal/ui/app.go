package ui

import (
	"context"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/iamgilwell/procguard/internal/describe"
	"github.com/iamgilwell/procguard/internal/monitor"
	"github.com/iamgilwell/procguard/internal/process"
	"github.com/iamgilwell/procguard/internal/safety"
	"github.com/iamgilwell/procguard/internal/suppression"
)

// Deps are the components the terminal UI drives. Describer may be nil.
type Deps struct {
	Monitor    *monitor.ProcessMonitor
	Controller *process.Controller
	Engine     *suppression.Engine
	Consent    *safety.ConsentManager
	Describer  describe.Resolver
}

// App is the main TUI application.
type App struct {
	tapp  *tview.Application
	pages *tview.Pages
	deps  Deps

	dashboard    *Dashboard
	processTable *ProcessTable
	eventPanel   *EventPanel
	ledgerPanel  *LedgerPanel

	mu         sync.RWMutex
	snapshot   *monitor.Snapshot
	sysMetrics *monitor.SystemMetrics
	startTime  time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(deps Deps) *App {
	app := &App{
		tapp:      tview.NewApplication(),
		pages:     tview.NewPages(),
		deps:      deps,
		startTime: time.Now(),
	}

	app.ctx, app.cancel = context.WithCancel(context.Background())

	app.dashboard = NewDashboard(app)
	app.processTable = NewProcessTable(app)
	app.eventPanel = NewEventPanel(app)
	app.ledgerPanel = NewLedgerPanel(app)

	return app
}

// Run starts the TUI and blocks until the operator quits.
func (a *App) Run() error {
	// Layout: header + process table + event panel
	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.dashboard.view, 3, 0, false).
		AddItem(a.processTable.table, 0, 3, true).
		AddItem(a.eventPanel.view, 10, 0, false).
		AddItem(a.createFooter(), 1, 0, false)

	a.pages.AddPage(pageMain, mainFlex, true, true)
	a.pages.AddPage(pageLedger, a.ledgerPanel.layout, true, false)
	a.tapp.SetRoot(a.pages, true)
	setupKeybindings(a)

	a.deps.Monitor.OnUpdate(func(snap *monitor.Snapshot) {
		metrics := monitor.GetSystemMetrics(a.ctx)
		a.mu.Lock()
		a.snapshot = snap
		a.sysMetrics = metrics
		a.mu.Unlock()

		a.tapp.QueueUpdateDraw(func() {
			a.dashboard.Update(snap, metrics)
			a.processTable.Update(snap)
		})
	})
	a.deps.Monitor.OnError(func(err error) {
		a.tapp.QueueUpdateDraw(func() {
			a.eventPanel.Error("Scan failed: " + err.Error())
		})
	})

	go a.deps.Monitor.Start(a.ctx)

	return a.tapp.Run()
}

// HandleOutcome shows a termination outcome. Safe to call from any goroutine.
func (a *App) HandleOutcome(o process.Outcome) {
	a.tapp.QueueUpdateDraw(func() {
		a.eventPanel.AddOutcome(o)
	})
}

// HandleRespawn shows a respawn notice with the suppression hint.
func (a *App) HandleRespawn(r process.Respawn) {
	a.tapp.QueueUpdateDraw(func() {
		a.eventPanel.AddRespawn(r)
	})
}

// HandleSuppression shows a suppression event and refreshes the ledger.
func (a *App) HandleSuppression(ev suppression.Event) {
	a.tapp.QueueUpdateDraw(func() {
		a.eventPanel.AddSuppression(ev)
		a.ledgerPanel.Refresh()
	})
}

func (a *App) createFooter() *tview.TextView {
	footer := tview.NewTextView().
		SetDynamicColors(true).
		SetText(" [yellow]F2[white]:Suppressions [yellow]F3[white]:Describe [yellow]F4[white]:Tree [yellow]F6[white]:Sort [yellow]F9[white]:Kill [yellow]t[white]:Kill Tree [yellow]K[white]:Force Kill [yellow]s[white]:Suppress [yellow]c[white]:Consent [yellow]F10[white]:Quit")
	footer.SetBackgroundColor(tcell.ColorDarkSlateGray)
	return footer
}

func (a *App) stop() {
	a.cancel()
	a.tapp.Stop()
}

func (a *App) getSnapshot() *monitor.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

func (a *App) getSysMetrics() *monitor.SystemMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sysMetrics
}

func (a *App) selectedRecord() (*monitor.ProcessRecord, bool) {
	pid := a.processTable.SelectedPID()
	if pid <= 0 {
		return nil, false
	}
	return a.getSnapshot().Get(pid)
}

func (a *App) showMain() {
	a.pages.SwitchToPage(pageMain)
	a.tapp.SetFocus(a.processTable.table)
}

const (
	pageMain   = "main"
	pageLedger = "ledger"
	pageModal  = "modal"
)
