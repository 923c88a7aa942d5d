package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/iamgilwell/procguard/internal/monitor"
	"github.com/iamgilwell/procguard/internal/safety"
)

// SortField determines how the process table is sorted.
type SortField int

const (
	SortByCPU SortField = iota
	SortByMemory
	SortByPID
	SortByName
	SortByDisk
	SortByTier
)

var sortFieldNames = []string{"CPU%", "MEM", "PID", "NAME", "DISK", "TIER"}

// ProcessTable displays processes in an htop-like table.
type ProcessTable struct {
	app       *App
	table     *tview.Table
	sortField SortField
	sortDesc  bool
}

// NewProcessTable creates the process table.
func NewProcessTable(app *App) *ProcessTable {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0).
		SetSeparator(tview.Borders.Vertical)

	table.SetBorder(true).
		SetTitle(" Processes ").
		SetBorderPadding(0, 0, 0, 0)

	pt := &ProcessTable{
		app:       app,
		table:     table,
		sortField: SortByCPU,
		sortDesc:  true,
	}

	pt.setHeaders()
	return pt
}

func (pt *ProcessTable) setHeaders() {
	headers := []string{"PID", "NAME", "USER", "CPU%", "MEM(MB)", "DISK R/W", "NET S/R", "TIER", "SERVICES", "COMMAND"}
	for i, h := range headers {
		cell := tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false).
			SetExpansion(1)
		pt.table.SetCell(0, i, cell)
	}
}

// Update refreshes the process table from a snapshot.
func (pt *ProcessTable) Update(snap *monitor.Snapshot) {
	sorted := snap.Records()
	pt.sortRecords(sorted)

	// Clear existing rows (keep header)
	rowCount := pt.table.GetRowCount()
	for r := rowCount - 1; r >= 1; r-- {
		pt.table.RemoveRow(r)
	}

	for i, p := range sorted {
		row := i + 1 // skip header

		tierColor := tcell.GetColor(p.Safety.Tier.Color())

		cpuColor := tcell.ColorWhite
		if p.CPUPercent > 50 {
			cpuColor = tcell.ColorRed
		} else if p.CPUPercent > 20 {
			cpuColor = tcell.ColorYellow
		}

		disk := monitor.FormatRate(p.DiskReadRate) + " " + monitor.FormatRate(p.DiskWriteRate)
		net := monitor.FormatRate(p.NetSendRate) + " " + monitor.FormatRate(p.NetRecvRate)

		pt.table.SetCell(row, 0, tview.NewTableCell(fmt.Sprintf("%d", p.PID)).SetTextColor(tcell.ColorWhite))
		pt.table.SetCell(row, 1, tview.NewTableCell(truncate(p.Name, 25)).SetTextColor(tierColor))
		pt.table.SetCell(row, 2, tview.NewTableCell(truncate(p.Username, 10)).SetTextColor(tcell.ColorWhite))
		pt.table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%.1f", p.CPUPercent)).SetTextColor(cpuColor))
		pt.table.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf("%.1f", p.MemoryMB())).SetTextColor(tcell.ColorWhite))
		pt.table.SetCell(row, 5, tview.NewTableCell(disk).SetTextColor(tcell.ColorWhite))
		pt.table.SetCell(row, 6, tview.NewTableCell(net).SetTextColor(tcell.ColorWhite))
		pt.table.SetCell(row, 7, tview.NewTableCell(p.Safety.Label).SetTextColor(tierColor))
		pt.table.SetCell(row, 8, tview.NewTableCell(truncate(strings.Join(p.HostedServices, ","), 25)).SetTextColor(tcell.ColorBlue))
		pt.table.SetCell(row, 9, tview.NewTableCell(truncate(p.CommandLine, 50)).SetTextColor(tcell.ColorGray))
	}
}

// SelectedPID returns the PID of the currently selected process.
func (pt *ProcessTable) SelectedPID() int {
	row, _ := pt.table.GetSelection()
	if row < 1 {
		return -1
	}
	cell := pt.table.GetCell(row, 0)
	if cell == nil {
		return -1
	}
	var pid int
	fmt.Sscanf(cell.Text, "%d", &pid)
	return pid
}

// CycleSort advances to the next sort field.
func (pt *ProcessTable) CycleSort() {
	pt.sortField = (pt.sortField + 1) % SortField(len(sortFieldNames))
}

// SortName returns the current sort field name.
func (pt *ProcessTable) SortName() string {
	return sortFieldNames[pt.sortField]
}

func (pt *ProcessTable) sortRecords(procs []*monitor.ProcessRecord) {
	sortRecords(procs, pt.sortField, pt.sortDesc)
}

func sortRecords(procs []*monitor.ProcessRecord, field SortField, desc bool) {
	less := func(a, b *monitor.ProcessRecord) bool {
		switch field {
		case SortByMemory:
			return a.MemoryBytes < b.MemoryBytes
		case SortByPID:
			return a.PID < b.PID
		case SortByName:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case SortByDisk:
			return a.DiskReadRate+a.DiskWriteRate < b.DiskReadRate+b.DiskWriteRate
		case SortByTier:
			return a.Safety.Tier < b.Safety.Tier
		default:
			return a.CPUPercent < b.CPUPercent
		}
	}
	sort.SliceStable(procs, func(i, j int) bool {
		if desc {
			return less(procs[j], procs[i])
		}
		return less(procs[i], procs[j])
	})
}

func tierTag(t safety.Tier) string {
	return "[" + t.Color() + "]"
}

// truncate shortens s to n runes, the last being an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n < 1 {
		return ""
	}
	return string(r[:n-1]) + "…"
}
