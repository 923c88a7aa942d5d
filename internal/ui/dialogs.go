package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rivo/tview"

	"github.com/iamgilwell/procguard/internal/monitor"
	"github.com/iamgilwell/procguard/internal/suppression"
)

// confirm shows a yes/cancel modal and restores focus to back afterwards.
func (a *App) confirm(text, yes string, onYes func(), back tview.Primitive) {
	modal := tview.NewModal().
		SetText(text).
		AddButtons([]string{yes, "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			a.pages.RemovePage(pageModal)
			a.tapp.SetFocus(back)
			if label == yes {
				onYes()
			}
		})
	a.pages.AddPage(pageModal, modal, false, true)
	a.tapp.SetFocus(modal)
}

var suppressionKinds = []suppression.Kind{
	suppression.KindService,
	suppression.KindStartup,
	suppression.KindTask,
	suppression.KindIFEO,
}

// showSuppressForm asks how to keep rec from coming back.
func (a *App) showSuppressForm(rec *monitor.ProcessRecord) {
	options := make([]string, len(suppressionKinds))
	for i, k := range suppressionKinds {
		options[i] = string(k)
	}

	kind := suppression.KindIFEO
	initial := 3
	if len(rec.HostedServices) > 0 {
		kind, initial = suppression.KindService, 0
	}
	detail := defaultDetail(rec, kind)

	form := tview.NewForm()
	hint := tview.NewTextView().SetDynamicColors(true).SetText(suppression.Describe(kind))
	form.AddDropDown("Method", options, initial, func(option string, index int) {
		if index < 0 {
			return
		}
		kind = suppressionKinds[index]
		hint.SetText(suppression.Describe(kind))
		if item, ok := form.GetFormItemByLabel("Name").(*tview.InputField); ok {
			item.SetText(defaultDetail(rec, kind))
		}
	})
	form.AddInputField("Name", detail, 48, nil, func(text string) { detail = text })
	form.AddButton("Suppress", func() {
		a.closeModal()
		target := suppression.Target{ProcessName: rec.Name, ExePath: rec.ExePath}
		k, d := kind, strings.TrimSpace(detail)
		go func() {
			if _, err := a.deps.Engine.Apply(a.ctx, k, target, d); err != nil {
				a.tapp.QueueUpdateDraw(func() {
					a.eventPanel.Error(fmt.Sprintf("Suppress %s: %s", d, suppression.Message(err)))
				})
			}
		}()
	})
	form.AddButton("Cancel", a.closeModal)
	form.SetBorder(true).SetTitle(fmt.Sprintf(" Suppress %s ", rec.Name))
	form.SetCancelFunc(a.closeModal)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(form, 9, 0, true).
		AddItem(hint, 2, 0, false)
	a.pages.AddPage(pageModal, centered(layout, 70, 11), true, true)
	a.tapp.SetFocus(form)
}

func (a *App) closeModal() {
	a.pages.RemovePage(pageModal)
	a.showMain()
}

// defaultDetail proposes the method-specific name for rec.
func defaultDetail(rec *monitor.ProcessRecord, kind suppression.Kind) string {
	switch kind {
	case suppression.KindService:
		if len(rec.HostedServices) > 0 {
			return rec.HostedServices[0]
		}
	case suppression.KindIFEO:
		if rec.ExePath != "" {
			return filepath.Base(rec.ExePath)
		}
	}
	return rec.Name
}

func centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}
