package describe

import (
	"context"
	"strings"

	"github.com/iamgilwell/procguard/internal/monitor"
	"github.com/iamgilwell/procguard/internal/safety"
)

// CatalogResolver describes processes from the known-category catalog,
// falling back to command-line heuristics and the executable path.
type CatalogResolver struct {
	catalog safety.Catalog
}

// NewCatalogResolver creates a resolver over catalog.
func NewCatalogResolver(catalog safety.Catalog) *CatalogResolver {
	return &CatalogResolver{catalog: catalog}
}

// Describe implements Resolver. It never fails.
func (r *CatalogResolver) Describe(_ context.Context, rec *monitor.ProcessRecord) (Description, error) {
	d, _ := r.lookup(rec)
	return d, nil
}

// Known reports whether the catalog or a heuristic recognizes rec.
func (r *CatalogResolver) Known(rec *monitor.ProcessRecord) bool {
	_, ok := r.lookup(rec)
	return ok
}

func (r *CatalogResolver) lookup(rec *monitor.ProcessRecord) (Description, bool) {
	if text, ok := FromCmdline(rec.Name, rec.CommandLine); ok {
		d := Description{Name: rec.Name, Text: text, Category: rec.Category, Source: SourceCmdline}
		if entry, found := r.entry(rec.Name); found {
			d.Category = string(entry.Category)
			d.KillImpact = entry.KillImpact
		}
		return d, true
	}

	if entry, found := r.entry(rec.Name); found && entry.Description != "" {
		d := Description{
			Name:       rec.Name,
			Text:       entry.Description,
			Category:   string(entry.Category),
			KillImpact: entry.KillImpact,
			Source:     SourceCatalog,
		}
		if len(rec.HostedServices) > 0 {
			d.Text += " Hosting: " + strings.Join(rec.HostedServices, ", ")
		}
		return d, true
	}

	return unknown(rec), false
}

func (r *CatalogResolver) entry(name string) (safety.CatalogEntry, bool) {
	if r.catalog == nil {
		return safety.CatalogEntry{}, false
	}
	return r.catalog.Lookup(strings.ToLower(name))
}
