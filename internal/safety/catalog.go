package safety

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is the catalog's coarse grouping of a process.
type Category string

const (
	CategorySystemCritical Category = "system_critical"
	CategoryService        Category = "service"
	CategoryUserApp        Category = "user_app"
	CategoryBackgroundApp  Category = "background_app"
	CategoryStartupItem    Category = "startup_item"
	CategoryUnknown        Category = "unknown"
)

// UnmarshalYAML accepts the legacy "windows_service" spelling.
func (c *Category) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "system_critical":
		*c = CategorySystemCritical
	case "service", "windows_service", "system_service":
		*c = CategoryService
	case "user_app":
		*c = CategoryUserApp
	case "background_app":
		*c = CategoryBackgroundApp
	case "startup_item":
		*c = CategoryStartupItem
	case "", "unknown":
		*c = CategoryUnknown
	default:
		return fmt.Errorf("line %d: unknown category %q", node.Line, raw)
	}
	return nil
}

// CatalogEntry is what is known about a process name.
type CatalogEntry struct {
	Description string   `yaml:"description"`
	Category    Category `yaml:"category"`
	SafeToKill  *bool    `yaml:"safe_to_kill"`
	KillWarning string   `yaml:"kill_warning"`
	KillImpact  string   `yaml:"kill_impact"`
}

// Safe reports whether the entry is safe to kill. Absent means safe.
func (e CatalogEntry) Safe() bool {
	return e.SafeToKill == nil || *e.SafeToKill
}

// Catalog is the known-category lookup. Names are passed lowercased.
type Catalog interface {
	Lookup(name string) (CatalogEntry, bool)
}

// MapCatalog is an in-memory catalog keyed by lowercase process name.
type MapCatalog map[string]CatalogEntry

// Lookup implements Catalog.
func (m MapCatalog) Lookup(name string) (CatalogEntry, bool) {
	e, ok := m[strings.ToLower(name)]
	return e, ok
}

type catalogFile struct {
	Processes map[string]CatalogEntry `yaml:"processes"`
}

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() MapCatalog {
	cat, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return cat
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (MapCatalog, error) {
	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	cat := make(MapCatalog, len(doc.Processes))
	for name, entry := range doc.Processes {
		if entry.Category == "" {
			entry.Category = CategoryUnknown
		}
		cat[strings.ToLower(name)] = entry
	}
	return cat, nil
}

// LoadCatalog returns the built-in catalog with the entries of path layered
// on top. An empty path yields the built-in catalog.
func LoadCatalog(path string) (MapCatalog, error) {
	cat := DefaultCatalog()
	if path == "" {
		return cat, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	extra, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for name, entry := range extra {
		cat[name] = entry
	}
	return cat, nil
}
