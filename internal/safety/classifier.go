package safety

import "strings"

// Kernel idle and system process ids. These are red regardless of name.
var kernelPIDs = map[int]bool{0: true, 4: true}

const (
	warnCoreOS      = "Core operating system process. Cannot be terminated."
	warnCritical    = "System critical process. Terminating may crash the operating system."
	warnCaution     = "This service may affect system functionality."
	warnCriticalDB  = "System critical process."
	warnImportant   = "This process provides important functionality."
	warnServiceTier = "System service, may affect functionality."
)

// Overrides are the fixed name sets that dominate the catalog lookup.
type Overrides struct {
	AlwaysCritical   []string
	CautionOverrides []string
}

// Subject is everything a rule may look at.
type Subject struct {
	Name  string
	PID   int
	Entry *CatalogEntry
}

type rule struct {
	name    string
	match   func(Subject) bool
	verdict func(Subject) Info
}

// Classifier assigns a safety tier to a process. It holds only immutable
// data, so Classify is safe for concurrent use and has no side effects.
type Classifier struct {
	critical map[string]bool
	caution  map[string]bool
	catalog  Catalog
	rules    []rule
}

// NewClassifier builds a classifier from the override sets and a catalog.
// A nil catalog behaves as an empty one.
func NewClassifier(overrides Overrides, catalog Catalog) *Classifier {
	c := &Classifier{
		critical: lowerSet(overrides.AlwaysCritical),
		caution:  lowerSet(overrides.CautionOverrides),
		catalog:  catalog,
	}
	c.rules = []rule{
		{
			name:    "kernel-pid",
			match:   func(s Subject) bool { return kernelPIDs[s.PID] },
			verdict: func(Subject) Info { return newInfo(TierRed, warnCoreOS) },
		},
		{
			name:    "always-critical",
			match:   func(s Subject) bool { return c.critical[s.Name] },
			verdict: func(s Subject) Info { return newInfo(TierRed, entryWarning(s.Entry, warnCritical)) },
		},
		{
			name:    "caution-override",
			match:   func(s Subject) bool { return c.caution[s.Name] },
			verdict: func(s Subject) Info { return newInfo(TierYellow, entryWarning(s.Entry, warnCaution)) },
		},
		{
			name: "catalog-unsafe-critical",
			match: func(s Subject) bool {
				return s.Entry != nil && !s.Entry.Safe() && s.Entry.Category == CategorySystemCritical
			},
			verdict: func(s Subject) Info { return newInfo(TierRed, entryWarning(s.Entry, warnCriticalDB)) },
		},
		{
			name:    "catalog-unsafe",
			match:   func(s Subject) bool { return s.Entry != nil && !s.Entry.Safe() },
			verdict: func(s Subject) Info { return newInfo(TierYellow, entryWarning(s.Entry, warnImportant)) },
		},
		{
			name:    "catalog-category",
			match:   func(s Subject) bool { return s.Entry != nil },
			verdict: categoryVerdict,
		},
	}
	return c
}

// Classify returns the verdict for name and pid, consulting the catalog.
func (c *Classifier) Classify(name string, pid int) Info {
	lname := strings.ToLower(name)
	var entry *CatalogEntry
	if c.catalog != nil {
		if e, ok := c.catalog.Lookup(lname); ok {
			entry = &e
		}
	}
	return c.Evaluate(Subject{Name: lname, PID: pid, Entry: entry})
}

// Evaluate runs the rule chain over an explicit subject; first match wins.
// Unknown processes are green.
func (c *Classifier) Evaluate(s Subject) Info {
	s.Name = strings.ToLower(s.Name)
	for _, r := range c.rules {
		if r.match(s) {
			return r.verdict(s)
		}
	}
	return newInfo(TierGreen, "")
}

// Rule returns the name of the rule that decides s, or "default".
func (c *Classifier) Rule(s Subject) string {
	s.Name = strings.ToLower(s.Name)
	for _, r := range c.rules {
		if r.match(s) {
			return r.name
		}
	}
	return "default"
}

// Catalog returns the lookup the classifier was built with.
func (c *Classifier) Catalog() Catalog {
	return c.catalog
}

// categoryVerdict maps a safe-to-kill catalog entry to a tier: services are
// yellow, every other category is green.
func categoryVerdict(s Subject) Info {
	if s.Entry.Category == CategoryService {
		return newInfo(TierYellow, entryWarning(s.Entry, warnServiceTier))
	}
	return newInfo(TierGreen, "")
}

func entryWarning(e *CatalogEntry, fallback string) string {
	if e != nil && e.KillWarning != "" {
		return e.KillWarning
	}
	return fallback
}

func lowerSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(strings.TrimSpace(n))] = true
	}
	return set
}
