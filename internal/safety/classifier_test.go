package safety

import "testing"

func boolPtr(b bool) *bool { return &b }

func testClassifier() *Classifier {
	catalog := MapCatalog{
		"lsass.exe":    {Category: CategorySystemCritical, SafeToKill: boolPtr(false), KillWarning: "forces a reboot"},
		"msmpeng.exe":  {Category: CategoryService, SafeToKill: boolPtr(false)},
		"spoolsv.exe":  {Category: CategoryService},
		"critd":        {Category: CategorySystemCritical, SafeToKill: boolPtr(false)},
		"helperd":      {Category: CategoryBackgroundApp, SafeToKill: boolPtr(false), KillWarning: "helper stops"},
		"printd":       {Category: CategoryService},
		"chrome.exe":   {Category: CategoryUserApp},
		"safecrit":     {Category: CategorySystemCritical},
		"explorer.exe": {Category: CategoryUserApp},
	}
	return NewClassifier(Overrides{
		AlwaysCritical:   []string{"csrss.exe", "lsass.exe", "Systemd"},
		CautionOverrides: []string{"explorer.exe", "spoolsv.exe"},
	}, catalog)
}

func TestKernelPIDsAlwaysRed(t *testing.T) {
	c := testClassifier()
	for _, pid := range []int{0, 4} {
		for _, name := range []string{"", "System Idle Process", "chrome.exe", "worker.exe", "explorer.exe"} {
			got := c.Classify(name, pid)
			if got.Tier != TierRed || got.CanKill {
				t.Errorf("Classify(%q, %d) = %+v, want red and not killable", name, pid, got)
			}
		}
	}
}

func TestClassifyDecisionOrder(t *testing.T) {
	c := testClassifier()

	tests := []struct {
		name    string
		proc    string
		pid     int
		tier    Tier
		canKill bool
		warning string
		rule    string
	}{
		{name: "always critical", proc: "csrss.exe", pid: 600, tier: TierRed, warning: warnCritical, rule: "always-critical"},
		{name: "always critical uses catalog warning", proc: "LSASS.EXE", pid: 700, tier: TierRed, warning: "forces a reboot", rule: "always-critical"},
		{name: "override set is case insensitive", proc: "systemd", pid: 1, tier: TierRed, warning: warnCritical, rule: "always-critical"},
		{name: "caution beats catalog", proc: "explorer.exe", pid: 800, tier: TierYellow, canKill: true, warning: warnCaution, rule: "caution-override"},
		{name: "unsafe system critical entry", proc: "critd", pid: 900, tier: TierRed, warning: warnCriticalDB, rule: "catalog-unsafe-critical"},
		{name: "unsafe entry is caution", proc: "helperd", pid: 901, tier: TierYellow, canKill: true, warning: "helper stops", rule: "catalog-unsafe"},
		{name: "unsafe service", proc: "msmpeng.exe", pid: 902, tier: TierYellow, canKill: true, warning: warnImportant, rule: "catalog-unsafe"},
		{name: "service category", proc: "printd", pid: 903, tier: TierYellow, canKill: true, warning: warnServiceTier, rule: "catalog-category"},
		{name: "user app", proc: "chrome.exe", pid: 904, tier: TierGreen, canKill: true, rule: "catalog-category"},
		{name: "safe system critical entry maps green", proc: "safecrit", pid: 905, tier: TierGreen, canKill: true, rule: "catalog-category"},
		{name: "unknown is green", proc: "worker.exe", pid: 5000, tier: TierGreen, canKill: true, rule: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.proc, tt.pid)
			if got.Tier != tt.tier {
				t.Errorf("tier = %s, want %s", got.Tier, tt.tier)
			}
			if got.CanKill != tt.canKill {
				t.Errorf("can kill = %v, want %v", got.CanKill, tt.canKill)
			}
			if got.Warning != tt.warning {
				t.Errorf("warning = %q, want %q", got.Warning, tt.warning)
			}
			if got.Label != tt.tier.Label() {
				t.Errorf("label = %q, want %q", got.Label, tt.tier.Label())
			}
			var entry *CatalogEntry
			if e, ok := c.Catalog().Lookup(tt.proc); ok {
				entry = &e
			}
			if rule := c.Rule(Subject{Name: tt.proc, PID: tt.pid, Entry: entry}); rule != tt.rule {
				t.Errorf("rule = %q, want %q", rule, tt.rule)
			}
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	c := testClassifier()
	for _, name := range []string{"csrss.exe", "explorer.exe", "printd", "worker.exe"} {
		first := c.Classify(name, 1234)
		second := c.Classify(name, 1234)
		if first != second {
			t.Errorf("Classify(%q) not stable: %+v vs %+v", name, first, second)
		}
	}
}

func TestClassifyNilCatalog(t *testing.T) {
	c := NewClassifier(Overrides{}, nil)
	got := c.Classify("anything", 42)
	if got.Tier != TierGreen || !got.CanKill {
		t.Errorf("got %+v, want green", got)
	}
}

func TestTierOrderingAndNames(t *testing.T) {
	if !(TierGreen < TierYellow && TierYellow < TierRed) {
		t.Fatal("tiers must be ordered green < yellow < red")
	}
	for _, tier := range []Tier{TierGreen, TierYellow, TierRed} {
		parsed, ok := ParseTier(tier.String())
		if !ok || parsed != tier {
			t.Errorf("ParseTier(%q) = %v, %v", tier.String(), parsed, ok)
		}
	}
	if TierRed.Color() != "#F44336" {
		t.Errorf("red color = %s", TierRed.Color())
	}
}
