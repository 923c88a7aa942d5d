package safety

import "sync"

// Consent levels.
const (
	ConsentAutomatic      = 0 // Confirm only forced kills of red processes
	ConsentConfirmCaution = 1 // Confirm yellow and red
	ConsentConfirmAll     = 2 // Confirm every termination
	ConsentMonitorOnly    = 3 // Monitoring only, no terminations
)

// ConsentManager decides when the operator must confirm a termination.
type ConsentManager struct {
	mu    sync.RWMutex
	level int
}

// NewConsentManager creates a consent manager with the given level.
func NewConsentManager(level int) *ConsentManager {
	return &ConsentManager{level: clampLevel(level)}
}

// Level returns the current consent level.
func (c *ConsentManager) Level() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.level
}

// SetLevel sets the consent level (0-3).
func (c *ConsentManager) SetLevel(level int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = clampLevel(level)
}

// NeedsConfirmation returns whether terminating a process with the given
// verdict needs an explicit yes from the operator.
func (c *ConsentManager) NeedsConfirmation(info Info) bool {
	switch c.Level() {
	case ConsentAutomatic:
		return info.Tier == TierRed
	case ConsentConfirmCaution:
		return info.Tier >= TierYellow
	default:
		return true
	}
}

// IsMonitorOnly returns true if terminations are disabled.
func (c *ConsentManager) IsMonitorOnly() bool {
	return c.Level() == ConsentMonitorOnly
}

// LevelDescription returns a human-readable description of a consent level.
func LevelDescription(level int) string {
	switch level {
	case ConsentAutomatic:
		return "Fully Automatic"
	case ConsentConfirmCaution:
		return "Confirm Caution"
	case ConsentConfirmAll:
		return "Confirm All"
	case ConsentMonitorOnly:
		return "Monitor Only"
	default:
		return "Unknown"
	}
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > 3 {
		return 3
	}
	return level
}
