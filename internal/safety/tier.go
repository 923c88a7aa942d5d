package safety

import "fmt"

// Tier is the protection level gating termination. Higher tiers protect more.
type Tier int

const (
	TierGreen Tier = iota
	TierYellow
	TierRed
)

func (t Tier) String() string {
	switch t {
	case TierGreen:
		return "green"
	case TierYellow:
		return "yellow"
	case TierRed:
		return "red"
	default:
		return "unknown"
	}
}

// Label returns the human-readable tier name.
func (t Tier) Label() string {
	switch t {
	case TierGreen:
		return "Safe"
	case TierYellow:
		return "Caution"
	case TierRed:
		return "System Critical"
	default:
		return "Unknown"
	}
}

// Color returns the hex display color for the tier.
func (t Tier) Color() string {
	switch t {
	case TierYellow:
		return "#FF9800"
	case TierRed:
		return "#F44336"
	default:
		return "#4CAF50"
	}
}

// ParseTier converts a tier name back into a Tier.
func ParseTier(s string) (Tier, bool) {
	switch s {
	case "green":
		return TierGreen, true
	case "yellow":
		return TierYellow, true
	case "red":
		return TierRed, true
	default:
		return TierGreen, false
	}
}

// Info is the classifier's verdict for one (name, pid) pair.
type Info struct {
	Tier    Tier   `json:"tier"`
	Label   string `json:"label"`
	Warning string `json:"warning,omitempty"`
	CanKill bool   `json:"can_kill"`
}

func newInfo(tier Tier, warning string) Info {
	return Info{
		Tier:    tier,
		Label:   tier.Label(),
		Warning: warning,
		CanKill: tier != TierRed,
	}
}

// MarshalText lets Tier appear as its name in JSON and YAML output.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a tier name.
func (t *Tier) UnmarshalText(b []byte) error {
	v, ok := ParseTier(string(b))
	if !ok {
		return fmt.Errorf("unknown tier %q", b)
	}
	*t = v
	return nil
}
