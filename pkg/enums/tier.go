package enums

import "fmt"

// Tier is a tenant's subscription level. Quota ceilings are keyed off it.
type Tier string

const (
	TierStarter Tier = "starter"
	TierGrowth  Tier = "growth"
	TierScale   Tier = "scale"
)

var validTiers = []Tier{
	TierStarter,
	TierGrowth,
	TierScale,
}

// String returns the literal string for the tier.
func (t Tier) String() string {
	return string(t)
}

// IsValid reports whether the tier is known.
func (t Tier) IsValid() bool {
	for _, candidate := range validTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTier converts raw input into a Tier.
func ParseTier(value string) (Tier, error) {
	for _, candidate := range validTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tier %q", value)
}
