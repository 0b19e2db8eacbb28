package quota

import "github.com/voxline-ai/voxline-backend/pkg/enums"

// Unlimited is the sentinel limit used by the scale tier.
const Unlimited int64 = -1

// Limits are the admission ceilings derived from a tenant's tier.
type Limits struct {
	MaxStorageBytes     int64
	MaxItems            int64
	MaxMonthlyIngestion int64
}

var tierLimits = map[enums.Tier]Limits{
	enums.TierStarter: {
		MaxStorageBytes:     5 << 30, // 5 GiB
		MaxItems:            100,
		MaxMonthlyIngestion: 50,
	},
	enums.TierGrowth: {
		MaxStorageBytes:     50 << 30,
		MaxItems:            1000,
		MaxMonthlyIngestion: 500,
	},
	enums.TierScale: {
		MaxStorageBytes:     Unlimited,
		MaxItems:            Unlimited,
		MaxMonthlyIngestion: Unlimited,
	},
}

// LimitsForTier returns the ceilings for the tier, defaulting unknown tiers
// to starter.
func LimitsForTier(tier enums.Tier) Limits {
	if limits, ok := tierLimits[tier]; ok {
		return limits
	}
	return tierLimits[enums.TierStarter]
}

// unlimited reports whether the given limit is the sentinel.
func unlimited(limit int64) bool {
	return limit == Unlimited
}
