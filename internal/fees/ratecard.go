package fees

// Tier names for artist subscription plans.
const (
	TierFree    = "free"
	TierPro     = "pro"
	TierPremier = "premier"
)

// RateCard resolves fee rates in basis points. It is consulted once per
// checkout and never cached across requests, so a rate change takes effect
// on the next order without restarts.
type RateCard struct {
	PlatformBpsByTier map[string]int64
	DefaultTier       string
	// TierByPriceID maps a provider price id to a tier, for subscription
	// sync.
	TierByPriceID map[string]string
}

func DefaultRateCard() *RateCard {
	return &RateCard{
		PlatformBpsByTier: map[string]int64{
			TierFree:    2000,
			TierPro:     1000,
			TierPremier: 500,
		},
		DefaultTier:   TierFree,
		TierByPriceID: map[string]string{},
	}
}

// PlatformBps returns the platform rate for an artist: the per-artist
// override when set, else the tier rate, else the default tier rate.
func (rc *RateCard) PlatformBps(tier string, override *int64) int64 {
	if override != nil {
		return *override
	}
	if bps, ok := rc.PlatformBpsByTier[tier]; ok {
		return bps
	}
	return rc.PlatformBpsByTier[rc.DefaultTier]
}

// TierForPrice maps a provider price id to a tier, falling back when the
// price is not on the card.
func (rc *RateCard) TierForPrice(priceID, fallback string) string {
	if tier, ok := rc.TierByPriceID[priceID]; ok {
		return tier
	}
	if fallback != "" {
		return fallback
	}
	return rc.DefaultTier
}
