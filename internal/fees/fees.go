package fees

import "github.com/artspaces/settlement/internal/domain"

// FeeSplit is the three-way division of a sale amount in integer cents.
// The legs always sum to the original amount.
type FeeSplit struct {
	PlatformFeeCents  int64 `json:"platform_fee_cents"`
	VenuePayoutCents  int64 `json:"venue_payout_cents"`
	ArtistPayoutCents int64 `json:"artist_payout_cents"`
}

// bpsShare rounds half away from zero on the integer division, matching the
// provider's minor-unit rounding. Float math would drift by a cent on
// amounts like 10050 * 250bps.
func bpsShare(amountCents, bps int64) int64 {
	n := amountCents * bps
	q := n / 10000
	if (n%10000)*2 >= 10000 {
		q++
	}
	return q
}

// Split computes the platform/venue/artist division of amountCents. The
// artist leg is the remainder, so rounding never breaks the sum. A negative
// artist payout means the configured rates exceed the price; the caller must
// abort before any provider-side artifact exists.
func Split(amountCents, venueBps, platformBps int64) (FeeSplit, error) {
	venue := bpsShare(amountCents, venueBps)
	platform := bpsShare(amountCents, platformBps)
	artist := amountCents - venue - platform
	if artist < 0 {
		return FeeSplit{}, domain.ErrNegativePayout
	}
	return FeeSplit{
		PlatformFeeCents:  platform,
		VenuePayoutCents:  venue,
		ArtistPayoutCents: artist,
	}, nil
}
