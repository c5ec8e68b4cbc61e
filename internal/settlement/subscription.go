package settlement

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/artspaces/settlement/internal/domain"
)

func (d *Dispatcher) syncSubscriptionFromEvent(ctx context.Context, ev domain.WebhookEvent) error {
	raw, ok := ev.Metadata["artistId"]
	if !ok {
		return errors.New("subscription event missing artistId metadata")
	}
	artistID, err := uuid.Parse(raw)
	if err != nil {
		return errors.Wrap(err, "bad artistId metadata")
	}
	return d.syncSubscription(ctx, artistID, ev.SubscriptionID, ev.Metadata["tier"])
}

// syncSubscription overwrites the artist's tier and status from the
// provider's current view of the subscription. No merge with local state:
// an artist must never show an active paid tier the provider has lapsed,
// or the reverse.
func (d *Dispatcher) syncSubscription(ctx context.Context, artistID uuid.UUID, subscriptionID, fallbackTier string) error {
	if subscriptionID == "" {
		return errors.New("subscription event missing subscription id")
	}

	info, err := d.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}

	tier := d.rates.TierForPrice(info.PriceID, fallbackTier)
	if info.Status == "canceled" || info.Status == "unpaid" {
		tier = d.rates.DefaultTier
	}

	if err := d.catalog.UpsertArtistSubscription(ctx, artistID, info.ID, tier, info.Status); err != nil {
		return err
	}

	if d.audit != nil {
		if err := d.audit.LogSubscriptionSync(ctx, artistID, info.ID, tier, info.Status); err != nil {
			d.logger.Warn("audit log write failed", err)
		}
	}
	d.logger.WithField("artist_id", artistID).WithField("tier", tier).Info("subscription synced")
	return nil
}
