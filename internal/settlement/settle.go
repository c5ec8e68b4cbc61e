package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/artspaces/settlement/internal/adapters/crdb"
	stripeadapter "github.com/artspaces/settlement/internal/adapters/stripe"
	"github.com/artspaces/settlement/internal/domain"
	"github.com/artspaces/settlement/internal/observability"
)

// transferIdempotencyKey is deterministic per (order, role) so a retried
// settlement can never issue a second provider transfer for the same leg,
// even if the local record of the first one failed to persist.
func transferIdempotencyKey(orderID uuid.UUID, role string) string {
	return fmt.Sprintf("transfer:%s:%s", orderID, role)
}

func (d *Dispatcher) settleFromEvent(ctx context.Context, ev domain.WebhookEvent) error {
	raw, ok := ev.Metadata["orderId"]
	if !ok {
		return errors.New("checkout event missing orderId metadata")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return errors.Wrap(err, "bad orderId metadata")
	}
	if ev.PaymentIntentID == "" {
		return errors.Wrap(domain.ErrMissingCharge, "completed session has no payment intent")
	}
	return d.settle(ctx, orderID, ev.PaymentIntentID, ev.ID)
}

// settle turns a paid checkout into payout transfers and the CREATED -> PAID
// transition. Partial completion is a first-class state: each leg is guarded
// by the order's existing transfer list, a provider idempotency key, and the
// transfers table's (order_id, role) uniqueness, so a retry finishes only
// the missing legs.
func (d *Dispatcher) settle(ctx context.Context, orderID uuid.UUID, paymentIntentID, eventID string) error {
	timer := time.Now()
	defer func() {
		observability.SettleDuration.Observe(time.Since(timer).Seconds())
	}()

	log := d.logger.WithField("order_id", orderID)

	order, err := d.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	// Inner guard, independent of the ledger: covers the crash window
	// between a previous successful settlement and its ledger insert.
	if order.Status == domain.OrderStatusPaid {
		log.Info("order already paid, skipping settlement")
		return nil
	}

	chargeID, err := d.provider.ChargeForIntent(ctx, paymentIntentID)
	if err != nil {
		return err
	}

	legs, err := d.payoutLegs(ctx, order)
	if err != nil {
		return err
	}

	for _, leg := range legs {
		if order.HasTransfer(leg.role) {
			log.WithField("role", leg.role).Info("transfer already issued, skipping leg")
			continue
		}
		transferID, err := d.provider.CreateTransfer(ctx, stripeadapter.TransferInput{
			AmountCents:    leg.amountCents,
			Currency:       order.Currency,
			Destination:    leg.account,
			SourceCharge:   chargeID,
			TransferGroup:  order.ID.String(),
			IdempotencyKey: transferIdempotencyKey(order.ID, leg.role),
			Role:           leg.role,
			OrderID:        order.ID.String(),
		})
		if err != nil {
			// Fail the whole event so the provider redelivers. Legs already
			// recorded above stay recorded; the retry skips them.
			return errors.Wrapf(err, "%s transfer failed", leg.role)
		}

		rec := domain.TransferRecord{
			OrderID:            order.ID,
			Role:               leg.role,
			DestinationAccount: leg.account,
			AmountCents:        leg.amountCents,
			ProviderTransferID: transferID,
		}
		if err := d.store.AppendTransfer(ctx, rec); err != nil && !errors.Is(err, domain.ErrConflict) {
			return err
		}
		order.Transfers = append(order.Transfers, rec)
		observability.TransfersCreatedTotal.WithLabelValues(leg.role).Inc()
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"order_id":   order.ID,
		"artwork_id": order.ArtworkID,
	})
	err = d.store.WithTx(ctx, func(tx pgx.Tx) error {
		if err := d.store.MarkPaid(ctx, tx, order.ID, paymentIntentID, chargeID); err != nil {
			return err
		}
		return d.store.InsertOutbox(ctx, tx, crdb.OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     "order.settled",
			Payload:       payload,
			DedupeKey:     eventID,
		})
	})
	if err != nil {
		return err
	}

	order.Status = domain.OrderStatusPaid
	order.PaymentIntentID = paymentIntentID
	order.ChargeID = chargeID
	if d.audit != nil {
		if err := d.audit.LogSettlement(ctx, *order, eventID); err != nil {
			log.Warn("audit log write failed", err)
		}
	}
	log.Info("order settled")
	return nil
}

type payoutLeg struct {
	role        string
	account     string
	amountCents int64
}

// payoutLegs resolves the destination account for every nonzero payee. A
// missing account means the payee was de-provisioned between checkout and
// settlement; fatal, the provider retries.
func (d *Dispatcher) payoutLegs(ctx context.Context, order *domain.Order) ([]payoutLeg, error) {
	var legs []payoutLeg

	if order.ArtistPayoutCents > 0 {
		artist, err := d.catalog.GetArtist(ctx, order.ArtistID)
		if err != nil {
			return nil, err
		}
		if artist.StripeAccountID == "" {
			return nil, errors.Newf("artist %s has no payout account", order.ArtistID)
		}
		legs = append(legs, payoutLeg{role: domain.RoleArtist, account: artist.StripeAccountID, amountCents: order.ArtistPayoutCents})
	}

	if order.VenuePayoutCents > 0 {
		if order.VenueID == nil {
			return nil, errors.Newf("order %s has a venue payout but no venue", order.ID)
		}
		venue, err := d.catalog.GetVenue(ctx, *order.VenueID)
		if err != nil {
			return nil, err
		}
		if venue.StripeAccountID == "" {
			return nil, errors.Newf("venue %s has no payout account", *order.VenueID)
		}
		legs = append(legs, payoutLeg{role: domain.RoleVenue, account: venue.StripeAccountID, amountCents: order.VenuePayoutCents})
	}

	return legs, nil
}
