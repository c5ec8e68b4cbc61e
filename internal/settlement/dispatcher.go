package settlement

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/artspaces/settlement/internal/adapters/crdb"
	mongoadapter "github.com/artspaces/settlement/internal/adapters/mongo"
	stripeadapter "github.com/artspaces/settlement/internal/adapters/stripe"
	"github.com/artspaces/settlement/internal/domain"
	"github.com/artspaces/settlement/internal/fees"
	"github.com/artspaces/settlement/internal/observability"
)

// Store is the durable side of settlement: orders, transfer records, the
// idempotency ledger and the outbox, all in one database.
type Store interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	AppendTransfer(ctx context.Context, rec domain.TransferRecord) error
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	MarkPaid(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, paymentIntentID, chargeID string) error
	InsertOutbox(ctx context.Context, tx pgx.Tx, record crdb.OutboxRecord) error
	Record(ctx context.Context, tx pgx.Tx, ev domain.ProcessedEvent) error
	Seen(ctx context.Context, eventID string) (bool, error)
}

type Provider interface {
	ChargeForIntent(ctx context.Context, paymentIntentID string) (string, error)
	CreateTransfer(ctx context.Context, in stripeadapter.TransferInput) (string, error)
	GetSubscription(ctx context.Context, subscriptionID string) (stripeadapter.SubscriptionInfo, error)
}

type Catalog interface {
	GetArtist(ctx context.Context, id uuid.UUID) (*mongoadapter.ArtistDoc, error)
	GetVenue(ctx context.Context, id uuid.UUID) (*mongoadapter.VenueDoc, error)
	UpsertArtistSubscription(ctx context.Context, artistID uuid.UUID, subscriptionID, tier, status string) error
}

// FastPath is the advisory duplicate check in front of the ledger. Losing
// it entirely is fine; the ledger's unique constraint is the authority.
type FastPath interface {
	ClaimEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string) error
}

type Auditor interface {
	LogSettlement(ctx context.Context, order domain.Order, eventID string) error
	LogSubscriptionSync(ctx context.Context, artistID uuid.UUID, subscriptionID, tier, status string) error
}

type Dispatcher struct {
	store    Store
	provider Provider
	catalog  Catalog
	fastPath FastPath
	audit    Auditor
	rates    *fees.RateCard
	logger   observability.Logger
}

func NewDispatcher(store Store, provider Provider, catalog Catalog, fastPath FastPath, audit Auditor, rates *fees.RateCard, logger observability.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		provider: provider,
		catalog:  catalog,
		fastPath: fastPath,
		audit:    audit,
		rates:    rates,
		logger:   logger,
	}
}

// Result is the webhook acknowledgement: received, and whether the delivery
// was a duplicate skipped without side effects.
type Result struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

const fastPathTTL = time.Hour

// Dispatch processes one verified provider event end to end. One unit of
// work per event, no intra-event parallelism: transfer issuance must stay
// strictly ordered and auditable.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.WebhookEvent) (Result, error) {
	log := d.logger.WithField("event_id", ev.ID).WithField("event_type", ev.Kind.String())

	if ev.Kind == domain.EventUnknown {
		log.Debug("ignoring unhandled event type")
		return Result{Received: true}, nil
	}

	seen, err := d.store.Seen(ctx, ev.ID)
	if err != nil {
		return Result{}, err
	}
	if seen {
		observability.DuplicateEventsTotal.Inc()
		log.Info("duplicate delivery, skipping")
		return Result{Received: true, Duplicate: true}, nil
	}

	if d.fastPath != nil {
		claimed, err := d.fastPath.ClaimEvent(ctx, ev.ID, fastPathTTL)
		if err != nil {
			log.Warn("fast-path claim failed, continuing", err)
		} else if !claimed {
			// Another delivery of this id is in flight. Let the provider
			// retry; by then the ledger will answer.
			return Result{}, errors.Wrap(domain.ErrConflict, "event delivery in flight")
		}
	}

	if err := d.handle(ctx, ev); err != nil {
		observability.WebhookEventsTotal.WithLabelValues(ev.Kind.String(), "error").Inc()
		if d.fastPath != nil {
			if relErr := d.fastPath.ReleaseEvent(ctx, ev.ID); relErr != nil {
				log.Warn("fast-path release failed", relErr)
			}
		}
		return Result{}, err
	}

	// The handler's side effects are durably committed; now close the gate.
	// Losing the insert race to a concurrent delivery is success: the work
	// is done exactly once either way.
	err = d.store.WithTx(ctx, func(tx pgx.Tx) error {
		return d.store.Record(ctx, tx, domain.ProcessedEvent{
			EventID:   ev.ID,
			EventType: ev.Kind.String(),
		})
	})
	if errors.Is(err, domain.ErrDuplicateEvent) {
		observability.DuplicateEventsTotal.Inc()
		return Result{Received: true, Duplicate: true}, nil
	}
	if err != nil {
		return Result{}, err
	}

	observability.WebhookEventsTotal.WithLabelValues(ev.Kind.String(), "ok").Inc()
	return Result{Received: true}, nil
}

func (d *Dispatcher) handle(ctx context.Context, ev domain.WebhookEvent) error {
	switch ev.Kind {
	case domain.EventCheckoutCompleted:
		if ev.Mode == domain.CheckoutModeSubscription {
			return d.syncSubscriptionFromEvent(ctx, ev)
		}
		return d.settleFromEvent(ctx, ev)
	case domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		return d.syncSubscriptionFromEvent(ctx, ev)
	default:
		return nil
	}
}
