package checkout

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	mongoadapter "github.com/artspaces/settlement/internal/adapters/mongo"
	stripeadapter "github.com/artspaces/settlement/internal/adapters/stripe"
	"github.com/artspaces/settlement/internal/domain"
	"github.com/artspaces/settlement/internal/fees"
	"github.com/artspaces/settlement/internal/observability"
)

type Catalog interface {
	GetArtwork(ctx context.Context, id uuid.UUID) (*mongoadapter.ArtworkDoc, error)
	GetArtist(ctx context.Context, id uuid.UUID) (*mongoadapter.ArtistDoc, error)
	GetVenue(ctx context.Context, id uuid.UUID) (*mongoadapter.VenueDoc, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order domain.Order) error
	SetCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string) error
}

type Provider interface {
	AccountPayoutsReady(ctx context.Context, accountID string) (bool, error)
	CreateCheckoutSession(ctx context.Context, in stripeadapter.CheckoutSessionInput) (stripeadapter.CheckoutSession, error)
}

type Service struct {
	catalog    Catalog
	orders     OrderStore
	provider   Provider
	rates      *fees.RateCard
	successURL string
	cancelURL  string
	logger     observability.Logger
}

func NewService(catalog Catalog, orders OrderStore, provider Provider, rates *fees.RateCard, successURL, cancelURL string, logger observability.Logger) *Service {
	return &Service{
		catalog:    catalog,
		orders:     orders,
		provider:   provider,
		rates:      rates,
		successURL: successURL,
		cancelURL:  cancelURL,
		logger:     logger,
	}
}

type StartResult struct {
	OrderID     uuid.UUID     `json:"order_id"`
	CheckoutURL string        `json:"checkout_url"`
	Preview     fees.FeeSplit `json:"split"`
}

// Start creates a pending order and a hosted checkout session for it. The
// order row is written before the provider call: a session-creation failure
// leaves a safely abandoned CREATED order, never a provider artifact with no
// local record.
func (s *Service) Start(ctx context.Context, artworkID uuid.UUID, buyerEmail string) (*StartResult, error) {
	artwork, err := s.catalog.GetArtwork(ctx, artworkID)
	if err != nil {
		return nil, err
	}
	if artwork.Status == mongoadapter.ArtworkStatusSold {
		return nil, domain.ErrArtworkSold
	}

	artist, err := s.catalog.GetArtist(ctx, artwork.ArtistID)
	if err != nil {
		return nil, err
	}

	var venue *mongoadapter.VenueDoc
	if artwork.VenueID != nil {
		venue, err = s.catalog.GetVenue(ctx, *artwork.VenueID)
		if err != nil {
			return nil, err
		}
	}

	if err := s.checkPayoutAccounts(ctx, artist, venue); err != nil {
		return nil, err
	}

	venueBps := int64(0)
	if venue != nil {
		venueBps = venue.DefaultBps
		if artwork.VenueBpsOverride != nil {
			venueBps = *artwork.VenueBpsOverride
		}
	}
	platformBps := s.rates.PlatformBps(artist.Tier, artist.PlatformBpsOverride)

	split, err := fees.Split(artwork.PriceCents, venueBps, platformBps)
	if err != nil {
		// Misconfigured rates, not a payment failure. Nothing was created.
		return nil, err
	}

	order := domain.Order{
		ID:                uuid.New(),
		ArtworkID:         artwork.ID,
		ArtistID:          artwork.ArtistID,
		VenueID:           artwork.VenueID,
		AmountCents:       artwork.PriceCents,
		Currency:          artwork.Currency,
		BuyerEmail:        buyerEmail,
		PlatformBps:       platformBps,
		VenueBps:          venueBps,
		PlatformFeeCents:  split.PlatformFeeCents,
		VenuePayoutCents:  split.VenuePayoutCents,
		ArtistPayoutCents: split.ArtistPayoutCents,
		Status:            domain.OrderStatusCreated,
	}
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, stripeadapter.CheckoutSessionInput{
		OrderID:     order.ID.String(),
		ArtworkID:   artwork.ID.String(),
		Title:       artwork.Title,
		AmountCents: artwork.PriceCents,
		Currency:    artwork.Currency,
		BuyerEmail:  buyerEmail,
		SuccessURL:  s.successURL,
		CancelURL:   s.cancelURL,
	})
	if err != nil {
		s.logger.WithField("order_id", order.ID).Error("checkout session creation failed", err)
		return nil, err
	}

	if err := s.orders.SetCheckoutSession(ctx, order.ID, sess.ID); err != nil {
		return nil, err
	}

	return &StartResult{OrderID: order.ID, CheckoutURL: sess.URL, Preview: split}, nil
}

func (s *Service) checkPayoutAccounts(ctx context.Context, artist *mongoadapter.ArtistDoc, venue *mongoadapter.VenueDoc) error {
	if artist.StripeAccountID == "" {
		return errors.WithDetail(domain.ErrPayoutsNotReady, "artist payouts not set up yet")
	}
	if venue != nil && venue.StripeAccountID == "" {
		return errors.WithDetail(domain.ErrPayoutsNotReady, "venue payouts not set up yet")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ok, err := s.provider.AccountPayoutsReady(gctx, artist.StripeAccountID)
		if err != nil {
			return err
		}
		if !ok {
			return errors.WithDetail(domain.ErrPayoutsNotReady, "artist payouts not set up yet")
		}
		return nil
	})
	if venue != nil {
		accountID := venue.StripeAccountID
		g.Go(func() error {
			ok, err := s.provider.AccountPayoutsReady(gctx, accountID)
			if err != nil {
				return err
			}
			if !ok {
				return errors.WithDetail(domain.ErrPayoutsNotReady, "venue payouts not set up yet")
			}
			return nil
		})
	}
	return g.Wait()
}
