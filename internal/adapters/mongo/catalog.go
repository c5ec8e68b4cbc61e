package mongo

import (
	"context"
	"time"

	"github.com/artspaces/settlement/internal/domain"
	"github.com/artspaces/settlement/internal/observability"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CatalogRepository reads the gallery profile collections. Artists, venues
// and artworks are owned by the profile service; the settlement engine only
// reads them and flips artwork status to sold after settlement.
type CatalogRepository struct {
	artworks *mongo.Collection
	artists  *mongo.Collection
	venues   *mongo.Collection
	logger   observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		artworks: db.Collection("artworks"),
		artists:  db.Collection("artists"),
		venues:   db.Collection("venues"),
		logger:   logger,
	}
}

const (
	ArtworkStatusAvailable = "available"
	ArtworkStatusSold      = "sold"
)

type ArtworkDoc struct {
	ID               uuid.UUID  `bson:"_id"`
	Title            string     `bson:"title"`
	ArtistID         uuid.UUID  `bson:"artist_id"`
	VenueID          *uuid.UUID `bson:"venue_id,omitempty"`
	PriceCents       int64      `bson:"price_cents"`
	Currency         string     `bson:"currency"`
	Status           string     `bson:"status"`
	VenueBpsOverride *int64     `bson:"venue_bps_override,omitempty"`
	StripePriceID    string     `bson:"stripe_price_id,omitempty"`
	StripeProductID  string     `bson:"stripe_product_id,omitempty"`
	CreatedAt        time.Time  `bson:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at"`
}

type ArtistDoc struct {
	ID                  uuid.UUID `bson:"_id"`
	Name                string    `bson:"name"`
	StripeAccountID     string    `bson:"stripe_account_id,omitempty"`
	Tier                string    `bson:"tier"`
	SubscriptionID      string    `bson:"subscription_id,omitempty"`
	SubscriptionStatus  string    `bson:"subscription_status,omitempty"`
	PlatformBpsOverride *int64    `bson:"platform_bps_override,omitempty"`
}

type VenueDoc struct {
	ID              uuid.UUID `bson:"_id"`
	Name            string    `bson:"name"`
	StripeAccountID string    `bson:"stripe_account_id,omitempty"`
	DefaultBps      int64     `bson:"default_bps"`
}

func (c *CatalogRepository) GetArtwork(ctx context.Context, id uuid.UUID) (*ArtworkDoc, error) {
	var artwork ArtworkDoc
	err := c.artworks.FindOne(ctx, bson.M{"_id": id}).Decode(&artwork)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &artwork, nil
}

func (c *CatalogRepository) GetArtist(ctx context.Context, id uuid.UUID) (*ArtistDoc, error) {
	var artist ArtistDoc
	err := c.artists.FindOne(ctx, bson.M{"_id": id}).Decode(&artist)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &artist, nil
}

func (c *CatalogRepository) GetVenue(ctx context.Context, id uuid.UUID) (*VenueDoc, error) {
	var venue VenueDoc
	err := c.venues.FindOne(ctx, bson.M{"_id": id}).Decode(&venue)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &venue, nil
}

func (c *CatalogRepository) MarkArtworkSold(ctx context.Context, id uuid.UUID) error {
	_, err := c.artworks.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": ArtworkStatusSold, "updated_at": time.Now()}},
	)
	if err != nil {
		c.logger.Error("failed to mark artwork sold", err)
		return err
	}
	return nil
}

// UpsertArtistSubscription overwrites the artist's plan fields from the
// provider's current truth. Never merged with local state.
func (c *CatalogRepository) UpsertArtistSubscription(ctx context.Context, artistID uuid.UUID, subscriptionID, tier, status string) error {
	_, err := c.artists.UpdateOne(
		ctx,
		bson.M{"_id": artistID},
		bson.M{"$set": bson.M{
			"subscription_id":     subscriptionID,
			"tier":                tier,
			"subscription_status": status,
		}},
	)
	if err != nil {
		c.logger.Error("failed to upsert artist subscription", err)
		return err
	}
	return nil
}
