package mongo

import (
	"context"
	"time"

	"github.com/artspaces/settlement/internal/domain"
	"github.com/artspaces/settlement/internal/observability"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	OrderID   uuid.UUID `bson:"order_id,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, orderID uuid.UUID, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		OrderID:   orderID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

func (a *AuditLogger) LogSettlement(ctx context.Context, order domain.Order, eventID string) error {
	data := map[string]interface{}{
		"event_id":       eventID,
		"amount_cents":   order.AmountCents,
		"platform_fee":   order.PlatformFeeCents,
		"venue_payout":   order.VenuePayoutCents,
		"artist_payout":  order.ArtistPayoutCents,
		"charge_id":      order.ChargeID,
		"transfer_count": len(order.Transfers),
	}
	return a.LogEvent(ctx, "order.settled", order.ID, data)
}

func (a *AuditLogger) LogSubscriptionSync(ctx context.Context, artistID uuid.UUID, subscriptionID, tier, status string) error {
	data := map[string]interface{}{
		"artist_id":       artistID,
		"subscription_id": subscriptionID,
		"tier":            tier,
		"status":          status,
	}
	return a.LogEvent(ctx, "subscription.synced", uuid.Nil, data)
}
