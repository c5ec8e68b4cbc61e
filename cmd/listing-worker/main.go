package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/artspaces/settlement/internal/adapters/mongo"
	"github.com/artspaces/settlement/internal/adapters/rabbit"
	stripeadapter "github.com/artspaces/settlement/internal/adapters/stripe"
	"github.com/artspaces/settlement/internal/config"
	"github.com/artspaces/settlement/internal/observability"
)

// The listing worker consumes order.settled events and performs the
// best-effort side effects: mark the artwork sold in the catalog and
// deactivate its listing price and product at the provider. Failures are
// logged and the message is acked; they never roll back or retry the
// financial settlement.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	catalog := mongoadapter.NewCatalogRepository(mongoClient.Database("gallery"), logger)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, "listing.q", []string{"order.settled"})
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	provider := stripeadapter.NewClient(cfg.StripeAPIKey, cfg.StripeWebhookSecret, cfg.ProviderTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutdown listing worker ...")
		cancel()
	}()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume: %v", err)
	}

	logger.Info("listing worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				return
			}
			handle(ctx, msg, catalog, provider, logger)
		}
	}
}

type settledEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	ArtworkID uuid.UUID `json:"artwork_id"`
}

func handle(ctx context.Context, msg amqp.Delivery, catalog *mongoadapter.CatalogRepository, provider *stripeadapter.Client, logger observability.Logger) {
	// Best-effort all the way down: every failure is logged and the message
	// acked, so a dead catalog or provider never wedges the queue.
	defer msg.Ack(false)

	var ev settledEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		logger.Error("malformed order.settled payload", err)
		return
	}
	log := logger.WithField("order_id", ev.OrderID).WithField("artwork_id", ev.ArtworkID)

	artwork, err := catalog.GetArtwork(ctx, ev.ArtworkID)
	if err != nil {
		log.Error("artwork lookup failed", err)
		return
	}

	if err := catalog.MarkArtworkSold(ctx, ev.ArtworkID); err != nil {
		log.Error("mark sold failed", err)
	}

	if artwork.StripePriceID != "" {
		if err := provider.DeactivatePrice(ctx, artwork.StripePriceID); err != nil {
			log.Error("price deactivation failed", err)
		}
	}
	if artwork.StripeProductID != "" {
		if err := provider.DeactivateProduct(ctx, artwork.StripeProductID); err != nil {
			log.Error("product deactivation failed", err)
		}
	}

	log.Info("listing closed")
}
