package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/artspaces/settlement/internal/adapters/crdb"
	mongoadapter "github.com/artspaces/settlement/internal/adapters/mongo"
	redisadapter "github.com/artspaces/settlement/internal/adapters/redis"
	stripeadapter "github.com/artspaces/settlement/internal/adapters/stripe"
	"github.com/artspaces/settlement/internal/checkout"
	"github.com/artspaces/settlement/internal/config"
	"github.com/artspaces/settlement/internal/fees"
	httphandler "github.com/artspaces/settlement/internal/http"
	"github.com/artspaces/settlement/internal/observability"
	"github.com/artspaces/settlement/internal/ratelimit"
	"github.com/artspaces/settlement/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()
	observability.InitMetrics()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("gallery")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	rl := ratelimit.NewRateLimiter(redisCache)

	provider := stripeadapter.NewClient(cfg.StripeAPIKey, cfg.StripeWebhookSecret, cfg.ProviderTimeout)
	rates := fees.DefaultRateCard()

	checkoutSvc := checkout.NewService(catalog, repo, provider, rates, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL, logger)
	dispatcher := settlement.NewDispatcher(repo, provider, catalog, redisCache, audit, rates, logger)

	handlers := httphandler.NewHandlers(cfg, checkoutSvc, dispatcher, repo, provider, redisIdemp)

	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
