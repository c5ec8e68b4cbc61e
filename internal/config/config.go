package config

import (
	"time"

	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	CRDBDSN             string
	MongoURI            string
	RedisAddr           string
	RabbitURL           string
	StripeAPIKey        string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	ProviderTimeout     time.Duration
	OTLPEndpoint        string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	providerTimeout, _ := time.ParseDuration(os.Getenv("PROVIDER_TIMEOUT"))
	if providerTimeout == 0 {
		providerTimeout = 15 * time.Second
	}

	return &Config{
		CRDBDSN:             os.Getenv("CRDB_DSN"),
		MongoURI:            os.Getenv("MONGO_URI"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RabbitURL:           os.Getenv("RABBIT_URL"),
		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  os.Getenv("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:   os.Getenv("CHECKOUT_CANCEL_URL"),
		ProviderTimeout:     providerTimeout,
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
