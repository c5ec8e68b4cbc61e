package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artspaces/settlement/internal/observability"
	"github.com/artspaces/settlement/internal/ratelimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *ratelimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	// Provider deliveries are never rate limited and carry no
	// Idempotency-Key; dedupe happens in the ledger.
	r.Post("/v1/webhooks/stripe", h.Webhook)
	r.Post("/v1/webhooks/forwarded", h.ForwardedWebhook)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(rl))
		r.With(RequireIdempotencyKey).Post("/v1/checkout", h.StartCheckout)
		r.Get("/v1/orders/{id}", h.GetOrder)
	})

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
