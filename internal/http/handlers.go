package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	redisadapter "github.com/artspaces/settlement/internal/adapters/redis"
	"github.com/artspaces/settlement/internal/checkout"
	"github.com/artspaces/settlement/internal/config"
	"github.com/artspaces/settlement/internal/domain"
	"github.com/artspaces/settlement/internal/settlement"
)

// EventVerifier turns a raw webhook request into a verified event. The
// forwarded path trusts the forwarder and skips the signature.
type EventVerifier interface {
	VerifyWebhook(payload []byte, sigHeader string) (domain.WebhookEvent, error)
	ParseForwarded(payload []byte) (domain.WebhookEvent, error)
}

type Handlers struct {
	cfg        *config.Config
	checkout   *checkout.Service
	dispatcher *settlement.Dispatcher
	orders     settlement.Store
	verifier   EventVerifier
	idemp      *redisadapter.Idempotency
}

func NewHandlers(cfg *config.Config, co *checkout.Service, dispatcher *settlement.Dispatcher, orders settlement.Store, verifier EventVerifier, idemp *redisadapter.Idempotency) *Handlers {
	return &Handlers{
		cfg:        cfg,
		checkout:   co,
		dispatcher: dispatcher,
		orders:     orders,
		verifier:   verifier,
		idemp:      idemp,
	}
}

const idempTTL = time.Hour

func writeJSON(w http.ResponseWriter, status int, v interface{}) []byte {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// StartCheckout creates a pending order and returns the hosted checkout URL
// with a preview of the split. No money moves here.
func (h *Handlers) StartCheckout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		ArtworkID  uuid.UUID `json:"artwork_id"`
		BuyerEmail string    `json:"buyer_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.checkout.Start(r.Context(), req.ArtworkID, req.BuyerEmail)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "artwork not found")
		return
	case errors.Is(err, domain.ErrArtworkSold):
		writeError(w, http.StatusConflict, "artwork already sold")
		return
	case errors.Is(err, domain.ErrPayoutsNotReady):
		msg := "payouts not set up yet"
		if details := errors.GetAllDetails(err); len(details) > 0 {
			msg = details[0]
		}
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	case errors.Is(err, domain.ErrNegativePayout):
		writeError(w, http.StatusUnprocessableEntity, "fee rates exceed sale amount")
		return
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data := writeJSON(w, http.StatusCreated, result)
	h.idemp.Set(r.Context(), key, redisadapter.IdempResponse{Status: http.StatusCreated, Result: data}, idempTTL)
}

// Webhook receives provider deliveries. Any non-2xx tells the provider to
// retry later; a duplicate is an explicit no-op success.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	ev, err := h.verifier.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "signature verification failed")
		return
	}

	h.dispatch(w, r, ev)
}

// ForwardedWebhook accepts a pre-verified event from the trusted internal
// forwarder; the trust boundary is pushed to the forwarder.
func (h *Handlers) ForwardedWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	ev, err := h.verifier.ParseForwarded(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed event")
		return
	}

	h.dispatch(w, r, ev)
}

func (h *Handlers) dispatch(w http.ResponseWriter, r *http.Request, ev domain.WebhookEvent) {
	result, err := h.dispatcher.Dispatch(r.Context(), ev)
	if errors.Is(err, domain.ErrConflict) {
		writeError(w, http.StatusServiceUnavailable, "delivery in flight, retry later")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	transfers := make([]map[string]interface{}, 0, len(order.Transfers))
	for _, t := range order.Transfers {
		transfers = append(transfers, map[string]interface{}{
			"role":        t.Role,
			"amount":      t.AmountCents,
			"transfer_id": t.ProviderTransferID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id":      order.ID,
		"status":        order.Status,
		"amount":        order.AmountCents,
		"currency":      order.Currency,
		"platform_fee":  order.PlatformFeeCents,
		"venue_payout":  order.VenuePayoutCents,
		"artist_payout": order.ArtistPayoutCents,
		"transfers":     transfers,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
