package stripe

import (
	"encoding/json"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/artspaces/settlement/internal/domain"
)

// VerifyWebhook checks the provider signature over the raw payload and
// parses the event. A bad signature is the caller's 4xx.
func (c *Client) VerifyWebhook(payload []byte, sigHeader string) (domain.WebhookEvent, error) {
	ev, err := webhook.ConstructEvent(payload, sigHeader, c.webhookSecret)
	if err != nil {
		return domain.WebhookEvent{}, err
	}
	return parseEvent(ev)
}

// ParseForwarded accepts the same event shape from the trusted internal
// forwarding path, without re-verifying a signature.
func (c *Client) ParseForwarded(payload []byte) (domain.WebhookEvent, error) {
	var ev stripe.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.WebhookEvent{}, err
	}
	return parseEvent(ev)
}

func parseEvent(ev stripe.Event) (domain.WebhookEvent, error) {
	out := domain.WebhookEvent{
		ID:   ev.ID,
		Kind: domain.ParseEventKind(string(ev.Type)),
	}

	switch out.Kind {
	case domain.EventCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return domain.WebhookEvent{}, err
		}
		out.Mode = string(s.Mode)
		out.Metadata = s.Metadata
		if s.PaymentIntent != nil {
			out.PaymentIntentID = s.PaymentIntent.ID
		}
		if s.Subscription != nil {
			out.SubscriptionID = s.Subscription.ID
		}
		if s.Customer != nil {
			out.CustomerID = s.Customer.ID
		}
	case domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		var s stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return domain.WebhookEvent{}, err
		}
		out.Metadata = s.Metadata
		out.SubscriptionID = s.ID
		out.Status = string(s.Status)
	}

	return out, nil
}
