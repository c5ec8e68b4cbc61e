package domain

// EventKind is the closed set of provider webhook event types the engine
// reacts to. Raw provider type strings are parsed exactly once, at the
// dispatcher boundary; everything past that point switches on the kind.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventCheckoutCompleted
	EventSubscriptionUpdated
	EventSubscriptionDeleted
)

func ParseEventKind(providerType string) EventKind {
	switch providerType {
	case "checkout.session.completed":
		return EventCheckoutCompleted
	case "customer.subscription.updated":
		return EventSubscriptionUpdated
	case "customer.subscription.deleted":
		return EventSubscriptionDeleted
	default:
		return EventUnknown
	}
}

func (k EventKind) String() string {
	switch k {
	case EventCheckoutCompleted:
		return "checkout.session.completed"
	case EventSubscriptionUpdated:
		return "customer.subscription.updated"
	case EventSubscriptionDeleted:
		return "customer.subscription.deleted"
	default:
		return "unknown"
	}
}

const (
	CheckoutModePayment      = "payment"
	CheckoutModeSubscription = "subscription"
)

// WebhookEvent is the provider event shape after signature verification.
// The forwarded path delivers the same shape pre-verified.
type WebhookEvent struct {
	ID       string
	Kind     EventKind
	Mode     string
	Metadata map[string]string

	// payment mode
	PaymentIntentID string

	// subscription mode
	SubscriptionID string
	CustomerID     string
	Status         string
}
