package stripe

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/account"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/product"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/transfer"

	"github.com/artspaces/settlement/internal/domain"
)

// Client wraps the provider SDK behind the narrow surface the engine needs.
// Every call carries the caller's context with one bounded timeout. No call
// is retried here; redelivery is the provider's job.
type Client struct {
	webhookSecret string
	timeout       time.Duration
}

func NewClient(apiKey, webhookSecret string, timeout time.Duration) *Client {
	stripe.Key = apiKey
	return &Client{webhookSecret: webhookSecret, timeout: timeout}
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

type CheckoutSessionInput struct {
	OrderID     string
	ArtworkID   string
	Title       string
	AmountCents int64
	Currency    string
	BuyerEmail  string
	SuccessURL  string
	CancelURL   string
}

type CheckoutSession struct {
	ID  string
	URL string
}

func (c *Client) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (CheckoutSession, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Params:     stripe.Params{Context: ctx},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(in.Currency),
					UnitAmount: stripe.Int64(in.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(in.Title),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			TransferGroup: stripe.String(in.OrderID),
			Metadata: map[string]string{
				"orderId":   in.OrderID,
				"artworkId": in.ArtworkID,
			},
		},
	}
	if in.BuyerEmail != "" {
		params.CustomerEmail = stripe.String(in.BuyerEmail)
	}
	params.AddMetadata("orderId", in.OrderID)
	params.AddMetadata("artworkId", in.ArtworkID)

	s, err := session.New(params)
	if err != nil {
		return CheckoutSession{}, err
	}
	return CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// ChargeForIntent retrieves the payment intent with the latest charge
// expanded and returns the settled charge id.
func (c *Client) ChargeForIntent(ctx context.Context, paymentIntentID string) (string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
			Expand:  []*string{stripe.String("latest_charge")},
		},
	}
	pi, err := paymentintent.Get(paymentIntentID, params)
	if err != nil {
		return "", err
	}
	if pi.LatestCharge == nil || pi.LatestCharge.ID == "" {
		return "", domain.ErrMissingCharge
	}
	return pi.LatestCharge.ID, nil
}

type TransferInput struct {
	AmountCents    int64
	Currency       string
	Destination    string
	SourceCharge   string
	TransferGroup  string
	IdempotencyKey string
	Role           string
	OrderID        string
}

func (c *Client) CreateTransfer(ctx context.Context, in TransferInput) (string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	params := &stripe.TransferParams{
		Params: stripe.Params{
			Context:        ctx,
			IdempotencyKey: stripe.String(in.IdempotencyKey),
		},
		Amount:            stripe.Int64(in.AmountCents),
		Currency:          stripe.String(in.Currency),
		Destination:       stripe.String(in.Destination),
		SourceTransaction: stripe.String(in.SourceCharge),
		TransferGroup:     stripe.String(in.TransferGroup),
	}
	params.AddMetadata("orderId", in.OrderID)
	params.AddMetadata("role", in.Role)

	t, err := transfer.New(params)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// AccountPayoutsReady reports whether a connected account finished enough
// onboarding to receive transfers.
func (c *Client) AccountPayoutsReady(ctx context.Context, accountID string) (bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	a, err := account.GetByID(accountID, &stripe.AccountParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return false, err
	}
	return a.PayoutsEnabled, nil
}

type SubscriptionInfo struct {
	ID       string
	Status   string
	PriceID  string
	Metadata map[string]string
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (SubscriptionInfo, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	s, err := subscription.Get(subscriptionID, &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return SubscriptionInfo{}, err
	}
	info := SubscriptionInfo{
		ID:       s.ID,
		Status:   string(s.Status),
		Metadata: s.Metadata,
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		info.PriceID = s.Items.Data[0].Price.ID
	}
	return info, nil
}

func (c *Client) DeactivatePrice(ctx context.Context, priceID string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	_, err := price.Update(priceID, &stripe.PriceParams{
		Params: stripe.Params{Context: ctx},
		Active: stripe.Bool(false),
	})
	return err
}

func (c *Client) DeactivateProduct(ctx context.Context, productID string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	_, err := product.Update(productID, &stripe.ProductParams{
		Params: stripe.Params{Context: ctx},
		Active: stripe.Bool(false),
	})
	return err
}
