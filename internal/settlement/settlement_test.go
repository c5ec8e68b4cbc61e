package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/artspaces/settlement/internal/adapters/crdb"
	mongoadapter "github.com/artspaces/settlement/internal/adapters/mongo"
	stripeadapter "github.com/artspaces/settlement/internal/adapters/stripe"
	"github.com/artspaces/settlement/internal/domain"
	"github.com/artspaces/settlement/internal/fees"
	"github.com/artspaces/settlement/internal/observability"
)

type fakeStore struct {
	orders    map[uuid.UUID]*domain.Order
	processed map[string]bool
	outbox    []crdb.OutboxRecord
	// staleSeen makes Seen answer false regardless of the ledger, to model
	// the window where a concurrent delivery inserts between the read and
	// the gate.
	staleSeen bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:    map[uuid.UUID]*domain.Order{},
		processed: map[string]bool{},
	}
}

func (s *fakeStore) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	cp.Transfers = append([]domain.TransferRecord(nil), o.Transfers...)
	return &cp, nil
}

func (s *fakeStore) AppendTransfer(ctx context.Context, rec domain.TransferRecord) error {
	o, ok := s.orders[rec.OrderID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, t := range o.Transfers {
		if t.Role == rec.Role {
			return domain.ErrConflict
		}
	}
	o.Transfers = append(o.Transfers, rec)
	return nil
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func (s *fakeStore) MarkPaid(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, paymentIntentID, chargeID string) error {
	o, ok := s.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Status == domain.OrderStatusPaid {
		return nil
	}
	o.Status = domain.OrderStatusPaid
	o.PaymentIntentID = paymentIntentID
	o.ChargeID = chargeID
	return nil
}

func (s *fakeStore) InsertOutbox(ctx context.Context, tx pgx.Tx, record crdb.OutboxRecord) error {
	s.outbox = append(s.outbox, record)
	return nil
}

func (s *fakeStore) Record(ctx context.Context, tx pgx.Tx, ev domain.ProcessedEvent) error {
	if s.processed[ev.EventID] {
		return domain.ErrDuplicateEvent
	}
	s.processed[ev.EventID] = true
	return nil
}

func (s *fakeStore) Seen(ctx context.Context, eventID string) (bool, error) {
	if s.staleSeen {
		return false, nil
	}
	return s.processed[eventID], nil
}

type fakeProvider struct {
	chargeID      string
	chargeErr     error
	transfers     []stripeadapter.TransferInput
	failTransfers map[string]error // keyed by role
	subscription  stripeadapter.SubscriptionInfo
	subErr        error
}

func (p *fakeProvider) ChargeForIntent(ctx context.Context, paymentIntentID string) (string, error) {
	if p.chargeErr != nil {
		return "", p.chargeErr
	}
	return p.chargeID, nil
}

func (p *fakeProvider) CreateTransfer(ctx context.Context, in stripeadapter.TransferInput) (string, error) {
	if err, ok := p.failTransfers[in.Role]; ok {
		return "", err
	}
	p.transfers = append(p.transfers, in)
	return "tr_" + in.Role + "_1", nil
}

func (p *fakeProvider) GetSubscription(ctx context.Context, subscriptionID string) (stripeadapter.SubscriptionInfo, error) {
	if p.subErr != nil {
		return stripeadapter.SubscriptionInfo{}, p.subErr
	}
	return p.subscription, nil
}

type fakeCatalog struct {
	artists map[uuid.UUID]*mongoadapter.ArtistDoc
	venues  map[uuid.UUID]*mongoadapter.VenueDoc
	syncs   []string
}

func (c *fakeCatalog) GetArtist(ctx context.Context, id uuid.UUID) (*mongoadapter.ArtistDoc, error) {
	a, ok := c.artists[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (c *fakeCatalog) GetVenue(ctx context.Context, id uuid.UUID) (*mongoadapter.VenueDoc, error) {
	v, ok := c.venues[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (c *fakeCatalog) UpsertArtistSubscription(ctx context.Context, artistID uuid.UUID, subscriptionID, tier, status string) error {
	a, ok := c.artists[artistID]
	if !ok {
		return domain.ErrNotFound
	}
	a.SubscriptionID = subscriptionID
	a.Tier = tier
	a.SubscriptionStatus = status
	c.syncs = append(c.syncs, tier+"/"+status)
	return nil
}

type fixture struct {
	store    *fakeStore
	provider *fakeProvider
	catalog  *fakeCatalog
	d        *Dispatcher
	orderID  uuid.UUID
	artistID uuid.UUID
	venueID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	observability.InitMetrics()

	artistID := uuid.New()
	venueID := uuid.New()
	orderID := uuid.New()

	store := newFakeStore()
	store.orders[orderID] = &domain.Order{
		ID:                orderID,
		ArtworkID:         uuid.New(),
		ArtistID:          artistID,
		VenueID:           &venueID,
		AmountCents:       10000,
		Currency:          "usd",
		PlatformBps:       2000,
		VenueBps:          1000,
		PlatformFeeCents:  2000,
		VenuePayoutCents:  1000,
		ArtistPayoutCents: 7000,
		Status:            domain.OrderStatusCreated,
	}

	provider := &fakeProvider{chargeID: "ch_1", failTransfers: map[string]error{}}
	catalog := &fakeCatalog{
		artists: map[uuid.UUID]*mongoadapter.ArtistDoc{
			artistID: {ID: artistID, StripeAccountID: "acct_artist", Tier: fees.TierFree},
		},
		venues: map[uuid.UUID]*mongoadapter.VenueDoc{
			venueID: {ID: venueID, StripeAccountID: "acct_venue", DefaultBps: 1000},
		},
	}

	d := NewDispatcher(store, provider, catalog, nil, nil, fees.DefaultRateCard(), observability.NewLogger())
	return &fixture{store: store, provider: provider, catalog: catalog, d: d, orderID: orderID, artistID: artistID, venueID: venueID}
}

func checkoutEvent(f *fixture, eventID string) domain.WebhookEvent {
	return domain.WebhookEvent{
		ID:   eventID,
		Kind: domain.EventCheckoutCompleted,
		Mode: domain.CheckoutModePayment,
		Metadata: map[string]string{
			"orderId":   f.orderID.String(),
			"artworkId": f.store.orders[f.orderID].ArtworkID.String(),
		},
		PaymentIntentID: "pi_1",
	}
}

func TestDispatch_SettlesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.d.Dispatch(ctx, checkoutEvent(f, "evt_1"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Received || res.Duplicate {
		t.Fatalf("unexpected result %+v", res)
	}

	order := f.store.orders[f.orderID]
	if order.Status != domain.OrderStatusPaid {
		t.Errorf("order status = %q, want PAID", order.Status)
	}
	if order.PaymentIntentID != "pi_1" || order.ChargeID != "ch_1" {
		t.Errorf("correlation ids not persisted: %+v", order)
	}
	if len(order.Transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(order.Transfers))
	}
	if len(f.provider.transfers) != 2 {
		t.Fatalf("expected 2 provider transfers, got %d", len(f.provider.transfers))
	}
	for _, tr := range f.provider.transfers {
		if tr.SourceCharge != "ch_1" || tr.TransferGroup != f.orderID.String() {
			t.Errorf("bad transfer correlation: %+v", tr)
		}
		want := transferIdempotencyKey(f.orderID, tr.Role)
		if tr.IdempotencyKey != want {
			t.Errorf("idempotency key = %q, want %q", tr.IdempotencyKey, want)
		}
	}
	if !f.store.processed["evt_1"] {
		t.Error("event id not recorded in ledger")
	}
	if len(f.store.outbox) != 1 || f.store.outbox[0].EventType != "order.settled" {
		t.Errorf("expected one order.settled outbox row, got %+v", f.store.outbox)
	}
}

func TestDispatch_DuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.d.Dispatch(ctx, checkoutEvent(f, "evt_1")); err != nil {
		t.Fatal(err)
	}
	issued := len(f.provider.transfers)

	res, err := f.d.Dispatch(ctx, checkoutEvent(f, "evt_1"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Duplicate {
		t.Error("expected duplicate=true on redelivery")
	}
	if len(f.provider.transfers) != issued {
		t.Errorf("redelivery issued transfers: %d -> %d", issued, len(f.provider.transfers))
	}
	if len(f.store.outbox) != 1 {
		t.Errorf("redelivery wrote outbox rows: %d", len(f.store.outbox))
	}
}

func TestDispatch_AlreadyPaidOrderNotResettled(t *testing.T) {
	// Covers the crash window: settlement committed but the ledger insert
	// never happened. The retry must see PAID and skip.
	f := newFixture(t)
	ctx := context.Background()
	f.store.orders[f.orderID].Status = domain.OrderStatusPaid

	res, err := f.d.Dispatch(ctx, checkoutEvent(f, "evt_1"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Received {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(f.provider.transfers) != 0 {
		t.Errorf("re-settlement issued %d transfers", len(f.provider.transfers))
	}
	if !f.store.processed["evt_1"] {
		t.Error("retried event should close the ledger gate")
	}
}

func TestDispatch_PartialTransferRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.failTransfers[domain.RoleVenue] = errors.New("network timeout")

	_, err := f.d.Dispatch(ctx, checkoutEvent(f, "evt_1"))
	if err == nil {
		t.Fatal("expected the event to fail when the venue transfer fails")
	}

	order := f.store.orders[f.orderID]
	if order.Status != domain.OrderStatusCreated {
		t.Errorf("order status = %q, want CREATED after partial failure", order.Status)
	}
	if len(order.Transfers) != 1 || order.Transfers[0].Role != domain.RoleArtist {
		t.Fatalf("expected only the artist transfer recorded, got %+v", order.Transfers)
	}
	if f.store.processed["evt_1"] {
		t.Error("failed event must not be recorded in the ledger")
	}

	// Provider redelivers; only the venue leg may be issued now.
	delete(f.provider.failTransfers, domain.RoleVenue)
	res, err := f.d.Dispatch(ctx, checkoutEvent(f, "evt_1"))
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !res.Received {
		t.Fatalf("unexpected result %+v", res)
	}

	order = f.store.orders[f.orderID]
	if order.Status != domain.OrderStatusPaid {
		t.Errorf("order status = %q, want PAID after retry", order.Status)
	}
	if len(order.Transfers) != 2 {
		t.Fatalf("expected 2 transfers after retry, got %d", len(order.Transfers))
	}

	artistIssues := 0
	for _, tr := range f.provider.transfers {
		if tr.Role == domain.RoleArtist {
			artistIssues++
		}
	}
	if artistIssues != 1 {
		t.Errorf("artist transfer issued %d times, want exactly 1", artistIssues)
	}
}

func TestDispatch_MissingPaymentIntentFails(t *testing.T) {
	f := newFixture(t)
	ev := checkoutEvent(f, "evt_1")
	ev.PaymentIntentID = ""

	_, err := f.d.Dispatch(context.Background(), ev)
	if !errors.Is(err, domain.ErrMissingCharge) {
		t.Fatalf("expected ErrMissingCharge, got %v", err)
	}
	if f.store.processed["evt_1"] {
		t.Error("failed event must not be recorded in the ledger")
	}
}

func TestDispatch_NoVenueSingleTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.store.orders[f.orderID]
	order.VenueID = nil
	order.VenueBps = 0
	order.VenuePayoutCents = 0
	order.ArtistPayoutCents = 8000

	if _, err := f.d.Dispatch(ctx, checkoutEvent(f, "evt_1")); err != nil {
		t.Fatal(err)
	}
	if len(f.provider.transfers) != 1 || f.provider.transfers[0].Role != domain.RoleArtist {
		t.Fatalf("expected a single artist transfer, got %+v", f.provider.transfers)
	}
}

func TestDispatch_UnknownTypeAcked(t *testing.T) {
	f := newFixture(t)
	res, err := f.d.Dispatch(context.Background(), domain.WebhookEvent{ID: "evt_x", Kind: domain.EventUnknown})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Received || res.Duplicate {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDispatch_SubscriptionSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.d.rates.TierByPriceID["price_pro"] = fees.TierPro
	f.provider.subscription = stripeadapter.SubscriptionInfo{
		ID:      "sub_1",
		Status:  "active",
		PriceID: "price_pro",
	}

	ev := domain.WebhookEvent{
		ID:             "evt_sub_1",
		Kind:           domain.EventSubscriptionUpdated,
		Metadata:       map[string]string{"artistId": f.artistID.String(), "tier": fees.TierPro},
		SubscriptionID: "sub_1",
	}
	if _, err := f.d.Dispatch(ctx, ev); err != nil {
		t.Fatal(err)
	}

	artist := f.catalog.artists[f.artistID]
	if artist.Tier != fees.TierPro || artist.SubscriptionStatus != "active" || artist.SubscriptionID != "sub_1" {
		t.Errorf("artist not synced from provider truth: %+v", artist)
	}
}

func TestDispatch_SubscriptionCanceledFallsToDefaultTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.catalog.artists[f.artistID].Tier = fees.TierPro
	f.provider.subscription = stripeadapter.SubscriptionInfo{
		ID:      "sub_1",
		Status:  "canceled",
		PriceID: "price_pro",
	}

	ev := domain.WebhookEvent{
		ID:             "evt_sub_2",
		Kind:           domain.EventSubscriptionDeleted,
		Metadata:       map[string]string{"artistId": f.artistID.String()},
		SubscriptionID: "sub_1",
	}
	if _, err := f.d.Dispatch(ctx, ev); err != nil {
		t.Fatal(err)
	}

	artist := f.catalog.artists[f.artistID]
	if artist.Tier != fees.TierFree {
		t.Errorf("canceled subscription left tier %q, want %q", artist.Tier, fees.TierFree)
	}
	if artist.SubscriptionStatus != "canceled" {
		t.Errorf("status = %q, want canceled", artist.SubscriptionStatus)
	}
}

func TestDispatch_SubscriptionCheckoutRoutesToSync(t *testing.T) {
	f := newFixture(t)
	f.provider.subscription = stripeadapter.SubscriptionInfo{ID: "sub_9", Status: "active"}

	ev := domain.WebhookEvent{
		ID:             "evt_sub_3",
		Kind:           domain.EventCheckoutCompleted,
		Mode:           domain.CheckoutModeSubscription,
		Metadata:       map[string]string{"artistId": f.artistID.String(), "tier": fees.TierPremier},
		SubscriptionID: "sub_9",
	}
	if _, err := f.d.Dispatch(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(f.provider.transfers) != 0 {
		t.Error("subscription checkout must not issue transfers")
	}
	if f.catalog.artists[f.artistID].SubscriptionID != "sub_9" {
		t.Error("subscription checkout did not sync the artist")
	}
}

func TestDispatch_RecordRaceLossIsDuplicateSuccess(t *testing.T) {
	// A concurrent delivery closed the gate first; the handler's own work
	// was a no-op thanks to the paid guard, and the response is success.
	f := newFixture(t)
	f.store.orders[f.orderID].Status = domain.OrderStatusPaid
	f.store.processed["evt_1"] = true
	f.store.staleSeen = true
	ctx := context.Background()

	res, err := f.d.Dispatch(ctx, checkoutEvent(f, "evt_1"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Duplicate {
		t.Errorf("expected duplicate result, got %+v", res)
	}
}
