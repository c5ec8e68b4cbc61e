package crdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/artspaces/settlement/internal/adapters/crdb"
	"github.com/artspaces/settlement/internal/domain"
)

func setupRepo(t *testing.T) *crdb.Repository {
	t.Helper()
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { crdbContainer.Terminate(ctx) })

	dsn, err := crdbContainer.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, dsn+"/gallery?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		CREATE DATABASE IF NOT EXISTS gallery;
		CREATE TABLE IF NOT EXISTS gallery.orders (
			id UUID PRIMARY KEY,
			artwork_id UUID NOT NULL,
			artist_id UUID NOT NULL,
			venue_id UUID,
			amount_cents INT8 NOT NULL,
			currency TEXT NOT NULL,
			buyer_email TEXT NOT NULL DEFAULT '',
			platform_bps INT8 NOT NULL,
			venue_bps INT8 NOT NULL,
			platform_fee_cents INT8 NOT NULL,
			venue_payout_cents INT8 NOT NULL,
			artist_payout_cents INT8 NOT NULL,
			status TEXT CHECK (status IN ('CREATED', 'PAID')),
			checkout_session_id TEXT,
			payment_intent_id TEXT,
			charge_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS gallery.transfers (
			order_id UUID NOT NULL,
			recipient_role TEXT NOT NULL CHECK (recipient_role IN ('artist', 'venue')),
			destination_account TEXT NOT NULL,
			amount_cents INT8 NOT NULL,
			provider_transfer_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (order_id, recipient_role)
		);
		CREATE TABLE IF NOT EXISTS gallery.processed_events (
			event_id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			note TEXT,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS gallery.outbox (
			id UUID PRIMARY KEY,
			aggregate_type TEXT NOT NULL,
			aggregate_id UUID NOT NULL,
			event_type TEXT NOT NULL,
			payload_json BYTES NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			published_at TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'NEW',
			dedupe_key TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		t.Fatal(err)
	}

	return crdb.NewRepository(pool)
}

func seedOrder(t *testing.T, repo *crdb.Repository) domain.Order {
	t.Helper()
	venueID := uuid.New()
	order := domain.Order{
		ID:                uuid.New(),
		ArtworkID:         uuid.New(),
		ArtistID:          uuid.New(),
		VenueID:           &venueID,
		AmountCents:       10000,
		Currency:          "usd",
		PlatformBps:       2000,
		VenueBps:          1000,
		PlatformFeeCents:  2000,
		VenuePayoutCents:  1000,
		ArtistPayoutCents: 7000,
	}
	if err := repo.CreateOrder(context.Background(), order); err != nil {
		t.Fatal(err)
	}
	return order
}

func TestRepository_LedgerGate(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	record := func() error {
		return repo.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.Record(ctx, tx, domain.ProcessedEvent{
				EventID:   "evt_1",
				EventType: "checkout.session.completed",
			})
		})
	}

	if err := record(); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := record(); !errors.Is(err, domain.ErrDuplicateEvent) {
		t.Fatalf("second insert: expected ErrDuplicateEvent, got %v", err)
	}

	seen, err := repo.Seen(ctx, "evt_1")
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Error("expected evt_1 to be seen")
	}
	seen, err = repo.Seen(ctx, "evt_2")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Error("evt_2 should not be seen")
	}
}

func TestRepository_MarkPaidTransition(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	order := seedOrder(t, repo)

	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.MarkPaid(ctx, tx, order.ID, "pi_1", "ch_1")
	})
	if err != nil {
		t.Fatalf("first transition: %v", err)
	}

	fetched, err := repo.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != domain.OrderStatusPaid {
		t.Errorf("status = %q, want PAID", fetched.Status)
	}
	if fetched.PaymentIntentID != "pi_1" || fetched.ChargeID != "ch_1" {
		t.Errorf("correlation ids not persisted: %+v", fetched)
	}

	// A second settlement attempt must be a harmless no-op, never a
	// second transition or a status regression.
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.MarkPaid(ctx, tx, order.ID, "pi_other", "ch_other")
	})
	if err != nil {
		t.Fatalf("second transition: %v", err)
	}
	fetched, err = repo.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.PaymentIntentID != "pi_1" {
		t.Errorf("already-paid order was overwritten: %+v", fetched)
	}

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.MarkPaid(ctx, tx, uuid.New(), "pi_x", "ch_x")
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing order: expected ErrNotFound, got %v", err)
	}
}

func TestRepository_TransferRolePerOrderIsUnique(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	order := seedOrder(t, repo)

	rec := domain.TransferRecord{
		OrderID:            order.ID,
		Role:               domain.RoleArtist,
		DestinationAccount: "acct_artist",
		AmountCents:        7000,
		ProviderTransferID: "tr_1",
	}
	if err := repo.AppendTransfer(ctx, rec); err != nil {
		t.Fatalf("first append: %v", err)
	}

	rec.ProviderTransferID = "tr_2"
	if err := repo.AppendTransfer(ctx, rec); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate role append: expected ErrConflict, got %v", err)
	}

	venueRec := domain.TransferRecord{
		OrderID:            order.ID,
		Role:               domain.RoleVenue,
		DestinationAccount: "acct_venue",
		AmountCents:        1000,
		ProviderTransferID: "tr_3",
	}
	if err := repo.AppendTransfer(ctx, venueRec); err != nil {
		t.Fatalf("venue append: %v", err)
	}

	fetched, err := repo.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched.Transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(fetched.Transfers))
	}
	if !fetched.HasTransfer(domain.RoleArtist) || !fetched.HasTransfer(domain.RoleVenue) {
		t.Errorf("transfer roles missing: %+v", fetched.Transfers)
	}
}

func TestRepository_OutboxRoundTrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	order := seedOrder(t, repo)

	rec := crdb.OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     "order.settled",
		Payload:       []byte(`{"order_id":"` + order.ID.String() + `"}`),
		DedupeKey:     "evt_out_1",
	}
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.InsertOutbox(ctx, tx, rec)
	})
	if err != nil {
		t.Fatal(err)
	}

	pending, err := repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != rec.ID {
		t.Fatalf("unexpected pending records: %+v", pending)
	}

	if err := repo.MarkPublished(ctx, rec.ID, time.Now(), rec.DedupeKey); err != nil {
		t.Fatal(err)
	}
	pending, err = repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending records after publish, got %d", len(pending))
	}
}

func TestRepository_SetCheckoutSession(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	order := seedOrder(t, repo)

	if err := repo.SetCheckoutSession(ctx, order.ID, "cs_1"); err != nil {
		t.Fatal(err)
	}
	fetched, err := repo.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.CheckoutSessionID != "cs_1" {
		t.Errorf("session id = %q, want cs_1", fetched.CheckoutSessionID)
	}

	if err := repo.SetCheckoutSession(ctx, uuid.New(), "cs_2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
