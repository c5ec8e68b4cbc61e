package crdb

import (
	"context"

	"github.com/artspaces/settlement/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO orders (
			id, artwork_id, artist_id, venue_id, amount_cents, currency, buyer_email,
			platform_bps, venue_bps, platform_fee_cents, venue_payout_cents, artist_payout_cents,
			status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'CREATED')
	`, order.ID, order.ArtworkID, order.ArtistID, order.VenueID, order.AmountCents,
		order.Currency, order.BuyerEmail, order.PlatformBps, order.VenueBps,
		order.PlatformFeeCents, order.VenuePayoutCents, order.ArtistPayoutCents)
	return err
}

func (r *Repository) SetCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE orders SET checkout_session_id = $2 WHERE id = $1
	`, orderID, sessionID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, artwork_id, artist_id, venue_id, amount_cents, currency, buyer_email,
			platform_bps, venue_bps, platform_fee_cents, venue_payout_cents, artist_payout_cents,
			status, COALESCE(checkout_session_id, ''), COALESCE(payment_intent_id, ''),
			COALESCE(charge_id, ''), created_at
		FROM orders WHERE id = $1
	`, orderID).Scan(&order.ID, &order.ArtworkID, &order.ArtistID, &order.VenueID,
		&order.AmountCents, &order.Currency, &order.BuyerEmail, &order.PlatformBps,
		&order.VenueBps, &order.PlatformFeeCents, &order.VenuePayoutCents,
		&order.ArtistPayoutCents, &order.Status, &order.CheckoutSessionID,
		&order.PaymentIntentID, &order.ChargeID, &order.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT order_id, recipient_role, destination_account, amount_cents, provider_transfer_id, created_at
		FROM transfers WHERE order_id = $1 ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.TransferRecord
		if err := rows.Scan(&t.OrderID, &t.Role, &t.DestinationAccount, &t.AmountCents, &t.ProviderTransferID, &t.CreatedAt); err != nil {
			return nil, err
		}
		order.Transfers = append(order.Transfers, t)
	}
	return &order, nil
}

// AppendTransfer records one payout leg. UNIQUE(order_id, recipient_role) makes the
// append idempotent across settlement retries: a second attempt for the same
// role maps to ErrConflict instead of a duplicate row.
func (r *Repository) AppendTransfer(ctx context.Context, rec domain.TransferRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transfers (order_id, recipient_role, destination_account, amount_cents, provider_transfer_id)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.OrderID, rec.Role, rec.DestinationAccount, rec.AmountCents, rec.ProviderTransferID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode {
		return domain.ErrConflict
	}
	return err
}

// MarkPaid transitions CREATED -> PAID and records the provider correlation
// ids in one conditional update. Zero rows affected on an existing order
// means it was already paid; the caller treats that as settled.
func (r *Repository) MarkPaid(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, paymentIntentID, chargeID string) error {
	result, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = 'PAID', payment_intent_id = $2, charge_id = $3
		WHERE id = $1 AND status = 'CREATED'
	`, orderID, paymentIntentID, chargeID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
		if err == pgx.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if status == domain.OrderStatusPaid {
			return nil
		}
		return domain.ErrConflict
	}
	return nil
}
