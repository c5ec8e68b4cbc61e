package crdb

import (
	"context"

	"github.com/artspaces/settlement/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Record appends an event id to the idempotency ledger. The primary key on
// event_id is the gate: a unique violation means another delivery already
// owns this event, surfaced as ErrDuplicateEvent. The table has no update
// or delete path.
func (r *Repository) Record(ctx context.Context, tx pgx.Tx, ev domain.ProcessedEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO processed_events (event_id, event_type, note)
		VALUES ($1, $2, $3)
	`, ev.EventID, ev.EventType, ev.Note)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode {
		return domain.ErrDuplicateEvent
	}
	return err
}

// Seen is the pre-dispatch read. Its answer may go stale the instant it
// returns; Record remains the only authority.
func (r *Repository) Seen(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)
	`, eventID).Scan(&exists)
	return exists, err
}
