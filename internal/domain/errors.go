package domain

import "errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")

	// Configuration errors: fail the originating request, never retried.
	ErrNegativePayout = errors.New("fee rates exceed sale amount")

	// Precondition errors: user-correctable, surfaced at checkout time.
	ErrArtworkSold     = errors.New("artwork already sold")
	ErrPayoutsNotReady = errors.New("payouts not set up yet")

	// ErrDuplicateEvent means the idempotency ledger already holds the event
	// id. Not a failure: the delivery is acknowledged with no side effects.
	ErrDuplicateEvent = errors.New("event already processed")

	// ErrMissingCharge means a completed checkout session had no settled
	// charge attached. Fatal for the delivery; the provider retries.
	ErrMissingCharge = errors.New("no charge on payment intent")
)
