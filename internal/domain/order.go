package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	OrderStatusCreated = "CREATED"
	OrderStatusPaid    = "PAID"
)

const (
	RoleArtist = "artist"
	RoleVenue  = "venue"
)

// Order is one purchase attempt. The split is computed and persisted at
// creation time; the fee rates actually used are captured alongside it so a
// later rate change never alters an existing order.
type Order struct {
	ID                uuid.UUID
	ArtworkID         uuid.UUID
	ArtistID          uuid.UUID
	VenueID           *uuid.UUID
	AmountCents       int64
	Currency          string
	BuyerEmail        string
	PlatformBps       int64
	VenueBps          int64
	PlatformFeeCents  int64
	VenuePayoutCents  int64
	ArtistPayoutCents int64
	Status            string
	CheckoutSessionID string
	PaymentIntentID   string
	ChargeID          string
	Transfers         []TransferRecord
	CreatedAt         time.Time
}

// TransferRecord is one outbound payout leg. An order carries at most one
// per recipient role.
type TransferRecord struct {
	OrderID            uuid.UUID
	Role               string
	DestinationAccount string
	AmountCents        int64
	ProviderTransferID string
	CreatedAt          time.Time
}

// HasTransfer reports whether a payout leg for the role was already issued.
func (o *Order) HasTransfer(role string) bool {
	for _, t := range o.Transfers {
		if t.Role == role {
			return true
		}
	}
	return false
}

// ProcessedEvent is one row of the idempotency ledger. The table is
// append-only; insertion is the gate.
type ProcessedEvent struct {
	EventID     string
	EventType   string
	Note        string
	ProcessedAt time.Time
}
