// Package payloads defines the typed data carried inside outbox envelopes.
package payloads

import (
	"github.com/google/uuid"
)

// BillChangedEvent announces that a bill was created or updated in a way that
// affects balances. Consumers re-read the bill row; the payload only carries
// routing identity.
type BillChangedEvent struct {
	BillID  uuid.UUID  `json:"billId"`
	OwnerID uuid.UUID  `json:"ownerId"`
	EventID *uuid.UUID `json:"eventId,omitempty"`
}

// BillDeletedEvent carries the last-applied footprints of a deleted bill so
// consumers can unwind aggregates after the row is gone.
type BillDeletedEvent struct {
	BillID                 uuid.UUID          `json:"billId"`
	OwnerID                uuid.UUID          `json:"ownerId"`
	EventID                *uuid.UUID         `json:"eventId,omitempty"`
	ProcessedBalances      map[string]float64 `json:"processedBalances,omitempty"`
	ProcessedEventBalances map[string]float64 `json:"processedEventBalances,omitempty"`
}

// EventDeletedEvent triggers the cascade delete of an event's bills.
type EventDeletedEvent struct {
	EventID uuid.UUID `json:"eventId"`
	OwnerID uuid.UUID `json:"ownerId"`
}

// FriendsUpdatedEvent triggers the backfill scan after a user links new friends.
type FriendsUpdatedEvent struct {
	UserID         uuid.UUID   `json:"userId"`
	AddedFriendIDs []uuid.UUID `json:"addedFriendIds"`
}
