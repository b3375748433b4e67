// Package split holds the pure balance math: aggregate key derivation,
// bill footprints, and the greedy debt optimizer. Nothing here touches
// storage; the ledger and settlement services feed it documents and apply
// the results transactionally.
package split

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SortedPair returns the two user ids in canonical order. Aggregate documents
// store participants in this order, and the sign convention hangs off it:
// a positive balance means the first participant is owed.
func SortedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if strings.Compare(a.String(), b.String()) <= 0 {
		return a, b
	}
	return b, a
}

// FriendBalanceID derives the global pairwise aggregate key. Order of the
// arguments does not matter.
func FriendBalanceID(a, b uuid.UUID) string {
	first, second := SortedPair(a, b)
	return fmt.Sprintf("%s_%s", first, second)
}

// EventPairBalanceID derives the event-scoped pairwise aggregate key.
func EventPairBalanceID(eventID uuid.UUID, a, b uuid.UUID) string {
	return fmt.Sprintf("%s_%s", eventID, FriendBalanceID(a, b))
}

// OrientDelta converts an owner-relative amount (positive = counterparty owes
// the owner) into the pair document's sign convention.
func OrientDelta(ownerID, counterpartyID uuid.UUID, amount float64) float64 {
	first, _ := SortedPair(ownerID, counterpartyID)
	if first == ownerID {
		return amount
	}
	return -amount
}
