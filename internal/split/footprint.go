package split

import (
	"github.com/google/uuid"

	"github.com/danielortuno/splittab-backend/pkg/db/models"
	dbtypes "github.com/danielortuno/splittab-backend/pkg/db/types"
)

// Footprint computes a bill's owner-relative contribution to the pairwise
// aggregates: how much each linked counterparty owes the owner (negative =
// the owner owes them). Unlinked guests and the owner never appear in the
// output; settled local ids contribute zero.
//
// When someone other than the owner paid, only the owner's own debt to the
// payer is modeled. Every other counterparty owes the payer, not the owner,
// and the owner-relative footprint carries a zero for them so their entry in
// the pair aggregate is released.
func Footprint(bill *models.Bill, linkedFriends map[uuid.UUID]bool) dbtypes.BalanceMap {
	out := dbtypes.BalanceMap{}
	if bill == nil {
		return out
	}

	creditor := bill.CreditorID()
	ownerPays := creditor == bill.OwnerID
	ownerShare := 0.0
	if !ownerPays {
		ownerLocal := dbtypes.LocalIDForUser(bill.OwnerID)
		if !bill.IsLocalSettled(ownerLocal) {
			ownerShare = bill.PersonTotals.Get(ownerLocal)
		}
	}

	for _, person := range bill.People {
		uid, linked := person.UserID()
		if !linked || uid == bill.OwnerID {
			continue
		}
		if !linkedFriends[uid] {
			continue
		}

		switch {
		case ownerPays:
			if bill.IsLocalSettled(person.LocalID) {
				out[uid.String()] = 0
			} else {
				out[uid.String()] = bill.PersonTotals.Get(person.LocalID)
			}
		case uid == creditor:
			out[uid.String()] = -ownerShare
		default:
			out[uid.String()] = 0
		}
	}

	return out
}

// FootprintDelta diffs two footprints over the union of their keys. Missing
// keys default to zero, so a redelivered trigger whose footprint already
// matches the stored token yields an empty delta.
func FootprintDelta(oldFootprint, newFootprint dbtypes.BalanceMap) map[string]float64 {
	deltas := map[string]float64{}
	for uid := range oldFootprint {
		deltas[uid] = newFootprint.Get(uid) - oldFootprint.Get(uid)
	}
	for uid := range newFootprint {
		if _, seen := deltas[uid]; !seen {
			deltas[uid] = newFootprint.Get(uid)
		}
	}
	for uid, delta := range deltas {
		if delta == 0 {
			delete(deltas, uid)
		}
	}
	return deltas
}

// EventNetContribution computes a bill's pooled contribution to the per-event
// cache: each linked unsettled participant (the owner included) is debited
// their share and the payer is credited the same amount. Guest shares stay
// outside the pool so it remains zero-sum over tracked users.
func EventNetContribution(bill *models.Bill, linkedFriends map[uuid.UUID]bool) map[string]float64 {
	net := map[string]float64{}
	if bill == nil {
		return net
	}

	creditor := bill.CreditorID()
	for _, person := range bill.People {
		uid, linked := person.UserID()
		if !linked {
			continue
		}
		if uid != bill.OwnerID && !linkedFriends[uid] {
			continue
		}
		if uid == creditor {
			continue
		}
		if bill.IsLocalSettled(person.LocalID) {
			continue
		}
		share := bill.PersonTotals.Get(person.LocalID)
		if share == 0 {
			continue
		}
		net[uid.String()] -= share
		net[creditor.String()] += share
	}

	return net
}
