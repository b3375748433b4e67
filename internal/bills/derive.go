package bills

import (
	"reflect"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/danielortuno/splittab-backend/pkg/db/models"
	dbtypes "github.com/danielortuno/splittab-backend/pkg/db/types"
)

// ComputeTotals splits every item equally among its assignees and sums the
// shares per local id. Amounts stay unrounded floats; rounding happens only
// when debts are optimized for display.
func ComputeTotals(items dbtypes.Items) dbtypes.BalanceMap {
	totals := dbtypes.BalanceMap{}
	for _, item := range items {
		if len(item.AssignedTo) == 0 || item.Amount == 0 {
			continue
		}
		share := item.Amount / float64(len(item.AssignedTo))
		for _, localID := range item.AssignedTo {
			totals[localID] += share
		}
	}
	return totals
}

// DeriveParticipants recomputes the queryable participant columns from the
// participant list and the settled set.
func DeriveParticipants(bill *models.Bill) {
	participantIDs := dbtypes.UUIDArray{}
	unsettled := dbtypes.UUIDArray{}
	creditor := bill.CreditorID()
	for _, person := range bill.People {
		uid, linked := person.UserID()
		if !linked {
			continue
		}
		participantIDs = append(participantIDs, uid)
		if uid == creditor {
			continue
		}
		if !bill.IsLocalSettled(person.LocalID) {
			unsettled = append(unsettled, uid)
		}
	}
	bill.ParticipantUserIDs = participantIDs
	bill.UnsettledParticipantIDs = unsettled
}

// RelevantChange reports whether an edit can move balances and therefore
// must re-fire the ledger pipeline. Title edits and the like stay quiet.
func RelevantChange(before, after *models.Bill) bool {
	if before == nil || after == nil {
		return true
	}
	if before.PayerID != after.PayerID {
		return true
	}
	if before.LinkVersion != after.LinkVersion {
		return true
	}
	if !reflect.DeepEqual(before.People, after.People) {
		return true
	}
	if !balanceMapsEqual(before.PersonTotals, after.PersonTotals) {
		return true
	}
	if !stringSetsEqual(before.SettledPersonIDs, after.SettledPersonIDs) {
		return true
	}
	if !uuidPtrEqual(before.EventID, after.EventID) {
		return true
	}
	return false
}

func balanceMapsEqual(a, b dbtypes.BalanceMap) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b.Get(k) != v {
			return false
		}
	}
	return true
}

func stringSetsEqual(a, b pq.StringArray) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if !set[v] {
			return false
		}
	}
	return true
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
