package split

import (
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/danielortuno/splittab-backend/pkg/db/models"
	dbtypes "github.com/danielortuno/splittab-backend/pkg/db/types"
)

var (
	ownerID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	friendID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	thirdID  = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func ownerPaidBill() *models.Bill {
	return &models.Bill{
		ID:      uuid.New(),
		OwnerID: ownerID,
		PayerID: ownerID,
		People: dbtypes.People{
			{LocalID: dbtypes.LocalIDForUser(ownerID), Name: "Owner"},
			{LocalID: dbtypes.LocalIDForUser(friendID), Name: "Friend"},
			{LocalID: "guest-1", Name: "Guest"},
		},
		PersonTotals: dbtypes.BalanceMap{
			dbtypes.LocalIDForUser(ownerID):  20,
			dbtypes.LocalIDForUser(friendID): 30,
			"guest-1":                        15,
		},
	}
}

func TestFootprintOwnerPaid(t *testing.T) {
	bill := ownerPaidBill()
	linked := map[uuid.UUID]bool{friendID: true}

	got := Footprint(bill, linked)
	if len(got) != 1 {
		t.Fatalf("expected only the linked friend, got %v", got)
	}
	if got.Get(friendID.String()) != 30 {
		t.Fatalf("expected friend to owe 30, got %v", got.Get(friendID.String()))
	}
}

func TestFootprintExcludesUnlinkedParticipants(t *testing.T) {
	bill := ownerPaidBill()
	bill.People = append(bill.People, dbtypes.Person{LocalID: dbtypes.LocalIDForUser(thirdID), Name: "Stranger"})
	bill.PersonTotals[dbtypes.LocalIDForUser(thirdID)] = 99

	got := Footprint(bill, map[uuid.UUID]bool{friendID: true})
	if _, ok := got[thirdID.String()]; ok {
		t.Fatal("participant outside the linked-friend set must not appear")
	}
	if _, ok := got["guest-1"]; ok {
		t.Fatal("unlinked guest must not appear")
	}
	if _, ok := got[ownerID.String()]; ok {
		t.Fatal("owner must not appear in their own footprint")
	}
}

func TestFootprintSettledLocalIDContributesZero(t *testing.T) {
	bill := ownerPaidBill()
	bill.SettledPersonIDs = pq.StringArray{dbtypes.LocalIDForUser(friendID)}

	got := Footprint(bill, map[uuid.UUID]bool{friendID: true})
	amount, ok := got[friendID.String()]
	if !ok {
		t.Fatal("settled friend should still carry an explicit zero entry")
	}
	if amount != 0 {
		t.Fatalf("expected 0, got %v", amount)
	}
}

func TestFootprintFriendPaid(t *testing.T) {
	bill := ownerPaidBill()
	bill.PayerID = friendID
	bill.People = append(bill.People, dbtypes.Person{LocalID: dbtypes.LocalIDForUser(thirdID), Name: "Third"})
	bill.PersonTotals[dbtypes.LocalIDForUser(thirdID)] = 10
	linked := map[uuid.UUID]bool{friendID: true, thirdID: true}

	got := Footprint(bill, linked)
	// Owner owes the payer their own share; everyone else owes the payer,
	// not the owner, so their owner-relative entry is released to zero.
	if got.Get(friendID.String()) != -20 {
		t.Fatalf("expected owner to owe payer 20, got %v", got.Get(friendID.String()))
	}
	if got.Get(thirdID.String()) != 0 {
		t.Fatalf("expected third party entry to be zero, got %v", got.Get(thirdID.String()))
	}
}

func TestFootprintFriendPaidOwnerAlreadySettled(t *testing.T) {
	bill := ownerPaidBill()
	bill.PayerID = friendID
	bill.SettledPersonIDs = pq.StringArray{dbtypes.LocalIDForUser(ownerID)}

	got := Footprint(bill, map[uuid.UUID]bool{friendID: true})
	if got.Get(friendID.String()) != 0 {
		t.Fatalf("expected no owner debt after settling, got %v", got.Get(friendID.String()))
	}
}

func TestFootprintNoLinkedCounterparties(t *testing.T) {
	bill := ownerPaidBill()
	got := Footprint(bill, map[uuid.UUID]bool{})
	if len(got) != 0 {
		t.Fatalf("expected empty footprint, got %v", got)
	}
}

func TestFootprintDeltaIdempotent(t *testing.T) {
	footprint := dbtypes.BalanceMap{friendID.String(): 30}
	if deltas := FootprintDelta(footprint, footprint.Clone()); len(deltas) != 0 {
		t.Fatalf("reapplying the same footprint must be a no-op, got %v", deltas)
	}
}

func TestFootprintDeltaUnionOfKeys(t *testing.T) {
	oldFootprint := dbtypes.BalanceMap{friendID.String(): 30, thirdID.String(): 5}
	newFootprint := dbtypes.BalanceMap{friendID.String(): 12}

	deltas := FootprintDelta(oldFootprint, newFootprint)
	if deltas[friendID.String()] != -18 {
		t.Fatalf("expected -18, got %v", deltas[friendID.String()])
	}
	if deltas[thirdID.String()] != -5 {
		t.Fatalf("expected removed key to unwind fully, got %v", deltas[thirdID.String()])
	}
}

func TestFootprintDeltaDeletionReversesEverything(t *testing.T) {
	oldFootprint := dbtypes.BalanceMap{friendID.String(): 30, thirdID.String(): 7.5}

	deltas := FootprintDelta(oldFootprint, dbtypes.BalanceMap{})
	for uid, want := range map[string]float64{friendID.String(): -30, thirdID.String(): -7.5} {
		if deltas[uid] != want {
			t.Fatalf("expected %v for %s, got %v", want, uid, deltas[uid])
		}
	}
}

func TestEventNetContributionZeroSum(t *testing.T) {
	bill := ownerPaidBill()
	bill.PayerID = friendID
	linked := map[uuid.UUID]bool{friendID: true}

	net := EventNetContribution(bill, linked)
	// Owner owes 20 to the payer; the guest's share stays out of the pool.
	if net[ownerID.String()] != -20 {
		t.Fatalf("expected owner at -20, got %v", net[ownerID.String()])
	}
	if net[friendID.String()] != 20 {
		t.Fatalf("expected payer at +20, got %v", net[friendID.String()])
	}

	total := 0.0
	for _, v := range net {
		total += v
	}
	if total != 0 {
		t.Fatalf("pool must be zero-sum, got %v", total)
	}
}

func TestEventNetContributionSkipsSettledShares(t *testing.T) {
	bill := ownerPaidBill()
	bill.SettledPersonIDs = pq.StringArray{dbtypes.LocalIDForUser(friendID)}

	net := EventNetContribution(bill, map[uuid.UUID]bool{friendID: true})
	if len(net) != 0 {
		t.Fatalf("settled share must not hit the pool, got %v", net)
	}
}
