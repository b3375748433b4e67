package bills

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/danielortuno/splittab-backend/pkg/db/models"
	dbtypes "github.com/danielortuno/splittab-backend/pkg/db/types"
)

var (
	ownerID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	friendID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func TestComputeTotalsSplitsEqually(t *testing.T) {
	items := dbtypes.Items{
		{Description: "pizza", Amount: 30, AssignedTo: []string{"a", "b", "c"}},
		{Description: "beer", Amount: 12, AssignedTo: []string{"a"}},
	}

	totals := ComputeTotals(items)
	if totals.Get("a") != 22 {
		t.Fatalf("expected 22 for a, got %v", totals.Get("a"))
	}
	if totals.Get("b") != 10 || totals.Get("c") != 10 {
		t.Fatalf("expected 10 each for b/c, got %v / %v", totals.Get("b"), totals.Get("c"))
	}
}

func TestComputeTotalsUnevenSplit(t *testing.T) {
	items := dbtypes.Items{
		{Description: "tapas", Amount: 10, AssignedTo: []string{"a", "b", "c"}},
	}

	totals := ComputeTotals(items)
	sum := totals.Get("a") + totals.Get("b") + totals.Get("c")
	if math.Abs(sum-10) > 1e-9 {
		t.Fatalf("shares must sum to the item amount, got %v", sum)
	}
}

func TestComputeTotalsSkipsUnassignedItems(t *testing.T) {
	items := dbtypes.Items{
		{Description: "unassigned", Amount: 50},
	}
	if totals := ComputeTotals(items); len(totals) != 0 {
		t.Fatalf("expected empty totals, got %v", totals)
	}
}

func TestDeriveParticipants(t *testing.T) {
	bill := &models.Bill{
		OwnerID: ownerID,
		PayerID: ownerID,
		People: dbtypes.People{
			{LocalID: dbtypes.LocalIDForUser(ownerID)},
			{LocalID: dbtypes.LocalIDForUser(friendID)},
			{LocalID: "guest-1"},
		},
	}

	DeriveParticipants(bill)
	if len(bill.ParticipantUserIDs) != 2 {
		t.Fatalf("expected 2 linked participants, got %v", bill.ParticipantUserIDs)
	}
	if len(bill.UnsettledParticipantIDs) != 1 || bill.UnsettledParticipantIDs[0] != friendID {
		t.Fatalf("expected only the friend unsettled, got %v", bill.UnsettledParticipantIDs)
	}

	bill.SettledPersonIDs = pq.StringArray{dbtypes.LocalIDForUser(friendID)}
	DeriveParticipants(bill)
	if len(bill.UnsettledParticipantIDs) != 0 {
		t.Fatalf("settled friend must drop out, got %v", bill.UnsettledParticipantIDs)
	}
}

func TestRelevantChange(t *testing.T) {
	base := func() *models.Bill {
		return &models.Bill{
			OwnerID:      ownerID,
			PayerID:      ownerID,
			People:       dbtypes.People{{LocalID: dbtypes.LocalIDForUser(friendID)}},
			PersonTotals: dbtypes.BalanceMap{dbtypes.LocalIDForUser(friendID): 10},
		}
	}

	before, after := base(), base()
	after.Title = "renamed"
	if RelevantChange(before, after) {
		t.Fatal("title edits must not re-fire the pipeline")
	}

	after = base()
	after.PersonTotals[dbtypes.LocalIDForUser(friendID)] = 20
	if !RelevantChange(before, after) {
		t.Fatal("total changes are relevant")
	}

	after = base()
	after.SettledPersonIDs = pq.StringArray{dbtypes.LocalIDForUser(friendID)}
	if !RelevantChange(before, after) {
		t.Fatal("settled set changes are relevant")
	}

	after = base()
	after.PayerID = friendID
	if !RelevantChange(before, after) {
		t.Fatal("payer changes are relevant")
	}

	after = base()
	after.LinkVersion = 1
	if !RelevantChange(before, after) {
		t.Fatal("sentinel bumps are relevant")
	}
}
