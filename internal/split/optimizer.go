package split

import (
	"sort"

	"github.com/shopspring/decimal"

	dbtypes "github.com/danielortuno/splittab-backend/pkg/db/types"
)

// Epsilon below which a balance is treated as settled. Balances are plain
// floats accumulated through many small deltas, so exact zero is rare.
const Epsilon = 0.01

type party struct {
	uid    string
	amount float64
}

// OptimizeDebts reduces a net-balance map (positive = is owed, negative =
// owes) to an ordered payment list by greedily matching the largest debtor
// against the largest creditor. The result minimizes transaction count in the
// common two-sided case; it is an accepted approximation for general
// multi-party graphs, not a provably minimal solution.
func OptimizeDebts(netBalances map[string]float64) dbtypes.Transfers {
	debtors := []party{}
	creditors := []party{}
	for uid, balance := range netBalances {
		switch {
		case balance < -Epsilon:
			debtors = append(debtors, party{uid: uid, amount: -balance})
		case balance > Epsilon:
			creditors = append(creditors, party{uid: uid, amount: balance})
		}
	}

	sortPartiesDesc(debtors)
	sortPartiesDesc(creditors)

	transfers := dbtypes.Transfers{}
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		settled := RoundCents(minFloat(debtors[i].amount, creditors[j].amount))
		if settled > Epsilon {
			transfers = append(transfers, dbtypes.Transfer{
				From:   debtors[i].uid,
				To:     creditors[j].uid,
				Amount: settled,
			})
		}
		debtors[i].amount -= settled
		creditors[j].amount -= settled
		if debtors[i].amount <= Epsilon {
			i++
		}
		if creditors[j].amount <= Epsilon {
			j++
		}
	}

	return transfers
}

func sortPartiesDesc(parties []party) {
	sort.SliceStable(parties, func(a, b int) bool {
		if parties[a].amount != parties[b].amount {
			return parties[a].amount > parties[b].amount
		}
		return parties[a].uid < parties[b].uid
	})
}

// RoundCents rounds a float amount to 2 decimal places.
func RoundCents(amount float64) float64 {
	rounded, _ := decimal.NewFromFloat(amount).Round(2).Float64()
	return rounded
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
