package balancelog

import (
	"math"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Collection is an internal debit resolved to the day its bank transaction
// landed on the account.
type Collection struct {
	PaymentID string
	Date      civil.Date
	Amount    float64
}

// ExcludeCollections adds every collection back onto each day on or after
// the day it landed, giving the balance as if it had never been taken. Nil
// balances stay nil. The input is not modified.
func ExcludeCollections(balances []DailyBalance, collections []Collection) []DailyBalance {
	out := make([]DailyBalance, len(balances))
	for i, b := range balances {
		addBack := decimal.Zero
		for _, c := range collections {
			if !c.Date.After(b.Date) && !math.IsNaN(c.Amount) && !math.IsInf(c.Amount, 0) {
				addBack = addBack.Add(decimal.NewFromFloat(c.Amount).Abs())
			}
		}

		out[i] = DailyBalance{
			Date:      b.Date,
			Available: addTo(b.Available, addBack),
			Current:   addTo(b.Current, addBack),
		}
	}
	return out
}

func addTo(v *float64, amount decimal.Decimal) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	if amount.IsZero() {
		return copyFloat(v)
	}
	f := decimal.NewFromFloat(*v).Add(amount).Round(2).InexactFloat64()
	return &f
}
