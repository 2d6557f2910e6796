// Package holding reconstructs point-in-time quantities from the append-only
// transaction log.
package holding

import (
	"sort"
	"time"

	"github.com/finwatch/portfolio-engine/internal/model"
	"github.com/shopspring/decimal"
)

// QuantityAsOf returns the quantity held at cutoff: buys accumulate,
// sells subtract, transactions after cutoff are ignored.
//
// Same-day transactions are applied in the order the caller supplies them;
// the log's insertion order is the required tie-break and is preserved here
// (the sort is stable). The second return reports that a sell drove the
// running total below zero and the total was clamped back to zero.
func QuantityAsOf(txs []model.Transaction, cutoff time.Time) (decimal.Decimal, bool) {
	quantity := decimal.Zero
	if len(txs) == 0 {
		return quantity, false
	}

	ordered := make([]model.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !tx.Date.After(cutoff) {
			ordered = append(ordered, tx)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	clamped := false
	for _, tx := range ordered {
		switch tx.Kind {
		case model.KindBuy:
			quantity = quantity.Add(tx.Quantity)
		case model.KindSell:
			quantity = quantity.Sub(tx.Quantity)
			if quantity.IsNegative() {
				quantity = decimal.Zero
				clamped = true
			}
		}
	}

	return quantity, clamped
}

// MonthEnd returns the last instant of the given month, the cutoff used for
// monthly calendar reconstruction.
func MonthEnd(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
}
