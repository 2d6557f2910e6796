// Package fingerprint derives the cache key material for one asset: a
// versioned, order-independent hash over every input that can change its
// income projection.
package fingerprint

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/finwatch/portfolio-engine/internal/model"
)

const version = "v2"

var ErrUnidentifiedAsset = errors.New("asset has no id")

// Compute returns the stable fingerprint of everything that influences an
// asset's income projection: type, ticker, price history, dividend history
// and forecast, payout schedule, interest and rental terms, and the asset's
// transaction log. Series are sorted before hashing so storage order cannot
// force a recomputation; transactions hash in log order, since that order is
// the same-day tie-break and changing it changes the projection.
//
// Callers must treat an error as "always stale" and skip caching for the
// asset; a wrong hash would cache wrong answers silently.
func Compute(asset model.AssetDefinition, txs []model.Transaction) (string, error) {
	if asset.ID == "" {
		return "", ErrUnidentifiedAsset
	}

	var sb strings.Builder
	sb.WriteString(version)
	sb.WriteByte('|')
	sb.WriteString(string(asset.Type))
	sb.WriteByte('|')
	sb.WriteString(asset.Ticker)

	sb.WriteString("|prices:")
	writePrices(&sb, asset.PriceHistory)
	sb.WriteString("|dividends:")
	writeDividends(&sb, asset.DividendHistory)
	sb.WriteString("|forecast:")
	writeDividends(&sb, asset.DividendForecast)
	sb.WriteString("|schedule:")
	writeSchedule(&sb, asset.Schedule)
	sb.WriteString("|interest:")
	if asset.InterestInfo != nil {
		sb.WriteString(asset.InterestInfo.Rate.String())
		sb.WriteByte('@')
		sb.WriteString(asset.InterestInfo.CurrentValue.String())
	}
	sb.WriteString("|rental:")
	if asset.RentalInfo != nil {
		sb.WriteString(asset.RentalInfo.BaseRent.String())
	}
	sb.WriteString("|txs:")
	writeTransactions(&sb, txs)

	return fmt.Sprintf("%s:%016x", version, xxhash.Sum64String(sb.String())), nil
}

func writePrices(sb *strings.Builder, entries []model.PriceEntry) {
	sorted := make([]model.PriceEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].Price.Cmp(sorted[j].Price) < 0
	})
	for _, e := range sorted {
		sb.WriteString(e.Date.UTC().Format(time.RFC3339))
		sb.WriteByte('=')
		sb.WriteString(e.Price.String())
		sb.WriteByte(';')
	}
}

func writeDividends(sb *strings.Builder, entries []model.DividendEntry) {
	sorted := make([]model.DividendEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].AmountPerUnit.Cmp(sorted[j].AmountPerUnit) < 0
	})
	for _, e := range sorted {
		sb.WriteString(e.Date.UTC().Format(time.RFC3339))
		sb.WriteByte('=')
		sb.WriteString(e.AmountPerUnit.String())
		sb.WriteByte('@')
		sb.WriteString(string(e.Source))
		sb.WriteByte(';')
	}
}

func writeSchedule(sb *strings.Builder, s *model.DividendSchedule) {
	if s == nil {
		return
	}
	sb.WriteString(string(s.Frequency))
	sb.WriteByte('=')
	sb.WriteString(s.AmountPerUnit.String())
	months := make([]time.Month, 0, len(s.MonthlyAmounts))
	for m := range s.MonthlyAmounts {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i] < months[j] })
	for _, m := range months {
		sb.WriteByte(';')
		sb.WriteString(strconv.Itoa(int(m)))
		sb.WriteByte('=')
		sb.WriteString(s.MonthlyAmounts[m].String())
	}
}

// writeTransactions hashes kind, quantity and date only; price and fees do
// not participate in income math.
func writeTransactions(sb *strings.Builder, txs []model.Transaction) {
	for _, tx := range txs {
		sb.WriteString(string(tx.Kind))
		sb.WriteByte('=')
		sb.WriteString(tx.Quantity.String())
		sb.WriteByte('@')
		sb.WriteString(tx.Date.UTC().Format(time.RFC3339))
		sb.WriteByte(';')
	}
}
