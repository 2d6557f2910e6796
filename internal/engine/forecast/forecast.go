// Package forecast blends forward-looking dividend estimates into realized
// income. The whole "realized wins" rule lives in ResolveMonthEntries so the
// deduplication is testable in isolation.
package forecast

import (
	"time"

	"github.com/finwatch/portfolio-engine/internal/model"
	"github.com/shopspring/decimal"
)

// Result is the blended income of one position for one month.
// ForecastIncome is the exact forecast-sourced part of Income;
// ForecastShare is the derived ratio.
type Result struct {
	Income         decimal.Decimal
	IsForecast     bool
	ForecastIncome decimal.Decimal
	ForecastShare  decimal.Decimal
}

// ResolveMonthEntries returns the dividend entries that count for the given
// month. Realized entries always win: if any realized entry exists for the
// period, forecast entries for the same period are dropped entirely. An
// explicitly recorded zero-amount realized entry (a skipped dividend) also
// suppresses the forecast.
func ResolveMonthEntries(realized, forecast []model.DividendEntry, month time.Month, year int) []model.DividendEntry {
	var resolved []model.DividendEntry
	for _, entry := range realized {
		if entry.Date.Month() == month && entry.Date.Year() == year {
			resolved = append(resolved, entry)
		}
	}
	if len(resolved) > 0 {
		return resolved
	}

	for _, entry := range forecast {
		if entry.Date.Month() == month && entry.Date.Year() == year {
			entry.Source = model.SourceForecast
			resolved = append(resolved, entry)
		}
	}
	return resolved
}

// Blend adds forecast income to realizedIncome when the asset is a stock with
// a forecast and no realized entry covers the period. ForecastShare is the
// forecast part of the total; it is zero whenever realized data covers the
// month.
func Blend(asset model.AssetDefinition, month time.Month, year int, quantity, realizedIncome decimal.Decimal) Result {
	realizedIncome = nonNegative(realizedIncome)

	if asset.Type != model.AssetStock || len(asset.DividendForecast) == 0 {
		return Result{Income: realizedIncome, ForecastIncome: decimal.Zero, ForecastShare: decimal.Zero}
	}

	forecastSum := decimal.Zero
	for _, entry := range ResolveMonthEntries(asset.DividendHistory, asset.DividendForecast, month, year) {
		if entry.Source == model.SourceForecast {
			forecastSum = forecastSum.Add(entry.AmountPerUnit)
		}
	}
	forecastSum = nonNegative(forecastSum.Mul(quantity))

	income := realizedIncome.Add(forecastSum)
	res := Result{Income: income, ForecastIncome: forecastSum, ForecastShare: decimal.Zero}
	if forecastSum.IsPositive() {
		res.IsForecast = true
		res.ForecastShare = forecastSum.Div(income)
	}
	return res
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
