// Package calendar drives holding reconstruction, income rules and forecast
// blending across twelve months of positions.
package calendar

import (
	"log/slog"
	"time"

	"github.com/finwatch/portfolio-engine/internal/engine/forecast"
	"github.com/finwatch/portfolio-engine/internal/engine/holding"
	"github.com/finwatch/portfolio-engine/internal/engine/incomerule"
	"github.com/finwatch/portfolio-engine/internal/model"
	"github.com/shopspring/decimal"
)

// Build computes the income calendar of a year from positions alone. The
// output carries no persisted identity; it is safe to discard and rebuild at
// any time.
//
// A malformed position (missing asset definition) is logged and excluded
// from every month rather than aborting the build. Positions with no holding
// in a month contribute nothing to that month.
func Build(positions []model.Position, year int) [12]model.MonthIncomeEntry {
	var entries [12]model.MonthIncomeEntry

	for i := range entries {
		month := time.Month(i + 1)
		entry := model.MonthIncomeEntry{
			Month:          month,
			Year:           year,
			TotalIncome:    decimal.Zero,
			ForecastIncome: decimal.Zero,
			ForecastShare:  decimal.Zero,
		}

		cutoff := holding.MonthEnd(year, month)

		for _, pos := range positions {
			if pos.Asset.ID == "" {
				slog.Warn("calendar: position without asset definition excluded",
					slog.Int("year", year), slog.Int("month", int(month)))
				continue
			}

			quantity, clamped := holding.QuantityAsOf(pos.Transactions, cutoff)
			if clamped {
				slog.Warn("calendar: over-sell clamped to zero",
					slog.String("assetID", pos.Asset.ID), slog.Int("year", year), slog.Int("month", int(month)))
			}
			if !quantity.IsPositive() {
				continue
			}

			rule := incomerule.ForType(pos.Asset.Type)
			realized := rule.MonthlyAmount(incomerule.Snapshot{Asset: pos.Asset, Quantity: quantity}, month, year)
			res := forecast.Blend(pos.Asset, month, year, quantity, realized)

			if res.Income.IsZero() {
				continue
			}

			entry.TotalIncome = entry.TotalIncome.Add(res.Income)
			entry.ForecastIncome = entry.ForecastIncome.Add(res.ForecastIncome)
			entry.PerPosition = append(entry.PerPosition, model.PositionIncome{
				AssetID:    pos.Asset.ID,
				Ticker:     pos.Asset.Ticker,
				Amount:     res.Income,
				IsForecast: res.IsForecast,
			})
		}

		if entry.TotalIncome.IsPositive() {
			entry.ForecastShare = entry.ForecastIncome.Div(entry.TotalIncome)
		}

		entries[i] = entry
	}

	return entries
}
