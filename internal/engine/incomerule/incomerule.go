// Package incomerule computes per-type monthly income for a reconstructed
// position. One rule per asset type; unknown types yield zero.
package incomerule

import (
	"time"

	"github.com/finwatch/portfolio-engine/internal/model"
	"github.com/shopspring/decimal"
)

var (
	twelve  = decimal.NewFromInt(12)
	hundred = decimal.NewFromInt(100)
)

// Snapshot is a position reduced to what income computation needs: the shared
// asset definition and the quantity held during the month in question.
type Snapshot struct {
	Asset    model.AssetDefinition
	Quantity decimal.Decimal
}

// Rule computes the realized income of one position for one month.
// Results are always finite and non-negative.
type Rule interface {
	MonthlyAmount(pos Snapshot, month time.Month, year int) decimal.Decimal
}

// ForType returns the income rule for an asset type.
func ForType(t model.AssetType) Rule {
	switch t {
	case model.AssetStock:
		return stockRule{}
	case model.AssetBond, model.AssetCash:
		return interestRule{}
	case model.AssetRealEstate:
		return rentRule{}
	default:
		return zeroRule{}
	}
}

type stockRule struct{}

// MonthlyAmount sums realized dividends for the month times the held
// quantity. With no history at all it falls back to the expected schedule;
// with history but no entry for this month it returns zero and leaves
// gap-filling to the forecast blender.
func (stockRule) MonthlyAmount(pos Snapshot, month time.Month, year int) decimal.Decimal {
	if len(pos.Asset.DividendHistory) > 0 {
		sum := decimal.Zero
		for _, entry := range pos.Asset.DividendHistory {
			if entry.Date.Month() == month && entry.Date.Year() == year {
				sum = sum.Add(entry.AmountPerUnit)
			}
		}
		return nonNegative(sum.Mul(pos.Quantity))
	}

	if pos.Asset.Schedule != nil {
		return nonNegative(scheduledPerMonth(*pos.Asset.Schedule, month).Mul(pos.Quantity))
	}

	return decimal.Zero
}

// scheduledPerMonth converts a payout schedule into an expected per-month
// per-unit amount: periodic frequencies are annualized and spread over 12
// months, custom schedules name the amount for each month directly.
func scheduledPerMonth(s model.DividendSchedule, month time.Month) decimal.Decimal {
	switch s.Frequency {
	case model.FreqMonthly:
		return s.AmountPerUnit
	case model.FreqQuarterly:
		return s.AmountPerUnit.Mul(decimal.NewFromInt(4)).Div(twelve)
	case model.FreqAnnually:
		return s.AmountPerUnit.Div(twelve)
	case model.FreqCustom:
		if amount, ok := s.MonthlyAmounts[month]; ok {
			return amount
		}
		return decimal.Zero
	default:
		return decimal.Zero
	}
}

type interestRule struct{}

// MonthlyAmount accrues rate% of the current balance over a year, split into
// twelve equal parts. Bonds and cash are valued as a balance, not per unit,
// so the held quantity does not participate.
func (interestRule) MonthlyAmount(pos Snapshot, _ time.Month, _ int) decimal.Decimal {
	info := pos.Asset.InterestInfo
	if info == nil {
		return decimal.Zero
	}
	return nonNegative(info.Rate.Mul(info.CurrentValue).Div(hundred).Div(twelve))
}

type rentRule struct{}

func (rentRule) MonthlyAmount(pos Snapshot, _ time.Month, _ int) decimal.Decimal {
	if pos.Asset.RentalInfo == nil {
		return decimal.Zero
	}
	return nonNegative(pos.Asset.RentalInfo.BaseRent)
}

type zeroRule struct{}

func (zeroRule) MonthlyAmount(Snapshot, time.Month, int) decimal.Decimal {
	return decimal.Zero
}

// nonNegative protects downstream sums: malformed inputs must surface as
// zero income, never as a negative contribution.
func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
