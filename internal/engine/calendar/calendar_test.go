package calendar

import (
	"testing"
	"time"

	"github.com/finwatch/portfolio-engine/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBuildMixedPortfolio(t *testing.T) {
	stock := model.Position{
		Asset: model.AssetDefinition{
			ID:     "a1",
			Ticker: "ACME",
			Type:   model.AssetStock,
			DividendHistory: []model.DividendEntry{
				{Date: day(2025, time.March, 15), AmountPerUnit: dec("0.50"), Source: model.SourceRealized},
				{Date: day(2025, time.September, 15), AmountPerUnit: dec("0.50"), Source: model.SourceRealized},
			},
		},
		Transactions: []model.Transaction{
			{Kind: model.KindBuy, Quantity: dec("100"), Date: day(2025, time.January, 10)},
			{Kind: model.KindSell, Quantity: dec("40"), Date: day(2025, time.June, 5)},
		},
	}

	bond := model.Position{
		Asset: model.AssetDefinition{
			ID:           "b1",
			Type:         model.AssetBond,
			InterestInfo: &model.InterestInfo{Rate: dec("4.8"), CurrentValue: dec("10000")},
		},
		Transactions: []model.Transaction{
			{Kind: model.KindBuy, Quantity: dec("1"), Date: day(2025, time.January, 1)},
		},
	}

	entries := Build([]model.Position{stock, bond}, 2025)

	march := entries[time.March-1]
	assert.True(t, march.TotalIncome.Equal(dec("90")), "march: 0.50 on 100 units plus 40 interest, got %s", march.TotalIncome)
	require.Len(t, march.PerPosition, 2)

	// the sell in June shrinks the September payout to 60 units
	september := entries[time.September-1]
	assert.True(t, september.TotalIncome.Equal(dec("70")), "september: got %s", september.TotalIncome)

	// months without a dividend carry only the interest accrual
	june := entries[time.June-1]
	assert.True(t, june.TotalIncome.Equal(dec("40")), "june: got %s", june.TotalIncome)
	require.Len(t, june.PerPosition, 1)
	assert.Equal(t, "b1", june.PerPosition[0].AssetID)

	for i, e := range entries {
		assert.Equal(t, time.Month(i+1), e.Month)
		assert.Equal(t, 2025, e.Year)
		assert.True(t, e.ForecastShare.IsZero(), "no forecast anywhere in this portfolio")
	}
}

func TestBuildForecastShare(t *testing.T) {
	stock := model.Position{
		Asset: model.AssetDefinition{
			ID:     "a1",
			Ticker: "ACME",
			Type:   model.AssetStock,
			DividendForecast: []model.DividendEntry{
				{Date: day(2025, time.July, 15), AmountPerUnit: dec("0.30"), Source: model.SourceForecast},
			},
		},
		Transactions: []model.Transaction{
			{Kind: model.KindBuy, Quantity: dec("50"), Date: day(2025, time.January, 2)},
		},
	}
	rental := model.Position{
		Asset: model.AssetDefinition{
			ID:         "r1",
			Type:       model.AssetRealEstate,
			RentalInfo: &model.RentalInfo{BaseRent: dec("15")},
		},
		Transactions: []model.Transaction{
			{Kind: model.KindBuy, Quantity: dec("1"), Date: day(2025, time.January, 2)},
		},
	}

	entries := Build([]model.Position{stock, rental}, 2025)

	july := entries[time.July-1]
	assert.True(t, july.TotalIncome.Equal(dec("30")), "15 forecast plus 15 rent, got %s", july.TotalIncome)
	assert.True(t, july.ForecastIncome.Equal(dec("15")), "got %s", july.ForecastIncome)
	assert.True(t, july.ForecastShare.Equal(dec("0.5")), "got %s", july.ForecastShare)

	june := entries[time.June-1]
	assert.True(t, june.ForecastShare.IsZero())
}

func TestBuildForecastIncomeIsExact(t *testing.T) {
	// forecast is one third of the total; the stored forecast amount must be
	// the raw sum, not a share round-trip through non-terminating division
	stock := model.Position{
		Asset: model.AssetDefinition{
			ID:     "a1",
			Ticker: "ACME",
			Type:   model.AssetStock,
			DividendForecast: []model.DividendEntry{
				{Date: day(2025, time.July, 15), AmountPerUnit: dec("0.10"), Source: model.SourceForecast},
			},
		},
		Transactions: []model.Transaction{
			{Kind: model.KindBuy, Quantity: dec("100"), Date: day(2025, time.January, 2)},
		},
	}
	rental := model.Position{
		Asset: model.AssetDefinition{
			ID:         "r1",
			Type:       model.AssetRealEstate,
			RentalInfo: &model.RentalInfo{BaseRent: dec("20")},
		},
		Transactions: []model.Transaction{
			{Kind: model.KindBuy, Quantity: dec("1"), Date: day(2025, time.January, 2)},
		},
	}

	entries := Build([]model.Position{stock, rental}, 2025)

	july := entries[time.July-1]
	assert.True(t, july.TotalIncome.Equal(dec("30")))
	assert.True(t, july.ForecastIncome.Equal(dec("10")), "want exactly 10, got %s", july.ForecastIncome)
}

func TestBuildExcludesMalformedPosition(t *testing.T) {
	valid := model.Position{
		Asset: model.AssetDefinition{
			ID:         "r1",
			Type:       model.AssetRealEstate,
			RentalInfo: &model.RentalInfo{BaseRent: dec("1200")},
		},
		Transactions: []model.Transaction{
			{Kind: model.KindBuy, Quantity: dec("1"), Date: day(2025, time.January, 1)},
		},
	}
	malformed := model.Position{
		// no asset definition
		Transactions: []model.Transaction{
			{Kind: model.KindBuy, Quantity: dec("100"), Date: day(2025, time.January, 1)},
		},
	}

	entries := Build([]model.Position{valid, malformed}, 2025)

	for _, e := range entries {
		assert.True(t, e.TotalIncome.Equal(dec("1200")), "month %s: got %s", e.Month, e.TotalIncome)
		require.Len(t, e.PerPosition, 1)
		assert.Equal(t, "r1", e.PerPosition[0].AssetID)
	}
}

func TestBuildSkipsMonthsBeforeAcquisition(t *testing.T) {
	pos := model.Position{
		Asset: model.AssetDefinition{
			ID:         "r1",
			Type:       model.AssetRealEstate,
			RentalInfo: &model.RentalInfo{BaseRent: dec("1000")},
		},
		Transactions: []model.Transaction{
			{Kind: model.KindBuy, Quantity: dec("1"), Date: day(2025, time.May, 20)},
		},
	}

	entries := Build([]model.Position{pos}, 2025)

	assert.True(t, entries[time.April-1].TotalIncome.IsZero())
	assert.True(t, entries[time.May-1].TotalIncome.Equal(dec("1000")), "holding exists at May month-end")
	assert.True(t, entries[time.December-1].TotalIncome.Equal(dec("1000")))
}

func TestBuildEmptyPortfolio(t *testing.T) {
	entries := Build(nil, 2025)
	for i, e := range entries {
		assert.Equal(t, time.Month(i+1), e.Month)
		assert.True(t, e.TotalIncome.IsZero())
		assert.Empty(t, e.PerPosition)
	}
}
