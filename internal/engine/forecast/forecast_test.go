package forecast

import (
	"testing"
	"time"

	"github.com/finwatch/portfolio-engine/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func entry(y int, m time.Month, amount string, source model.DividendSource) model.DividendEntry {
	return model.DividendEntry{
		Date:          time.Date(y, m, 15, 0, 0, 0, 0, time.UTC),
		AmountPerUnit: dec(amount),
		Source:        source,
	}
}

func TestResolveMonthEntriesRealizedWins(t *testing.T) {
	realized := []model.DividendEntry{entry(2025, time.July, "0.32", model.SourceRealized)}
	forecast := []model.DividendEntry{entry(2025, time.July, "0.30", model.SourceForecast)}

	got := ResolveMonthEntries(realized, forecast, time.July, 2025)
	assert.Len(t, got, 1)
	assert.Equal(t, model.SourceRealized, got[0].Source)
	assert.True(t, got[0].AmountPerUnit.Equal(dec("0.32")))
}

func TestResolveMonthEntriesZeroRealizedSuppressesForecast(t *testing.T) {
	// a recorded zero payout is a statement that the dividend was skipped
	realized := []model.DividendEntry{entry(2025, time.July, "0", model.SourceRealized)}
	forecast := []model.DividendEntry{entry(2025, time.July, "0.30", model.SourceForecast)}

	got := ResolveMonthEntries(realized, forecast, time.July, 2025)
	assert.Len(t, got, 1)
	assert.True(t, got[0].AmountPerUnit.IsZero())
}

func TestResolveMonthEntriesForecastFillsGap(t *testing.T) {
	realized := []model.DividendEntry{entry(2025, time.March, "0.50", model.SourceRealized)}
	forecast := []model.DividendEntry{entry(2025, time.July, "0.30", model.SourceForecast)}

	got := ResolveMonthEntries(realized, forecast, time.July, 2025)
	assert.Len(t, got, 1)
	assert.Equal(t, model.SourceForecast, got[0].Source)

	// other months stay empty
	assert.Empty(t, ResolveMonthEntries(realized, forecast, time.August, 2025))
}

func TestBlendForecastOnly(t *testing.T) {
	asset := model.AssetDefinition{
		ID:               "a1",
		Type:             model.AssetStock,
		DividendForecast: []model.DividendEntry{entry(2025, time.July, "0.30", model.SourceForecast)},
	}

	res := Blend(asset, time.July, 2025, dec("50"), decimal.Zero)
	assert.True(t, res.Income.Equal(dec("15")), "0.30 on 50 units, got %s", res.Income)
	assert.True(t, res.IsForecast)
	assert.True(t, res.ForecastIncome.Equal(dec("15")))
	assert.True(t, res.ForecastShare.Equal(dec("1")))
}

func TestBlendRealizedReplacesForecast(t *testing.T) {
	asset := model.AssetDefinition{
		ID:               "a1",
		Type:             model.AssetStock,
		DividendHistory:  []model.DividendEntry{entry(2025, time.July, "0.32", model.SourceRealized)},
		DividendForecast: []model.DividendEntry{entry(2025, time.July, "0.30", model.SourceForecast)},
	}

	// realized income already computed by the income rule: 0.32 on 50 units
	res := Blend(asset, time.July, 2025, dec("50"), dec("16"))
	assert.True(t, res.Income.Equal(dec("16")), "got %s", res.Income)
	assert.False(t, res.IsForecast)
	assert.True(t, res.ForecastShare.IsZero())
}

func TestBlendZeroRealizedEntrySuppresses(t *testing.T) {
	asset := model.AssetDefinition{
		ID:               "a1",
		Type:             model.AssetStock,
		DividendHistory:  []model.DividendEntry{entry(2025, time.July, "0", model.SourceRealized)},
		DividendForecast: []model.DividendEntry{entry(2025, time.July, "0.30", model.SourceForecast)},
	}

	res := Blend(asset, time.July, 2025, dec("50"), decimal.Zero)
	assert.True(t, res.Income.IsZero(), "skipped dividend must not fall back to forecast, got %s", res.Income)
	assert.False(t, res.IsForecast)
}

func TestBlendNonStockPassesThrough(t *testing.T) {
	asset := model.AssetDefinition{
		ID:               "b1",
		Type:             model.AssetBond,
		DividendForecast: []model.DividendEntry{entry(2025, time.July, "0.30", model.SourceForecast)},
	}

	res := Blend(asset, time.July, 2025, dec("1"), dec("40"))
	assert.True(t, res.Income.Equal(dec("40")))
	assert.False(t, res.IsForecast)
	assert.True(t, res.ForecastShare.IsZero())
}

func TestBlendMixedMonths(t *testing.T) {
	asset := model.AssetDefinition{
		ID:   "a1",
		Type: model.AssetStock,
		DividendHistory: []model.DividendEntry{
			entry(2025, time.March, "0.50", model.SourceRealized),
		},
		DividendForecast: []model.DividendEntry{
			entry(2025, time.March, "0.45", model.SourceForecast),
			entry(2025, time.September, "0.50", model.SourceForecast),
		},
	}

	// March has realized data: the forecast for March is dropped
	march := Blend(asset, time.March, 2025, dec("100"), dec("50"))
	assert.True(t, march.Income.Equal(dec("50")))
	assert.True(t, march.ForecastShare.IsZero())

	// September has only the forecast
	september := Blend(asset, time.September, 2025, dec("100"), decimal.Zero)
	assert.True(t, september.Income.Equal(dec("50")))
	assert.True(t, september.ForecastShare.Equal(dec("1")))
}
