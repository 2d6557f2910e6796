package holding

import (
	"testing"
	"time"

	"github.com/finwatch/portfolio-engine/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func tx(kind model.TransactionKind, qty string, date time.Time) model.Transaction {
	return model.Transaction{
		Kind:     kind,
		Quantity: decimal.RequireFromString(qty),
		Date:     date,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestQuantityAsOf(t *testing.T) {
	txs := []model.Transaction{
		tx(model.KindBuy, "100", day(2025, time.January, 10)),
		tx(model.KindSell, "40", day(2025, time.March, 5)),
		tx(model.KindBuy, "10", day(2025, time.June, 1)),
	}

	tests := []struct {
		name        string
		cutoff      time.Time
		wantQty     string
		wantClamped bool
	}{
		{name: "before first transaction", cutoff: day(2025, time.January, 1), wantQty: "0"},
		{name: "after first buy", cutoff: day(2025, time.January, 31), wantQty: "100"},
		{name: "after sell", cutoff: day(2025, time.March, 31), wantQty: "60"},
		{name: "cutoff on transaction date includes it", cutoff: day(2025, time.June, 1), wantQty: "70"},
		{name: "far future", cutoff: day(2030, time.January, 1), wantQty: "70"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, clamped := QuantityAsOf(txs, tt.cutoff)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.wantQty)), "got %s want %s", got, tt.wantQty)
			assert.Equal(t, tt.wantClamped, clamped)
		})
	}
}

func TestQuantityAsOfEmptyLog(t *testing.T) {
	got, clamped := QuantityAsOf(nil, day(2025, time.December, 31))
	assert.True(t, got.IsZero())
	assert.False(t, clamped)
}

func TestQuantityAsOfOverSellClamps(t *testing.T) {
	txs := []model.Transaction{
		tx(model.KindBuy, "10", day(2025, time.February, 1)),
		tx(model.KindSell, "25", day(2025, time.February, 15)),
		tx(model.KindBuy, "5", day(2025, time.March, 1)),
	}

	got, clamped := QuantityAsOf(txs, day(2025, time.December, 31))
	assert.True(t, got.Equal(decimal.NewFromInt(5)), "over-sell must clamp to zero before later buys, got %s", got)
	assert.True(t, clamped)
}

func TestQuantityAsOfSameDayInsertionOrder(t *testing.T) {
	sameDay := day(2025, time.April, 10)

	// sell recorded before the buy on the same day: log order applies, the
	// sell clamps against the prior balance of zero
	txs := []model.Transaction{
		tx(model.KindSell, "30", sameDay),
		tx(model.KindBuy, "30", sameDay),
	}

	got, clamped := QuantityAsOf(txs, sameDay)
	assert.True(t, got.Equal(decimal.NewFromInt(30)), "got %s", got)
	assert.True(t, clamped)
}

func TestQuantityAsOfUnsortedInput(t *testing.T) {
	txs := []model.Transaction{
		tx(model.KindSell, "40", day(2025, time.March, 5)),
		tx(model.KindBuy, "100", day(2025, time.January, 10)),
	}

	got, clamped := QuantityAsOf(txs, day(2025, time.December, 31))
	assert.True(t, got.Equal(decimal.NewFromInt(60)), "got %s", got)
	assert.False(t, clamped)
}

func TestMonthEnd(t *testing.T) {
	end := MonthEnd(2025, time.February)
	assert.Equal(t, time.February, end.Month())
	assert.Equal(t, 28, end.Day())

	// a transaction dated any time within the month is included
	assert.False(t, day(2025, time.February, 28).After(end))
	// the first instant of March is not
	assert.True(t, day(2025, time.March, 1).After(end))

	assert.Equal(t, 31, MonthEnd(2025, time.December).Day())
}
