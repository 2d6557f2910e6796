package dbModel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	TxID         string          `db:"tx_id"`
	AssetID      string          `db:"asset_id"`
	Kind         string          `db:"kind"`
	Quantity     decimal.Decimal `db:"quantity"`
	PricePerUnit decimal.Decimal `db:"price_per_unit"`
	Fees         decimal.Decimal `db:"fees"`
	Date         time.Time       `db:"dt"`
	CreatedAt    time.Time       `db:"dt_create"`
}
