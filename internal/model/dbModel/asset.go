package dbModel

import "time"

type Asset struct {
	AssetID          string    `db:"asset_id"`
	Ticker           string    `db:"ticker"`
	Type             string    `db:"type"`
	DividendHistory  []byte    `db:"dividend_history"`
	DividendForecast []byte    `db:"dividend_forecast"`
	PriceHistory     []byte    `db:"price_history"`
	Schedule         []byte    `db:"schedule"`
	InterestInfo     []byte    `db:"interest_info"`
	RentalInfo       []byte    `db:"rental_info"`
	UpdatedAt        time.Time `db:"dt_update"`
}
