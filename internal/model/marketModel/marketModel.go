package marketModel

import (
	"time"

	"github.com/shopspring/decimal"
)

// Raw* types mirror the provider wire format. The gateway parses them into
// domain entries and never leaks them past its boundary.

type RawEodEntry struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

type RawDividendEntry struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type RawQuote struct {
	Code      string  `json:"code"`
	Close     float64 `json:"close"`
	Currency  string  `json:"currency"`
	Timestamp int64   `json:"timestamp"`
}

type Quote struct {
	Ticker    string
	Price     decimal.Decimal
	Currency  string
	Timestamp time.Time
}
