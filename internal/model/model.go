package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AssetType string

const (
	AssetStock      AssetType = "stock"
	AssetBond       AssetType = "bond"
	AssetCash       AssetType = "cash"
	AssetRealEstate AssetType = "real_estate"
	AssetCrypto     AssetType = "crypto"
	AssetOther      AssetType = "other"
)

type TransactionKind string

const (
	KindBuy  TransactionKind = "buy"
	KindSell TransactionKind = "sell"
)

// Transaction is one record of the append-only per-asset log. Records are
// never mutated after insertion.
type Transaction struct {
	ID           string
	AssetID      string
	Kind         TransactionKind
	Quantity     decimal.Decimal
	Date         time.Time
	PricePerUnit decimal.Decimal
	Fees         decimal.Decimal
}

type DividendSource string

const (
	SourceRealized DividendSource = "realized"
	SourceForecast DividendSource = "forecast"
)

type DividendEntry struct {
	Date          time.Time       `json:"date"`
	AmountPerUnit decimal.Decimal `json:"amountPerUnit"`
	Source        DividendSource  `json:"source"`
}

type PriceEntry struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}

type ScheduleFrequency string

const (
	FreqNone      ScheduleFrequency = "none"
	FreqMonthly   ScheduleFrequency = "monthly"
	FreqQuarterly ScheduleFrequency = "quarterly"
	FreqAnnually  ScheduleFrequency = "annually"
	FreqCustom    ScheduleFrequency = "custom"
)

// DividendSchedule is the expected payout plan used when an asset has no
// dividend history yet. AmountPerUnit is the amount of a single payout;
// MonthlyAmounts holds explicit per-month amounts for FreqCustom.
type DividendSchedule struct {
	Frequency      ScheduleFrequency              `json:"frequency"`
	AmountPerUnit  decimal.Decimal                `json:"amountPerUnit"`
	MonthlyAmounts map[time.Month]decimal.Decimal `json:"monthlyAmounts,omitempty"`
}

// InterestInfo values an asset as a balance rather than per-unit.
// Rate is a yearly percentage.
type InterestInfo struct {
	Rate         decimal.Decimal `json:"rate"`
	CurrentValue decimal.Decimal `json:"currentValue"`
}

type RentalInfo struct {
	BaseRent decimal.Decimal `json:"baseRent"`
}

// AssetDefinition is shared by every position holding the asset. It is
// updated by market-data refresh or manual edit, never deleted while a live
// position references it.
type AssetDefinition struct {
	ID               string
	Ticker           string
	Type             AssetType
	DividendHistory  []DividendEntry
	DividendForecast []DividendEntry
	Schedule         *DividendSchedule
	InterestInfo     *InterestInfo
	RentalInfo       *RentalInfo
	PriceHistory     []PriceEntry
}

// Position is a derived aggregate: all transactions of one asset. It has no
// independent lifecycle and is rebuilt from the log on demand.
type Position struct {
	Asset        AssetDefinition
	Transactions []Transaction

	// Quantity is the holding at the instant the position was reconstructed
	// for. Clamped reports that an over-sell was clamped to zero on the way.
	Quantity decimal.Decimal
	Clamped  bool
	AsOf     time.Time
}

type PositionIncome struct {
	AssetID    string          `json:"assetId"`
	Ticker     string          `json:"ticker"`
	Amount     decimal.Decimal `json:"amount"`
	IsForecast bool            `json:"isForecast"`
}

// MonthIncomeEntry is fully re-derivable from transactions and asset
// definitions; it is never a source of truth. ForecastIncome is the exact
// forecast-sourced part of TotalIncome; ForecastShare is the derived ratio.
type MonthIncomeEntry struct {
	Month          time.Month       `json:"month"`
	Year           int              `json:"year"`
	TotalIncome    decimal.Decimal  `json:"totalIncome"`
	PerPosition    []PositionIncome `json:"perPosition"`
	ForecastIncome decimal.Decimal  `json:"forecastIncome"`
	ForecastShare  decimal.Decimal  `json:"forecastShare"`
}

type MonthlyIncome struct {
	Amount        decimal.Decimal `json:"amount"`
	IsForecast    bool            `json:"isForecast"`
	ForecastShare decimal.Decimal `json:"forecastShare"`
}

// MonthCell is one month of a cached per-asset projection. Forecast is the
// part of Income contributed by forecast entries.
type MonthCell struct {
	Income   decimal.Decimal `json:"income"`
	Forecast decimal.Decimal `json:"forecast"`
}

// CacheEntry is a persisted memo of one asset-year projection, keyed by the
// input fingerprint. It is a performance cache only.
type CacheEntry struct {
	Fingerprint      string          `json:"fingerprint"`
	ComputedAt       time.Time       `json:"computedAt"`
	MonthlyAmount    decimal.Decimal `json:"monthlyAmount"`
	AnnualAmount     decimal.Decimal `json:"annualAmount"`
	MonthlyBreakdown [12]MonthCell   `json:"monthlyBreakdown"`
}
