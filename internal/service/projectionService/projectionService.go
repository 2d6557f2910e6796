package projectionService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/finwatch/portfolio-engine/config"
	"github.com/finwatch/portfolio-engine/data/repository"
	"github.com/finwatch/portfolio-engine/internal/engine/calendar"
	"github.com/finwatch/portfolio-engine/internal/engine/fingerprint"
	"github.com/finwatch/portfolio-engine/internal/engine/holding"
	"github.com/finwatch/portfolio-engine/internal/model"
	"github.com/finwatch/portfolio-engine/internal/model/marketModel"
	"github.com/finwatch/portfolio-engine/internal/service"
	"github.com/finwatch/portfolio-engine/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Repository interface {
	InsertTransaction(ctx context.Context, tx model.Transaction) error
	GetTransactions(ctx context.Context) ([]model.Transaction, error)
	GetTransactionsByAsset(ctx context.Context, assetID string) ([]model.Transaction, error)
	GetAssetDefinition(ctx context.Context, assetID string) (model.AssetDefinition, error)
	GetAssetDefinitions(ctx context.Context) ([]model.AssetDefinition, error)
	UpsertAssetDefinition(ctx context.Context, asset model.AssetDefinition) error
	UpdateMarketData(ctx context.Context, assetID string, prices []model.PriceEntry, dividends []model.DividendEntry) error
}

type MarketDataApi interface {
	GetCurrentPrice(ctx context.Context, ticker string) (marketModel.Quote, error)
	GetPriceHistory(ctx context.Context, ticker string, from, to time.Time) ([]model.PriceEntry, error)
	GetDividendSeries(ctx context.Context, ticker string, from, to time.Time) ([]model.DividendEntry, error)
}

type Cache interface {
	GetOrCompute(ctx context.Context, key, fp string, compute func(ctx context.Context) (model.CacheEntry, error)) (model.CacheEntry, bool, error)
	InvalidateIfChanged(key, newFp string) bool
	WarmUp(entries map[string]model.CacheEntry)
	Snapshot() map[string]model.CacheEntry
}

type Store interface {
	BulkUpsert(ctx context.Context, entries map[string]model.CacheEntry) error
	GetRange(ctx context.Context, keyPrefix string, from, to time.Time) (map[string]model.CacheEntry, error)
}

// Invalidation receives state-change events; the recompute coalescer
// implements it.
type Invalidation interface {
	AssetChanged(assetID string)
	TransactionAdded(assetID string)
}

type ProjectionService struct {
	cfg          *config.Config
	repo         Repository
	cache        Cache
	store        Store
	marketApi    MarketDataApi
	invalidation Invalidation
}

func New(cfg *config.Config, repo Repository, cache Cache, store Store, marketApi MarketDataApi) *ProjectionService {
	return &ProjectionService{
		cfg:       cfg,
		repo:      repo,
		cache:     cache,
		store:     store,
		marketApi: marketApi,
	}
}

// SetInvalidation wires the event consumer after construction; the coalescer
// and the service reference each other.
func (s *ProjectionService) SetInvalidation(inv Invalidation) {
	s.invalidation = inv
}

func (s *ProjectionService) calendarKey(assetID string, year int) string {
	return s.cfg.Cache.KeyPrefix + assetID + ":" + strconv.Itoa(year)
}

// ReconstructPositions rebuilds every position from the transaction log at
// the given instant. Transactions referencing an unknown asset are logged
// and excluded.
func (s *ProjectionService) ReconstructPositions(ctx context.Context, asOf time.Time) ([]model.Position, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "ProjectionService.ReconstructPositions"

	slog.Debug("ReconstructPositions start", slog.String("rqID", rqID), slog.String("op", op), slog.Time("asOf", asOf))
	defer func() {
		slog.Debug("ReconstructPositions finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	assets, err := s.repo.GetAssetDefinitions(ctx)
	if err != nil {
		slog.Error("got error from repo.GetAssetDefinitions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	txs, err := s.repo.GetTransactions(ctx)
	if err != nil {
		slog.Error("got error from repo.GetTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	assetByID := make(map[string]model.AssetDefinition, len(assets))
	for _, asset := range assets {
		assetByID[asset.ID] = asset
	}

	txsByAsset := make(map[string][]model.Transaction)
	for _, tx := range txs {
		if _, ok := assetByID[tx.AssetID]; !ok {
			slog.Warn("transaction references unknown asset, excluded", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", tx.AssetID), slog.String("txID", tx.ID))
			continue
		}
		txsByAsset[tx.AssetID] = append(txsByAsset[tx.AssetID], tx)
	}

	positions := make([]model.Position, 0, len(txsByAsset))
	for _, asset := range assets {
		assetTxs, ok := txsByAsset[asset.ID]
		if !ok {
			continue
		}

		quantity, clamped := holding.QuantityAsOf(assetTxs, asOf)
		if clamped {
			slog.Warn("over-sell clamped during reconstruction", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", asset.ID))
		}

		positions = append(positions, model.Position{
			Asset:        asset,
			Transactions: assetTxs,
			Quantity:     quantity,
			Clamped:      clamped,
			AsOf:         asOf,
		})
	}

	return positions, nil
}

// ComputeMonthlyIncome answers income for one asset and month, served from
// the fingerprint cache whenever the asset's inputs are unchanged.
func (s *ProjectionService) ComputeMonthlyIncome(ctx context.Context, assetID string, month time.Month, year int) (model.MonthlyIncome, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "ProjectionService.ComputeMonthlyIncome"

	slog.Debug("ComputeMonthlyIncome start", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", assetID), slog.Int("month", int(month)), slog.Int("year", year))
	defer func() {
		slog.Debug("ComputeMonthlyIncome finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", assetID))
	}()

	if month < time.January || month > time.December {
		return model.MonthlyIncome{}, fmt.Errorf("%w: month %d out of range", service.ErrInvalidInput, month)
	}

	asset, err := s.repo.GetAssetDefinition(ctx, assetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.MonthlyIncome{}, service.ErrNotFound
		}
		return model.MonthlyIncome{}, err
	}

	txs, err := s.repo.GetTransactionsByAsset(ctx, assetID)
	if err != nil {
		return model.MonthlyIncome{}, err
	}

	entry, _, err := s.assetYearEntry(ctx, asset, txs, year)
	if err != nil {
		return model.MonthlyIncome{}, err
	}

	cell := entry.MonthlyBreakdown[month-1]
	income := model.MonthlyIncome{
		Amount:        cell.Income,
		IsForecast:    cell.Forecast.IsPositive(),
		ForecastShare: decimal.Zero,
	}
	if cell.Income.IsPositive() {
		income.ForecastShare = cell.Forecast.Div(cell.Income)
	}

	return income, nil
}

// BuildAnnualCalendar assembles the 12-month income calendar from per-asset
// cached projections. A failing asset degrades to a zero contribution; it
// never aborts the calendar.
func (s *ProjectionService) BuildAnnualCalendar(ctx context.Context, year int) ([12]model.MonthIncomeEntry, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "ProjectionService.BuildAnnualCalendar"

	slog.Debug("BuildAnnualCalendar start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("year", year))
	defer func() {
		slog.Debug("BuildAnnualCalendar finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int("year", year))
	}()

	var entries [12]model.MonthIncomeEntry
	for i := range entries {
		entries[i] = model.MonthIncomeEntry{
			Month:          time.Month(i + 1),
			Year:           year,
			TotalIncome:    decimal.Zero,
			ForecastIncome: decimal.Zero,
			ForecastShare:  decimal.Zero,
		}
	}

	positions, err := s.ReconstructPositions(ctx, holding.MonthEnd(year, time.December))
	if err != nil {
		return entries, err
	}

	for _, pos := range positions {
		entry, hit, err := s.assetYearEntry(ctx, pos.Asset, pos.Transactions, year)
		if err != nil {
			slog.Warn("asset excluded from calendar", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", pos.Asset.ID), slog.String("err", err.Error()))
			continue
		}
		slog.Debug("asset projection resolved", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", pos.Asset.ID), slog.Bool("cacheHit", hit))

		for i := range entries {
			cell := entry.MonthlyBreakdown[i]
			if !cell.Income.IsPositive() {
				continue
			}

			entries[i].TotalIncome = entries[i].TotalIncome.Add(cell.Income)
			entries[i].ForecastIncome = entries[i].ForecastIncome.Add(cell.Forecast)
			entries[i].PerPosition = append(entries[i].PerPosition, model.PositionIncome{
				AssetID:    pos.Asset.ID,
				Ticker:     pos.Asset.Ticker,
				Amount:     cell.Income,
				IsForecast: cell.Forecast.IsPositive(),
			})
		}
	}

	for i := range entries {
		if entries[i].TotalIncome.IsPositive() {
			entries[i].ForecastShare = entries[i].ForecastIncome.Div(entries[i].TotalIncome)
		}
	}

	return entries, nil
}

// assetYearEntry is the cache-intercepted pipeline for one asset and year.
func (s *ProjectionService) assetYearEntry(ctx context.Context, asset model.AssetDefinition, txs []model.Transaction, year int) (model.CacheEntry, bool, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	fp, err := fingerprint.Compute(asset, txs)
	if err != nil {
		// No fingerprint means no caching; recomputing is correct, just slower.
		slog.Warn("fingerprint computation failed, treating as always stale", slog.String("rqID", rqID), slog.String("assetID", asset.ID), slog.String("err", err.Error()))
		fp = ""
	}

	return s.cache.GetOrCompute(ctx, s.calendarKey(asset.ID, year), fp, func(ctx context.Context) (model.CacheEntry, error) {
		return computeAssetYear(asset, txs, year), nil
	})
}

// computeAssetYear runs the pure engine for a single position across one
// year and condenses the result into a cache entry.
func computeAssetYear(asset model.AssetDefinition, txs []model.Transaction, year int) model.CacheEntry {
	months := calendar.Build([]model.Position{{Asset: asset, Transactions: txs}}, year)

	entry := model.CacheEntry{
		ComputedAt:   time.Now().UTC(),
		AnnualAmount: decimal.Zero,
	}
	for i, m := range months {
		cell := model.MonthCell{
			Income:   m.TotalIncome,
			Forecast: m.ForecastIncome,
		}
		entry.MonthlyBreakdown[i] = cell
		entry.AnnualAmount = entry.AnnualAmount.Add(cell.Income)
	}
	entry.MonthlyAmount = entry.AnnualAmount.Div(decimal.NewFromInt(12))

	return entry
}

// InvalidateAndRecompute drops the asset's stale projection for the current
// year and rebuilds it. Running it twice with unchanged inputs is a no-op on
// the second pass (fingerprint hit).
func (s *ProjectionService) InvalidateAndRecompute(ctx context.Context, assetID string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "ProjectionService.InvalidateAndRecompute"

	slog.Debug("InvalidateAndRecompute start", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", assetID))
	defer func() {
		slog.Debug("InvalidateAndRecompute finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", assetID))
	}()

	asset, err := s.repo.GetAssetDefinition(ctx, assetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return service.ErrNotFound
		}
		return err
	}

	txs, err := s.repo.GetTransactionsByAsset(ctx, assetID)
	if err != nil {
		return err
	}

	year := time.Now().UTC().Year()
	if fp, fpErr := fingerprint.Compute(asset, txs); fpErr == nil {
		dropped := s.cache.InvalidateIfChanged(s.calendarKey(assetID, year), fp)
		if dropped {
			slog.Info("stale projection invalidated", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", assetID))
		}
	}

	_, _, err = s.assetYearEntry(ctx, asset, txs, year)
	return err
}

// RecordTransaction appends to the immutable log and signals the recompute
// coalescer.
func (s *ProjectionService) RecordTransaction(ctx context.Context, tx model.Transaction) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "ProjectionService.RecordTransaction"

	slog.Debug("RecordTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", tx.AssetID))
	defer func() {
		slog.Debug("RecordTransaction finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", tx.AssetID))
	}()

	if tx.AssetID == "" {
		return fmt.Errorf("%w: missing asset id", service.ErrInvalidInput)
	}
	if tx.Kind != model.KindBuy && tx.Kind != model.KindSell {
		return fmt.Errorf("%w: unknown transaction kind %q", service.ErrInvalidInput, tx.Kind)
	}
	if !tx.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", service.ErrInvalidInput)
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Date.IsZero() {
		tx.Date = time.Now().UTC()
	}

	if _, err := s.repo.GetAssetDefinition(ctx, tx.AssetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return service.ErrNotFound
		}
		return err
	}

	if err := s.repo.InsertTransaction(ctx, tx); err != nil {
		slog.Error("got error from repo.InsertTransaction", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	if s.invalidation != nil {
		s.invalidation.TransactionAdded(tx.AssetID)
	}

	return nil
}

// UpsertAsset creates or replaces an asset definition (manual edit path) and
// signals the recompute coalescer.
func (s *ProjectionService) UpsertAsset(ctx context.Context, asset model.AssetDefinition) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "ProjectionService.UpsertAsset"

	slog.Debug("UpsertAsset start", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", asset.ID))
	defer func() {
		slog.Debug("UpsertAsset finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", asset.ID))
	}()

	if asset.ID == "" {
		return fmt.Errorf("%w: missing asset id", service.ErrInvalidInput)
	}
	switch asset.Type {
	case model.AssetStock, model.AssetBond, model.AssetCash, model.AssetRealEstate, model.AssetCrypto, model.AssetOther:
	default:
		return fmt.Errorf("%w: unknown asset type %q", service.ErrInvalidInput, asset.Type)
	}

	if err := s.repo.UpsertAssetDefinition(ctx, asset); err != nil {
		slog.Error("got error from repo.UpsertAssetDefinition", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	if s.invalidation != nil {
		s.invalidation.AssetChanged(asset.ID)
	}

	return nil
}

// RefreshMarketData pulls fresh price and dividend series for every tracked
// ticker. Provider failures degrade to "no data" per asset; the job itself
// only fails on repository errors.
func (s *ProjectionService) RefreshMarketData(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "ProjectionService.RefreshMarketData"

	slog.Debug("RefreshMarketData start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("RefreshMarketData finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	assets, err := s.repo.GetAssetDefinitions(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	from := now.AddDate(-2, 0, 0)

	for _, asset := range assets {
		if asset.Ticker == "" || (asset.Type != model.AssetStock && asset.Type != model.AssetCrypto) {
			continue
		}

		prices, err := s.marketApi.GetPriceHistory(ctx, asset.Ticker, from, now)
		if err != nil {
			slog.Warn("no price history from provider", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", asset.Ticker), slog.String("err", err.Error()))
			continue
		}

		if quote, quoteErr := s.marketApi.GetCurrentPrice(ctx, asset.Ticker); quoteErr == nil {
			prices = append(prices, model.PriceEntry{Date: quote.Timestamp, Price: quote.Price})
		}

		dividends, err := s.marketApi.GetDividendSeries(ctx, asset.Ticker, from, now)
		if err != nil {
			slog.Warn("no dividend series from provider, keeping existing", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", asset.Ticker), slog.String("err", err.Error()))
			dividends = asset.DividendHistory
		}

		if err := s.repo.UpdateMarketData(ctx, asset.ID, prices, dividends); err != nil {
			slog.Error("got error from repo.UpdateMarketData", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", asset.ID), slog.String("err", err.Error()))
			continue
		}

		if s.invalidation != nil {
			s.invalidation.AssetChanged(asset.ID)
		}
	}

	return nil
}

// FlushCache bulk-persists the in-memory cache; runs on a schedule so a
// crash loses at most one interval of memoized work.
func (s *ProjectionService) FlushCache(ctx context.Context) error {
	snapshot := s.cache.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	return s.store.BulkUpsert(ctx, snapshot)
}

// WarmUpCache rehydrates persisted projections before the first computation
// after a restart.
func (s *ProjectionService) WarmUpCache(ctx context.Context) error {
	entries, err := s.store.GetRange(ctx, s.cfg.Cache.KeyPrefix, time.Time{}, time.Time{})
	if err != nil {
		return err
	}
	s.cache.WarmUp(entries)
	slog.Info("cache warmed up from durable store", slog.Int("entries", len(entries)))
	return nil
}
