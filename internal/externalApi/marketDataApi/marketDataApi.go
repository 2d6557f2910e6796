// Package marketDataApi is the gateway to the market-data provider. The
// engine only consumes its output contract; provider selection, API keys and
// failover live behind the configured base URL.
package marketDataApi

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/finwatch/portfolio-engine/config"
	"github.com/finwatch/portfolio-engine/internal/externalApi"
	"github.com/finwatch/portfolio-engine/internal/model"
	"github.com/finwatch/portfolio-engine/internal/model/marketModel"
	"github.com/finwatch/portfolio-engine/utils"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const dateFormat = "2006-01-02"

type MarketDataApi struct {
	client *resty.Client
	apiKey string
}

func New(cfg *config.Config) *MarketDataApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetRetryCount(cfg.API.RetryCount).
		SetRetryWaitTime(cfg.API.RetryWaitTime).
		SetBaseURL(cfg.API.MarketData.Url)
	return &MarketDataApi{client: client, apiKey: cfg.API.MarketData.ApiKey}
}

func (a *MarketDataApi) GetCurrentPrice(ctx context.Context, ticker string) (marketModel.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	url := "/api/real-time/" + ticker
	params := map[string]string{
		"fmt":       "json",
		"api_token": a.apiKey,
	}

	slog.Debug("start MarketDataApi.GetCurrentPrice request", slog.String("rqID", rqID), slog.String("ticker", ticker))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		Get(url)

	if err != nil {
		slog.Error("error while dialing market data provider", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return marketModel.Quote{}, externalApi.ErrUnavailable
	}

	if resp.StatusCode() == 404 {
		return marketModel.Quote{}, externalApi.ErrNotFound
	}
	if resp.IsError() {
		slog.Error("market data provider returned error status", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID))
		return marketModel.Quote{}, externalApi.ErrUnavailable
	}

	raw := marketModel.RawQuote{}
	err = json.Unmarshal(resp.Body(), &raw)
	if err != nil {
		slog.Error("can't unmarshall response into marketModel.RawQuote", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return marketModel.Quote{}, externalApi.ErrUnavailable
	}

	price := sanitizeFloat(raw.Close)
	if price.IsZero() {
		return marketModel.Quote{}, externalApi.ErrNotFound
	}

	quote := marketModel.Quote{
		Ticker:    ticker,
		Price:     price,
		Currency:  raw.Currency,
		Timestamp: time.Unix(raw.Timestamp, 0).UTC(),
	}

	slog.Debug("MarketDataApi.GetCurrentPrice request complete", slog.String("rqID", rqID))

	return quote, nil
}

func (a *MarketDataApi) GetPriceHistory(ctx context.Context, ticker string, from, to time.Time) ([]model.PriceEntry, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	url := "/api/eod/" + ticker

	slog.Debug("start MarketDataApi.GetPriceHistory request", slog.String("rqID", rqID), slog.String("ticker", ticker))

	body, err := a.getSeries(ctx, url, from, to)
	if err != nil {
		return nil, err
	}

	raw := make([]marketModel.RawEodEntry, 0)
	err = json.Unmarshal(body, &raw)
	if err != nil {
		slog.Error("can't unmarshall response into []marketModel.RawEodEntry", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, externalApi.ErrUnavailable
	}

	entries := make([]model.PriceEntry, 0, len(raw))
	for _, e := range raw {
		date, parseErr := time.Parse(dateFormat, e.Date)
		if parseErr != nil {
			slog.Warn("skipping price entry with malformed date", slog.String("rqID", rqID), slog.String("date", e.Date))
			continue
		}
		entries = append(entries, model.PriceEntry{Date: date, Price: sanitizeFloat(e.Close)})
	}

	slog.Debug("MarketDataApi.GetPriceHistory request complete", slog.String("rqID", rqID), slog.Int("count", len(entries)))

	return entries, nil
}

func (a *MarketDataApi) GetDividendSeries(ctx context.Context, ticker string, from, to time.Time) ([]model.DividendEntry, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	url := "/api/div/" + ticker

	slog.Debug("start MarketDataApi.GetDividendSeries request", slog.String("rqID", rqID), slog.String("ticker", ticker))

	body, err := a.getSeries(ctx, url, from, to)
	if err != nil {
		return nil, err
	}

	raw := make([]marketModel.RawDividendEntry, 0)
	err = json.Unmarshal(body, &raw)
	if err != nil {
		slog.Error("can't unmarshall response into []marketModel.RawDividendEntry", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, externalApi.ErrUnavailable
	}

	entries := make([]model.DividendEntry, 0, len(raw))
	for _, e := range raw {
		date, parseErr := time.Parse(dateFormat, e.Date)
		if parseErr != nil {
			slog.Warn("skipping dividend entry with malformed date", slog.String("rqID", rqID), slog.String("date", e.Date))
			continue
		}
		entries = append(entries, model.DividendEntry{
			Date:          date,
			AmountPerUnit: sanitizeFloat(e.Value),
			Source:        model.SourceRealized,
		})
	}

	slog.Debug("MarketDataApi.GetDividendSeries request complete", slog.String("rqID", rqID), slog.Int("count", len(entries)))

	return entries, nil
}

func (a *MarketDataApi) getSeries(ctx context.Context, url string, from, to time.Time) ([]byte, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	params := map[string]string{
		"fmt":       "json",
		"api_token": a.apiKey,
		"from":      from.Format(dateFormat),
		"to":        to.Format(dateFormat),
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		Get(url)

	if err != nil {
		slog.Error("error while dialing market data provider", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, externalApi.ErrUnavailable
	}

	if resp.StatusCode() == 404 {
		return nil, externalApi.ErrNotFound
	}
	if resp.IsError() {
		slog.Error("market data provider returned error status", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID))
		return nil, externalApi.ErrUnavailable
	}

	return resp.Body(), nil
}

// sanitizeFloat guards the one boundary where floats enter the system:
// NaN, infinities and negatives become zero instead of propagating.
func sanitizeFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}
