package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/finwatch/portfolio-engine/config"
	"github.com/finwatch/portfolio-engine/internal/model"
	"github.com/finwatch/portfolio-engine/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	positions   []model.Position
	income      model.MonthlyIncome
	calendar    [12]model.MonthIncomeEntry
	recorded    []model.Transaction
	upserted    []model.AssetDefinition
	invalidated []string
	err         error
}

func (f *fakeService) ReconstructPositions(_ context.Context, _ time.Time) ([]model.Position, error) {
	return f.positions, f.err
}

func (f *fakeService) ComputeMonthlyIncome(_ context.Context, _ string, _ time.Month, _ int) (model.MonthlyIncome, error) {
	return f.income, f.err
}

func (f *fakeService) BuildAnnualCalendar(_ context.Context, _ int) ([12]model.MonthIncomeEntry, error) {
	return f.calendar, f.err
}

func (f *fakeService) InvalidateAndRecompute(_ context.Context, assetID string) error {
	f.invalidated = append(f.invalidated, assetID)
	return f.err
}

func (f *fakeService) RecordTransaction(_ context.Context, tx model.Transaction) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, tx)
	return nil
}

func (f *fakeService) UpsertAsset(_ context.Context, asset model.AssetDefinition) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, asset)
	return nil
}

func doRequest(t *testing.T, srv *fakeService, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	controller := NewController(&config.Config{}, srv)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	controller.ServeHTTP(rec, req)
	return rec
}

func TestGetPositions(t *testing.T) {
	srv := &fakeService{
		positions: []model.Position{{
			Asset:    model.AssetDefinition{ID: "a1", Ticker: "ACME", Type: model.AssetStock},
			Quantity: decimal.NewFromInt(60),
			Clamped:  true,
		}},
	}

	rec := doRequest(t, srv, http.MethodGet, "/positions?asOf=2025-06-30", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []positionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].AssetID)
	assert.Equal(t, "stock", got[0].Type)
	assert.True(t, got[0].Quantity.Equal(decimal.NewFromInt(60)))
	assert.True(t, got[0].Clamped)
}

func TestGetPositionsBadAsOf(t *testing.T) {
	rec := doRequest(t, &fakeService{}, http.MethodGet, "/positions?asOf=june", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetIncome(t *testing.T) {
	srv := &fakeService{income: model.MonthlyIncome{Amount: decimal.NewFromInt(50)}}

	rec := doRequest(t, srv, http.MethodGet, "/income?asset=a1&month=3&year=2025", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.MonthlyIncome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(50)))
}

func TestGetIncomeValidation(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{name: "missing asset", target: "/income?month=3&year=2025"},
		{name: "month out of range", target: "/income?asset=a1&month=13&year=2025"},
		{name: "month not a number", target: "/income?asset=a1&month=march&year=2025"},
		{name: "bad year", target: "/income?asset=a1&month=3&year=nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, &fakeService{}, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetIncomeNotFound(t *testing.T) {
	srv := &fakeService{err: service.ErrNotFound}
	rec := doRequest(t, srv, http.MethodGet, "/income?asset=ghost&month=3&year=2025", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCalendarDefaultsToCurrentYear(t *testing.T) {
	rec := doRequest(t, &fakeService{}, http.MethodGet, "/calendar", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostTransaction(t *testing.T) {
	srv := &fakeService{}
	body := `{"assetId":"a1","kind":"buy","quantity":"100","date":"2025-01-10","pricePerUnit":"10.50"}`

	rec := doRequest(t, srv, http.MethodPost, "/transactions", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, srv.recorded, 1)
	tx := srv.recorded[0]
	assert.Equal(t, "a1", tx.AssetID)
	assert.Equal(t, model.KindBuy, tx.Kind)
	assert.True(t, tx.Quantity.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC), tx.Date)
}

func TestPostTransactionBadBody(t *testing.T) {
	rec := doRequest(t, &fakeService{}, http.MethodPost, "/transactions", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, &fakeService{}, http.MethodPost, "/transactions", `{"assetId":"a1","kind":"buy","quantity":"1","date":"10.01.2025"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostTransactionInvalidInput(t *testing.T) {
	srv := &fakeService{err: service.ErrInvalidInput}
	rec := doRequest(t, srv, http.MethodPost, "/transactions", `{"assetId":"a1","kind":"transfer","quantity":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutAsset(t *testing.T) {
	srv := &fakeService{}
	body := `{"ticker":"ACME","type":"stock","rentalInfo":null,"interestInfo":{"rate":"4.8","currentValue":"10000"}}`

	rec := doRequest(t, srv, http.MethodPut, "/assets/a1", body)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, srv.upserted, 1)
	asset := srv.upserted[0]
	assert.Equal(t, "a1", asset.ID, "the path id wins over any body field")
	assert.Equal(t, model.AssetStock, asset.Type)
	require.NotNil(t, asset.InterestInfo)
	assert.True(t, asset.InterestInfo.Rate.Equal(decimal.RequireFromString("4.8")))
}

func TestPutAssetBadBody(t *testing.T) {
	rec := doRequest(t, &fakeService{}, http.MethodPut, "/assets/a1", "{oops")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostInvalidate(t *testing.T) {
	srv := &fakeService{}
	rec := doRequest(t, srv, http.MethodPost, "/assets/a1/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a1"}, srv.invalidated)
}

func TestInternalErrorsAreMasked(t *testing.T) {
	srv := &fakeService{err: errors.New("pq: connection refused")}
	rec := doRequest(t, srv, http.MethodGet, "/calendar?year=2025", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:", "low-level errors must not leak to clients")
	assert.Contains(t, rec.Body.String(), "unavailable")
}
