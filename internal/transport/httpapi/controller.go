// Package httpapi exposes the engine boundary as a small JSON API. It is a
// thin adapter: plain-data DTOs in, plain-data DTOs out, no engine types
// leak storage or UI concerns.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/finwatch/portfolio-engine/config"
	"github.com/finwatch/portfolio-engine/internal/model"
	"github.com/finwatch/portfolio-engine/internal/service"
	"github.com/finwatch/portfolio-engine/utils"
	"github.com/shopspring/decimal"
)

type ProjectionService interface {
	ReconstructPositions(ctx context.Context, asOf time.Time) ([]model.Position, error)
	ComputeMonthlyIncome(ctx context.Context, assetID string, month time.Month, year int) (model.MonthlyIncome, error)
	BuildAnnualCalendar(ctx context.Context, year int) ([12]model.MonthIncomeEntry, error)
	InvalidateAndRecompute(ctx context.Context, assetID string) error
	RecordTransaction(ctx context.Context, tx model.Transaction) error
	UpsertAsset(ctx context.Context, asset model.AssetDefinition) error
}

type Controller struct {
	cfg *config.Config
	srv ProjectionService
	mux *http.ServeMux
}

func NewController(cfg *config.Config, srv ProjectionService) *Controller {
	c := &Controller{cfg: cfg, srv: srv, mux: http.NewServeMux()}
	c.routes()
	return c
}

func (c *Controller) routes() {
	c.mux.HandleFunc("GET /positions", c.handlePositions)
	c.mux.HandleFunc("GET /calendar", c.handleCalendar)
	c.mux.HandleFunc("GET /income", c.handleIncome)
	c.mux.HandleFunc("POST /transactions", c.handleRecordTransaction)
	c.mux.HandleFunc("PUT /assets/{id}", c.handleUpsertAsset)
	c.mux.HandleFunc("POST /assets/{id}/invalidate", c.handleInvalidate)
}

func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	r = r.WithContext(utils.CtxWithRqID(r.Context(), r.Header.Get("X-Request-ID")))
	c.mux.ServeHTTP(w, r)
}

type positionDTO struct {
	AssetID  string          `json:"assetId"`
	Ticker   string          `json:"ticker"`
	Type     string          `json:"type"`
	Quantity decimal.Decimal `json:"quantity"`
	Clamped  bool            `json:"clamped,omitempty"`
}

// GET /positions?asOf=2025-06-30
func (c *Controller) handlePositions(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid asOf, want YYYY-MM-DD")
			return
		}
		// end of the requested day
		asOf = parsed.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	positions, err := c.srv.ReconstructPositions(r.Context(), asOf)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}

	out := make([]positionDTO, 0, len(positions))
	for _, pos := range positions {
		out = append(out, positionDTO{
			AssetID:  pos.Asset.ID,
			Ticker:   pos.Asset.Ticker,
			Type:     string(pos.Asset.Type),
			Quantity: pos.Quantity,
			Clamped:  pos.Clamped,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /calendar?year=2025
func (c *Controller) handleCalendar(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	entries, err := c.srv.BuildAnnualCalendar(r.Context(), year)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// GET /income?asset=<id>&month=7&year=2025
func (c *Controller) handleIncome(w http.ResponseWriter, r *http.Request) {
	assetID := r.URL.Query().Get("asset")
	if assetID == "" {
		httpError(w, http.StatusBadRequest, "asset is required")
		return
	}

	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		httpError(w, http.StatusBadRequest, "invalid month, want 1..12")
		return
	}

	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	income, err := c.srv.ComputeMonthlyIncome(r.Context(), assetID, time.Month(month), year)
	if err != nil {
		c.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, income)
}

type transactionDTO struct {
	AssetID      string          `json:"assetId"`
	Kind         string          `json:"kind"`
	Quantity     decimal.Decimal `json:"quantity"`
	Date         string          `json:"date,omitempty"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
	Fees         decimal.Decimal `json:"fees"`
}

// POST /transactions
func (c *Controller) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		httpError(w, http.StatusBadRequest, "can't read body")
		return
	}

	dto := transactionDTO{}
	if err := json.Unmarshal(body, &dto); err != nil {
		httpError(w, http.StatusBadRequest, "invalid json")
		return
	}

	tx := model.Transaction{
		AssetID:      dto.AssetID,
		Kind:         model.TransactionKind(dto.Kind),
		Quantity:     dto.Quantity,
		PricePerUnit: dto.PricePerUnit,
		Fees:         dto.Fees,
	}
	if dto.Date != "" {
		date, err := time.Parse("2006-01-02", dto.Date)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
		tx.Date = date
	}

	if err := c.srv.RecordTransaction(r.Context(), tx); err != nil {
		c.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

type assetDTO struct {
	Ticker           string                  `json:"ticker"`
	Type             string                  `json:"type"`
	DividendHistory  []model.DividendEntry   `json:"dividendHistory,omitempty"`
	DividendForecast []model.DividendEntry   `json:"dividendForecast,omitempty"`
	Schedule         *model.DividendSchedule `json:"schedule,omitempty"`
	InterestInfo     *model.InterestInfo     `json:"interestInfo,omitempty"`
	RentalInfo       *model.RentalInfo       `json:"rentalInfo,omitempty"`
	PriceHistory     []model.PriceEntry      `json:"priceHistory,omitempty"`
}

// PUT /assets/{id}
func (c *Controller) handleUpsertAsset(w http.ResponseWriter, r *http.Request) {
	assetID := r.PathValue("id")
	if assetID == "" {
		httpError(w, http.StatusBadRequest, "asset id is required")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		httpError(w, http.StatusBadRequest, "can't read body")
		return
	}

	dto := assetDTO{}
	if err := json.Unmarshal(body, &dto); err != nil {
		httpError(w, http.StatusBadRequest, "invalid json")
		return
	}

	asset := model.AssetDefinition{
		ID:               assetID,
		Ticker:           dto.Ticker,
		Type:             model.AssetType(dto.Type),
		DividendHistory:  dto.DividendHistory,
		DividendForecast: dto.DividendForecast,
		Schedule:         dto.Schedule,
		InterestInfo:     dto.InterestInfo,
		RentalInfo:       dto.RentalInfo,
		PriceHistory:     dto.PriceHistory,
	}

	if err := c.srv.UpsertAsset(r.Context(), asset); err != nil {
		c.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// POST /assets/{id}/invalidate
func (c *Controller) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	assetID := r.PathValue("id")
	if assetID == "" {
		httpError(w, http.StatusBadRequest, "asset id is required")
		return
	}

	if err := c.srv.InvalidateAndRecompute(r.Context(), assetID); err != nil {
		c.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recomputed"})
}

func yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return time.Now().UTC().Year(), true
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1900 || year > 3000 {
		httpError(w, http.StatusBadRequest, "invalid year")
		return 0, false
	}
	return year, true
}

// writeServiceError maps domain conditions to status codes. Internal
// failures surface as an explicit "unavailable" marker, never a raw error.
func (c *Controller) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		httpError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrInvalidInput):
		httpError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", slog.String("rqID", utils.GetRequestIDFromCtx(r.Context())), slog.String("path", r.URL.Path), slog.String("err", err.Error()))
		httpError(w, http.StatusInternalServerError, "unavailable")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
