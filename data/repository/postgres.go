package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/finwatch/portfolio-engine/config"
	"github.com/finwatch/portfolio-engine/internal/converter/dbConverter"
	"github.com/finwatch/portfolio-engine/internal/model"
	"github.com/finwatch/portfolio-engine/internal/model/dbModel"
	"github.com/finwatch/portfolio-engine/utils"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/jmoiron/sqlx"
)

type Postgres struct {
	db  *sqlx.DB
	cfg *config.Config
}

func NewPostgres(cfg *config.Config, db *sqlx.DB) *Postgres {
	return &Postgres{db: db, cfg: cfg}
}

func (r *Postgres) InsertTransaction(ctx context.Context, tx model.Transaction) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.InsertTransaction"
	query := `
		INSERT INTO transactions(tx_id, asset_id, kind, quantity, price_per_unit, fees, dt)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	slog.Debug("InsertTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", tx.AssetID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("InsertTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertTransaction completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.db.ExecContext(ctx, query, tx.ID, tx.AssetID, string(tx.Kind), tx.Quantity, tx.PricePerUnit, tx.Fees, tx.Date)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return ErrAlreadyExists
			}
		}
		return err
	}

	return nil
}

func (r *Postgres) getTransactions(ctx context.Context, query string, args ...any) (txs []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.getTransactions"

	slog.Debug("getTransactions start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("getTransactions failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("getTransactions completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var tx dbModel.Transaction
		err = rows.StructScan(&tx)
		if err != nil {
			return nil, err
		}
		txs = append(txs, dbConverter.ConvertTransaction(tx))
	}

	return txs, nil
}

// GetTransactions returns the whole log in chronological order; insertion
// order breaks same-instant ties, which the holding reconstructor relies on.
func (r *Postgres) GetTransactions(ctx context.Context) ([]model.Transaction, error) {
	query := `
		SELECT tx_id, asset_id, kind, quantity, price_per_unit, fees, dt, dt_create
		FROM transactions
		ORDER BY dt, dt_create
		`

	return r.getTransactions(ctx, query)
}

func (r *Postgres) GetTransactionsByAsset(ctx context.Context, assetID string) ([]model.Transaction, error) {
	query := `
		SELECT tx_id, asset_id, kind, quantity, price_per_unit, fees, dt, dt_create
		FROM transactions
		WHERE asset_id = $1
		ORDER BY dt, dt_create
		`

	return r.getTransactions(ctx, query, assetID)
}

func (r *Postgres) GetAssetDefinition(ctx context.Context, assetID string) (asset model.AssetDefinition, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetAssetDefinition"
	query := `
		SELECT asset_id, ticker, type, dividend_history, dividend_forecast, price_history, schedule, interest_info, rental_info, dt_update
		FROM assets
		WHERE asset_id = $1
		`

	slog.Debug("GetAssetDefinition start", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", assetID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetAssetDefinition failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetAssetDefinition completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	dbAsset := dbModel.Asset{}
	err = r.db.QueryRowxContext(ctx, query, assetID).StructScan(&dbAsset)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AssetDefinition{}, ErrNotFound
		}
		return model.AssetDefinition{}, err
	}

	return dbConverter.ConvertAsset(dbAsset)
}

func (r *Postgres) GetAssetDefinitions(ctx context.Context) (assets []model.AssetDefinition, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetAssetDefinitions"
	query := `
		SELECT asset_id, ticker, type, dividend_history, dividend_forecast, price_history, schedule, interest_info, rental_info, dt_update
		FROM assets
		ORDER BY ticker
		`

	slog.Debug("GetAssetDefinitions start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetAssetDefinitions failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetAssetDefinitions completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dbAsset dbModel.Asset
		err = rows.StructScan(&dbAsset)
		if err != nil {
			return nil, err
		}

		asset, convErr := dbConverter.ConvertAsset(dbAsset)
		if convErr != nil {
			// A single corrupt asset row must not take the whole portfolio down.
			slog.Warn("GetAssetDefinitions skipped malformed asset", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", convErr.Error()))
			continue
		}
		assets = append(assets, asset)
	}

	return assets, nil
}

func (r *Postgres) UpsertAssetDefinition(ctx context.Context, asset model.AssetDefinition) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpsertAssetDefinition"
	query := `
		INSERT INTO assets (asset_id, ticker, type, dividend_history, dividend_forecast, price_history, schedule, interest_info, rental_info, dt_update)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (asset_id) DO UPDATE SET
			ticker = EXCLUDED.ticker,
			type = EXCLUDED.type,
			dividend_history = EXCLUDED.dividend_history,
			dividend_forecast = EXCLUDED.dividend_forecast,
			price_history = EXCLUDED.price_history,
			schedule = EXCLUDED.schedule,
			interest_info = EXCLUDED.interest_info,
			rental_info = EXCLUDED.rental_info,
			dt_update = now()
	`

	slog.Debug("UpsertAssetDefinition start", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", asset.ID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpsertAssetDefinition failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertAssetDefinition completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	history, forecast, prices, schedule, interest, rental, err := marshalAssetSeries(asset)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, asset.ID, asset.Ticker, string(asset.Type), history, forecast, prices, schedule, interest, rental)
	return err
}

// UpdateMarketData replaces the refreshed series of one asset and bumps its
// update timestamp, leaving manual fields (schedule, interest, rental) alone.
func (r *Postgres) UpdateMarketData(ctx context.Context, assetID string, prices []model.PriceEntry, dividends []model.DividendEntry) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpdateMarketData"
	query := `
		UPDATE assets
		SET
			price_history = $1,
			dividend_history = $2,
			dt_update = now()
		WHERE asset_id = $3
	`

	slog.Debug("UpdateMarketData start", slog.String("rqID", rqID), slog.String("op", op), slog.String("assetID", assetID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpdateMarketData failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdateMarketData completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	pricesJSON, err := json.Marshal(prices)
	if err != nil {
		return fmt.Errorf("marshal price history: %w", err)
	}
	dividendsJSON, err := json.Marshal(dividends)
	if err != nil {
		return fmt.Errorf("marshal dividend history: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, pricesJSON, dividendsJSON, assetID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func marshalAssetSeries(asset model.AssetDefinition) (history, forecast, prices, schedule, interest, rental []byte, err error) {
	if history, err = json.Marshal(asset.DividendHistory); err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("marshal dividend history: %w", err)
	}
	if forecast, err = json.Marshal(asset.DividendForecast); err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("marshal dividend forecast: %w", err)
	}
	if prices, err = json.Marshal(asset.PriceHistory); err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("marshal price history: %w", err)
	}
	if asset.Schedule != nil {
		if schedule, err = json.Marshal(asset.Schedule); err != nil {
			return nil, nil, nil, nil, nil, nil, fmt.Errorf("marshal schedule: %w", err)
		}
	}
	if asset.InterestInfo != nil {
		if interest, err = json.Marshal(asset.InterestInfo); err != nil {
			return nil, nil, nil, nil, nil, nil, fmt.Errorf("marshal interest info: %w", err)
		}
	}
	if asset.RentalInfo != nil {
		if rental, err = json.Marshal(asset.RentalInfo); err != nil {
			return nil, nil, nil, nil, nil, nil, fmt.Errorf("marshal rental info: %w", err)
		}
	}
	return history, forecast, prices, schedule, interest, rental, nil
}
