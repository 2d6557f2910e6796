package dbConverter

import (
	"encoding/json"
	"fmt"

	"github.com/finwatch/portfolio-engine/internal/model"
	"github.com/finwatch/portfolio-engine/internal/model/dbModel"
)

func ConvertTransaction(tx dbModel.Transaction) model.Transaction {
	return model.Transaction{
		ID:           tx.TxID,
		AssetID:      tx.AssetID,
		Kind:         model.TransactionKind(tx.Kind),
		Quantity:     tx.Quantity,
		Date:         tx.Date,
		PricePerUnit: tx.PricePerUnit,
		Fees:         tx.Fees,
	}
}

func ConvertAsset(a dbModel.Asset) (model.AssetDefinition, error) {
	asset := model.AssetDefinition{
		ID:     a.AssetID,
		Ticker: a.Ticker,
		Type:   model.AssetType(a.Type),
	}

	if err := unmarshalInto(a.DividendHistory, &asset.DividendHistory); err != nil {
		return model.AssetDefinition{}, fmt.Errorf("dividend_history for asset %s: %w", a.AssetID, err)
	}
	if err := unmarshalInto(a.DividendForecast, &asset.DividendForecast); err != nil {
		return model.AssetDefinition{}, fmt.Errorf("dividend_forecast for asset %s: %w", a.AssetID, err)
	}
	if err := unmarshalInto(a.PriceHistory, &asset.PriceHistory); err != nil {
		return model.AssetDefinition{}, fmt.Errorf("price_history for asset %s: %w", a.AssetID, err)
	}
	if err := unmarshalInto(a.Schedule, &asset.Schedule); err != nil {
		return model.AssetDefinition{}, fmt.Errorf("schedule for asset %s: %w", a.AssetID, err)
	}
	if err := unmarshalInto(a.InterestInfo, &asset.InterestInfo); err != nil {
		return model.AssetDefinition{}, fmt.Errorf("interest_info for asset %s: %w", a.AssetID, err)
	}
	if err := unmarshalInto(a.RentalInfo, &asset.RentalInfo); err != nil {
		return model.AssetDefinition{}, fmt.Errorf("rental_info for asset %s: %w", a.AssetID, err)
	}

	return asset, nil
}

func unmarshalInto(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
