package handler

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"tradewatch/src/mapper"
	"tradewatch/src/model"
)

type assetStatusChecker interface {
	CheckAssetStatus(ctx context.Context, symbol, direction, source string) (string, error)
}

type positionSizer interface {
	PositionSizeMultiplier(ctx context.Context, symbol, direction, source string) (float64, error)
}

// assetKeyFromQuery pulls the (symbol, direction, source) asset key out of
// the query string. The symbol may arrive venue-qualified and is normalized.
func assetKeyFromQuery(r *http.Request) (symbol, direction, source string, ok bool) {
	symbol = mapper.NormalizeTradingSymbol(r.URL.Query().Get("symbol"))
	direction = r.URL.Query().Get("direction")
	source = r.URL.Query().Get("source")

	if symbol == "" {
		return "", "", "", false
	}
	if direction != model.TradeDirectionLong && direction != model.TradeDirectionShort {
		return "", "", "", false
	}
	return symbol, direction, source, true
}

// AssetStatusHandler returns the circuit-breaker status for one asset key.
// The creation interface consults this before opening a trade.
func AssetStatusHandler(breaker assetStatusChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol, direction, source, ok := assetKeyFromQuery(r)
		if !ok {
			http.Error(w, "symbol and direction=long|short are required", http.StatusBadRequest)
			return
		}

		status, err := breaker.CheckAssetStatus(r.Context(), symbol, direction, source)
		if err != nil {
			logger.WithError(err).Error("failed to check asset status")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{
			"symbol":    symbol,
			"direction": direction,
			"source":    source,
			"status":    status,
		}); err != nil {
			logger.WithError(err).Error("failed to encode asset status response")
		}
	}
}

// PositionSizeHandler returns the sizing multiplier in [0,1] for one asset
// key.
func PositionSizeHandler(breaker positionSizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol, direction, source, ok := assetKeyFromQuery(r)
		if !ok {
			http.Error(w, "symbol and direction=long|short are required", http.StatusBadRequest)
			return
		}

		mult, err := breaker.PositionSizeMultiplier(r.Context(), symbol, direction, source)
		if err != nil {
			logger.WithError(err).Error("failed to compute position size multiplier")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"symbol":     symbol,
			"direction":  direction,
			"source":     source,
			"multiplier": mult,
		}); err != nil {
			logger.WithError(err).Error("failed to encode position size response")
		}
	}
}
