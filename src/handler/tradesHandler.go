package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"tradewatch/src/externalmodel"
	"tradewatch/src/mapper"
	"tradewatch/src/model"
)

type tradeTracker interface {
	ActiveTrades() []model.Trade
	AddTrade(ctx context.Context, trade *model.Trade) error
}

type tradeCreator interface {
	Create(ctx context.Context, trade *model.Trade) error
}

// ActiveTradesHandler lists the trades currently tracked in memory, oldest
// first, optionally filtered to one trading symbol.
func ActiveTradesHandler(tracker tradeTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trades := tracker.ActiveTrades()

		if symbol := mapper.NormalizeTradingSymbol(r.URL.Query().Get("symbol")); symbol != "" {
			filtered := trades[:0]
			for _, trade := range trades {
				if trade.Symbol == symbol {
					filtered = append(filtered, trade)
				}
			}
			trades = filtered
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(trades); err != nil {
			logger.WithError(err).Error("failed to encode active trades response")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// CreateTradeHandler accepts a trade from the creation interface: validate
// the payload, consult the circuit breaker for the asset key, persist the
// row, then hand it to the tracker. Paused and blacklisted assets are
// rejected; recovery assets trade on, at reduced size.
func CreateTradeHandler(repo tradeCreator, breaker assetStatusChecker, tracker tradeTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload externalmodel.TradeIntake
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid trade intake payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		symbol := mapper.NormalizeTradingSymbol(payload.Symbol)
		if symbol == "" {
			http.Error(w, "symbol is required", http.StatusBadRequest)
			return
		}
		if payload.Direction != model.TradeDirectionLong && payload.Direction != model.TradeDirectionShort {
			http.Error(w, "direction must be long or short", http.StatusBadRequest)
			return
		}
		if payload.EntryPrice <= 0 {
			http.Error(w, "entry_price must be positive", http.StatusBadRequest)
			return
		}

		status, err := breaker.CheckAssetStatus(r.Context(), symbol, payload.Direction, payload.Source)
		if err != nil {
			logger.WithError(err).Error("failed to check asset status during intake")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if status == model.AssetStatusPaused || status == model.AssetStatusBlacklisted {
			logger.WithFields(map[string]interface{}{
				"symbol":    symbol,
				"direction": payload.Direction,
				"source":    payload.Source,
				"status":    status,
			}).Warn("trade rejected by circuit breaker")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			if err := json.NewEncoder(w).Encode(map[string]string{
				"error":  "asset not eligible for new trades",
				"status": status,
			}); err != nil {
				logger.WithError(err).Error("failed to encode intake rejection")
			}
			return
		}

		trade := tradeFromIntake(&payload, symbol)
		if err := repo.Create(r.Context(), trade); err != nil {
			logger.WithError(err).Error("failed to persist intake trade")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if err := tracker.AddTrade(r.Context(), trade); err != nil {
			logger.WithError(err).Error("failed to start tracking intake trade")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(trade); err != nil {
			logger.WithError(err).Error("failed to encode created trade")
		}
	}
}

func tradeFromIntake(payload *externalmodel.TradeIntake, symbol string) *model.Trade {
	tradeID := payload.TradeID
	if tradeID == "" {
		tradeID = fmt.Sprintf("trade-%s", uuid.NewString())
	}

	entryTime := time.Now().UTC()
	if payload.EntryTime != nil {
		entryTime = payload.EntryTime.UTC()
	}

	strategy := payload.RiskStrategy
	if strategy == "" {
		strategy = model.RiskStrategyStatic
	}

	return &model.Trade{
		TradeID:            tradeID,
		SignalSymbol:       payload.Symbol,
		Symbol:             symbol,
		Direction:          payload.Direction,
		Source:             payload.Source,
		EntryPrice:         payload.EntryPrice,
		EntryTime:          entryTime,
		RiskStrategy:       strategy,
		TP1Pct:             payload.TP1Pct,
		TP2Pct:             payload.TP2Pct,
		TP3Pct:             payload.TP3Pct,
		StopLossPrice:      payload.StopLossPrice,
		StopLossPct:        payload.StopLossPct,
		TrailActivationPct: payload.TrailActivationPct,
		TrailDistancePct:   payload.TrailDistancePct,
		MomentumState:      model.MomentumStatePreTP1,
		Status:             model.TradeStatusActive,
	}
}
