package tracker

import (
	"context"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradewatch/src/metrics"
	"tradewatch/src/model"
	"tradewatch/src/repository"
)

// closeTrade finalizes one trade end to end.
// Flow:
// 1) force-flush the instrument's pending batch so the closing tick is durable
// 2) mark the trade row completed (status, outcome, final PnL, closed-at)
// 3) hand the completed trade to the post-trade pipeline
// 4) update asset health with the result
// 5) drop in-memory tracking state and the milestone cache entry
//
// Steps 1, 3 and 4 are best-effort: their failures are captured and the close
// proceeds. Step 2 failing aborts the close and leaves the trade tracked so a
// later tick or the timeout sweep retries it.
//
// Caller holds s.procMu when s is non-nil; pass s == nil for trades that are
// not in memory (timeout sweep over rows loaded straight from storage).
func (t *TradeTracker) closeTrade(
	ctx context.Context,
	s *symbolState,
	trade *model.Trade,
	outcome string,
	finalPnlPct float64,
	closedAt time.Time,
) error {

	fail := func(method, msg string, e error) error {
		repository.Capture(ctx, t.excRepo, "TradeTracker", "tracker", method, "error", e, map[string]interface{}{
			"trade_id": trade.TradeID,
			"symbol":   trade.Symbol,
			"outcome":  outcome,
		})
		return fmt.Errorf("%s: %w", msg, e)
	}

	// ------------------------------------------------------------------
	// 1) Force-flush pending writes for the instrument
	// ------------------------------------------------------------------
	if err := t.flushSymbolBatch(ctx, s); err != nil {
		// Buffers were restored; the interval flush retries them. The close
		// itself still goes ahead.
		logger.WithFields(map[string]interface{}{
			"trade_id": trade.TradeID,
			"symbol":   trade.Symbol,
		}).WithError(err).Warn("pre-close flush failed, batch retained")
		repository.Capture(ctx, t.excRepo, "TradeTracker", "tracker", "flushSymbolBatch", "warning", err, map[string]interface{}{
			"trade_id": trade.TradeID,
			"symbol":   trade.Symbol,
		})
	}

	// ------------------------------------------------------------------
	// 2) Mark the row completed
	// ------------------------------------------------------------------
	if err := t.tradeRepo.MarkCompleted(ctx, trade.TradeID, outcome, finalPnlPct, closedAt); err != nil {
		return fail("tradeRepo.MarkCompleted", "marking trade completed failed", err)
	}

	// Mirror the closing fields in memory so any retried batch flush writes
	// the completed state, not a resurrected active row.
	trade.Status = model.TradeStatusCompleted
	trade.Outcome = outcome
	pnl := finalPnlPct
	trade.FinalPnlPct = &pnl
	at := closedAt
	trade.ClosedAt = &at

	// ------------------------------------------------------------------
	// 3) Post-trade pipeline handoff
	// ------------------------------------------------------------------
	if t.pipeline != nil {
		if err := t.pipeline.ProcessCompletedTrade(ctx, trade, outcome, finalPnlPct); err != nil {
			logger.WithFields(map[string]interface{}{
				"trade_id": trade.TradeID,
				"outcome":  outcome,
			}).WithError(err).Error("post-trade pipeline failed")
			repository.Capture(ctx, t.excRepo, "TradeTracker", "tracker", "pipeline.ProcessCompletedTrade", "error", err, map[string]interface{}{
				"trade_id": trade.TradeID,
				"outcome":  outcome,
			})
		}
	}

	// ------------------------------------------------------------------
	// 4) Asset health update
	// ------------------------------------------------------------------
	if t.breaker != nil {
		if err := t.breaker.RecordTradeResult(ctx, trade); err != nil {
			logger.WithFields(map[string]interface{}{
				"trade_id": trade.TradeID,
				"symbol":   trade.Symbol,
			}).WithError(err).Error("asset health update failed")
			repository.Capture(ctx, t.excRepo, "TradeTracker", "tracker", "breaker.RecordTradeResult", "error", err, map[string]interface{}{
				"trade_id": trade.TradeID,
				"symbol":   trade.Symbol,
			})
		}
	}

	// ------------------------------------------------------------------
	// 5) Drop tracking state
	// ------------------------------------------------------------------
	if s != nil {
		t.detach(s, trade.TradeID)
	}
	t.recorder.ClearCache(trade.TradeID)
	metrics.RecordTradeClosed(trade.Symbol, outcome)

	logger.WithFields(map[string]interface{}{
		"trade_id":      trade.TradeID,
		"symbol":        trade.Symbol,
		"outcome":       outcome,
		"final_pnl_pct": finalPnlPct,
		"held":          closedAt.Sub(trade.EntryTime).String(),
	}).Info("trade closed")
	return nil
}
