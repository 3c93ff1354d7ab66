package tracker

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradewatch/src/model"
	"tradewatch/src/repository"
)

func (t *TradeTracker) runTimeoutLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.TimeoutCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.rootCtx.Done():
			return
		case <-ticker.C:
			t.checkTimeouts(t.rootCtx)
		}
	}
}

// checkTimeouts force-closes every trade that has been open past the age
// horizon, then prunes price samples of trades completed longer ago than the
// retention window. The final PnL of a timed-out trade is the PnL at its
// last processed tick; a trade that never saw a tick closes flat.
func (t *TradeTracker) checkTimeouts(ctx context.Context) {
	cutoff := time.Now().Add(-t.cfg.MaxTradeAge)

	rows, err := t.tradeRepo.FindActiveOlderThan(ctx, cutoff)
	if err != nil {
		repository.Capture(ctx, t.excRepo, "TradeTracker", "tracker", "tradeRepo.FindActiveOlderThan", "error", err, map[string]interface{}{})
		return
	}

	for i := range rows {
		t.timeoutTrade(ctx, &rows[i])
	}

	if _, err := t.sampleRepo.DeleteForCompletedBefore(ctx, time.Now().Add(-t.cfg.SampleRetention)); err != nil {
		repository.Capture(ctx, t.excRepo, "TradeTracker", "tracker", "sampleRepo.DeleteForCompletedBefore", "error", err, map[string]interface{}{})
	}
}

// timeoutTrade closes one over-age trade. Tracked trades close through their
// in-memory state under the symbol's processing lock, so the sweep cannot
// race a tick evaluating the same trade; rows the tracker has never seen
// close straight from storage.
func (t *TradeTracker) timeoutTrade(ctx context.Context, row *model.Trade) {
	logger.WithFields(map[string]interface{}{
		"trade_id": row.TradeID,
		"symbol":   row.Symbol,
		"age":      time.Since(row.EntryTime).String(),
	}).Warn("trade exceeded max age, closing as timeout")

	s := t.lookupState(row.Symbol)
	if s == nil {
		t.closeWithTimeout(ctx, nil, row)
		return
	}

	s.procMu.Lock()
	defer s.procMu.Unlock()

	t.mu.Lock()
	tracked := s.trades[row.TradeID]
	t.mu.Unlock()

	if tracked != nil {
		// The in-memory trade carries fresher excursions than the row.
		t.closeWithTimeout(ctx, s, tracked)
		return
	}
	t.closeWithTimeout(ctx, s, row)
}

func (t *TradeTracker) closeWithTimeout(ctx context.Context, s *symbolState, trade *model.Trade) {
	if err := t.closeTrade(ctx, s, trade, model.OutcomeTimeout, trade.LastPnlPct, time.Now().UTC()); err != nil {
		logger.WithFields(map[string]interface{}{
			"trade_id": trade.TradeID,
		}).WithError(err).Error("timeout close failed, will retry next sweep")
	}
}
