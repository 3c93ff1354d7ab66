package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradewatch/src/metrics"
	"tradewatch/src/model"
)

// tickBatch accumulates one instrument's pending writes between flushes:
// mutated trades and milestone records (keyed by trade so repeat ticks
// coalesce) plus the raw price samples. Its mutex also serializes the flush
// check-and-commit, so two flushes can never race each other into committing
// the same buffer twice.
type tickBatch struct {
	mu         sync.Mutex
	trades     map[string]*model.Trade
	milestones map[string]*model.TradeMilestones
	samples    []model.PriceSample
}

func newTickBatch() *tickBatch {
	return &tickBatch{
		trades:     make(map[string]*model.Trade),
		milestones: make(map[string]*model.TradeMilestones),
		samples:    nil,
	}
}

// add buffers one processed tick: the trade is always dirty (excursions and
// last PnL moved), the milestone record only when the recorder reported a
// change, and exactly one sample row.
func (b *tickBatch) add(trade *model.Trade, rec *model.TradeMilestones, sample model.PriceSample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trades[trade.TradeID] = trade
	if rec != nil {
		b.milestones[rec.TradeID] = rec
	}
	b.samples = append(b.samples, sample)
}

// takeLocked drains the buffers. Caller holds b.mu.
func (b *tickBatch) takeLocked() ([]*model.Trade, []*model.TradeMilestones, []model.PriceSample) {
	trades := make([]*model.Trade, 0, len(b.trades))
	for _, trade := range b.trades {
		trades = append(trades, trade)
	}
	milestones := make([]*model.TradeMilestones, 0, len(b.milestones))
	for _, rec := range b.milestones {
		milestones = append(milestones, rec)
	}
	samples := b.samples

	b.trades = make(map[string]*model.Trade)
	b.milestones = make(map[string]*model.TradeMilestones)
	b.samples = nil

	return trades, milestones, samples
}

// restoreLocked puts a failed flush back so the next interval retries it.
// Newer appends cannot have happened in between: the caller held b.mu for
// the whole take-commit-restore sequence.
func (b *tickBatch) restoreLocked(trades []*model.Trade, milestones []*model.TradeMilestones, samples []model.PriceSample) {
	for _, trade := range trades {
		b.trades[trade.TradeID] = trade
	}
	for _, rec := range milestones {
		b.milestones[rec.TradeID] = rec
	}
	b.samples = append(samples, b.samples...)
}

func (b *tickBatch) emptyLocked() bool {
	return len(b.trades) == 0 && len(b.milestones) == 0 && len(b.samples) == 0
}

// flushSymbolBatch commits everything pending for one instrument in a single
// transaction. On failure the buffers are restored untouched; nothing is
// discarded.
func (t *TradeTracker) flushSymbolBatch(ctx context.Context, s *symbolState) error {
	if s == nil {
		return nil
	}

	s.batch.mu.Lock()
	defer s.batch.mu.Unlock()

	if s.batch.emptyLocked() {
		return nil
	}
	trades, milestones, samples := s.batch.takeLocked()

	if err := t.tradeRepo.CommitTickBatch(ctx, trades, milestones, samples); err != nil {
		s.batch.restoreLocked(trades, milestones, samples)
		metrics.RecordBatchFlush(s.symbol, "error")
		return fmt.Errorf("batch commit failed for %s: %w", s.symbol, err)
	}

	metrics.RecordBatchFlush(s.symbol, "ok")
	return nil
}

// flushAll walks every instrument. Failed symbols keep their buffers and are
// retried on the next interval.
func (t *TradeTracker) flushAll(ctx context.Context) {
	for _, s := range t.snapshotStates() {
		if err := t.flushSymbolBatch(ctx, s); err != nil {
			logger.WithFields(map[string]interface{}{
				"symbol": s.symbol,
			}).WithError(err).Error("batch flush failed, buffers retained for retry")
		}
	}
}

func (t *TradeTracker) runFlushLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.rootCtx.Done():
			return
		case <-ticker.C:
			t.flushAll(t.rootCtx)
		}
	}
}
