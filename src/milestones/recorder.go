package milestones

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradewatch/src/model"
	"tradewatch/src/repository"
)

// thresholdPcts is the ordered excursion ladder. Each profit threshold has a
// mirrored drawdown threshold at the same magnitude.
var thresholdPcts = []float64{0.5, 1, 1.5, 2, 3, 5, 7.5, 10}

// profitSlots and drawdownSlots expose the model's write-once timestamp
// fields in ladder order, so crossing checks walk one table instead of
// sixteen hand-written branches.
func profitSlots(rec *model.TradeMilestones) []**time.Time {
	return []**time.Time{
		&rec.Profit05At, &rec.Profit10At, &rec.Profit15At, &rec.Profit20At,
		&rec.Profit30At, &rec.Profit50At, &rec.Profit75At, &rec.Profit100At,
	}
}

func drawdownSlots(rec *model.TradeMilestones) []**time.Time {
	return []**time.Time{
		&rec.Drawdown05At, &rec.Drawdown10At, &rec.Drawdown15At, &rec.Drawdown20At,
		&rec.Drawdown30At, &rec.Drawdown50At, &rec.Drawdown75At, &rec.Drawdown100At,
	}
}

// Recorder maintains the per-trade excursion milestone rows. Records are
// created lazily on the first processed tick and cached in memory until the
// trade closes.
type Recorder struct {
	repo *repository.MilestoneRepository

	mu    sync.Mutex
	cache map[string]*model.TradeMilestones
}

func NewRecorder(repo *repository.MilestoneRepository) *Recorder {
	return &Recorder{
		repo:  repo,
		cache: make(map[string]*model.TradeMilestones),
	}
}

// EnsureRecord returns the milestone record for a trade, creating it if this
// is the first time the trade is seen. Safe to call on every tick: cache hit
// first, then storage, then insert.
func (r *Recorder) EnsureRecord(ctx context.Context, trade *model.Trade) (*model.TradeMilestones, error) {
	r.mu.Lock()
	if rec, ok := r.cache[trade.TradeID]; ok {
		r.mu.Unlock()
		return rec, nil
	}
	r.mu.Unlock()

	rec, err := r.repo.FindByTradeID(ctx, trade.TradeID)
	if err != nil {
		return nil, fmt.Errorf("milestone lookup failed for %s: %w", trade.TradeID, err)
	}

	if rec == nil {
		rec = &model.TradeMilestones{
			TradeID:    trade.TradeID,
			EntryPrice: trade.EntryPrice,
			EntryTime:  trade.EntryTime,
		}
		if err := r.repo.Create(ctx, rec); err != nil {
			// A concurrent creator may have won; fall back to the stored row.
			existing, findErr := r.repo.FindByTradeID(ctx, trade.TradeID)
			if findErr != nil || existing == nil {
				return nil, fmt.Errorf("milestone create failed for %s: %w", trade.TradeID, err)
			}
			rec = existing
		} else {
			logger.WithFields(map[string]interface{}{
				"trade_id": trade.TradeID,
			}).Debug("milestone record created")
		}
	}

	r.mu.Lock()
	r.cache[trade.TradeID] = rec
	r.mu.Unlock()
	return rec, nil
}

// Update applies one observed PnL to the record. Threshold timestamps are
// write-once: only the first crossing of each level sticks. Water marks
// refresh whenever the excursion extends. Returns true when anything
// changed, so callers know the row needs persisting.
func (r *Recorder) Update(rec *model.TradeMilestones, pnlPct float64, at time.Time) bool {
	changed := false

	if pnlPct > 0 {
		slots := profitSlots(rec)
		for i, threshold := range thresholdPcts {
			if pnlPct < threshold {
				break
			}
			if *slots[i] == nil {
				stamp := at
				*slots[i] = &stamp
				changed = true
			}
		}
	} else if pnlPct < 0 {
		slots := drawdownSlots(rec)
		for i, threshold := range thresholdPcts {
			if -pnlPct < threshold {
				break
			}
			if *slots[i] == nil {
				stamp := at
				*slots[i] = &stamp
				changed = true
			}
		}
	}

	if pnlPct > rec.HighWaterPct || rec.HighWaterAt == nil {
		stamp := at
		rec.HighWaterPct = pnlPct
		rec.HighWaterAt = &stamp
		changed = true
	}
	if pnlPct < rec.LowWaterPct || rec.LowWaterAt == nil {
		stamp := at
		rec.LowWaterPct = pnlPct
		rec.LowWaterAt = &stamp
		changed = true
	}

	return changed
}

// ClearCache drops the cached record once a trade closes.
func (r *Recorder) ClearCache(tradeID string) {
	r.mu.Lock()
	delete(r.cache, tradeID)
	r.mu.Unlock()
}
