package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"tradewatch/src/connectors"
	"tradewatch/src/mapper"
	"tradewatch/src/metrics"
	"tradewatch/src/milestones"
	"tradewatch/src/model"
	"tradewatch/src/pricefeed"
	"tradewatch/src/repository"
	"tradewatch/src/tp_sl"
)

// trackerListenerID identifies the tracker with the price monitor. One
// listener per symbol, shared by every trade on that instrument.
const trackerListenerID = "trade-tracker"

// PriceSubscriber is the slice of the price monitor the tracker needs.
type PriceSubscriber interface {
	Subscribe(symbol, listenerID string, fn pricefeed.Listener)
	Unsubscribe(symbol, listenerID string)
}

// HealthRecorder receives every completed trade for asset health accounting.
// Failures here never block a close.
type HealthRecorder interface {
	RecordTradeResult(ctx context.Context, trade *model.Trade) error
}

// symbolState is everything the tracker keeps per instrument: the trades
// sharing the subscription, the rate limiter bounding processing frequency,
// and the pending write buffer.
//
// procMu serializes tick processing and closes for the instrument, and every
// subscribe/unsubscribe transition, so a close can never race a concurrent
// add into a watched-but-listenerless symbol. Lock order is procMu before
// the tracker mutex, never the other way around.
type symbolState struct {
	symbol string

	procMu  sync.Mutex
	limiter *rate.Limiter
	batch   *tickBatch

	// trades is guarded by the tracker mutex, not procMu, so read paths
	// (snapshots, counts) stay cheap.
	trades map[string]*model.Trade
}

// TradeTracker owns the lifecycle of every active trade: it subscribes
// instruments with the price monitor, runs the per-tick evaluation path, and
// closes trades through the post-trade pipeline and circuit breaker.
type TradeTracker struct {
	cfg Config

	tradeRepo  *repository.TradeRepository
	sampleRepo *repository.PriceSampleRepository
	excRepo    *repository.ExceptionRepository
	volRepo    *repository.VolatilityRepository

	recorder *milestones.Recorder
	registry *tp_sl.Registry
	prices   PriceSubscriber
	pipeline PostTradePipeline
	breaker  HealthRecorder

	mu      sync.Mutex
	states  map[string]*symbolState
	byTrade map[string]string // trade id -> trading symbol

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
	started    atomic.Bool
}

func NewTradeTracker(
	tradeRepo *repository.TradeRepository,
	sampleRepo *repository.PriceSampleRepository,
	excRepo *repository.ExceptionRepository,
	volRepo *repository.VolatilityRepository,
	recorder *milestones.Recorder,
	registry *tp_sl.Registry,
	prices PriceSubscriber,
	pipeline PostTradePipeline,
	breaker HealthRecorder,
) *TradeTracker {
	return NewTradeTrackerWithConfig(
		tradeRepo, sampleRepo, excRepo, volRepo,
		recorder, registry, prices, pipeline, breaker,
		GetConfig(),
	)
}

func NewTradeTrackerWithConfig(
	tradeRepo *repository.TradeRepository,
	sampleRepo *repository.PriceSampleRepository,
	excRepo *repository.ExceptionRepository,
	volRepo *repository.VolatilityRepository,
	recorder *milestones.Recorder,
	registry *tp_sl.Registry,
	prices PriceSubscriber,
	pipeline PostTradePipeline,
	breaker HealthRecorder,
	cfg Config,
) *TradeTracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &TradeTracker{
		cfg:        cfg,
		tradeRepo:  tradeRepo,
		sampleRepo: sampleRepo,
		excRepo:    excRepo,
		volRepo:    volRepo,
		recorder:   recorder,
		registry:   registry,
		prices:     prices,
		pipeline:   pipeline,
		breaker:    breaker,
		states:     make(map[string]*symbolState),
		byTrade:    make(map[string]string),
		rootCtx:    ctx,
		rootCancel: cancel,
	}
}

// StartTracking loads every active trade from storage, subscribes their
// instruments, and launches the flush and timeout loops. Safe to call once;
// repeat calls are ignored.
func (t *TradeTracker) StartTracking(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return nil
	}

	trades, err := t.tradeRepo.FindActive(ctx)
	if err != nil {
		t.started.Store(false)
		return fmt.Errorf("loading active trades: %w", err)
	}

	for i := range trades {
		trade := trades[i]
		if err := t.AddTrade(ctx, &trade); err != nil {
			logger.WithFields(map[string]interface{}{
				"trade_id": trade.TradeID,
				"symbol":   trade.Symbol,
			}).WithError(err).Warn("stored trade rejected at startup, skipping")
		}
	}

	t.wg.Add(2)
	go t.runFlushLoop()
	go t.runTimeoutLoop()

	t.mu.Lock()
	active, symbols := len(t.byTrade), len(t.states)
	t.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"trades":  active,
		"symbols": symbols,
	}).Info("trade tracking started")
	return nil
}

// AddTrade validates a trade and begins tracking it. The first trade on an
// instrument starts the price subscription; later ones share it. Adding a
// trade that is already tracked is a no-op.
func (t *TradeTracker) AddTrade(ctx context.Context, trade *model.Trade) error {
	if err := validateTrade(trade); err != nil {
		logger.WithFields(map[string]interface{}{
			"trade_id": trade.TradeID,
			"symbol":   trade.Symbol,
		}).WithError(err).Warn("trade rejected, not tracked")
		return err
	}

	t.stampVolatility(ctx, trade)

	s := t.stateFor(trade.Symbol)
	s.procMu.Lock()
	defer s.procMu.Unlock()

	t.mu.Lock()
	if _, dup := t.byTrade[trade.TradeID]; dup {
		t.mu.Unlock()
		logger.WithFields(map[string]interface{}{
			"trade_id": trade.TradeID,
		}).Debug("trade already tracked")
		return nil
	}
	s.trades[trade.TradeID] = trade
	t.byTrade[trade.TradeID] = trade.Symbol
	count := len(s.trades)
	active := len(t.byTrade)
	t.mu.Unlock()

	if count == 1 {
		t.prices.Subscribe(s.symbol, trackerListenerID, func(tick connectors.PriceTick) {
			t.handleTick(s, tick)
		})
	}

	metrics.SetTradesActive(active)
	logger.WithFields(map[string]interface{}{
		"trade_id":  trade.TradeID,
		"symbol":    trade.Symbol,
		"direction": trade.Direction,
		"strategy":  trade.RiskStrategy,
		"shared":    count - 1,
	}).Info("trade tracking started for trade")
	return nil
}

// RemoveTrade stops tracking a trade without closing it. The subscription
// stays up while other trades share the instrument.
func (t *TradeTracker) RemoveTrade(tradeID string) {
	t.mu.Lock()
	symbol, ok := t.byTrade[tradeID]
	t.mu.Unlock()
	if !ok {
		return
	}

	s := t.stateFor(symbol)
	s.procMu.Lock()
	t.detach(s, tradeID)
	s.procMu.Unlock()

	t.recorder.ClearCache(tradeID)
	logger.WithFields(map[string]interface{}{
		"trade_id": tradeID,
		"symbol":   symbol,
	}).Info("trade removed from tracking")
}

// detach drops one trade from the in-memory maps and tears down the
// subscription when it was the last one on its instrument. Caller holds
// s.procMu.
func (t *TradeTracker) detach(s *symbolState, tradeID string) {
	t.mu.Lock()
	if _, ok := s.trades[tradeID]; !ok {
		t.mu.Unlock()
		return
	}
	delete(s.trades, tradeID)
	delete(t.byTrade, tradeID)
	count := len(s.trades)
	active := len(t.byTrade)
	t.mu.Unlock()

	if count == 0 {
		t.prices.Unsubscribe(s.symbol, trackerListenerID)
	}
	metrics.SetTradesActive(active)
}

// ActiveTrades returns a snapshot of every tracked trade, oldest first.
func (t *TradeTracker) ActiveTrades() []model.Trade {
	t.mu.Lock()
	out := make([]model.Trade, 0, len(t.byTrade))
	for _, s := range t.states {
		for _, trade := range s.trades {
			out = append(out, *trade)
		}
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out
}

// TrackedCount reports how many trades are currently in memory.
func (t *TradeTracker) TrackedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byTrade)
}

// Shutdown stops the background loops and force-flushes every pending
// buffer so no processed tick is lost.
func (t *TradeTracker) Shutdown() {
	logger.Info("trade tracker shutting down")
	t.rootCancel()
	t.wg.Wait()

	// The root context is gone; give the final flush its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	t.flushAll(ctx)
}

// handleTick is the monitor listener for one instrument. Over-rate ticks are
// dropped outright, never queued.
func (t *TradeTracker) handleTick(s *symbolState, tick connectors.PriceTick) {
	if tick.Price <= 0 {
		return
	}
	if !s.limiter.Allow() {
		metrics.RecordTickDropped(s.symbol)
		return
	}

	s.procMu.Lock()
	defer s.procMu.Unlock()

	t.mu.Lock()
	trades := make([]*model.Trade, 0, len(s.trades))
	for _, trade := range s.trades {
		trades = append(trades, trade)
	}
	t.mu.Unlock()

	if len(trades) == 0 {
		return
	}

	for _, trade := range trades {
		t.processTradeTick(t.rootCtx, s, trade, tick)
	}
	metrics.RecordTickProcessed(s.symbol)
}

// processTradeTick shields sibling trades from each other: a panic while
// evaluating one trade is captured and the rest of the batch still runs.
func (t *TradeTracker) processTradeTick(ctx context.Context, s *symbolState, trade *model.Trade, tick connectors.PriceTick) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("tick evaluation panicked: %v", r)
			repository.Capture(ctx, t.excRepo, "TradeTracker", "tracker", "processTradeTick", "error", err, map[string]interface{}{
				"trade_id": trade.TradeID,
				"symbol":   s.symbol,
			})
		}
	}()

	t.evaluateTradeTick(ctx, s, trade, tick)
}

// evaluateTradeTick runs the full per-trade tick path: PnL, excursions,
// milestones, take-profit levels, then the strategy evaluator. The tick is
// buffered before any close decision so a force-flush on close carries the
// closing tick with it.
func (t *TradeTracker) evaluateTradeTick(ctx context.Context, s *symbolState, trade *model.Trade, tick connectors.PriceTick) {
	price := tick.Price
	pnl := trade.PnlPercent(price)

	trade.LastPnlPct = pnl
	if pnl > trade.MaxFavorablePct {
		trade.MaxFavorablePct = pnl
	}
	if pnl < trade.MaxAdversePct {
		trade.MaxAdversePct = pnl
	}

	// Milestone failures are logged but never block exit decisions.
	var dirty *model.TradeMilestones
	rec, err := t.recorder.EnsureRecord(ctx, trade)
	if err != nil {
		repository.Capture(ctx, t.excRepo, "TradeTracker", "tracker", "recorder.EnsureRecord", "error", err, map[string]interface{}{
			"trade_id": trade.TradeID,
		})
	} else if t.recorder.Update(rec, pnl, tick.At) {
		dirty = rec
	}

	s.batch.add(trade, dirty, model.PriceSample{
		TradeID:         trade.TradeID,
		Symbol:          s.symbol,
		Price:           price,
		PnlPct:          pnl,
		MaxFavorablePct: trade.MaxFavorablePct,
		MaxAdversePct:   trade.MaxAdversePct,
		SampledAt:       tick.At,
	})

	if t.applyTakeProfits(trade, price, pnl, tick.At) {
		if err := t.closeTrade(ctx, s, trade, model.OutcomeTP3, pnl, tick.At); err != nil {
			logger.WithFields(map[string]interface{}{
				"trade_id": trade.TradeID,
			}).WithError(err).Error("TP3 close failed, trade stays tracked")
		}
		return
	}

	verdict := t.registry.ForStrategy(trade.RiskStrategy).Evaluate(trade, price, pnl, tick.At)
	if !verdict.Close {
		return
	}

	hit := price
	trade.SLHitPrice = &hit
	logger.WithFields(map[string]interface{}{
		"trade_id": trade.TradeID,
		"symbol":   s.symbol,
		"strategy": trade.RiskStrategy,
		"reason":   verdict.Reason,
		"pnl_pct":  pnl,
	}).Info("exit evaluator closed trade")

	if err := t.closeTrade(ctx, s, trade, stopOutcome(trade), pnl, tick.At); err != nil {
		logger.WithFields(map[string]interface{}{
			"trade_id": trade.TradeID,
		}).WithError(err).Error("stop close failed, trade stays tracked")
	}
}

// applyTakeProfits stamps each take-profit level the tick reaches. Hit
// metadata is write-once: a retrace and re-cross does not move the original
// stamp. Returns true when TP3 was reached, which ends the trade.
func (t *TradeTracker) applyTakeProfits(trade *model.Trade, price, pnlPct float64, at time.Time) bool {
	if !trade.TP1Hit && trade.TP1Pct > 0 && pnlPct >= trade.TP1Pct {
		stamp, hit, exc := at, price, trade.MaxFavorablePct
		trade.TP1Hit = true
		trade.TP1HitAt = &stamp
		trade.TP1HitPrice = &hit
		trade.TP1ExcursionAtHit = &exc
		logTPHit(trade, "tp1", pnlPct)
	}
	if !trade.TP2Hit && trade.TP2Pct > 0 && pnlPct >= trade.TP2Pct {
		stamp, hit, exc := at, price, trade.MaxFavorablePct
		trade.TP2Hit = true
		trade.TP2HitAt = &stamp
		trade.TP2HitPrice = &hit
		trade.TP2ExcursionAtHit = &exc
		logTPHit(trade, "tp2", pnlPct)
	}
	if !trade.TP3Hit && trade.TP3Pct > 0 && pnlPct >= trade.TP3Pct {
		stamp, hit := at, price
		trade.TP3Hit = true
		trade.TP3HitAt = &stamp
		trade.TP3HitPrice = &hit
		logTPHit(trade, "tp3", pnlPct)
		return true
	}
	return false
}

func logTPHit(trade *model.Trade, level string, pnlPct float64) {
	logger.WithFields(map[string]interface{}{
		"trade_id": trade.TradeID,
		"symbol":   trade.Symbol,
		"level":    level,
		"pnl_pct":  pnlPct,
	}).Info("take-profit level reached")
}

// stopOutcome grades an evaluator-triggered close by the highest take-profit
// level already banked: a stop after TP2 is still a winner.
func stopOutcome(trade *model.Trade) string {
	switch {
	case trade.TP2Hit:
		return model.OutcomeTP2
	case trade.TP1Hit:
		return model.OutcomeTP1
	default:
		return model.OutcomeSL
	}
}

// stateFor returns the per-instrument state, creating it on first use.
// States are never deleted: the set is bounded by distinct instruments seen,
// and keeping them avoids teardown races against concurrent adds.
func (t *TradeTracker) stateFor(symbol string) *symbolState {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[symbol]
	if !ok {
		s = &symbolState{
			symbol:  symbol,
			limiter: rate.NewLimiter(rate.Every(t.cfg.TickMinInterval), 1),
			batch:   newTickBatch(),
			trades:  make(map[string]*model.Trade),
		}
		t.states[symbol] = s
	}
	return s
}

// lookupState is stateFor without the create.
func (t *TradeTracker) lookupState(symbol string) *symbolState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[symbol]
}

func (t *TradeTracker) snapshotStates() []*symbolState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*symbolState, 0, len(t.states))
	for _, s := range t.states {
		out = append(out, s)
	}
	return out
}

// stampVolatility writes the instrument's stored volatility multiplier onto
// the trade so evaluators stay free of I/O. Missing rows degrade to 1.0.
func (t *TradeTracker) stampVolatility(ctx context.Context, trade *model.Trade) {
	if t.volRepo == nil {
		if trade.VolatilityMult <= 0 {
			trade.VolatilityMult = 1
		}
		return
	}
	trade.VolatilityMult = t.volRepo.MultiplierFor(ctx, trade.Symbol)
}

// validateTrade rejects trades the engine cannot price. It also backfills
// the trading symbol from the venue-qualified signal symbol when intake left
// it empty.
func validateTrade(trade *model.Trade) error {
	if trade.TradeID == "" {
		return fmt.Errorf("trade has no trade id")
	}
	if trade.Symbol == "" && trade.SignalSymbol != "" {
		trade.Symbol = mapper.NormalizeTradingSymbol(trade.SignalSymbol)
	}
	if trade.Symbol == "" {
		return fmt.Errorf("trade %s has no trading symbol", trade.TradeID)
	}
	if trade.EntryPrice <= 0 {
		return fmt.Errorf("trade %s has non-positive entry price %v", trade.TradeID, trade.EntryPrice)
	}
	if trade.Direction != model.TradeDirectionLong && trade.Direction != model.TradeDirectionShort {
		return fmt.Errorf("trade %s has unknown direction %q", trade.TradeID, trade.Direction)
	}
	return nil
}
