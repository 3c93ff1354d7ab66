package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradewatch/src/metrics"
	"tradewatch/src/model"
	"tradewatch/src/repository"
)

// ----- circuit breaker -----

// CircuitBreaker tracks trading health per (symbol, direction, source) key
// and walks each key through active -> paused -> {blacklisted | recovery ->
// active}. Evaluations for one key never interleave.
type CircuitBreaker struct {
	healthRepo *repository.AssetHealthRepository
	tradeRepo  *repository.TradeRepository
	cfg        Config

	mu sync.Mutex
}

func NewCircuitBreaker(healthRepo *repository.AssetHealthRepository, tradeRepo *repository.TradeRepository) *CircuitBreaker {
	return NewCircuitBreakerWithConfig(healthRepo, tradeRepo, GetConfig())
}

func NewCircuitBreakerWithConfig(
	healthRepo *repository.AssetHealthRepository,
	tradeRepo *repository.TradeRepository,
	cfg Config,
) *CircuitBreaker {
	return &CircuitBreaker{
		healthRepo: healthRepo,
		tradeRepo:  tradeRepo,
		cfg:        cfg,
	}
}

// trip is one breached condition. Conditions are evaluated in fixed
// priority; the first breach wins and carries the reason.
type trip struct {
	condition string
	reason    string
	blacklist bool
}

// evaluateConditions walks the enforcement ladder in the fixed order:
// consecutive losses, losses-in-10, drawdown, 10-trade PnL, window win
// rate, hourly loss, daily loss.
func evaluateConditions(p ProfileThresholds, m windowMetrics) *trip {
	if m.consecLosses >= p.MaxConsecutiveLosses {
		return &trip{
			condition: "consecutive_losses",
			reason:    fmt.Sprintf("%d consecutive losses (limit %d)", m.consecLosses, p.MaxConsecutiveLosses),
		}
	}
	if m.lossesIn10 >= p.MaxLossesIn10 {
		return &trip{
			condition: "losses_in_10",
			reason:    fmt.Sprintf("%d losses within last 10 trades (limit %d)", m.lossesIn10, p.MaxLossesIn10),
			blacklist: p.BlacklistOnLossesIn10,
		}
	}
	if m.maxDrawdownPct >= p.MaxDrawdownPct {
		return &trip{
			condition: "max_drawdown",
			reason:    fmt.Sprintf("drawdown %.2f%% exceeds limit %.2f%%", m.maxDrawdownPct, p.MaxDrawdownPct),
		}
	}
	if m.pnl10 <= p.Min10TradePnlPct {
		return &trip{
			condition: "pnl_10",
			reason:    fmt.Sprintf("10-trade PnL %.2f%% below floor %.2f%%", m.pnl10, p.Min10TradePnlPct),
		}
	}
	if m.winRate < p.MinWinRatePct {
		return &trip{
			condition: "win_rate",
			reason:    fmt.Sprintf("win rate %.1f%% below %.1f%% floor", m.winRate, p.MinWinRatePct),
		}
	}
	if m.hourlyPnl <= -p.MaxHourlyLossPct {
		return &trip{
			condition: "hourly_loss",
			reason:    fmt.Sprintf("hourly loss %.2f%% exceeds cap %.2f%%", -m.hourlyPnl, p.MaxHourlyLossPct),
		}
	}
	if m.dailyPnl <= -p.MaxDailyLossPct {
		return &trip{
			condition: "daily_loss",
			reason:    fmt.Sprintf("daily loss %.2f%% exceeds cap %.2f%%", -m.dailyPnl, p.MaxDailyLossPct),
		}
	}
	return nil
}

// RecordTradeResult runs one full breaker evaluation for the closed trade's
// key: refresh the rolling window, reclassify the profile, advance recovery,
// then enforce the profile's conditions. Errors here must never block trade
// closing; callers log and continue.
func (b *CircuitBreaker) RecordTradeResult(ctx context.Context, trade *model.Trade) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()

	health, err := b.healthRepo.FindByKey(ctx, trade.Symbol, trade.Direction, trade.Source)
	if err != nil {
		return fmt.Errorf("asset health lookup failed: %w", err)
	}
	if health == nil {
		health = &model.AssetHealth{
			Symbol:      trade.Symbol,
			Direction:   trade.Direction,
			Source:      trade.Source,
			Status:      model.AssetStatusActive,
			RiskProfile: model.RiskProfileStandard,
		}
	}

	maybeEnterRecovery(health, now)

	window, err := b.tradeRepo.FindCompletedForKey(ctx, trade.Symbol, trade.Direction, trade.Source, b.cfg.WindowSize)
	if err != nil {
		return fmt.Errorf("completed-trade window load failed: %w", err)
	}
	m := computeWindowMetrics(window, now)

	health.SampleSize = m.sampleSize
	health.WinRate20 = m.winRate
	health.AvgRiskReward = m.avgRiskReward
	health.ConsecutiveLosses = m.consecLosses
	health.RecentPnlPct = m.pnl10
	health.MaxDrawdownPct = m.maxDrawdownPct
	health.LastTradeAt = &now

	if m.sampleSize >= b.cfg.MinSample {
		health.RiskProfile = classifyProfile(m)
	}
	profile := ProfileFor(health.RiskProfile)

	exitedRecovery := false
	if health.Status == model.AssetStatusRecovery {
		exitedRecovery = b.advanceRecovery(health, profile, finalPnl(trade))
	}

	// A key that has just earned its way back to active is not re-judged on
	// the same trade that completed its recovery.
	enforceable := (health.Status == model.AssetStatusActive || health.Status == model.AssetStatusRecovery) &&
		!exitedRecovery
	if enforceable && m.sampleSize >= b.cfg.MinSample {
		if t := evaluateConditions(profile, m); t != nil {
			if t.blacklist {
				b.blacklist(health, t.reason, now)
			} else {
				b.pause(health, profile, t.reason, now)
			}
			metrics.RecordBreakerTrip(health.Symbol, health.Direction, health.Status, t.condition)
		}
	}

	if err := b.healthRepo.Upsert(ctx, health); err != nil {
		return fmt.Errorf("asset health upsert failed: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"symbol":    health.Symbol,
		"direction": health.Direction,
		"source":    health.Source,
		"status":    health.Status,
		"profile":   health.RiskProfile,
		"win_rate":  fmt.Sprintf("%.1f", health.WinRate20),
		"sample":    health.SampleSize,
	}).Debug("breaker evaluation complete")
	return nil
}

// CheckAssetStatus answers the intake query: may this key trade right now.
// Keys with no history are active. Pause windows that have elapsed move the
// key into recovery here, lazily.
func (b *CircuitBreaker) CheckAssetStatus(ctx context.Context, symbol, direction, source string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	health, err := b.healthRepo.FindByKey(ctx, symbol, direction, source)
	if err != nil {
		return "", fmt.Errorf("asset health lookup failed: %w", err)
	}
	if health == nil {
		return model.AssetStatusActive, nil
	}

	if maybeEnterRecovery(health, time.Now().UTC()) {
		if err := b.healthRepo.Upsert(ctx, health); err != nil {
			return "", fmt.Errorf("asset health upsert failed: %w", err)
		}
	}
	return health.Status, nil
}

// maybeEnterRecovery moves a paused key into recovery once its pause window
// has elapsed. Returns true when the transition happened.
func maybeEnterRecovery(health *model.AssetHealth, now time.Time) bool {
	if health.Status != model.AssetStatusPaused {
		return false
	}
	if health.ResumeAt == nil || now.Before(*health.ResumeAt) {
		return false
	}

	health.Status = model.AssetStatusRecovery
	health.RecoveryStartAt = &now
	health.RecoveryTrades = 0
	health.RecoveryWins = 0
	health.RecoveryConsecWins = 0
	health.RecoveryPnlPct = 0

	logger.WithFields(map[string]interface{}{
		"symbol":    health.Symbol,
		"direction": health.Direction,
		"source":    health.Source,
	}).Info("pause window elapsed, key entering recovery")
	return true
}

// advanceRecovery books one completed trade against the recovery criteria.
// The first satisfied criterion returns the key to active; the return value
// reports whether that happened.
func (b *CircuitBreaker) advanceRecovery(health *model.AssetHealth, p ProfileThresholds, pnl float64) bool {
	health.RecoveryTrades++
	health.RecoveryPnlPct += pnl
	if pnl > 0 {
		health.RecoveryWins++
		health.RecoveryConsecWins++
	} else {
		health.RecoveryConsecWins = 0
	}

	recovered := false
	switch {
	case health.RecoveryConsecWins >= p.RecoveryConsecWins:
		recovered = true
	case health.RecoveryTrades >= 10 &&
		float64(health.RecoveryWins)/float64(health.RecoveryTrades)*100 >= p.RecoveryWinRate10:
		recovered = true
	case health.RecoveryPnlPct >= p.RecoveryPnlPct:
		recovered = true
	}
	if !recovered {
		return false
	}

	health.Status = model.AssetStatusActive
	health.PausedAt = nil
	health.PauseReason = ""
	health.ResumeAt = nil
	health.RecoveryStartAt = nil
	health.RecoveryTrades = 0
	health.RecoveryWins = 0
	health.RecoveryConsecWins = 0
	health.RecoveryPnlPct = 0

	logger.WithFields(map[string]interface{}{
		"symbol":    health.Symbol,
		"direction": health.Direction,
		"source":    health.Source,
	}).Info("recovery complete, key active again")
	return true
}

// pause trips the key. Exceeding the profile's pause allowance escalates to
// a blacklist instead.
func (b *CircuitBreaker) pause(health *model.AssetHealth, p ProfileThresholds, reason string, now time.Time) {
	health.PauseCount++
	if health.PauseCount > p.MaxPauses {
		b.blacklist(health, fmt.Sprintf("pause limit %d exceeded: %s", p.MaxPauses, reason), now)
		return
	}

	health.Status = model.AssetStatusPaused
	health.PausedAt = &now
	health.PauseReason = reason
	resume := now.Add(p.PauseDuration)
	health.ResumeAt = &resume
	health.RecoveryStartAt = nil
	health.RecoveryTrades = 0
	health.RecoveryWins = 0
	health.RecoveryConsecWins = 0
	health.RecoveryPnlPct = 0

	logger.WithFields(map[string]interface{}{
		"symbol":    health.Symbol,
		"direction": health.Direction,
		"source":    health.Source,
		"reason":    reason,
		"resume_at": resume.Format(time.RFC3339),
		"pauses":    health.PauseCount,
	}).Warn("trading paused for key")
}

// blacklist is terminal pending manual review.
func (b *CircuitBreaker) blacklist(health *model.AssetHealth, reason string, now time.Time) {
	health.Status = model.AssetStatusBlacklisted
	health.BlacklistedAt = &now
	health.BlacklistReason = reason
	health.ResumeAt = nil

	logger.WithFields(map[string]interface{}{
		"symbol":    health.Symbol,
		"direction": health.Direction,
		"source":    health.Source,
		"reason":    reason,
	}).Error("key blacklisted")
}
