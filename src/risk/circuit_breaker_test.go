package risk

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tradewatch/src/model"
	"tradewatch/src/repository"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// helper to create a new in memory gorm DB and migrate schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in memory db: %v", err)
	}

	if err := db.AutoMigrate(&model.Trade{}, &model.AssetHealth{}); err != nil {
		t.Fatalf("failed to automigrate: %v", err)
	}

	return db
}

func newTestBreaker(t *testing.T) (*CircuitBreaker, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	breaker := NewCircuitBreakerWithConfig(
		repository.NewAssetHealthRepository().WithDB(db),
		repository.NewTradeRepository().WithDB(db),
		Config{WindowSize: 20, MinSample: 10},
	)
	return breaker, db
}

// seedWindow inserts completed trades for one key. pnls are in chronological
// order, oldest first; rows are closed one minute apart ending at lastClosed.
func seedWindow(t *testing.T, db *gorm.DB, symbol, direction, source string, pnls []float64, lastClosed time.Time) []model.Trade {
	t.Helper()

	trades := make([]model.Trade, 0, len(pnls))
	for i, pnl := range pnls {
		p := pnl
		closed := lastClosed.Add(-time.Duration(len(pnls)-1-i) * time.Minute)
		outcome := model.OutcomeSL
		if p > 0 {
			outcome = model.OutcomeTP1
		}
		trades = append(trades, model.Trade{
			TradeID:     fmt.Sprintf("%s-%s-%03d", symbol, direction, i),
			Symbol:      symbol,
			Direction:   direction,
			Source:      source,
			EntryPrice:  100,
			EntryTime:   closed.Add(-30 * time.Minute),
			Status:      model.TradeStatusCompleted,
			Outcome:     outcome,
			FinalPnlPct: &p,
			ClosedAt:    &closed,
		})
	}

	if err := db.Create(&trades).Error; err != nil {
		t.Fatalf("failed to seed trades: %v", err)
	}
	return trades
}

func findHealth(t *testing.T, db *gorm.DB, symbol, direction, source string) *model.AssetHealth {
	t.Helper()

	health, err := repository.NewAssetHealthRepository().WithDB(db).
		FindByKey(context.Background(), symbol, direction, source)
	if err != nil {
		t.Fatalf("FindByKey failed: %v", err)
	}
	if health == nil {
		t.Fatalf("expected a health record for %s/%s/%s", symbol, direction, source)
	}
	return health
}

// A 35% win rate over a full window on an otherwise unremarkable key must
// pause it, and the stated reason must be the win rate.
func TestRecordTradeResult_PausesLowWinRateKey(t *testing.T) {
	breaker, db := newTestBreaker(t)
	ctx := context.Background()

	w, l := 0.5, -0.5
	pnls := []float64{
		l, l, w, l, l, l, w, l, l, l,
		l, w, l, w, l, w, l, w, l, w,
	}
	trades := seedWindow(t, db, "BTCUSDT", model.TradeDirectionLong, "scanner-a",
		pnls, time.Now().UTC().Add(-2*time.Hour))

	if err := breaker.RecordTradeResult(ctx, &trades[len(trades)-1]); err != nil {
		t.Fatalf("RecordTradeResult failed: %v", err)
	}

	health := findHealth(t, db, "BTCUSDT", model.TradeDirectionLong, "scanner-a")
	if health.Status != model.AssetStatusPaused {
		t.Fatalf("expected status paused, got %q (reason %q)", health.Status, health.PauseReason)
	}
	if !strings.Contains(health.PauseReason, "win rate") {
		t.Fatalf("expected pause reason to name the win rate, got %q", health.PauseReason)
	}
	if health.RiskProfile != model.RiskProfileStandard {
		t.Fatalf("expected STANDARD profile, got %q", health.RiskProfile)
	}
	if health.PauseCount != 1 {
		t.Fatalf("expected pause count 1, got %d", health.PauseCount)
	}
	if health.SampleSize != 20 || math.Abs(health.WinRate20-35) > 1e-9 {
		t.Fatalf("unexpected window stats: sample=%d winRate=%.2f", health.SampleSize, health.WinRate20)
	}
	if health.ResumeAt == nil || !health.ResumeAt.After(time.Now().UTC().Add(3*time.Hour)) {
		t.Fatalf("expected resume_at roughly four hours out, got %v", health.ResumeAt)
	}
}

// Five losses inside the last ten trades on a HIGH_WR key skips the pause and
// blacklists directly.
func TestRecordTradeResult_BlacklistsHighWRKeyOnLossCluster(t *testing.T) {
	breaker, db := newTestBreaker(t)
	ctx := context.Background()

	w, l := 2.0, -1.0
	pnls := []float64{
		w, w, w, w, l, w, w, w, l, w,
		w, l, w, l, w, l, w, l, w, l,
	}
	trades := seedWindow(t, db, "ETHUSDT", model.TradeDirectionLong, "scanner-a",
		pnls, time.Now().UTC().Add(-2*time.Hour))

	if err := breaker.RecordTradeResult(ctx, &trades[len(trades)-1]); err != nil {
		t.Fatalf("RecordTradeResult failed: %v", err)
	}

	health := findHealth(t, db, "ETHUSDT", model.TradeDirectionLong, "scanner-a")
	if health.RiskProfile != model.RiskProfileHighWR {
		t.Fatalf("expected HIGH_WR classification, got %q", health.RiskProfile)
	}
	if health.Status != model.AssetStatusBlacklisted {
		t.Fatalf("expected status blacklisted, got %q", health.Status)
	}
	if health.BlacklistedAt == nil || !strings.Contains(health.BlacklistReason, "losses") {
		t.Fatalf("unexpected blacklist record: at=%v reason=%q", health.BlacklistedAt, health.BlacklistReason)
	}
	if health.PauseCount != 0 {
		t.Fatalf("direct blacklist must not consume a pause, got count %d", health.PauseCount)
	}
}

// Below the minimum sample the breaker records metrics but never enforces.
func TestRecordTradeResult_ObservesOnlyBelowMinSample(t *testing.T) {
	breaker, db := newTestBreaker(t)
	ctx := context.Background()

	pnls := []float64{-2, -2, -2, -2, -2}
	trades := seedWindow(t, db, "SOLUSDT", model.TradeDirectionShort, "scanner-a",
		pnls, time.Now().UTC().Add(-26*time.Hour))

	if err := breaker.RecordTradeResult(ctx, &trades[len(trades)-1]); err != nil {
		t.Fatalf("RecordTradeResult failed: %v", err)
	}

	health := findHealth(t, db, "SOLUSDT", model.TradeDirectionShort, "scanner-a")
	if health.Status != model.AssetStatusActive {
		t.Fatalf("expected active below min sample, got %q", health.Status)
	}
	if health.SampleSize != 5 || health.ConsecutiveLosses != 5 {
		t.Fatalf("rolling metrics not recorded: %+v", health)
	}
}

// A key that has used up its pause allowance is blacklisted on the next trip.
func TestRecordTradeResult_EscalatesToBlacklistPastPauseLimit(t *testing.T) {
	breaker, db := newTestBreaker(t)
	ctx := context.Background()

	healthRepo := repository.NewAssetHealthRepository().WithDB(db)
	if err := healthRepo.Upsert(ctx, &model.AssetHealth{
		Symbol:      "ADAUSDT",
		Direction:   model.TradeDirectionLong,
		Source:      "scanner-a",
		Status:      model.AssetStatusActive,
		RiskProfile: model.RiskProfileStandard,
		PauseCount:  2,
	}); err != nil {
		t.Fatalf("failed to seed health: %v", err)
	}

	pnls := []float64{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1}
	trades := seedWindow(t, db, "ADAUSDT", model.TradeDirectionLong, "scanner-a",
		pnls, time.Now().UTC().Add(-2*time.Hour))

	if err := breaker.RecordTradeResult(ctx, &trades[len(trades)-1]); err != nil {
		t.Fatalf("RecordTradeResult failed: %v", err)
	}

	health := findHealth(t, db, "ADAUSDT", model.TradeDirectionLong, "scanner-a")
	if health.Status != model.AssetStatusBlacklisted {
		t.Fatalf("expected escalation to blacklist, got %q", health.Status)
	}
	if !strings.Contains(health.BlacklistReason, "pause limit") {
		t.Fatalf("expected pause-limit reason, got %q", health.BlacklistReason)
	}
}

// An elapsed pause window moves the key into recovery the next time its
// status is asked for, and the transition is persisted.
func TestCheckAssetStatus_LazyRecoveryTransition(t *testing.T) {
	breaker, db := newTestBreaker(t)
	ctx := context.Background()

	status, err := breaker.CheckAssetStatus(ctx, "NOHISTORY", model.TradeDirectionLong, "scanner-a")
	if err != nil {
		t.Fatalf("CheckAssetStatus failed: %v", err)
	}
	if status != model.AssetStatusActive {
		t.Fatalf("key without history must be active, got %q", status)
	}

	pausedAt := time.Now().UTC().Add(-5 * time.Hour)
	resumeAt := time.Now().UTC().Add(-time.Minute)
	healthRepo := repository.NewAssetHealthRepository().WithDB(db)
	if err := healthRepo.Upsert(ctx, &model.AssetHealth{
		Symbol:      "XRPUSDT",
		Direction:   model.TradeDirectionShort,
		Source:      "scanner-a",
		Status:      model.AssetStatusPaused,
		RiskProfile: model.RiskProfileStandard,
		PauseCount:  1,
		PausedAt:    &pausedAt,
		PauseReason: "win rate 35.0% below 40.0% floor",
		ResumeAt:    &resumeAt,
	}); err != nil {
		t.Fatalf("failed to seed health: %v", err)
	}

	status, err = breaker.CheckAssetStatus(ctx, "XRPUSDT", model.TradeDirectionShort, "scanner-a")
	if err != nil {
		t.Fatalf("CheckAssetStatus failed: %v", err)
	}
	if status != model.AssetStatusRecovery {
		t.Fatalf("expected recovery after pause elapsed, got %q", status)
	}

	health := findHealth(t, db, "XRPUSDT", model.TradeDirectionShort, "scanner-a")
	if health.Status != model.AssetStatusRecovery {
		t.Fatalf("transition was not persisted, status %q", health.Status)
	}
	if health.RecoveryStartAt == nil || health.RecoveryTrades != 0 || health.RecoveryConsecWins != 0 {
		t.Fatalf("recovery counters not reset: %+v", health)
	}
}

// The winning trade that completes the consecutive-win requirement returns
// the key to active and keeps the pause count.
func TestRecordTradeResult_RecoveryExitOnConsecutiveWins(t *testing.T) {
	breaker, db := newTestBreaker(t)
	ctx := context.Background()

	started := time.Now().UTC().Add(-3 * time.Hour)
	healthRepo := repository.NewAssetHealthRepository().WithDB(db)
	if err := healthRepo.Upsert(ctx, &model.AssetHealth{
		Symbol:             "DOGEUSDT",
		Direction:          model.TradeDirectionLong,
		Source:             "scanner-a",
		Status:             model.AssetStatusRecovery,
		RiskProfile:        model.RiskProfileStandard,
		PauseCount:         1,
		RecoveryStartAt:    &started,
		RecoveryTrades:     4,
		RecoveryWins:       2,
		RecoveryConsecWins: 2,
		RecoveryPnlPct:     0.3,
	}); err != nil {
		t.Fatalf("failed to seed health: %v", err)
	}

	// 7 losses, 5 wins; low reward keeps the classification at STANDARD and
	// the most recent trade is the recovery-completing win.
	w, l := 1.0, -1.5
	pnls := []float64{w, l, w, l, w, l, w, l, w, l, w, w}
	trades := seedWindow(t, db, "DOGEUSDT", model.TradeDirectionLong, "scanner-a",
		pnls, time.Now().UTC().Add(-2*time.Hour))

	if err := breaker.RecordTradeResult(ctx, &trades[len(trades)-1]); err != nil {
		t.Fatalf("RecordTradeResult failed: %v", err)
	}

	health := findHealth(t, db, "DOGEUSDT", model.TradeDirectionLong, "scanner-a")
	if health.Status != model.AssetStatusActive {
		t.Fatalf("expected active after third consecutive win, got %q (reason %q)",
			health.Status, health.PauseReason)
	}
	if health.PauseCount != 1 {
		t.Fatalf("pause count must survive recovery, got %d", health.PauseCount)
	}
	if health.RecoveryTrades != 0 || health.RecoveryConsecWins != 0 || health.RecoveryPnlPct != 0 {
		t.Fatalf("recovery counters not cleared: %+v", health)
	}
	if health.PausedAt != nil || health.ResumeAt != nil || health.PauseReason != "" {
		t.Fatalf("pause bookkeeping not cleared: %+v", health)
	}
}

// Conditions stay armed during recovery: a key that keeps losing is paused
// again rather than riding out its recovery.
func TestRecordTradeResult_RetripDuringRecoveryPausesAgain(t *testing.T) {
	breaker, db := newTestBreaker(t)
	ctx := context.Background()

	started := time.Now().UTC().Add(-time.Hour)
	healthRepo := repository.NewAssetHealthRepository().WithDB(db)
	if err := healthRepo.Upsert(ctx, &model.AssetHealth{
		Symbol:          "LTCUSDT",
		Direction:       model.TradeDirectionShort,
		Source:          "scanner-a",
		Status:          model.AssetStatusRecovery,
		RiskProfile:     model.RiskProfileStandard,
		PauseCount:      1,
		RecoveryStartAt: &started,
		RecoveryTrades:  2,
	}); err != nil {
		t.Fatalf("failed to seed health: %v", err)
	}

	pnls := []float64{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1}
	trades := seedWindow(t, db, "LTCUSDT", model.TradeDirectionShort, "scanner-a",
		pnls, time.Now().UTC().Add(-26*time.Hour))

	if err := breaker.RecordTradeResult(ctx, &trades[len(trades)-1]); err != nil {
		t.Fatalf("RecordTradeResult failed: %v", err)
	}

	health := findHealth(t, db, "LTCUSDT", model.TradeDirectionShort, "scanner-a")
	if health.Status != model.AssetStatusPaused {
		t.Fatalf("expected re-trip to pause, got %q", health.Status)
	}
	if health.PauseCount != 2 {
		t.Fatalf("expected pause count 2, got %d", health.PauseCount)
	}
	if !strings.Contains(health.PauseReason, "consecutive") {
		t.Fatalf("expected consecutive-loss reason, got %q", health.PauseReason)
	}
	if health.RecoveryStartAt != nil || health.RecoveryTrades != 0 {
		t.Fatalf("recovery state must reset on re-pause: %+v", health)
	}
}

// A blacklist is terminal: metrics keep updating but the status never moves.
func TestRecordTradeResult_BlacklistedKeyStaysBlacklisted(t *testing.T) {
	breaker, db := newTestBreaker(t)
	ctx := context.Background()

	blacklistedAt := time.Now().UTC().Add(-48 * time.Hour)
	healthRepo := repository.NewAssetHealthRepository().WithDB(db)
	if err := healthRepo.Upsert(ctx, &model.AssetHealth{
		Symbol:          "BNBUSDT",
		Direction:       model.TradeDirectionLong,
		Source:          "scanner-a",
		Status:          model.AssetStatusBlacklisted,
		RiskProfile:     model.RiskProfileHighWR,
		BlacklistedAt:   &blacklistedAt,
		BlacklistReason: "5 losses within last 10 trades (limit 5)",
	}); err != nil {
		t.Fatalf("failed to seed health: %v", err)
	}

	w := 2.0
	pnls := []float64{w, w, w, w, w, w, w, w, w, w, w, w}
	trades := seedWindow(t, db, "BNBUSDT", model.TradeDirectionLong, "scanner-a",
		pnls, time.Now().UTC().Add(-2*time.Hour))

	if err := breaker.RecordTradeResult(ctx, &trades[len(trades)-1]); err != nil {
		t.Fatalf("RecordTradeResult failed: %v", err)
	}

	health := findHealth(t, db, "BNBUSDT", model.TradeDirectionLong, "scanner-a")
	if health.Status != model.AssetStatusBlacklisted {
		t.Fatalf("blacklist must be terminal, got %q", health.Status)
	}
	if health.SampleSize != 12 || health.LastTradeAt == nil {
		t.Fatalf("rolling metrics must still update: %+v", health)
	}
}

// Full health state survives a write/read cycle, and the upsert keeps one
// row per key.
func TestAssetHealthRoundTrip(t *testing.T) {
	_, db := newTestBreaker(t)
	ctx := context.Background()
	healthRepo := repository.NewAssetHealthRepository().WithDB(db)

	now := time.Now().UTC().Truncate(time.Second)
	pausedAt := now.Add(-2 * time.Hour)
	resumeAt := now.Add(2 * time.Hour)
	recoveryAt := now.Add(-time.Hour)
	lastTrade := now.Add(-10 * time.Minute)

	original := &model.AssetHealth{
		Symbol:             "AVAXUSDT",
		Direction:          model.TradeDirectionShort,
		Source:             "scanner-b",
		Status:             model.AssetStatusRecovery,
		RiskProfile:        model.RiskProfileModerate,
		SampleSize:         20,
		WinRate20:          52.5,
		AvgRiskReward:      1.4,
		ConsecutiveLosses:  1,
		RecentPnlPct:       -2.25,
		MaxDrawdownPct:     6.75,
		PauseCount:         1,
		PausedAt:           &pausedAt,
		PauseReason:        "drawdown 12.10% exceeds limit 12.00%",
		ResumeAt:           &resumeAt,
		RecoveryStartAt:    &recoveryAt,
		RecoveryTrades:     3,
		RecoveryWins:       2,
		RecoveryConsecWins: 1,
		RecoveryPnlPct:     0.8,
		LastTradeAt:        &lastTrade,
	}
	if err := healthRepo.Upsert(ctx, original); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	loaded := findHealth(t, db, "AVAXUSDT", model.TradeDirectionShort, "scanner-b")
	if loaded.Status != original.Status || loaded.RiskProfile != original.RiskProfile {
		t.Fatalf("status fields did not round-trip: %+v", loaded)
	}
	if loaded.SampleSize != 20 || loaded.WinRate20 != 52.5 || loaded.AvgRiskReward != 1.4 ||
		loaded.ConsecutiveLosses != 1 || loaded.RecentPnlPct != -2.25 || loaded.MaxDrawdownPct != 6.75 {
		t.Fatalf("rolling metrics did not round-trip: %+v", loaded)
	}
	if loaded.PauseCount != 1 || loaded.PauseReason != original.PauseReason {
		t.Fatalf("pause fields did not round-trip: %+v", loaded)
	}
	if loaded.PausedAt == nil || !loaded.PausedAt.Equal(pausedAt) ||
		loaded.ResumeAt == nil || !loaded.ResumeAt.Equal(resumeAt) ||
		loaded.RecoveryStartAt == nil || !loaded.RecoveryStartAt.Equal(recoveryAt) ||
		loaded.LastTradeAt == nil || !loaded.LastTradeAt.Equal(lastTrade) {
		t.Fatalf("timestamps did not round-trip: %+v", loaded)
	}
	if loaded.RecoveryTrades != 3 || loaded.RecoveryWins != 2 ||
		loaded.RecoveryConsecWins != 1 || loaded.RecoveryPnlPct != 0.8 {
		t.Fatalf("recovery counters did not round-trip: %+v", loaded)
	}

	loaded.Status = model.AssetStatusActive
	loaded.PauseReason = ""
	if err := healthRepo.Upsert(ctx, loaded); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	var count int64
	if err := db.Model(&model.AssetHealth{}).
		Where("symbol = ? AND direction = ? AND source = ?", "AVAXUSDT", model.TradeDirectionShort, "scanner-b").
		Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("upsert must keep one row per key, found %d", count)
	}
	if again := findHealth(t, db, "AVAXUSDT", model.TradeDirectionShort, "scanner-b"); again.Status != model.AssetStatusActive {
		t.Fatalf("second upsert did not apply, status %q", again.Status)
	}
}

func healthyMetrics() windowMetrics {
	return windowMetrics{sampleSize: 20, winRate: 50, avgRiskReward: 1}
}

func TestEvaluateConditions_PriorityOrder(t *testing.T) {
	p := ProfileFor(model.RiskProfileStandard)

	cases := []struct {
		name      string
		mutate    func(*windowMetrics)
		want      string
		wantBlack bool
	}{
		{
			name: "consecutive losses first",
			mutate: func(m *windowMetrics) {
				m.consecLosses = 5
				m.lossesIn10 = 7
				m.maxDrawdownPct = 20
				m.winRate = 10
			},
			want: "consecutive_losses",
		},
		{
			name: "losses in 10 before drawdown",
			mutate: func(m *windowMetrics) {
				m.lossesIn10 = 7
				m.maxDrawdownPct = 20
				m.winRate = 10
			},
			want: "losses_in_10",
		},
		{
			name: "drawdown before pnl floor",
			mutate: func(m *windowMetrics) {
				m.maxDrawdownPct = 11
				m.pnl10 = -9
			},
			want: "max_drawdown",
		},
		{
			name: "pnl floor before win rate",
			mutate: func(m *windowMetrics) {
				m.pnl10 = -9
				m.winRate = 10
			},
			want: "pnl_10",
		},
		{
			name: "win rate before hourly loss",
			mutate: func(m *windowMetrics) {
				m.winRate = 39.9
				m.hourlyPnl = -6
			},
			want: "win_rate",
		},
		{
			name: "hourly before daily",
			mutate: func(m *windowMetrics) {
				m.hourlyPnl = -5
				m.dailyPnl = -9
			},
			want: "hourly_loss",
		},
		{
			name: "daily loss last",
			mutate: func(m *windowMetrics) {
				m.dailyPnl = -8
			},
			want: "daily_loss",
		},
		{
			name:   "healthy window trips nothing",
			mutate: func(m *windowMetrics) {},
			want:   "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := healthyMetrics()
			tc.mutate(&m)

			got := evaluateConditions(p, m)
			if tc.want == "" {
				if got != nil {
					t.Fatalf("expected no trip, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected trip %q, got none", tc.want)
			}
			if got.condition != tc.want {
				t.Fatalf("expected condition %q, got %q", tc.want, got.condition)
			}
			if got.blacklist != tc.wantBlack {
				t.Fatalf("condition %q: blacklist=%v, want %v", got.condition, got.blacklist, tc.wantBlack)
			}
		})
	}
}

func TestEvaluateConditions_HighWRLossClusterBlacklists(t *testing.T) {
	p := ProfileFor(model.RiskProfileHighWR)
	m := healthyMetrics()
	m.winRate = 66
	m.lossesIn10 = 5

	got := evaluateConditions(p, m)
	if got == nil || got.condition != "losses_in_10" || !got.blacklist {
		t.Fatalf("expected direct blacklist for HIGH_WR loss cluster, got %+v", got)
	}
}

func TestClassifyProfile(t *testing.T) {
	cases := []struct {
		winRate float64
		rr      float64
		want    string
	}{
		{65, 1, model.RiskProfileHighWR},
		{72, 2.5, model.RiskProfileHighWR},
		{64.9, 1.5, model.RiskProfileModerate},
		{50, 1, model.RiskProfileModerate},
		{55, 2.5, model.RiskProfileStandard},
		{40, 2.5, model.RiskProfileLowWR},
		{49.9, 2, model.RiskProfileLowWR},
		{40, 1, model.RiskProfileStandard},
		{70, 0.5, model.RiskProfileStandard},
	}

	for _, tc := range cases {
		got := classifyProfile(windowMetrics{winRate: tc.winRate, avgRiskReward: tc.rr})
		if got != tc.want {
			t.Errorf("classifyProfile(wr=%.1f rr=%.1f) = %q, want %q", tc.winRate, tc.rr, got, tc.want)
		}
	}
}

func TestComputeWindowMetrics(t *testing.T) {
	now := time.Now().UTC()
	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}
	fp := func(v float64) *float64 { return &v }

	// Most recent first, matching repository ordering.
	trades := []model.Trade{
		{FinalPnlPct: fp(-1), ClosedAt: ago(30 * time.Minute)},
		{FinalPnlPct: fp(-2), ClosedAt: ago(2 * time.Hour)},
		{FinalPnlPct: fp(3), ClosedAt: ago(30 * time.Hour)},
		{FinalPnlPct: fp(1), ClosedAt: ago(31 * time.Hour)},
		{FinalPnlPct: fp(-1), ClosedAt: ago(32 * time.Hour)},
		{FinalPnlPct: fp(2), ClosedAt: ago(33 * time.Hour)},
	}

	m := computeWindowMetrics(trades, now)

	if m.sampleSize != 6 {
		t.Fatalf("sampleSize = %d, want 6", m.sampleSize)
	}
	if m.winRate != 50 {
		t.Fatalf("winRate = %.2f, want 50", m.winRate)
	}
	if math.Abs(m.avgRiskReward-1.5) > 1e-9 {
		t.Fatalf("avgRiskReward = %.4f, want 1.5", m.avgRiskReward)
	}
	if m.consecLosses != 2 || m.consecWins != 0 {
		t.Fatalf("streaks = %d losses / %d wins, want 2 / 0", m.consecLosses, m.consecWins)
	}
	if m.lossesIn10 != 3 {
		t.Fatalf("lossesIn10 = %d, want 3", m.lossesIn10)
	}
	if math.Abs(m.pnl10-2) > 1e-9 || math.Abs(m.pnl20-2) > 1e-9 {
		t.Fatalf("pnl10 = %.2f pnl20 = %.2f, want 2 / 2", m.pnl10, m.pnl20)
	}
	if math.Abs(m.hourlyPnl-(-1)) > 1e-9 {
		t.Fatalf("hourlyPnl = %.2f, want -1", m.hourlyPnl)
	}
	if math.Abs(m.dailyPnl-(-3)) > 1e-9 {
		t.Fatalf("dailyPnl = %.2f, want -3", m.dailyPnl)
	}
	if math.Abs(m.maxDrawdownPct-3) > 1e-9 {
		t.Fatalf("maxDrawdownPct = %.2f, want 3", m.maxDrawdownPct)
	}
}

func TestComputeWindowMetrics_AllWinsCapsRiskReward(t *testing.T) {
	fp := func(v float64) *float64 { return &v }
	trades := []model.Trade{
		{FinalPnlPct: fp(1)},
		{FinalPnlPct: fp(2)},
	}

	m := computeWindowMetrics(trades, time.Now().UTC())
	if m.avgRiskReward != 99 {
		t.Fatalf("avgRiskReward = %.2f, want capped 99", m.avgRiskReward)
	}
	if m.consecWins != 2 || m.consecLosses != 0 {
		t.Fatalf("streaks = %d wins / %d losses, want 2 / 0", m.consecWins, m.consecLosses)
	}
}

func TestComputeWindowMetrics_Empty(t *testing.T) {
	m := computeWindowMetrics(nil, time.Now().UTC())
	if m.sampleSize != 0 || m.winRate != 0 || m.avgRiskReward != 0 {
		t.Fatalf("empty window must zero out, got %+v", m)
	}
}

func TestMultiplierFor(t *testing.T) {
	const minSample = 10

	cases := []struct {
		name   string
		health model.AssetHealth
		want   float64
	}{
		{
			name:   "paused is zero",
			health: model.AssetHealth{Status: model.AssetStatusPaused, RiskProfile: model.RiskProfileStandard},
			want:   0,
		},
		{
			name:   "blacklisted is zero",
			health: model.AssetHealth{Status: model.AssetStatusBlacklisted, RiskProfile: model.RiskProfileHighWR},
			want:   0,
		},
		{
			name: "clean standard key below sample gets base only",
			health: model.AssetHealth{
				Status: model.AssetStatusActive, RiskProfile: model.RiskProfileStandard,
				SampleSize: 5,
			},
			want: 0.8,
		},
		{
			name: "kelly boost clamps at full size",
			health: model.AssetHealth{
				Status: model.AssetStatusActive, RiskProfile: model.RiskProfileStandard,
				SampleSize: 20, WinRate20: 60, AvgRiskReward: 2,
			},
			want: 1.0,
		},
		{
			name: "recovery halves sizing",
			health: model.AssetHealth{
				Status: model.AssetStatusRecovery, RiskProfile: model.RiskProfileStandard,
				SampleSize: 5,
			},
			want: 0.4,
		},
		{
			name: "consecutive losses shave ten percent each past the first",
			health: model.AssetHealth{
				Status: model.AssetStatusActive, RiskProfile: model.RiskProfileStandard,
				SampleSize: 5, ConsecutiveLosses: 3,
			},
			want: 0.64,
		},
		{
			name: "deep drawdown cuts hard",
			health: model.AssetHealth{
				Status: model.AssetStatusActive, RiskProfile: model.RiskProfileStandard,
				SampleSize: 5, MaxDrawdownPct: 12,
			},
			want: 0.48,
		},
		{
			name: "moderate drawdown cuts lightly",
			health: model.AssetHealth{
				Status: model.AssetStatusActive, RiskProfile: model.RiskProfileStandard,
				SampleSize: 5, MaxDrawdownPct: 7,
			},
			want: 0.64,
		},
		{
			name: "high wr recovery",
			health: model.AssetHealth{
				Status: model.AssetStatusRecovery, RiskProfile: model.RiskProfileHighWR,
				SampleSize: 5,
			},
			want: 0.5,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := multiplierFor(&tc.health, minSample)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("multiplierFor = %.4f, want %.4f", got, tc.want)
			}
		})
	}
}

func TestPositionSizeMultiplier_Lookup(t *testing.T) {
	breaker, db := newTestBreaker(t)
	ctx := context.Background()

	mult, err := breaker.PositionSizeMultiplier(ctx, "NOROW", model.TradeDirectionLong, "scanner-a")
	if err != nil {
		t.Fatalf("PositionSizeMultiplier failed: %v", err)
	}
	if mult != 1.0 {
		t.Fatalf("key without history sizes at 1.0, got %.2f", mult)
	}

	healthRepo := repository.NewAssetHealthRepository().WithDB(db)
	if err := healthRepo.Upsert(ctx, &model.AssetHealth{
		Symbol:      "PAUSEDKEY",
		Direction:   model.TradeDirectionLong,
		Source:      "scanner-a",
		Status:      model.AssetStatusPaused,
		RiskProfile: model.RiskProfileStandard,
	}); err != nil {
		t.Fatalf("failed to seed health: %v", err)
	}

	mult, err = breaker.PositionSizeMultiplier(ctx, "PAUSEDKEY", model.TradeDirectionLong, "scanner-a")
	if err != nil {
		t.Fatalf("PositionSizeMultiplier failed: %v", err)
	}
	if mult != 0 {
		t.Fatalf("paused key sizes at 0, got %.2f", mult)
	}
}
