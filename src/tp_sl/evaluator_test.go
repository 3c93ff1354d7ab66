package tp_sl

import (
	"testing"
	"time"

	"tradewatch/src/model"
)

func fp(v float64) *float64 { return &v }

func longTrade() *model.Trade {
	return &model.Trade{
		TradeID:    "t-long",
		Symbol:     "BTCUSDT",
		Direction:  model.TradeDirectionLong,
		EntryPrice: 100,
		EntryTime:  time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}
}

func shortTrade() *model.Trade {
	tr := longTrade()
	tr.TradeID = "t-short"
	tr.Direction = model.TradeDirectionShort
	return tr
}

func pnl(tr *model.Trade, price float64) float64 {
	return tr.PnlPercent(price)
}

func TestStaticStop_ClosesOnStopPriceCross(t *testing.T) {
	ev := &StaticStop{}
	tr := longTrade()
	tr.StopLossPrice = fp(98)
	now := tr.EntryTime

	for _, price := range []float64{100, 99} {
		v := ev.Evaluate(tr, price, pnl(tr, price), now)
		if v.Close {
			t.Fatalf("expected keep-open at %v", price)
		}
	}

	v := ev.Evaluate(tr, 97, pnl(tr, 97), now)
	if !v.Close {
		t.Fatalf("expected close at 97 with stop 98")
	}
	if v.Reason != ReasonStopPrice {
		t.Fatalf("reason = %q, want %q", v.Reason, ReasonStopPrice)
	}
}

func TestStaticStop_PctFallbackWhenNoStopPrice(t *testing.T) {
	ev := &StaticStop{}
	tr := longTrade()
	tr.StopLossPct = 2

	if v := ev.Evaluate(tr, 98.5, pnl(tr, 98.5), tr.EntryTime); v.Close {
		t.Fatalf("expected keep-open at -1.5%%")
	}

	v := ev.Evaluate(tr, 97.9, pnl(tr, 97.9), tr.EntryTime)
	if !v.Close {
		t.Fatalf("expected close at -2.1%% with 2%% stop")
	}
	if v.Reason != ReasonStopPct {
		t.Fatalf("reason = %q, want %q", v.Reason, ReasonStopPct)
	}
}

func TestStaticStop_StopPriceTakesPrecedenceOverPct(t *testing.T) {
	ev := &StaticStop{}
	tr := longTrade()
	tr.StopLossPrice = fp(95)
	tr.StopLossPct = 2 // would fire at 98, but the planned price wins

	if v := ev.Evaluate(tr, 97, pnl(tr, 97), tr.EntryTime); v.Close {
		t.Fatalf("expected keep-open at 97 while the stop price sits at 95")
	}
	if v := ev.Evaluate(tr, 94.9, pnl(tr, 94.9), tr.EntryTime); !v.Close {
		t.Fatalf("expected close below the stop price")
	}
}

func TestStaticStop_Short(t *testing.T) {
	ev := &StaticStop{}
	tr := shortTrade()
	tr.StopLossPrice = fp(102)

	if v := ev.Evaluate(tr, 101, pnl(tr, 101), tr.EntryTime); v.Close {
		t.Fatalf("expected keep-open at 101")
	}
	if v := ev.Evaluate(tr, 102.5, pnl(tr, 102.5), tr.EntryTime); !v.Close {
		t.Fatalf("expected close above the stop price for a short")
	}
}

func TestEarlyMomentum_DetectsAndHoldsThroughFlatRetrace(t *testing.T) {
	ev := &EarlyMomentum{Window: 5 * time.Minute, ThresholdPct: 0.5}
	tr := longTrade()

	// +0.6% at minute 3: momentum sticks, stop moves to breakeven.
	at := tr.EntryTime.Add(3 * time.Minute)
	if v := ev.Evaluate(tr, 100.6, pnl(tr, 100.6), at); v.Close {
		t.Fatalf("expected keep-open on momentum detection")
	}
	if !tr.MomentumDetected || !tr.BreakevenSet || tr.BreakevenPrice == nil {
		t.Fatalf("momentum state not recorded: detected=%v set=%v price=%v",
			tr.MomentumDetected, tr.BreakevenSet, tr.BreakevenPrice)
	}
	if *tr.BreakevenPrice >= tr.EntryPrice {
		t.Fatalf("breakeven %v must sit strictly below entry %v", *tr.BreakevenPrice, tr.EntryPrice)
	}

	// A later flat retrace to exactly 0% must not close.
	at = tr.EntryTime.Add(10 * time.Minute)
	if v := ev.Evaluate(tr, 100, pnl(tr, 100), at); v.Close {
		t.Fatalf("expected keep-open at 0%% net after momentum, got close: %s", v.Reason)
	}

	// Dropping through the breakeven stop does close.
	v := ev.Evaluate(tr, *tr.BreakevenPrice-0.01, pnl(tr, *tr.BreakevenPrice-0.01), at)
	if !v.Close || v.Reason != ReasonBreakeven {
		t.Fatalf("expected breakeven close, got close=%v reason=%q", v.Close, v.Reason)
	}
}

func TestEarlyMomentum_ClosesLowQualityOnWindowExpiry(t *testing.T) {
	ev := &EarlyMomentum{Window: 5 * time.Minute, ThresholdPct: 0.5}
	tr := longTrade()

	// Still at +0.2% at minute 6.
	at := tr.EntryTime.Add(6 * time.Minute)
	v := ev.Evaluate(tr, 100.2, pnl(tr, 100.2), at)
	if !v.Close {
		t.Fatalf("expected immediate close after the window expired below threshold")
	}
	if v.Reason != ReasonLowQuality {
		t.Fatalf("reason = %q, want %q", v.Reason, ReasonLowQuality)
	}
}

func TestEarlyMomentum_HonorsPlannedStopBeforeDetection(t *testing.T) {
	ev := &EarlyMomentum{Window: 5 * time.Minute, ThresholdPct: 0.5}
	tr := longTrade()
	tr.StopLossPrice = fp(99)

	at := tr.EntryTime.Add(time.Minute)
	v := ev.Evaluate(tr, 98.8, pnl(tr, 98.8), at)
	if !v.Close || v.Reason != ReasonStopPrice {
		t.Fatalf("expected planned stop close pre-momentum, got close=%v reason=%q", v.Close, v.Reason)
	}
}

func TestEarlyMomentum_Short(t *testing.T) {
	ev := &EarlyMomentum{Window: 5 * time.Minute, ThresholdPct: 0.5}
	tr := shortTrade()

	at := tr.EntryTime.Add(2 * time.Minute)
	if v := ev.Evaluate(tr, 99.3, pnl(tr, 99.3), at); v.Close {
		t.Fatalf("expected keep-open on short momentum detection")
	}
	if tr.BreakevenPrice == nil || *tr.BreakevenPrice <= tr.EntryPrice {
		t.Fatalf("short breakeven must sit strictly above entry, got %v", tr.BreakevenPrice)
	}

	v := ev.Evaluate(tr, *tr.BreakevenPrice+0.01, pnl(tr, *tr.BreakevenPrice+0.01), at)
	if !v.Close || v.Reason != ReasonBreakeven {
		t.Fatalf("expected short breakeven close, got close=%v reason=%q", v.Close, v.Reason)
	}
}

func TestAdaptiveTrail_TrailsBehindHighWater(t *testing.T) {
	ev := &AdaptiveTrail{ActivationPct: 1, DistancePct: 1}
	tr := longTrade()
	tr.TrailActivationPct = 1
	tr.TrailDistancePct = 1
	tr.VolatilityMult = 1
	now := tr.EntryTime

	// Below activation: nothing trails yet.
	if v := ev.Evaluate(tr, 100, pnl(tr, 100), now); v.Close {
		t.Fatalf("expected keep-open before activation")
	}
	if tr.TrailActive {
		t.Fatalf("trail must not activate at 0%%")
	}

	// +1.5% activates and seeds the high water.
	if v := ev.Evaluate(tr, 101.5, pnl(tr, 101.5), now); v.Close {
		t.Fatalf("expected keep-open at the top")
	}
	if !tr.TrailActive || tr.HighWaterPrice == nil || *tr.HighWaterPrice != 101.5 {
		t.Fatalf("trail state wrong: active=%v mark=%v", tr.TrailActive, tr.HighWaterPrice)
	}

	// pre_tp1 distance = 1% x 1.5 = 1.5%; stop = 101.5 x 0.985 = 99.9775.
	if v := ev.Evaluate(tr, 100.2, pnl(tr, 100.2), now); v.Close {
		t.Fatalf("expected keep-open above the trailing stop")
	}
	v := ev.Evaluate(tr, 99.9, pnl(tr, 99.9), now)
	if !v.Close || v.Reason != ReasonTrailingStop {
		t.Fatalf("expected trailing stop close, got close=%v reason=%q", v.Close, v.Reason)
	}
}

func TestAdaptiveTrail_ShortTrailsBehindLowWater(t *testing.T) {
	ev := &AdaptiveTrail{ActivationPct: 1, DistancePct: 1}
	tr := shortTrade()
	tr.TrailActivationPct = 1
	tr.TrailDistancePct = 1
	tr.VolatilityMult = 1
	now := tr.EntryTime

	// -3% move in our favor: activates, low water 97.
	if v := ev.Evaluate(tr, 97, pnl(tr, 97), now); v.Close {
		t.Fatalf("expected keep-open at the low")
	}
	if tr.HighWaterPrice == nil || *tr.HighWaterPrice != 97 {
		t.Fatalf("low-water mark = %v, want 97", tr.HighWaterPrice)
	}

	// Stop = 97 x 1.015 = 98.455.
	if v := ev.Evaluate(tr, 98.4, pnl(tr, 98.4), now); v.Close {
		t.Fatalf("expected keep-open below the trailing stop")
	}
	if v := ev.Evaluate(tr, 98.5, pnl(tr, 98.5), now); !v.Close {
		t.Fatalf("expected trailing stop close at 98.5")
	}
}

func TestAdaptiveTrail_NeverOverridesPlannedStop(t *testing.T) {
	ev := &AdaptiveTrail{ActivationPct: 1, DistancePct: 1}
	tr := longTrade()
	tr.StopLossPrice = fp(99)
	tr.TrailActivationPct = 50 // trail would never engage

	v := ev.Evaluate(tr, 98.9, pnl(tr, 98.9), tr.EntryTime)
	if !v.Close || v.Reason != ReasonStopPrice {
		t.Fatalf("expected planned stop close, got close=%v reason=%q", v.Close, v.Reason)
	}
}

func TestAdaptiveTrail_TightensAfterTP2(t *testing.T) {
	ev := &AdaptiveTrail{ActivationPct: 1, DistancePct: 1}

	early := longTrade()
	early.TrailDistancePct = 1
	early.VolatilityMult = 1
	advanceMomentumState(early)
	if early.MomentumState != model.MomentumStatePreTP1 {
		t.Fatalf("fresh state = %q, want pre_tp1", early.MomentumState)
	}

	late := longTrade()
	late.TrailDistancePct = 1
	late.VolatilityMult = 1
	late.TP1Hit = true
	late.TP2Hit = true
	advanceMomentumState(late)
	if late.MomentumState != model.MomentumStatePostTP2 {
		t.Fatalf("state after TP1+TP2 = %q, want post_tp2", late.MomentumState)
	}

	wide := ev.effectiveDistancePct(early)
	tight := ev.effectiveDistancePct(late)
	if tight >= wide {
		t.Fatalf("post_tp2 distance %v must be strictly tighter than pre_tp1 %v", tight, wide)
	}
}

func TestAdvanceMomentumState_MonotonicLadder(t *testing.T) {
	tr := longTrade()

	advanceMomentumState(tr)
	if tr.MomentumState != model.MomentumStatePreTP1 {
		t.Fatalf("state = %q, want pre_tp1", tr.MomentumState)
	}

	tr.TP1Hit = true
	advanceMomentumState(tr)
	if tr.MomentumState != model.MomentumStateTP1TP2 {
		t.Fatalf("state = %q, want tp1_tp2", tr.MomentumState)
	}

	tr.TP2Hit = true
	advanceMomentumState(tr)
	if tr.MomentumState != model.MomentumStatePostTP2 {
		t.Fatalf("state = %q, want post_tp2", tr.MomentumState)
	}

	// Replays never move the ladder backwards.
	advanceMomentumState(tr)
	if tr.MomentumState != model.MomentumStatePostTP2 {
		t.Fatalf("state regressed to %q", tr.MomentumState)
	}
}

func TestRegistry_DispatchAndFallback(t *testing.T) {
	reg := NewRegistryWithConfig(Config{
		MomentumWindow:       5 * time.Minute,
		MomentumThresholdPct: 0.5,
		TrailActivationPct:   1,
		TrailDistancePct:     1.5,
	})

	cases := []struct {
		strategy string
		want     string
	}{
		{strategy: model.RiskStrategyStatic, want: model.RiskStrategyStatic},
		{strategy: model.RiskStrategyEarlyMomentum, want: model.RiskStrategyEarlyMomentum},
		{strategy: model.RiskStrategyAdaptiveTrail, want: model.RiskStrategyAdaptiveTrail},
		{strategy: "made_up", want: model.RiskStrategyStatic},
		{strategy: "", want: model.RiskStrategyStatic},
	}

	for _, tc := range cases {
		if got := reg.ForStrategy(tc.strategy).Name(); got != tc.want {
			t.Fatalf("ForStrategy(%q) = %q, want %q", tc.strategy, got, tc.want)
		}
	}
}
