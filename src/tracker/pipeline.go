package tracker

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"tradewatch/src/model"
)

// PostTradePipeline receives every completed trade. It is the engine's sole
// output boundary: analysis, learned-statistics updates and cleanup of the
// trade's artifacts all happen behind it.
type PostTradePipeline interface {
	ProcessCompletedTrade(ctx context.Context, trade *model.Trade, outcome string, finalPnlPct float64) error
}

// LogPipeline is the default pipeline for deployments that run the engine
// standalone: it only announces the handoff. Completed trades stay in the
// database for whatever consumes them later.
type LogPipeline struct{}

func NewLogPipeline() *LogPipeline { return &LogPipeline{} }

func (*LogPipeline) ProcessCompletedTrade(ctx context.Context, trade *model.Trade, outcome string, finalPnlPct float64) error {
	logger.WithFields(map[string]interface{}{
		"trade_id":      trade.TradeID,
		"symbol":        trade.Symbol,
		"direction":     trade.Direction,
		"outcome":       outcome,
		"final_pnl_pct": finalPnlPct,
	}).Info("completed trade handed to post-trade pipeline")
	return nil
}
