package watch

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"tradewatch/src/connectors"
	"tradewatch/src/database"
	"tradewatch/src/milestones"
	"tradewatch/src/pricefeed"
	"tradewatch/src/repository"
	"tradewatch/src/risk"
	"tradewatch/src/tp_sl"
	"tradewatch/src/tracker"
)

// Watcher runs the tracking engine headless: no HTTP surface, just the
// price monitor, the tracker and the circuit breaker. Meant for deployments
// where trade intake writes straight to the database.
type Watcher struct {
	Config *Config
}

func (t *Watcher) Start() error {
	t.Config = GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to read-only database")
		return err
	}

	streaming := []connectors.PriceFeed{
		connectors.NewBinanceFeed(),
		connectors.NewBybitFeed(),
	}
	monitor := pricefeed.NewPriceMonitor(streaming, connectors.NewKrakenFeed())
	monitor.Start()

	breaker := risk.NewCircuitBreaker(
		repository.NewAssetHealthRepository(),
		repository.NewTradeRepository().WithDB(database.ReadOnlyDB),
	)

	engine := tracker.NewTradeTracker(
		repository.NewTradeRepository(),
		repository.NewPriceSampleRepository(),
		repository.NewExceptionRepository(),
		repository.NewVolatilityRepository(),
		milestones.NewRecorder(repository.NewMilestoneRepository()),
		tp_sl.NewRegistry(),
		monitor,
		tracker.NewLogPipeline(),
		breaker,
	)

	if err := engine.StartTracking(ctx); err != nil {
		logrus.WithError(err).Error("Failed to start trade tracking")
		return err
	}

	logrus.Info("Watching trades, Ctrl+C to stop")
	<-ctx.Done()

	engine.Shutdown()
	monitor.Shutdown()

	return nil
}
