package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradewatch/src/connectors"
	"tradewatch/src/database"
	"tradewatch/src/milestones"
	"tradewatch/src/pricefeed"
	"tradewatch/src/repository"
	"tradewatch/src/risk"
	"tradewatch/src/server"
	"tradewatch/src/tp_sl"
	"tradewatch/src/tracker"
)

var (
	PORT     = os.Getenv("SERVER_PORT")
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel // fallback seguro
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	// Price feeds: streaming venues in failover priority order, then the
	// REST polling fallback used when every stream is down.
	streaming := []connectors.PriceFeed{
		connectors.NewBinanceFeed(),
		connectors.NewBybitFeed(),
	}
	monitor := pricefeed.NewPriceMonitor(streaming, connectors.NewKrakenFeed())
	monitor.Start()

	tradeRepo := repository.NewTradeRepository()

	// History scans for breaker evaluations go through the read-only handle.
	breaker := risk.NewCircuitBreaker(
		repository.NewAssetHealthRepository(),
		repository.NewTradeRepository().WithDB(database.ReadOnlyDB),
	)

	engine := tracker.NewTradeTracker(
		tradeRepo,
		repository.NewPriceSampleRepository(),
		repository.NewExceptionRepository(),
		repository.NewVolatilityRepository(),
		milestones.NewRecorder(repository.NewMilestoneRepository()),
		tp_sl.NewRegistry(),
		monitor,
		tracker.NewLogPipeline(),
		breaker,
	)

	if err := engine.StartTracking(context.Background()); err != nil {
		logger.WithError(err).Fatal("Failed to start trade tracking")
	}

	// Blocks until SIGINT/SIGTERM.
	server.StartServer(PORT, server.Dependencies{
		Tracker: engine,
		Breaker: breaker,
		Trades:  tradeRepo,
	})

	engine.Shutdown()
	monitor.Shutdown()
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
