package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"tradewatch/src/handler"
	"tradewatch/src/repository"
	"tradewatch/src/risk"
	"tradewatch/src/tracker"
)

// Dependencies are the live components the HTTP surface exposes.
type Dependencies struct {
	Tracker *tracker.TradeTracker
	Breaker *risk.CircuitBreaker
	Trades  *repository.TradeRepository
}

// StartServer runs the HTTP API until SIGINT/SIGTERM, then shuts it down
// gracefully. An empty port falls back to the configured one.
func StartServer(port string, deps Dependencies) {
	if port == "" {
		port = GetConfig().Port
	}

	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/healthcheck error")
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	// Circuit-breaker query surface for the creation interface
	r.Get("/assets/status", handler.AssetStatusHandler(deps.Breaker))
	r.Get("/assets/position-size", handler.PositionSizeHandler(deps.Breaker))

	// Trade surface
	r.Get("/trades/active", handler.ActiveTradesHandler(deps.Tracker))
	r.Post("/trades", handler.CreateTradeHandler(deps.Trades, deps.Breaker, deps.Tracker))

	// Graceful server
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
