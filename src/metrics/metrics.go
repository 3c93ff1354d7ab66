package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradewatch_ticks_processed_total",
			Help: "Total number of ticks run through the trade evaluation pipeline",
		},
		[]string{"symbol"},
	)

	ticksDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradewatch_ticks_dropped_total",
			Help: "Total number of ticks dropped by the per-instrument rate limit",
		},
		[]string{"symbol"},
	)

	subscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradewatch_subscriptions_active",
			Help: "Number of instruments currently being watched",
		},
	)

	feedFailovers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradewatch_feed_failover_total",
			Help: "Total number of venue failovers per instrument watch loop",
		},
		[]string{"symbol", "from"},
	)

	watchRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradewatch_watch_restart_total",
			Help: "Total number of stale watch loops restarted by the health monitor",
		},
		[]string{"symbol"},
	)

	batchFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradewatch_batch_flush_total",
			Help: "Total number of persistence batch flushes",
		},
		[]string{"symbol", "status"},
	)

	tradesClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradewatch_trades_closed_total",
			Help: "Total number of trades closed, by outcome",
		},
		[]string{"symbol", "outcome"},
	)

	tradesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradewatch_trades_active",
			Help: "Number of trades currently tracked",
		},
	)

	breakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradewatch_breaker_trip_total",
			Help: "Total number of circuit breaker pauses and blacklists",
		},
		[]string{"symbol", "direction", "action", "reason"},
	)
)

// RecordTickProcessed counts one tick that reached the evaluation pipeline.
func RecordTickProcessed(symbol string) {
	ticksProcessed.WithLabelValues(symbol).Inc()
}

// RecordTickDropped counts one tick discarded by the rate limit.
func RecordTickDropped(symbol string) {
	ticksDropped.WithLabelValues(symbol).Inc()
}

// SetSubscriptionsActive tracks how many instruments have a watch loop.
func SetSubscriptionsActive(count int) {
	subscriptionsActive.Set(float64(count))
}

// RecordFeedFailover counts one switch away from a failed venue.
func RecordFeedFailover(symbol, from string) {
	feedFailovers.WithLabelValues(symbol, from).Inc()
}

// RecordWatchRestart counts one stale-loop restart.
func RecordWatchRestart(symbol string) {
	watchRestarts.WithLabelValues(symbol).Inc()
}

// RecordBatchFlush counts one batch commit attempt. Status is "ok" or "error".
func RecordBatchFlush(symbol, status string) {
	batchFlushes.WithLabelValues(symbol, status).Inc()
}

// RecordTradeClosed counts one closed trade by outcome.
func RecordTradeClosed(symbol, outcome string) {
	tradesClosed.WithLabelValues(symbol, outcome).Inc()
}

// SetTradesActive tracks the tracked-trade population.
func SetTradesActive(count int) {
	tradesActive.Set(float64(count))
}

// RecordBreakerTrip counts one circuit breaker pause or blacklist.
func RecordBreakerTrip(symbol, direction, action, reason string) {
	breakerTrips.WithLabelValues(symbol, direction, action, reason).Inc()
}
