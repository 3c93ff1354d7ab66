package pricefeed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradewatch/src/connectors"
	"tradewatch/src/metrics"
)

// Listener receives every tick observed for a subscribed symbol.
type Listener func(tick connectors.PriceTick)

// subscription is the per-symbol fan-out state. One watch loop feeds many
// listeners, keyed by listener id so consumers can unsubscribe individually.
type subscription struct {
	symbol    string
	listeners map[string]Listener

	cancel context.CancelFunc
	done   chan struct{}

	// lastTick is the unix-nano timestamp of the most recent dispatch,
	// read by the health monitor without taking the monitor lock.
	lastTick atomic.Int64

	lingerTimer *time.Timer
}

// PriceMonitor multiplexes venue price streams. Each symbol gets at most one
// watch loop regardless of how many consumers subscribe; the loop walks the
// streaming venues in priority order and degrades to REST polling when every
// stream is down. A watch loop never stops on its own: it either runs, or
// the monitor has deliberately torn it down.
type PriceMonitor struct {
	streaming []connectors.PriceFeed
	polling   connectors.PriceFeed
	cfg       Config

	mu   sync.Mutex
	subs map[string]*subscription

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
	started    atomic.Bool
}

func NewPriceMonitor(streaming []connectors.PriceFeed, polling connectors.PriceFeed) *PriceMonitor {
	return NewPriceMonitorWithConfig(streaming, polling, GetConfig())
}

func NewPriceMonitorWithConfig(streaming []connectors.PriceFeed, polling connectors.PriceFeed, cfg Config) *PriceMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &PriceMonitor{
		streaming:  streaming,
		polling:    polling,
		cfg:        cfg,
		subs:       make(map[string]*subscription),
		rootCtx:    ctx,
		rootCancel: cancel,
	}
}

// Start launches the health monitor. Subscriptions work before Start, but
// stale loops are only restarted once it runs.
func (m *PriceMonitor) Start() {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	m.wg.Add(1)
	go m.runHealthMonitor()

	logger.WithFields(map[string]interface{}{
		"streaming_feeds": len(m.streaming),
		"polling_feed":    m.polling.Name(),
	}).Info("price monitor started")
}

// Subscribe registers a listener for a symbol, starting a watch loop if the
// symbol is not being watched yet. Subscribing during the linger window of a
// dying loop revives it instead of starting a new one.
func (m *PriceMonitor) Subscribe(symbol, listenerID string, fn Listener) {
	m.mu.Lock()

	sub, ok := m.subs[symbol]
	if ok {
		if sub.lingerTimer != nil {
			sub.lingerTimer.Stop()
			sub.lingerTimer = nil
		}
		sub.listeners[listenerID] = fn
		m.mu.Unlock()

		logger.WithFields(map[string]interface{}{
			"symbol":   symbol,
			"listener": listenerID,
		}).Debug("joined existing watch loop")
		return
	}

	sub = &subscription{
		symbol:    symbol,
		listeners: map[string]Listener{listenerID: fn},
	}
	m.subs[symbol] = sub
	m.startLoopLocked(sub)
	active := len(m.subs)
	m.mu.Unlock()

	metrics.SetSubscriptionsActive(active)
	logger.WithFields(map[string]interface{}{
		"symbol":   symbol,
		"listener": listenerID,
	}).Info("watch loop started")
}

// Unsubscribe removes one listener. When the last listener leaves, the loop
// stays up for the linger window and is then torn down.
func (m *PriceMonitor) Unsubscribe(symbol, listenerID string) {
	m.mu.Lock()
	sub, ok := m.subs[symbol]
	if !ok {
		m.mu.Unlock()
		return
	}

	delete(sub.listeners, listenerID)
	if len(sub.listeners) == 0 && sub.lingerTimer == nil {
		s := sub
		sub.lingerTimer = time.AfterFunc(m.cfg.Linger, func() { m.teardown(s) })
	}
	m.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"symbol":   symbol,
		"listener": listenerID,
	}).Debug("listener left watch loop")
}

// Subscribed reports whether a watch loop currently exists for the symbol.
func (m *PriceMonitor) Subscribed(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[symbol]
	return ok
}

// Shutdown cancels every watch loop and the health monitor, then waits for
// them to exit.
func (m *PriceMonitor) Shutdown() {
	logger.Info("price monitor shutting down")
	m.rootCancel()
	m.wg.Wait()
}

// startLoopLocked spawns the watch goroutine. Caller holds m.mu.
func (m *PriceMonitor) startLoopLocked(sub *subscription) {
	ctx, cancel := context.WithCancel(m.rootCtx)
	sub.cancel = cancel
	sub.done = make(chan struct{})
	sub.lastTick.Store(time.Now().UnixNano())

	m.wg.Add(1)
	go m.runWatchLoop(ctx, sub)
}

// runWatchLoop walks the streaming venues in priority order forever. A feed
// that returns holds the slot until it errors; then the next venue takes
// over. Once the whole list has failed, the loop polls for a while before
// trying the streams again.
func (m *PriceMonitor) runWatchLoop(ctx context.Context, sub *subscription) {
	defer m.wg.Done()
	defer close(sub.done)

	for {
		if ctx.Err() != nil {
			return
		}

		for _, feed := range m.streaming {
			if ctx.Err() != nil {
				return
			}

			err := feed.Watch(ctx, sub.symbol, func(tick connectors.PriceTick) {
				m.dispatch(sub, tick)
			})
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, connectors.ErrStreamingUnsupported) {
				continue
			}

			logger.WithFields(map[string]interface{}{
				"symbol": sub.symbol,
				"feed":   feed.Name(),
			}).Warnf("stream failed, failing over: %v", err)
			metrics.RecordFeedFailover(sub.symbol, feed.Name())
		}

		m.pollFallback(ctx, sub)
	}
}

// pollFallback serves REST snapshots while every stream is down, for one
// retry window, then returns so the caller re-attempts streaming.
func (m *PriceMonitor) pollFallback(ctx context.Context, sub *subscription) {
	logger.WithFields(map[string]interface{}{
		"symbol": sub.symbol,
		"feed":   m.polling.Name(),
	}).Warn("all streams down, serving polled prices")

	deadline := time.Now().Add(m.cfg.StreamRetryAfter)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		price, err := m.polling.LastPrice(ctx, sub.symbol)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"symbol": sub.symbol,
				"feed":   m.polling.Name(),
			}).Debugf("poll failed: %v", err)
		} else {
			m.dispatch(sub, connectors.PriceTick{
				Symbol: sub.symbol,
				Price:  price,
				At:     time.Now().UTC(),
			})
		}

		if time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// dispatch fans one tick out to every listener. Each callback runs behind
// its own recover so a faulty consumer cannot take down the others or the
// watch loop.
func (m *PriceMonitor) dispatch(sub *subscription, tick connectors.PriceTick) {
	sub.lastTick.Store(time.Now().UnixNano())

	type entry struct {
		id string
		fn Listener
	}

	m.mu.Lock()
	entries := make([]entry, 0, len(sub.listeners))
	for id, fn := range sub.listeners {
		entries = append(entries, entry{id: id, fn: fn})
	}
	m.mu.Unlock()

	for _, e := range entries {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.WithFields(map[string]interface{}{
						"symbol":   sub.symbol,
						"listener": e.id,
					}).Errorf("listener panicked: %v", r)
				}
			}()
			e.fn(tick)
		}()
	}
}

func (m *PriceMonitor) runHealthMonitor() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.rootCtx.Done():
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

// checkHealth restarts every loop that has not dispatched a tick within the
// stale window. Restart replaces the loop goroutine, not the subscription:
// listeners stay registered throughout.
func (m *PriceMonitor) checkHealth() {
	now := time.Now()

	m.mu.Lock()
	var stale []*subscription
	for _, sub := range m.subs {
		last := time.Unix(0, sub.lastTick.Load())
		if now.Sub(last) > m.cfg.StaleAfter {
			stale = append(stale, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range stale {
		m.restartLoop(sub)
	}
}

func (m *PriceMonitor) restartLoop(sub *subscription) {
	logger.WithFields(map[string]interface{}{
		"symbol":      sub.symbol,
		"stale_after": m.cfg.StaleAfter.String(),
	}).Warn("watch loop stale, restarting")
	metrics.RecordWatchRestart(sub.symbol)

	sub.cancel()
	<-sub.done

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[sub.symbol] != sub {
		// Torn down or replaced while we waited.
		return
	}
	m.startLoopLocked(sub)
}

// teardown runs when the linger window expires with no listeners left.
func (m *PriceMonitor) teardown(sub *subscription) {
	m.mu.Lock()
	if m.subs[sub.symbol] != sub || len(sub.listeners) > 0 {
		// A listener came back during the linger window.
		m.mu.Unlock()
		return
	}
	delete(m.subs, sub.symbol)
	active := len(m.subs)
	m.mu.Unlock()

	sub.cancel()
	<-sub.done

	metrics.SetSubscriptionsActive(active)
	logger.WithFields(map[string]interface{}{
		"symbol": sub.symbol,
	}).Info("watch loop closed")
}
