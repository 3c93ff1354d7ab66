package connectors

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	logger "github.com/sirupsen/logrus"

	"tradewatch/src/mapper"
	"tradewatch/src/security"
)

// -----------------------------
// BINANCE USDT-M FUTURES FEED
// -----------------------------

// BinanceFeed streams aggregated trades over the futures websocket and
// serves REST price snapshots. API keys are optional: public market data
// works unauthenticated.
type BinanceFeed struct {
	client *futures.Client
}

func NewBinanceFeed() *BinanceFeed {
	cfg := GetConfig()
	futures.UseTestnet = cfg.BinanceUseTestnet

	apiKey, apiSecret := "", ""
	if cfg.BinanceAPIKeyEnc != "" {
		var err error
		apiKey, err = security.DecryptString(cfg.BinanceAPIKeyEnc)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"feed": "binance",
			}).Warnf("could not decrypt api key, continuing unauthenticated: %v", err)
			apiKey = ""
		}
	}
	if apiKey != "" && cfg.BinanceSecretEnc != "" {
		var err error
		apiSecret, err = security.DecryptString(cfg.BinanceSecretEnc)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"feed": "binance",
			}).Warnf("could not decrypt api secret, continuing unauthenticated: %v", err)
			apiKey, apiSecret = "", ""
		}
	}

	return &BinanceFeed{client: futures.NewClient(apiKey, apiSecret)}
}

func (f *BinanceFeed) Name() string { return "binance" }

func (f *BinanceFeed) Watch(ctx context.Context, symbol string, fn TickFunc) error {
	native := mapper.ToBinanceFutures(symbol)

	errC := make(chan error, 1)
	handler := func(event *futures.WsAggTradeEvent) {
		tick, ok := tickFromAggTrade(symbol, event)
		if !ok {
			return
		}
		fn(tick)
	}
	errHandler := func(err error) {
		select {
		case errC <- err:
		default:
		}
	}

	doneC, stopC, err := futures.WsAggTradeServe(native, handler, errHandler)
	if err != nil {
		return fmt.Errorf("binance ws dial failed: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"feed":   "binance",
		"symbol": symbol,
		"native": native,
	}).Debug("aggTrade stream opened")

	select {
	case <-ctx.Done():
		close(stopC)
		<-doneC
		return ctx.Err()
	case <-doneC:
		select {
		case streamErr := <-errC:
			return fmt.Errorf("binance stream failed: %w", streamErr)
		default:
			return ErrStreamClosed
		}
	}
}

func (f *BinanceFeed) LastPrice(ctx context.Context, symbol string) (float64, error) {
	native := mapper.ToBinanceFutures(symbol)

	prices, err := f.client.NewListPricesService().Symbol(native).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance price fetch failed: %w", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("binance returned no price for %s", native)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance returned unparsable price %q: %w", prices[0].Price, err)
	}
	return price, nil
}

// tickFromAggTrade converts one websocket event into a venue-neutral tick.
// Events with a missing or non-positive price are dropped.
func tickFromAggTrade(symbol string, event *futures.WsAggTradeEvent) (PriceTick, bool) {
	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil || price <= 0 {
		return PriceTick{}, false
	}

	at := time.Now().UTC()
	if event.TradeTime > 0 {
		at = time.UnixMilli(event.TradeTime).UTC()
	}
	return PriceTick{Symbol: symbol, Price: price, At: at}, true
}
