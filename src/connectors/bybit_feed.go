package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"tradewatch/src/mapper"
)

// -----------------------------
// BYBIT LINEAR PERPETUALS FEED
// -----------------------------

// BybitFeed streams the v5 public linear ticker channel and serves REST
// snapshots from /v5/market/tickers. Public endpoints only, no auth.
type BybitFeed struct {
	wsURL     string
	pingEvery time.Duration
	http      *resty.Client
}

func NewBybitFeed() *BybitFeed {
	cfg := GetConfig()

	pingSecs := cfg.BybitPingSecs
	if pingSecs <= 0 {
		pingSecs = 20
	}

	return &BybitFeed{
		wsURL:     cfg.BybitWSURL,
		pingEvery: time.Duration(pingSecs) * time.Second,
		http:      newRestClient(strings.TrimRight(cfg.BybitRestURL, "/")),
	}
}

func (f *BybitFeed) Name() string { return "bybit" }

func (f *BybitFeed) Watch(ctx context.Context, symbol string, fn TickFunc) error {
	native := mapper.ToBybitLinear(symbol)

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("bybit ws dial failed: %w", err)
	}
	defer conn.Close()

	sub := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{"tickers." + native},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("bybit subscribe failed: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"feed":   "bybit",
		"symbol": symbol,
		"native": native,
	}).Debug("ticker stream opened")

	done := make(chan struct{})
	defer close(done)

	// Unblock the read loop when the context ends.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	// Bybit drops idle connections without application-level pings.
	go func() {
		ticker := time.NewTicker(f.pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bybit ws read failed: %w", err)
		}

		tick, ok := parseBybitTicker(symbol, raw)
		if !ok {
			continue
		}
		fn(tick)
	}
}

func (f *BybitFeed) LastPrice(ctx context.Context, symbol string) (float64, error) {
	native := mapper.ToBybitLinear(symbol)

	var out bybitTickersResp
	resp, err := f.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"category": "linear",
			"symbol":   native,
		}).
		SetResult(&out).
		Get("/v5/market/tickers")
	if err != nil {
		return 0, fmt.Errorf("bybit price fetch failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.String())
	}
	if out.RetCode != 0 {
		return 0, fmt.Errorf("bybit error %d: %s", out.RetCode, out.RetMsg)
	}
	if len(out.Result.List) == 0 {
		return 0, fmt.Errorf("bybit returned no ticker for %s", native)
	}

	price, err := strconv.ParseFloat(out.Result.List[0].LastPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("bybit returned unparsable price %q: %w", out.Result.List[0].LastPrice, err)
	}
	return price, nil
}

type bybitTickersResp struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	} `json:"result"`
}

type bybitTickerMsg struct {
	Topic string `json:"topic"`
	TS    int64  `json:"ts"`
	Data  struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"data"`
}

// parseBybitTicker extracts a tick from one websocket frame. Frames that are
// not ticker payloads, or delta updates that did not touch lastPrice, are
// dropped.
func parseBybitTicker(symbol string, raw []byte) (PriceTick, bool) {
	var msg bybitTickerMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return PriceTick{}, false
	}
	if !strings.HasPrefix(msg.Topic, "tickers.") {
		return PriceTick{}, false
	}
	if msg.Data.LastPrice == "" {
		return PriceTick{}, false
	}

	price, err := strconv.ParseFloat(msg.Data.LastPrice, 64)
	if err != nil || price <= 0 {
		return PriceTick{}, false
	}

	at := time.Now().UTC()
	if msg.TS > 0 {
		at = time.UnixMilli(msg.TS).UTC()
	}
	return PriceTick{Symbol: symbol, Price: price, At: at}, true
}
