package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"tradewatch/src/mapper"
)

// -----------------------------
// KRAKEN FUTURES FEED
// -----------------------------

const krakenAPIV3Prefix = "/api/v3"

// KrakenFeed serves REST ticker snapshots from Kraken Futures. It has no
// streaming transport and exists as the polling venue of last resort.
type KrakenFeed struct {
	http *resty.Client
}

func NewKrakenFeed() *KrakenFeed {
	cfg := GetConfig()
	return &KrakenFeed{http: newRestClient(strings.TrimRight(cfg.KrakenBaseURL, "/"))}
}

func (f *KrakenFeed) Name() string { return "kraken" }

func (f *KrakenFeed) Watch(ctx context.Context, symbol string, fn TickFunc) error {
	return ErrStreamingUnsupported
}

type krakenTickerResp struct {
	Result string `json:"result"`
	Error  string `json:"error"`
	Ticker struct {
		Symbol    string  `json:"symbol"`
		Last      float64 `json:"last"`
		MarkPrice float64 `json:"markPrice"`
	} `json:"ticker"`
}

func (f *KrakenFeed) LastPrice(ctx context.Context, symbol string) (float64, error) {
	native := mapper.ToKrakenFutures(symbol)

	var out krakenTickerResp
	resp, err := f.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetResult(&out).
		Get(krakenAPIV3Prefix + "/tickers/" + url.PathEscape(native))
	if err != nil {
		return 0, fmt.Errorf("kraken price fetch failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	// Kraken Futures returns HTTP 200 even on errors, with {result:"error", error:"..."}.
	if strings.EqualFold(out.Result, "error") {
		if out.Error == "" {
			return 0, errors.New("kraken futures returned result=error")
		}
		return 0, fmt.Errorf("kraken futures error: %s", out.Error)
	}

	price := out.Ticker.Last
	if price <= 0 {
		price = out.Ticker.MarkPrice
	}
	if price <= 0 {
		return 0, fmt.Errorf("kraken returned no usable price for %s", native)
	}
	return price, nil
}
