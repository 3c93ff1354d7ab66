package connectors

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"
)

// -----------------------------
// PRICE FEED CONTRACT
// -----------------------------

// PriceTick is one observed price for a venue-neutral symbol.
type PriceTick struct {
	Symbol string
	Price  float64
	At     time.Time
}

// TickFunc receives ticks from a streaming feed. Implementations must not
// block: slow consumers stall the venue read loop.
type TickFunc func(tick PriceTick)

// PriceFeed is one upstream market-data venue. Symbols passed in are always
// venue-neutral (BTCUSDT); each feed maps them to its native form.
type PriceFeed interface {
	Name() string

	// Watch streams ticks for symbol into fn until ctx is canceled or the
	// stream fails. It blocks for the lifetime of the stream and always
	// returns a non-nil error explaining why it stopped. Feeds without a
	// streaming transport return ErrStreamingUnsupported immediately.
	Watch(ctx context.Context, symbol string, fn TickFunc) error

	// LastPrice fetches a point-in-time price over REST. Used as the
	// polling fallback when no streaming venue is healthy.
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// ErrStreamingUnsupported marks feeds that only serve REST snapshots.
var ErrStreamingUnsupported = errors.New("feed does not support streaming")

// ErrStreamClosed is returned when the upstream closes a stream without a
// protocol error. Callers treat it like any other stream failure.
var ErrStreamClosed = errors.New("upstream closed the stream")

// -----------------------------
// SHARED RETRY POLICY
// -----------------------------
const (
	// Default retry configuration for REST clients
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second

	defaultHTTPTimeout = 15 * time.Second
)

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func newRestClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultHTTPTimeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)
}
