package pricefeed

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// HealthInterval is how often the health monitor inspects watch loops.
	HealthInterval time.Duration `envconfig:"PRICE_HEALTH_INTERVAL" default:"10s"`

	// StaleAfter is the silence window after which a loop is restarted.
	StaleAfter time.Duration `envconfig:"PRICE_STALE_AFTER" default:"30s"`

	// Linger keeps a loop alive after its last listener leaves, so rapid
	// unsubscribe/subscribe cycles do not tear the stream down.
	Linger time.Duration `envconfig:"PRICE_LINGER" default:"30s"`

	// PollInterval is the request spacing in polling fallback mode.
	PollInterval time.Duration `envconfig:"PRICE_POLL_INTERVAL" default:"5s"`

	// StreamRetryAfter is how long a loop stays in polling fallback before
	// attempting the streaming venues again.
	StreamRetryAfter time.Duration `envconfig:"PRICE_STREAM_RETRY_AFTER" default:"30s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
