package tracker

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// TickMinInterval is the minimum spacing between processed ticks per
	// instrument. Ticks arriving faster are dropped, not queued.
	TickMinInterval time.Duration `envconfig:"TRACK_TICK_MIN_INTERVAL" default:"2s"`

	// FlushInterval is how often pending trade/milestone/sample batches
	// are committed. A trade close force-flushes its instrument early.
	FlushInterval time.Duration `envconfig:"TRACK_FLUSH_INTERVAL" default:"5s"`

	// TimeoutCheckInterval is how often the age sweep runs.
	TimeoutCheckInterval time.Duration `envconfig:"TRACK_TIMEOUT_CHECK_INTERVAL" default:"1m"`

	// MaxTradeAge is the horizon after which an open trade is force-closed
	// with a timeout outcome.
	MaxTradeAge time.Duration `envconfig:"TRACK_MAX_TRADE_AGE" default:"24h"`

	// SampleRetention is how long price samples of completed trades are
	// kept before the sweep prunes them.
	SampleRetention time.Duration `envconfig:"TRACK_SAMPLE_RETENTION" default:"48h"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
