package volatility

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Candles is how many hourly candles one ATR computation looks back on.
	Candles int `envconfig:"VOL_CANDLES" default:"48"`

	// MinCandles is the floor below which a symbol is considered unmeasured.
	MinCandles int `envconfig:"VOL_MIN_CANDLES" default:"15"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
