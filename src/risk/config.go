package risk

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// WindowSize is how many completed trades one evaluation looks back on.
	WindowSize int `envconfig:"BREAKER_WINDOW" default:"20"`

	// MinSample gates enforcement: below it the breaker observes only.
	MinSample int `envconfig:"BREAKER_MIN_SAMPLE" default:"10"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
