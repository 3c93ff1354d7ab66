package tp_sl

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// MomentumWindow is how long an early-momentum trade has to prove itself.
	MomentumWindow time.Duration `envconfig:"EXIT_MOMENTUM_WINDOW" default:"5m"`

	// MomentumThresholdPct is the profit the trade must reach inside the window.
	MomentumThresholdPct float64 `envconfig:"EXIT_MOMENTUM_THRESHOLD_PCT" default:"0.5"`

	// TrailActivationPct and TrailDistancePct are fallbacks for trades that
	// do not carry their own trailing configuration.
	TrailActivationPct float64 `envconfig:"EXIT_TRAIL_ACTIVATION_PCT" default:"1.0"`
	TrailDistancePct   float64 `envconfig:"EXIT_TRAIL_DISTANCE_PCT" default:"1.5"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
