package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BinanceUseTestnet bool   `envconfig:"BINANCE_USE_TESTNET" default:"false"`
	BinanceAPIKeyEnc  string `envconfig:"BINANCE_API_KEY_ENC" default:""`
	BinanceSecretEnc  string `envconfig:"BINANCE_SECRET_ENC" default:""`

	BybitWSURL    string `envconfig:"BYBIT_WS_URL" default:"wss://stream.bybit.com/v5/public/linear"`
	BybitRestURL  string `envconfig:"BYBIT_REST_URL" default:"https://api.bybit.com"`
	BybitPingSecs int    `envconfig:"BYBIT_PING_SECS" default:"20"`

	KrakenBaseURL string `envconfig:"KRAKEN_BASE_URL" default:"https://futures.kraken.com/derivatives"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
