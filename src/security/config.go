package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	VenueCRKey string `envconfig:"VENUE_CREDENTIALS_KEY" default:"xQRoinZ37HCE8afiJDkdh0esEHVkNPqy2AclU7/wSYo="`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
