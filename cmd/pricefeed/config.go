package pricefeed

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Symbols      []string      `envconfig:"PRICEFEED_SYMBOLS" default:"BTC,ETH"`
	Quote        string        `envconfig:"PRICEFEED_QUOTE" default:"USDT"`
	PollInterval time.Duration `envconfig:"PRICEFEED_POLL_INTERVAL" default:"5s"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
