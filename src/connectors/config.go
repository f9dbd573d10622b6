package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ExchangeBaseURL string `envconfig:"EXCHANGE_BASE_URL" default:"https://testnet-api.exchange.example.com"`
	ExchangeWSURL   string `envconfig:"EXCHANGE_WS_URL" default:"wss://testnet-stream.exchange.example.com/ws"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
