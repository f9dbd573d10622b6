package signalbus

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	RedisURL string `envconfig:"SIGNAL_BUS_REDIS_URL" default:"redis://localhost:6379/0"`
	Channel  string `envconfig:"SIGNAL_BUS_CHANNEL" default:"engine.signals"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
