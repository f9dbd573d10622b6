package executors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// LiveAccountID selects the account whose exchange credentials drive the
	// live-ledger mirror. Zero disables live sync entirely.
	LiveAccountID uint `envconfig:"LIVE_ACCOUNT_ID" default:"0"`

	// StreamSymbols are subscribed on the exchange websocket for the price
	// cache fast path. Empty disables the stream; the snapshot poller still
	// runs.
	StreamSymbols []string `envconfig:"STREAM_SYMBOLS"`

	// SignalBusEnabled turns on the Redis signal subscriber alongside the
	// HTTP intake.
	SignalBusEnabled bool `envconfig:"SIGNAL_BUS_ENABLED" default:"false"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
