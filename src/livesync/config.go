package livesync

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ReplayInterval is how often unreplayed close events are drained.
	ReplayInterval time.Duration `envconfig:"LIVESYNC_REPLAY_INTERVAL" default:"30s"`
	// ReplayBatchSize bounds one drain pass.
	ReplayBatchSize int `envconfig:"LIVESYNC_REPLAY_BATCH_SIZE" default:"50"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
