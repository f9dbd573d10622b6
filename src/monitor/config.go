package monitor

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// TickInterval is the per-position evaluation period. The first tick runs
	// immediately on promotion to open.
	TickInterval time.Duration `envconfig:"MONITOR_TICK_INTERVAL" default:"15m"`
	// ScanInterval is how often the open-position set is re-enumerated to
	// find due ticks.
	ScanInterval time.Duration `envconfig:"MONITOR_SCAN_INTERVAL" default:"1m"`
	// StrengthLookbackHours bounds how stale a strength reading may be.
	StrengthLookbackHours int `envconfig:"MONITOR_STRENGTH_LOOKBACK_HOURS" default:"24"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
