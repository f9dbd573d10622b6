package batch

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"positionengine/src/model"
)

type Config struct {
	// ScanInterval is how often building positions are re-examined for
	// tranche progress.
	ScanInterval time.Duration `envconfig:"BATCH_SCAN_INTERVAL" default:"30s"`
	// GraceMinutes is the slack past the final tranche deadline before a
	// stalled plan is force-promoted to open.
	GraceMinutes int `envconfig:"BATCH_GRACE_MINUTES" default:"10"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// DefaultPlan is the standard three-tranche entry: 30/30/40% with deadlines
// at 10/20/30 minutes from the signal and deepening pullback triggers.
func DefaultPlan() model.BatchPlan {
	return model.BatchPlan{
		Tranches: []model.BatchTranche{
			{Ratio: 0.3, TimeoutMinutes: 10, PullbackPct: 0.3},
			{Ratio: 0.3, TimeoutMinutes: 20, PullbackPct: 0.8},
			{Ratio: 0.4, TimeoutMinutes: 30, PullbackPct: 1.5},
		},
	}
}
