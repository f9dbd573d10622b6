// Package metrics exposes the engine's Prometheus counters, served at
// /metrics in Prometheus text exposition format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalsTotal counts submitted signals by outcome
	// (accepted|rejected_blacklist|rejected_invalid|rejected_margin).
	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_signals_total",
			Help: "Submitted signals by outcome",
		},
		[]string{"outcome"},
	)

	// TrancheFillsTotal counts executed batch tranches by trigger reason.
	TrancheFillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_tranche_fills_total",
			Help: "Executed batch entry tranches by trigger reason",
		},
		[]string{"reason"},
	)

	// ClosesTotal counts applied closes by ledger and close reason.
	ClosesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_closes_total",
			Help: "Applied position closes by ledger and reason",
		},
		[]string{"ledger", "reason"},
	)

	// SyncReplaysTotal counts live-mirror replays by result
	// (applied|no_match|skipped|failed).
	SyncReplaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_sync_replays_total",
			Help: "Paper-to-live close replays by result",
		},
		[]string{"result"},
	)

	// MonitorTicksTotal counts monitor evaluations of open positions.
	MonitorTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_monitor_ticks_total",
			Help: "Monitor evaluations of open positions",
		},
	)

	// PriceRefreshErrorsTotal counts failed price cache refreshes.
	PriceRefreshErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_price_refresh_errors_total",
			Help: "Failed price cache refresh cycles",
		},
	)

	// OpenPositions tracks the current number of open positions per ledger.
	OpenPositions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_open_positions",
			Help: "Currently open positions per ledger",
		},
		[]string{"ledger"},
	)
)
