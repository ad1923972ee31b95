package metrics

import (
	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/meridian-fi/mvm/internal/types"
	"github.com/meridian-fi/mvm/internal/utils"
)

var (
	// Operation metrics
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mvm_operations_total",
			Help: "Total number of vault entry-point calls",
		},
		[]string{"op", "status"},
	)

	// Fund metrics
	TotalManagedFunds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mvm_total_managed_funds",
			Help: "Total managed funds per asset in base units",
		},
		[]string{"asset"},
	)

	IdleFunds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mvm_idle_funds",
			Help: "Idle funds per asset in base units",
		},
		[]string{"asset"},
	)

	InvestedFunds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mvm_invested_funds",
			Help: "Invested funds per asset in base units",
		},
		[]string{"asset"},
	)

	ShareSupply = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mvm_share_supply",
		Help: "Total vault share supply",
	})
)

// ObserveOperation records one entry-point call outcome.
func ObserveOperation(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	OperationsTotal.WithLabelValues(op, status).Inc()
}

// PublishFunds refreshes the fund gauges from a fresh ledger read.
func PublishFunds(funds []types.AssetFunds, supply sdkmath.Int) {
	for _, f := range funds {
		if total, err := utils.IntToDisplay(f.Total, 0); err == nil {
			TotalManagedFunds.WithLabelValues(f.Asset).Set(total)
		}
		if idle, err := utils.IntToDisplay(f.Idle, 0); err == nil {
			IdleFunds.WithLabelValues(f.Asset).Set(idle)
		}
		if invested, err := utils.IntToDisplay(f.Invested, 0); err == nil {
			InvestedFunds.WithLabelValues(f.Asset).Set(invested)
		}
	}
	if s, err := utils.IntToDisplay(supply, 0); err == nil {
		ShareSupply.Set(s)
	}
}
