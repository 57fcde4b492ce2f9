package metrics

import (
	"math"
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"daosplit/native/split"
)

type SplitMetrics struct {
	phase           prometheus.Gauge
	escrowed        prometheus.Gauge
	escrowedAtSplit prometheus.Gauge
	moved           prometheus.Gauge
	remainingShares prometheus.Gauge
	redeemed        prometheus.Gauge
	treasury        *prometheus.GaugeVec
	operations      *prometheus.CounterVec
}

var (
	splitOnce     sync.Once
	splitRegistry *SplitMetrics
)

func Split() *SplitMetrics {
	splitOnce.Do(func() {
		splitRegistry = &SplitMetrics{
			phase: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "split_phase",
				Help: "Lifecycle phase: 0 collecting, 1 split triggered.",
			}),
			escrowed: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "split_escrowed_tokens",
				Help: "Number of live deposit records.",
			}),
			escrowedAtSplit: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "split_escrowed_at_split_tokens",
				Help: "Escrow count captured when the phase flipped.",
			}),
			moved: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "split_moved_tokens",
				Help: "Escrowed tokens handed to the treasury holder.",
			}),
			remainingShares: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "split_remaining_shares",
				Help: "Shares not yet redeemed.",
			}),
			redeemed: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "split_redemptions",
				Help: "Accounts that have redeemed.",
			}),
			treasury: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "split_treasury_balance",
				Help: "Pulled treasury balances in base units by asset and kind (captured or remaining).",
			}, []string{"asset", "kind"}),
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "split_operations_total",
				Help: "Engine operations by name and reason code (empty on success).",
			}, []string{"operation", "reason"}),
		}
		prometheus.MustRegister(
			splitRegistry.phase,
			splitRegistry.escrowed,
			splitRegistry.escrowedAtSplit,
			splitRegistry.moved,
			splitRegistry.remainingShares,
			splitRegistry.redeemed,
			splitRegistry.treasury,
			splitRegistry.operations,
		)
	})
	return splitRegistry
}

func (m *SplitMetrics) ObserveStatus(status *split.Status) {
	if m == nil || status == nil {
		return
	}
	m.phase.Set(float64(status.Phase))
	m.escrowed.Set(float64(status.TotalEscrowed))
	m.escrowedAtSplit.Set(float64(status.TotalEscrowedAtSplit))
	m.moved.Set(float64(status.Moved))
	m.remainingShares.Set(float64(status.RemainingShares))
	m.redeemed.Set(float64(status.Redeemed))
}

func (m *SplitMetrics) ObserveTreasury(t *split.Treasury) {
	if m == nil || t == nil {
		return
	}
	entries := append([]split.AssetBalance{t.Native}, t.Assets...)
	for _, entry := range entries {
		asset := strings.ToUpper(entry.Asset)
		if asset == "" {
			asset = split.NativeAsset
		}
		m.treasury.WithLabelValues(asset, "captured").Set(bigToFloat(entry.Captured))
		m.treasury.WithLabelValues(asset, "remaining").Set(bigToFloat(entry.Remaining))
	}
}

// ObserveOperation counts an engine call; err is mapped to its reason code.
func (m *SplitMetrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.operations.WithLabelValues(operation, split.Reason(err)).Inc()
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}
