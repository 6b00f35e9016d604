// Package metrics holds the Prometheus instruments exported by a node.
package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the ledger host.
type Metrics struct {
	CallsTotal      *prometheus.CounterVec
	SettledReward   prometheus.Counter
	UpvoteValue     prometheus.Counter
	RequestDuration *prometheus.HistogramVec
}

// New registers the ledger metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tolask",
				Name:      "calls_total",
				Help:      "Executed ledger calls by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		SettledReward: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tolask",
			Name:      "settled_reward_total",
			Help:      "Question rewards paid to correct answers",
		}),
		UpvoteValue: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tolask",
			Name:      "upvote_value_total",
			Help:      "Value attached to answer upvotes",
		}),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tolask",
				Name:      "rpc_request_duration_seconds",
				Help:      "JSON-RPC request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

// ObserveCall counts one executed call.
func (m *Metrics) ObserveCall(typ string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.CallsTotal.WithLabelValues(typ, outcome).Inc()
}

// AddAmount adds an arbitrary-precision amount to c. Counters are float64,
// so very large amounts lose precision.
func AddAmount(c prometheus.Counter, amount *big.Int) {
	if c == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	f, _ := new(big.Float).SetInt(amount).Float64()
	c.Add(f)
}
