// Package metrics holds the Prometheus collectors for matchmaking.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "matching"

// Collectors groups every matchmaking metric
type Collectors struct {
	Enqueued          *prometheus.CounterVec
	PairsConfirmed    prometheus.Counter
	LostRaces         prometheus.Counter
	PairingFailures   prometheus.Counter
	Expired           prometheus.Counter
	Cancelled         prometheus.Counter
	ActiveConnections prometheus.Gauge
	RejectedSockets   *prometheus.CounterVec
	PairingDuration   prometheus.Histogram
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		Enqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enqueue_total",
			Help:      "Enqueue attempts by result",
		}, []string{"result"}),
		PairsConfirmed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_confirmed_total",
			Help:      "Pairs atomically removed from the queue store",
		}),
		LostRaces: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lost_races_total",
			Help:      "Pair candidates skipped because one side was already consumed or expired",
		}),
		PairingFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairing_failures_total",
			Help:      "Background pairing walks that ended with an error",
		}),
		Expired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_total",
			Help:      "Queue entries purged after their sentinel expired",
		}),
		Cancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancelled_total",
			Help:      "Queue entries withdrawn by cancel or disconnect",
		}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Authenticated realtime connections",
		}),
		RejectedSockets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_connections_total",
			Help:      "Realtime connections refused at handshake",
		}, []string{"reason"}),
		PairingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pairing_duration_seconds",
			Help:      "Duration of one pairing walk",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
