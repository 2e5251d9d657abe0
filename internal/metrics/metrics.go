// Package metrics exposes the replication core's Prometheus instrumentation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds every metric the replication controller and ring
// update. It is safe for concurrent use, since the underlying
// prometheus collectors are.
type Collector struct {
	RingDepth        prometheus.Gauge
	CommandsReplied  prometheus.Counter
	SDBAnchorsIssued prometheus.Counter
	EvictionsTotal   prometheus.Counter
	ActiveReplicas   prometheus.Gauge
	ReplicaLag       *prometheus.GaugeVec
}

// New constructs a Collector and registers it against reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		RingDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replcore",
			Name:      "ring_depth",
			Help:      "Number of slots currently retained in the ring buffer.",
		}),
		CommandsReplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replcore",
			Name:      "commands_replicated_total",
			Help:      "Total number of command records inserted into the ring.",
		}),
		SDBAnchorsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replcore",
			Name:      "sdb_anchors_issued_total",
			Help:      "Total number of SDB anchor elements inserted into the ring.",
		}),
		EvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replcore",
			Name:      "reader_evictions_total",
			Help:      "Total number of replicas evicted for falling behind.",
		}),
		ActiveReplicas: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replcore",
			Name:      "active_replicas",
			Help:      "Number of currently registered replica readers.",
		}),
		ReplicaLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "replcore",
			Name:      "replica_lag_elements",
			Help:      "Approximate number of unread ring elements per replica.",
		}, []string{"reader_id"}),
	}

	reg.MustRegister(
		c.RingDepth,
		c.CommandsReplied,
		c.SDBAnchorsIssued,
		c.EvictionsTotal,
		c.ActiveReplicas,
		c.ReplicaLag,
	)
	return c
}
