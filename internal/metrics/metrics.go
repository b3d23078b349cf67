// Package metrics registers the engine's Prometheus instrumentation, exposed
// by the HTTP admin server on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsTotal counts processed commands by upper-cased name, including
	// PING/QUIT and unknown commands.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nukekv",
		Name:      "commands_total",
		Help:      "Commands processed, by command name.",
	}, []string{"command"})

	// ErrorsTotal counts replies with a 400- or 500-class status.
	ErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nukekv",
		Name:      "errors_total",
		Help:      "Error replies sent to clients.",
	})
)

// StoreStats is the slice of store state the gauge collectors read. The store
// satisfies it without importing this package.
type StoreStats interface {
	Len() int
	TTLCount() int
	MemoryUsed() int64
	Dirty() int64
	Evictions() uint64
	ExpiredKeys() uint64
	SnapshotSaves() uint64
}

// RegisterStore wires the store-derived gauges and counters into the default
// registry.
func RegisterStore(s StoreStats) {
	prometheus.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "nukekv", Name: "keys", Help: "Stored keys.",
		}, func() float64 { return float64(s.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "nukekv", Name: "keys_with_ttl", Help: "Keys carrying a TTL deadline.",
		}, func() float64 { return float64(s.TTLCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "nukekv", Name: "memory_estimate_bytes", Help: "Estimated bytes of stored pairs.",
		}, func() float64 { return float64(s.MemoryUsed()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "nukekv", Name: "dirty_operations", Help: "Mutations since the last successful snapshot.",
		}, func() float64 { return float64(s.Dirty()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "nukekv", Name: "evictions_total", Help: "Keys evicted by the LRU memory limit.",
		}, func() float64 { return float64(s.Evictions()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "nukekv", Name: "expired_keys_total", Help: "Keys removed by TTL expiry.",
		}, func() float64 { return float64(s.ExpiredKeys()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "nukekv", Name: "snapshot_saves_total", Help: "Successful snapshot writes.",
		}, func() float64 { return float64(s.SnapshotSaves()) }),
	)
}
