package atlasdb

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink reports pool metrics as Prometheus gauges/histograms,
// grounded on the pack's metrics collector (IAM-timmy1t's
// internal/core/metrics/collector.go), which holds its vectors on a
// struct and registers them once at construction time.
type PrometheusSink struct {
	busy    prometheus.Gauge
	idle    prometheus.Gauge
	total   prometheus.Gauge
	waiting prometheus.Gauge
	pressure prometheus.Gauge
	slowAcquire prometheus.Histogram
}

// NewPrometheusSink creates and registers the pool's metrics on reg. connID
// becomes the "conn_id" constant label so multiple managers can share a
// registry.
func NewPrometheusSink(reg prometheus.Registerer, connID string) (*PrometheusSink, error) {
	labels := prometheus.Labels{"conn_id": connID}
	s := &PrometheusSink{
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "atlasdb_pool_busy",
			Help:        "Number of connections currently checked out.",
			ConstLabels: labels,
		}),
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "atlasdb_pool_idle",
			Help:        "Number of idle connections available for checkout.",
			ConstLabels: labels,
		}),
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "atlasdb_pool_total",
			Help:        "Total live physical connections (idle + busy).",
			ConstLabels: labels,
		}),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "atlasdb_pool_waiting",
			Help:        "Number of goroutines blocked waiting for a connection.",
			ConstLabels: labels,
		}),
		pressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "atlasdb_pool_pressure",
			Help:        "Decayed checkout-timeout pressure estimate in [0,1].",
			ConstLabels: labels,
		}),
		slowAcquire: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "atlasdb_pool_slow_acquire_seconds",
			Help:        "Duration of acquisitions that exceeded SLOW_ACQUIRE_WARN.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{s.busy, s.idle, s.total, s.waiting, s.pressure, s.slowAcquire} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusSink) ReportStats(st EngineStats) {
	s.busy.Set(float64(st.Busy))
	s.idle.Set(float64(st.Idle))
	s.total.Set(float64(st.Total))
	s.waiting.Set(float64(st.Waiting))
}

func (s *PrometheusSink) ReportSlowAcquire(wait time.Duration, st EngineStats) {
	s.slowAcquire.Observe(wait.Seconds())
	s.ReportStats(st)
}

func (s *PrometheusSink) ReportPressure(score float64) {
	s.pressure.Set(score)
}

func (s *PrometheusSink) Close() error { return nil }
