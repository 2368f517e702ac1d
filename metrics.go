package atlasdb

import "time"

// EngineStats is the observability snapshot exposed by the Pool Engine
// (spec.md §4.3 stats(), §6 Observability interface).
type EngineStats struct {
	Busy    int
	Idle    int
	Total   int
	Waiting int
}

// MetricsSink is the out-of-scope "Metrics/JMX sink" collaborator named in
// spec.md §1: purely observational, never consulted for pool decisions.
// This module ships two concrete sinks (StatsD and Prometheus); either can
// be swapped in, or MetricsSink can be implemented by an embedding
// service.
type MetricsSink interface {
	// ReportStats is called with the current snapshot after each
	// successful acquire that was not slow; release does not call it.
	ReportStats(stats EngineStats)
	// ReportSlowAcquire is called when an acquisition took longer than
	// SLOW_ACQUIRE_WARN.
	ReportSlowAcquire(wait time.Duration, stats EngineStats)
	// ReportPressure is called periodically with the controller's decayed
	// checkout-timeout pressure estimate (see pressure.go), in [0,1].
	ReportPressure(score float64)
	// Close releases any resources held by the sink (e.g. a statsd
	// socket).
	Close() error
}

// noopSink is the default MetricsSink when none is configured.
type noopSink struct{}

func (noopSink) ReportStats(EngineStats)                    {}
func (noopSink) ReportSlowAcquire(time.Duration, EngineStats) {}
func (noopSink) ReportPressure(float64)                      {}
func (noopSink) Close() error                                { return nil }
