package atlasdb

import (
	"runtime"
	"time"

	statsd "github.com/cactus/go-statsd-client/v5/statsd"
)

// defaultSampleRate mirrors the teacher library's package-level statsd sample
// rate (global.go's SetStatsdSampleRate), generalized to an instance field
// since a manager has no reason to affect another manager's sampling.
const defaultSampleRate = 1.0

// StatsdSink reports pool metrics to a StatsD daemon, grounded on the
// teacher library's Service (service.go), which held a statsd.Statter and
// pushed conns/hosts gauges from a ticker-driven monitor goroutine.
type StatsdSink struct {
	stats      statsd.Statter
	sampleRate float32
}

// NewStatsdSink dials addr (host:port) and prefixes every metric with
// prefix, e.g. "atlasdb.<conn_id>".
func NewStatsdSink(addr, prefix string) (*StatsdSink, error) {
	cfg := &statsd.ClientConfig{
		Address: addr,
		Prefix:  prefix,
	}
	c, err := statsd.NewClientWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	s := &StatsdSink{stats: c, sampleRate: defaultSampleRate}
	runtime.SetFinalizer(s, func(s *StatsdSink) { _ = s.Close() })
	return s, nil
}

func (s *StatsdSink) ReportStats(st EngineStats) {
	_ = s.stats.Gauge("pool.busy", int64(st.Busy), s.sampleRate)
	_ = s.stats.Gauge("pool.idle", int64(st.Idle), s.sampleRate)
	_ = s.stats.Gauge("pool.total", int64(st.Total), s.sampleRate)
	_ = s.stats.Gauge("pool.waiting", int64(st.Waiting), s.sampleRate)
}

func (s *StatsdSink) ReportSlowAcquire(wait time.Duration, st EngineStats) {
	_ = s.stats.Timing("pool.acquire.slow_ms", wait.Milliseconds(), s.sampleRate)
	s.ReportStats(st)
}

func (s *StatsdSink) ReportPressure(score float64) {
	_ = s.stats.Gauge("pool.pressure", int64(score*100), s.sampleRate)
}

func (s *StatsdSink) Close() error {
	return s.stats.Close()
}
