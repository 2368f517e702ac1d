package atlasdb

import (
	"context"
	"database/sql/driver"
	"sync"
	"time"

	"go.uber.org/zap"
)

// pressureReportInterval controls how often the background loop pushes the
// decayed pressure score to the metrics sink. Successful acquires already
// push EngineStats inline, so this loop only needs to cover the idle case
// where nothing is being acquired.
const pressureReportInterval = 5 * time.Second

// Manager is the public entry point of this package: one Manager owns one
// logical pool for one configured endpoint, matching the teacher library's
// top-level Service, generalized from "a set of hosts behind a bandit" down
// to "one endpoint behind an adaptive controller".
type Manager struct {
	cfg  *PoolConfig
	ctrl *controller

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// ManagerOption customizes a Manager at construction time.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	logger    *zap.Logger
	metrics   MetricsSink
	onAcquire OnAcquireHook
}

// WithLogger attaches a zap logger. Without this option the package's
// base logger is used (a no-op unless SetLogger installed another).
func WithLogger(l *zap.Logger) ManagerOption {
	return func(o *managerOptions) { o.logger = l }
}

// WithMetrics attaches a MetricsSink. Without this option metrics are
// discarded.
func WithMetrics(m MetricsSink) ManagerOption {
	return func(o *managerOptions) { o.metrics = m }
}

// WithOnAcquireHook installs the on-acquire visitor. It runs once on each
// new physical connection the pool dials, before that connection is used;
// checking out an idle connection does not run it again.
func WithOnAcquireHook(h OnAcquireHook) ManagerOption {
	return func(o *managerOptions) { o.onAcquire = h }
}

// NewManager validates cfg and builds a Manager in the ZERO state; no
// sockets are opened until Acquire or Init is called. The background
// pressure-reporting loop starts immediately since it does no I/O of its
// own.
func NewManager(cfg *PoolConfig, opts ...ManagerOption) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &managerOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = baseLogger
	}
	if o.metrics == nil {
		o.metrics = noopSink{}
	}

	stub := NewInterceptorDataSource(nil, o.onAcquire)
	ctrl := newController(cfg, stub, o.logger, o.metrics)

	m := &Manager{
		cfg:    cfg,
		ctrl:   ctrl,
		stopCh: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.pressureLoop()
	return m, nil
}

func (m *Manager) pressureLoop() {
	defer m.wg.Done()
	t := time.NewTicker(pressureReportInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.ctrl.metrics.ReportPressure(m.ctrl.Pressure())
		case <-m.stopCh:
			return
		}
	}
}

// Init eagerly performs the ZERO→NORMAL transition (spec.md §4.4's
// explicit init()). Calling this is optional: Acquire performs the same
// transition lazily on first use.
func (m *Manager) Init(ctx context.Context) error {
	return m.ctrl.Init(ctx)
}

// Acquire checks out a connection, implementing spec.md §4.4's acquire()
// state machine including lazy init, overdrive elevation, and cooldown
// demotion.
func (m *Manager) Acquire(ctx context.Context) (driver.Conn, error) {
	return m.ctrl.Acquire(ctx)
}

// Release returns conn to the pool. Releasing a connection not obtained
// from this Manager is reported as a ConfigError. Releasing the same
// connection twice is idempotent: the second call logs a warning and
// returns nil rather than erroring.
func (m *Manager) Release(conn driver.Conn) error {
	return m.ctrl.Release(conn)
}

// Stats reports the current pool occupancy (spec.md §6).
func (m *Manager) Stats() EngineStats {
	return m.ctrl.Stats()
}

// Pressure reports the decayed checkout-timeout pressure estimate.
func (m *Manager) Pressure() float64 {
	return m.ctrl.Pressure()
}

// Close stops the pool: the background pressure loop, the engine's reaper,
// and every live physical connection. Close is idempotent and safe to call
// concurrently with in-flight Acquire calls, which will observe PoolClosed.
func (m *Manager) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	return m.ctrl.Close()
}
