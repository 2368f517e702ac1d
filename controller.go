package atlasdb

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type stateKind int32

const (
	stateZero stateKind = iota
	stateNormal
	stateElevated
	stateFailed
	stateClosed
)

// poolState is the single immutable snapshot of spec.md §3's PoolState,
// swapped atomically. engine is nil in ZERO, FAILED and CLOSED and set in
// NORMAL and ELEVATED, matching the table in spec.md §3.
type poolState struct {
	kind          stateKind
	engine        *Engine
	elevatedSince time.Time
	closeTrace    uuid.UUID
	failErr       error
	backoffUntil  time.Time
}

// controller is the Adaptive Controller of spec.md §4.4: it owns the
// PoolState snapshot via atomic.Pointer and drives ZERO → NORMAL →
// ELEVATED → NORMAL → CLOSED using compare-and-swap, never holding a lock
// around I/O on the fast path. It is grounded on the teacher library's
// atomic pointer-swap technique (pool.go's `inbound unsafe.Pointer`,
// generalized here via the modern generic atomic.Pointer instead of
// unsafe.Pointer + atomic.go's hand-rolled CAS-loop helpers).
type controller struct {
	cfg     *PoolConfig
	source  *InterceptorDataSource
	logger  *zap.Logger
	metrics MetricsSink

	state    atomic.Pointer[poolState]
	pressure *pressureSeries

	// sf deduplicates the expensive ZERO→NORMAL build across concurrently
	// racing first callers, so only one goroutine pays for engine.start()
	// + the test-acquire while the rest simply observe the CAS'd result.
	// This does not change state-machine semantics (ZERO is still only
	// ever left once); it only avoids a connect-storm.
	sf singleflight.Group

	backoffAttempt atomic.Int32

	// lifecycleMu serializes explicit Init/Close calls against each other
	// and against themselves, per spec.md §5: "init() and close() are
	// mutually exclusive with each other and with themselves". It is
	// never held around acquire()'s fast path.
	lifecycleMu sync.Mutex
}

func newController(cfg *PoolConfig, source *InterceptorDataSource, logger *zap.Logger, metrics MetricsSink) *controller {
	if logger == nil {
		logger = baseLogger
	}
	if metrics == nil {
		metrics = noopSink{}
	}
	c := &controller{
		cfg:      cfg,
		source:   source,
		logger:   logger.With(zap.String("conn_id", cfg.ConnID)),
		metrics:  metrics,
		pressure: newPressureSeries(),
	}
	c.state.Store(&poolState{kind: stateZero})
	return c
}

// Acquire implements spec.md §4.4's acquire() protocol exactly.
func (c *controller) Acquire(ctx context.Context) (driver.Conn, error) {
	start := time.Now()
	timeout := time.Duration(c.cfg.CheckoutTimeoutMS) * time.Millisecond

	for {
		snap := c.state.Load()

		switch snap.kind {
		case stateZero:
			_ = c.ensureNormal(ctx)
			continue

		case stateFailed:
			if time.Now().Before(snap.backoffUntil) {
				return nil, &InitError{Err: snap.failErr}
			}
			_ = c.ensureNormal(ctx)
			continue

		case stateNormal:
			conn, err := snap.engine.acquire(ctx, timeout)
			if err == nil {
				c.pressure.record(false)
				c.onAcquireSuccess(start)
				return conn, nil
			}
			var cte *CheckoutTimeout
			if errors.As(err, &cte) {
				c.pressure.record(true)
				c.elevate(snap)
				continue
			}
			return nil, c.resolveClosed(err)

		case stateElevated:
			if time.Now().After(snap.elevatedSince.Add(DefaultCooldown)) {
				c.demote(snap)
				continue
			}
			conn, err := snap.engine.acquire(ctx, timeout)
			if err != nil {
				return nil, c.resolveClosed(err)
			}
			c.onAcquireSuccess(start)
			return conn, nil

		case stateClosed:
			return nil, &PoolClosed{CloseTrace: snap.closeTrace}

		default:
			return nil, &ConfigError{Field: "state", Reason: "unreachable state kind"}
		}
	}
}

// resolveClosed upgrades a bare PoolClosed bubbled up from the engine
// (which doesn't know the controller's close_trace) with the correlation
// id stamped by the controller's Close.
func (c *controller) resolveClosed(err error) error {
	var pc *PoolClosed
	if errors.As(err, &pc) && pc.CloseTrace == uuid.Nil {
		if cur := c.state.Load(); cur.kind == stateClosed {
			return &PoolClosed{CloseTrace: cur.closeTrace}
		}
	}
	return err
}

func (c *controller) onAcquireSuccess(start time.Time) {
	wait := time.Since(start)
	stats := c.currentStats()
	if wait > DefaultSlowAcquireWarn {
		c.logger.Warn("slow acquire", zap.Duration("wait", wait),
			zap.Int("busy", stats.Busy), zap.Int("idle", stats.Idle),
			zap.Int("total", stats.Total), zap.Int("waiting", stats.Waiting))
		c.metrics.ReportSlowAcquire(wait, stats)
	} else {
		c.logger.Debug("acquire", zap.Duration("wait", wait))
		c.metrics.ReportStats(stats)
	}
}

func (c *controller) currentStats() EngineStats {
	if snap := c.state.Load(); snap.engine != nil {
		return snap.engine.stats()
	}
	return EngineStats{}
}

// elevate promotes NORMAL→ELEVATED in response to a checkout timeout,
// per spec.md §4.4. It bumps the existing engine's admission threshold
// in place (I4: engine.max_size = config.max_connections + OVERDRIVE) and
// publishes a new snapshot wrapping the same engine; the CAS result is
// ignored per the spec pseudocode ("retry regardless") since the caller
// loops unconditionally.
func (c *controller) elevate(snap *poolState) {
	snap.engine.setMaxSize(int32(c.cfg.MaxConnections) + c.cfg.Overdrive)
	next := &poolState{kind: stateElevated, engine: snap.engine, elevatedSince: time.Now()}
	c.state.CompareAndSwap(snap, next)
}

// demote implements the ELEVATED→NORMAL cooldown transition of spec.md
// §4.4 / I5.
func (c *controller) demote(snap *poolState) {
	snap.engine.setMaxSize(int32(c.cfg.MaxConnections))
	next := &poolState{kind: stateNormal, engine: snap.engine}
	c.state.CompareAndSwap(snap, next)
}

// ensureNormal performs (or waits for a concurrent peer to perform) the
// ZERO/FAILED→NORMAL transition, including init()'s mandatory test-acquire.
func (c *controller) ensureNormal(ctx context.Context) error {
	_, err, _ := c.sf.Do("init", func() (interface{}, error) {
		snap := c.state.Load()
		if snap.kind != stateZero && snap.kind != stateFailed {
			return snap, nil
		}
		if snap.kind == stateFailed && time.Now().Before(snap.backoffUntil) {
			return nil, &InitError{Err: snap.failErr}
		}

		next, buildErr := c.buildNormal(ctx)
		if buildErr != nil {
			failed := &poolState{kind: stateFailed, failErr: buildErr, backoffUntil: time.Now().Add(c.nextBackoff())}
			c.state.CompareAndSwap(snap, failed)
			return nil, &InitError{Err: buildErr}
		}
		c.backoffAttempt.Store(0)
		c.state.CompareAndSwap(snap, next)
		return next, nil
	})
	return err
}

func (c *controller) nextBackoff() time.Duration {
	n := c.backoffAttempt.Add(1) - 1
	if n > 9 {
		n = 9
	}
	d := 100 * time.Millisecond * time.Duration(int64(1)<<uint(n))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// buildNormal runs init()'s documented work: SSL material setup and
// property-bag assembly (buildDriverProps, which runs synthesizeOracleSSL
// for Oracle), engine start, and the mandatory test-acquire. A failure
// here fails init and closes any partially started engine.
func (c *controller) buildNormal(ctx context.Context) (*poolState, error) {
	props, effectiveURL := buildDriverProps(c.cfg)
	adapter := newDriverAdapter(c.cfg.DBKind)
	src := NewInterceptorDataSource(&adapterSource{
		adapter:     adapter,
		url:         effectiveURL,
		driverClass: c.cfg.DriverClass,
		props:       props,
	}, c.source.onAcquire)

	eng := NewEngine(c.cfg, src, c.logger, c.metrics)
	if err := eng.start(ctx); err != nil {
		eng.close()
		return nil, err
	}

	timeout := time.Duration(c.cfg.CheckoutTimeoutMS) * time.Millisecond
	conn, err := eng.acquire(ctx, timeout)
	if err != nil {
		eng.close()
		return nil, err
	}
	if err := eng.release(conn); err != nil {
		eng.close()
		return nil, err
	}

	return &poolState{kind: stateNormal, engine: eng}, nil
}

// Init implements spec.md §4.4's explicit init(): eager ZERO→NORMAL,
// idempotent in NORMAL/ELEVATED, AlreadyClosed in CLOSED.
func (c *controller) Init(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	snap := c.state.Load()
	switch snap.kind {
	case stateNormal, stateElevated:
		return nil
	case stateClosed:
		return &AlreadyClosed{CloseTrace: snap.closeTrace}
	default:
		return c.ensureNormal(ctx)
	}
}

// Close implements spec.md §4.4's close(): serialized against itself,
// idempotent, publishes CLOSED{close_trace}.
func (c *controller) Close() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	snap := c.state.Load()
	if snap.kind == stateClosed {
		return nil
	}
	if snap.engine != nil {
		snap.engine.close()
	}
	trace := uuid.New()
	c.state.Store(&poolState{kind: stateClosed, closeTrace: trace})
	c.logger.Info("pool closed", zap.String("close_trace", trace.String()))
	return nil
}

// Release returns a connection through the engine currently backing the
// pool. It is safe to call after an elevation/demotion raced past the
// connection's checkout, since both NORMAL and ELEVATED states of a given
// lifetime always wrap the same *Engine.
func (c *controller) Release(conn driver.Conn) error {
	snap := c.state.Load()
	if snap.engine == nil {
		return &PoolClosed{CloseTrace: snap.closeTrace}
	}
	return snap.engine.release(conn)
}

// Stats implements spec.md §6's observability interface.
func (c *controller) Stats() EngineStats {
	return c.currentStats()
}

// Pressure returns the controller's decayed checkout-timeout pressure
// estimate in [0,1]. Observational only.
func (c *controller) Pressure() float64 {
	return c.pressure.score()
}
