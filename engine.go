package atlasdb

import (
	"context"
	"database/sql/driver"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// connRecord is the internal ConnectionRecord of spec.md §3.
type connRecord struct {
	physical       driver.Conn
	bornAt         time.Time
	lastReturnedAt time.Time
	inUse          bool
	checkedOutAt   time.Time
	checkoutID     uuid.UUID
}

// Engine is the Pool Engine of spec.md §4.3: a bounded, multi-producer/
// multi-consumer queue of idle connections with a validator that runs a
// lightweight test query on checkout. It is grounded on the teacher
// library's Pool (pool.go): a channel-backed idle bag plus an atomic
// admission counter bounding outstanding connections (I7), generalized
// from the teacher's single `chan *Conn` + `connsCount int32` pair into an
// explicit limit/total/busy/waiting set of atomic counters so set_max_size
// can move the admission threshold independently of channel capacity.
type Engine struct {
	cfg    *PoolConfig
	source *InterceptorDataSource
	logger *zap.Logger
	metrics MetricsSink

	idle chan *connRecord // fixed capacity = cfg.MaxConnections + cfg.Overdrive

	limit   atomic.Int32 // current admission threshold (max_size)
	total   atomic.Int32 // idle + busy live physical connections
	busy    atomic.Int32
	waiting atomic.Int32
	closed  atomic.Bool

	mu      sync.Mutex
	records map[*connRecord]struct{} // all live records, for reap() and Release() lookup

	reapStop chan struct{}
	reapWG   sync.WaitGroup
}

// NewEngine constructs an Engine. It does not dial any connections; call
// start() to warm the pool.
func NewEngine(cfg *PoolConfig, source *InterceptorDataSource, logger *zap.Logger, metrics MetricsSink) *Engine {
	if logger == nil {
		logger = baseLogger
	}
	if metrics == nil {
		metrics = noopSink{}
	}
	e := &Engine{
		cfg:      cfg,
		source:   source,
		logger:   logger.With(zap.String("conn_id", cfg.ConnID)),
		metrics:  metrics,
		idle:     make(chan *connRecord, int(cfg.MaxConnections)+int(cfg.Overdrive)),
		records:  make(map[*connRecord]struct{}),
		reapStop: make(chan struct{}),
	}
	e.limit.Store(int32(cfg.MaxConnections))
	return e
}

// start allocates up to min_connections initially, per spec.md §4.3. It is
// fatal (InitError-wrapped by the caller) if min_connections can't be
// reached within connect_timeout_s.
func (e *Engine) start(ctx context.Context) error {
	deadline := time.Duration(e.cfg.ConnectTimeoutS) * time.Second
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	startCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	for i := 0; i < e.cfg.MinConnections; i++ {
		rec, err := e.dial(startCtx)
		if err != nil {
			return err
		}
		rec.inUse = false
		rec.lastReturnedAt = time.Now()
		e.idle <- rec
	}

	e.reapWG.Add(1)
	go e.reapLoop()
	return nil
}

// dial materializes a brand new connection through the interceptor data
// source, registers its record, and increments total. Callers are
// responsible for admission control (tryAdmit) except during start(),
// which bypasses it to reach min_connections deterministically.
func (e *Engine) dial(ctx context.Context) (*connRecord, error) {
	physical, err := e.source.GetConnection(ctx)
	if err != nil {
		return nil, err
	}
	rec := &connRecord{physical: physical, bornAt: time.Now()}

	e.mu.Lock()
	e.records[rec] = struct{}{}
	e.mu.Unlock()
	e.total.Add(1)
	return rec, nil
}

// tryAdmit atomically reserves one admission slot, enforcing I7: the
// total number of outstanding physical connections never exceeds
// engine.max_size at the time of checkout admission. Grounded on the
// teacher library's counter.increment() CAS loop (atomic.go).
func (e *Engine) tryAdmit() bool {
	for {
		n := e.total.Load()
		if n >= e.limit.Load() {
			return false
		}
		if e.total.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (e *Engine) undoAdmit() { e.total.Add(-1) }

// acquire implements spec.md §4.3's acquire(timeout_ms).
func (e *Engine) acquire(ctx context.Context, timeout time.Duration) (driver.Conn, error) {
	if e.closed.Load() {
		return nil, &PoolClosed{}
	}

	deadline := time.Now().Add(timeout)

	for {
		select {
		case rec, ok := <-e.idle:
			if !ok {
				return nil, &PoolClosed{}
			}
			if conn, err, retry := e.checkout(ctx, rec); !retry {
				return conn, err
			}
			continue
		default:
		}

		if e.tryAdmit() {
			rec, err := e.dial(ctx)
			// dial counts a new connection in total itself, so the slot
			// reserved by tryAdmit is handed back whether or not it succeeded.
			e.undoAdmit()
			if err != nil {
				return nil, err
			}
			return e.activate(rec), nil
		}

		remaining := time.Until(deadline)
		if timeout > 0 && remaining <= 0 {
			return nil, &CheckoutTimeout{WaitedMS: timeout.Milliseconds()}
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		if timeout > 0 {
			timer = time.NewTimer(remaining)
			timerC = timer.C
		}

		e.waiting.Add(1)
		select {
		case rec, ok := <-e.idle:
			e.waiting.Add(-1)
			if timer != nil {
				timer.Stop()
			}
			if !ok {
				return nil, &PoolClosed{}
			}
			if conn, err, retry := e.checkout(ctx, rec); !retry {
				return conn, err
			}
			continue
		case <-timerC:
			e.waiting.Add(-1)
			return nil, &CheckoutTimeout{WaitedMS: timeout.Milliseconds()}
		case <-ctx.Done():
			e.waiting.Add(-1)
			if timer != nil {
				timer.Stop()
			}
			return nil, &CheckoutTimeout{WaitedMS: timeout.Milliseconds()}
		}
	}
}

// checkout validates an idle record pulled off the wait-list/fast path.
// retry=true tells the caller to loop and try again (the record was
// discarded because it failed validation).
func (e *Engine) checkout(ctx context.Context, rec *connRecord) (conn driver.Conn, err error, retry bool) {
	if verr := e.validate(ctx, rec); verr != nil {
		e.discard(rec)
		return nil, nil, true
	}
	return e.activate(rec), nil, false
}

func (e *Engine) activate(rec *connRecord) driver.Conn {
	rec.inUse = true
	rec.checkedOutAt = time.Now()
	rec.checkoutID = uuid.New()
	e.busy.Add(1)
	return rec.physical
}

// validate runs the config's test query with statement scope bounded to
// the checkout timeout, per spec.md §4.3.
func (e *Engine) validate(ctx context.Context, rec *connRecord) error {
	query := e.cfg.TestQuery

	if timeout := time.Duration(e.cfg.CheckoutTimeoutMS) * time.Millisecond; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stmt driver.Stmt
	var err error
	if cpc, ok := rec.physical.(driver.ConnPrepareContext); ok {
		stmt, err = cpc.PrepareContext(ctx, query)
	} else {
		stmt, err = rec.physical.Prepare(query)
	}
	if err != nil {
		return &ValidationError{Query: query, Err: err}
	}
	defer stmt.Close()

	var rows driver.Rows
	if sqc, ok := stmt.(driver.StmtQueryContext); ok {
		rows, err = sqc.QueryContext(ctx, nil)
	} else {
		rows, err = stmt.Query(nil) //nolint:staticcheck // legacy driver.Stmt.Query signature, pre-dates QueryerContext
	}
	if err != nil {
		return &ValidationError{Query: query, Err: err}
	}
	defer rows.Close()
	return nil
}

// discardLocked closes and forgets rec. Callers must hold e.mu.
func (e *Engine) discardLocked(rec *connRecord) {
	_ = rec.physical.Close()
	delete(e.records, rec)
	e.total.Add(-1)
}

// discard closes and forgets a record that failed validation or aged out.
// A discarded record is never re-queued, per spec.md §4.3's validation
// policy.
func (e *Engine) discard(rec *connRecord) {
	e.mu.Lock()
	e.discardLocked(rec)
	e.mu.Unlock()
}

// requeueOrDiscard returns rec to the idle set, or discards it if the
// engine has since closed or the idle channel is unexpectedly full. The
// closed check and the channel send happen under e.mu — the same lock
// close() holds while draining and closing e.idle — so a concurrent
// close() can never close the channel in the gap between this function's
// closed check and its send (which would otherwise panic with "send on
// closed channel").
func (e *Engine) requeueOrDiscard(rec *connRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		e.discardLocked(rec)
		return
	}
	select {
	case e.idle <- rec:
	default:
		// Idle channel is at capacity (shouldn't normally happen since it
		// is sized to max+overdrive); close the excess rather than block.
		e.discardLocked(rec)
	}
}

// release implements spec.md §4.3's release(conn): marks the record idle,
// evicts it if it has exceeded max_connection_age, otherwise returns it to
// the idle set. Looking the record up by physical connection mirrors the
// connection-pool teacher-adjacent implementation in the pack (the
// final-stage hand-rolled pool in zJUNAIDz-vibe-learning-dump), which
// scans its small conns map by pointer equality rather than keeping a
// second index — a pool's live-connection count is small enough that this
// is cheaper than maintaining a reverse index.
func (e *Engine) release(conn driver.Conn) error {
	e.mu.Lock()
	var rec *connRecord
	for r := range e.records {
		if r.physical == conn {
			rec = r
			break
		}
	}
	if rec == nil {
		e.mu.Unlock()
		if e.closed.Load() {
			return &PoolClosed{}
		}
		return &ConfigError{Field: "conn", Reason: "connection not owned by this engine (double release?)"}
	}
	if !rec.inUse {
		e.mu.Unlock()
		e.logger.Warn("double release detected", zap.String("checkout_id", rec.checkoutID.String()))
		return nil
	}

	rec.inUse = false
	rec.lastReturnedAt = time.Now()
	e.busy.Add(-1)

	if e.closed.Load() {
		e.discardLocked(rec)
		e.mu.Unlock()
		return &PoolClosed{}
	}

	maxAge := time.Duration(e.cfg.MaxConnectionAgeS) * time.Second
	if maxAge > 0 && time.Since(rec.bornAt) > maxAge {
		e.discardLocked(rec)
		e.mu.Unlock()
		return nil
	}

	select {
	case e.idle <- rec:
	default:
		// Idle channel is at capacity (shouldn't normally happen since it
		// is sized to max+overdrive); close the excess rather than block.
		e.discardLocked(rec)
	}
	e.mu.Unlock()
	return nil
}

// setMaxSize implements spec.md §4.3's set_max_size(n): atomically adjusts
// the admission threshold. It never preemptively closes connections if n
// shrinks; it only bars new allocations until outstanding <= n.
func (e *Engine) setMaxSize(n int32) {
	e.limit.Store(n)
}

func (e *Engine) maxSize() int32 { return e.limit.Load() }

// stats implements spec.md §4.3's stats().
func (e *Engine) stats() EngineStats {
	return EngineStats{
		Busy:    int(e.busy.Load()),
		Idle:    len(e.idle),
		Total:   int(e.total.Load()),
		Waiting: int(e.waiting.Load()),
	}
}

// reapLoop runs the periodic coalesced sweep described in spec.md §4.3's
// reap(): evict over-idle connections while respecting min_connections,
// and report (without reclaiming) leaked checkouts.
func (e *Engine) reapLoop() {
	defer e.reapWG.Done()

	interval := time.Duration(e.cfg.MaxIdleTimeS) * time.Second / 4
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			e.reap()
		case <-e.reapStop:
			return
		}
	}
}

// reap performs one coalesced sweep. Tests call it directly for a
// deterministic sweep without waiting for the ticker.
func (e *Engine) reap() {
	idleTimeout := time.Duration(e.cfg.MaxIdleTimeS) * time.Second
	unreturned := time.Duration(e.cfg.UnreturnedConnTimeoutMS) * time.Millisecond
	now := time.Now()

	var kept []*connRecord
drain:
	for {
		select {
		case rec := <-e.idle:
			if idleTimeout > 0 && now.Sub(rec.lastReturnedAt) > idleTimeout && e.total.Load() > int32(e.cfg.MinConnections) {
				e.discard(rec)
				continue
			}
			kept = append(kept, rec)
		default:
			break drain
		}
	}
	for _, rec := range kept {
		e.requeueOrDiscard(rec)
	}

	if unreturned > 0 {
		e.mu.Lock()
		for rec := range e.records {
			if rec.inUse && now.Sub(rec.checkedOutAt) > unreturned {
				e.logger.Warn("possible connection leak",
					zap.String("checkout_id", rec.checkoutID.String()),
					zap.Duration("checked_out_for", now.Sub(rec.checkedOutAt)))
			}
		}
		e.mu.Unlock()
	}
}

// close implements spec.md §4.3's close(): drain and close all records;
// further operations fail with PoolClosed.
func (e *Engine) close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	close(e.reapStop)
	e.reapWG.Wait()

	// Drain the idle channel and close it under e.mu: a closed channel
	// still yields its buffered values to receivers (ok=true) until empty,
	// which would let a blocked acquire() hand out a connection
	// concurrently being closed by the records sweep below, so it must be
	// emptied first. Closing it in the same critical section as the drain
	// also synchronizes against release()/requeueOrDiscard(), which check
	// e.closed and send to e.idle under this same lock — without that,
	// a release() could observe closed==false, then have close() close
	// the channel before the release's send, panicking with "send on
	// closed channel".
	e.mu.Lock()
drain:
	for {
		select {
		case rec := <-e.idle:
			_ = rec.physical.Close()
			delete(e.records, rec)
		default:
			break drain
		}
	}
	for rec := range e.records {
		_ = rec.physical.Close()
	}
	e.records = make(map[*connRecord]struct{})
	close(e.idle)
	e.mu.Unlock()

	e.total.Store(0)
	e.busy.Store(0)
}
