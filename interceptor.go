package atlasdb

import (
	"context"
	"database/sql/driver"
)

// OnAcquireHook is the caller-supplied per-connection visitor. The
// InterceptorDataSource invokes it exactly once on each new physical
// connection the pool dials, before the pool stores or hands out that
// connection; a connection handed out again from the idle set does not run
// it again. It is expected to be cheap and must not block on I/O beyond a
// short health check (spec.md §4.2).
type OnAcquireHook func(driver.Conn) error

// dataSource is the minimal surface the InterceptorDataSource wraps. In
// this module it is always a DriverAdapter plus the connection parameters
// needed to redial; it is its own small interface so tests can substitute
// a fake without standing up a real driver.
type dataSource interface {
	getConnection(ctx context.Context) (driver.Conn, error)
}

// adapterSource adapts a DriverAdapter + fixed parameters into a
// dataSource, mirroring how the teacher library's NetDriver/HTTPDriver
// closed over a fixed address.
type adapterSource struct {
	adapter     DriverAdapter
	url         string
	driverClass string
	props       map[string]string
}

func (s *adapterSource) getConnection(ctx context.Context) (driver.Conn, error) {
	return s.adapter.Materialize(ctx, s.url, s.driverClass, s.props)
}

// InterceptorDataSource wraps an underlying dataSource and a single
// on-acquire visitor, implementing spec.md §4.2 exactly: delegate, invoke
// the visitor on success, and on visitor failure close the connection
// before surfacing HookError — the same shape as the teacher library's
// releaseWrapper/closeWrapper, which decorate a raw net.Conn so that
// Close() always routes back through the pool's bookkeeping.
type InterceptorDataSource struct {
	underlying dataSource
	onAcquire  OnAcquireHook
}

// NewInterceptorDataSource wraps underlying with hook. A nil hook is
// treated as a no-op visitor.
func NewInterceptorDataSource(underlying dataSource, hook OnAcquireHook) *InterceptorDataSource {
	if hook == nil {
		hook = func(driver.Conn) error { return nil }
	}
	return &InterceptorDataSource{underlying: underlying, onAcquire: hook}
}

// GetConnection implements spec.md §4.2's get_connection() operation.
func (s *InterceptorDataSource) GetConnection(ctx context.Context) (driver.Conn, error) {
	conn, err := s.underlying.getConnection(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.onAcquire(conn); err != nil {
		_ = conn.Close()
		return nil, &HookError{Err: err}
	}
	return conn, nil
}
