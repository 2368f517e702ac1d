package atlasdb

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// fakeConn is a minimal driver.Conn used across this package's tests in
// place of a real database connection, in the spirit of the teacher
// library's customDriver/echoServer test fixtures (net_test.go), which
// stood in a fake transport so pool logic could be exercised without a
// live dependency.
type fakeConn struct {
	mu       sync.Mutex
	closed   bool
	failNext bool // makes the next Query fail validation once
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("fakeConn: use after close")
	}
	return &fakeStmt{conn: c}, nil
}

func (c *fakeConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	return c.Prepare(query)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Begin() (driver.Tx, error) {
	return nil, errors.New("fakeConn: transactions not supported")
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeStmt struct {
	conn *fakeConn
}

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return -1 }
func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	return driver.ResultNoRows, nil
}

func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	s.conn.mu.Lock()
	fail := s.conn.failNext
	s.conn.failNext = false
	s.conn.mu.Unlock()
	if fail {
		return nil, errors.New("fakeConn: simulated validation failure")
	}
	return &fakeRows{}, nil
}

type fakeRows struct{ read bool }

func (r *fakeRows) Columns() []string { return []string{"1"} }
func (r *fakeRows) Close() error      { return nil }
func (r *fakeRows) Next(dest []driver.Value) error {
	if r.read {
		return io.EOF
	}
	r.read = true
	dest[0] = int64(1)
	return nil
}

// fakeDataSource implements dataSource, dialing fakeConns and counting
// how many times it was asked for one.
type fakeDataSource struct {
	dialErr   error
	dialCount atomic.Int32
	conns     sync.Map // *fakeConn -> struct{}
}

func (s *fakeDataSource) getConnection(ctx context.Context) (driver.Conn, error) {
	s.dialCount.Add(1)
	if s.dialErr != nil {
		return nil, s.dialErr
	}
	c := &fakeConn{}
	s.conns.Store(c, struct{}{})
	return c, nil
}

func newTestEngine(cfg *PoolConfig, src *fakeDataSource) *Engine {
	ids := NewInterceptorDataSource(src, nil)
	return NewEngine(cfg, ids, nil, nil)
}

func testConfig() *PoolConfig {
	cfg := &PoolConfig{
		ConnID:                  "test",
		URL:                     "fake://test",
		DBKind:                  DBKindH2,
		MinConnections:          1,
		MaxConnections:          2,
		CheckoutTimeoutMS:       200,
		MaxConnectionAgeS:       0,
		MaxIdleTimeS:            0,
		ConnectTimeoutS:         5,
		UnreturnedConnTimeoutMS: 0,
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}
