package atlasdb

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
)

type stubSource struct {
	conn driver.Conn
	err  error
}

func (s *stubSource) getConnection(ctx context.Context) (driver.Conn, error) {
	return s.conn, s.err
}

func TestInterceptorDataSourceNilHookIsNoop(t *testing.T) {
	fc := &fakeConn{}
	ids := NewInterceptorDataSource(&stubSource{conn: fc}, nil)
	conn, err := ids.GetConnection(context.Background())
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	if conn != fc {
		t.Fatal("expected the underlying connection to pass through unchanged")
	}
}

func TestInterceptorDataSourceRunsHookOnSuccess(t *testing.T) {
	fc := &fakeConn{}
	var seen driver.Conn
	calls := 0
	ids := NewInterceptorDataSource(&stubSource{conn: fc}, func(c driver.Conn) error {
		seen = c
		calls++
		return nil
	})
	if _, err := ids.GetConnection(context.Background()); err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	if seen != fc {
		t.Fatal("hook was not invoked with the acquired connection")
	}
	if calls != 1 {
		t.Fatalf("hook invoked %d times, want exactly once per spec's visitor-once property", calls)
	}
}

func TestInterceptorDataSourceClosesConnOnHookFailure(t *testing.T) {
	fc := &fakeConn{}
	hookErr := errors.New("boom")
	ids := NewInterceptorDataSource(&stubSource{conn: fc}, func(c driver.Conn) error {
		return hookErr
	})

	_, err := ids.GetConnection(context.Background())
	var he *HookError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want *HookError", err)
	}
	if !errors.Is(err, hookErr) {
		t.Fatalf("HookError should wrap the hook's error")
	}
	if !fc.isClosed() {
		t.Fatal("connection should be closed when the hook fails")
	}
}

func TestInterceptorDataSourcePropagatesUnderlyingError(t *testing.T) {
	dialErr := errors.New("dial failed")
	ids := NewInterceptorDataSource(&stubSource{err: dialErr}, func(driver.Conn) error {
		t.Fatal("hook must not run when the underlying dial fails")
		return nil
	})
	_, err := ids.GetConnection(context.Background())
	if !errors.Is(err, dialErr) {
		t.Fatalf("err = %v, want dialErr", err)
	}
}
