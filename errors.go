package atlasdb

import (
	"fmt"

	"github.com/google/uuid"
)

// ConfigError reports a missing or invalid PoolConfig option. NewManager
// and Load return it when PoolConfig.Validate rejects a config; no Manager
// is built from that config.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("atlasdb: invalid config field %q: %s", e.Field, e.Reason)
}

// DriverError wraps a failure from the Driver Adapter while materializing
// a physical connection.
type DriverError struct {
	DBKind DBKind
	Err    error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("atlasdb: driver error (%s): %v", e.DBKind, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// CheckoutTimeout is returned when acquire() could not obtain a connection
// within checkout_timeout_ms. In NORMAL state it triggers elevation and one
// retry; a second timeout in ELEVATED is returned to the caller as-is.
type CheckoutTimeout struct {
	WaitedMS int64
}

func (e *CheckoutTimeout) Error() string {
	return fmt.Sprintf("atlasdb: checkout timed out after %dms", e.WaitedMS)
}

// ValidationError reports that a checked-out record failed its test query.
// The record is always discarded; acquire() retries automatically within
// the timeout budget.
type ValidationError struct {
	Query string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("atlasdb: validation query %q failed: %v", e.Query, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// HookError reports that the on-acquire visitor failed. The connection that
// triggered it has already been closed by the time this is returned.
type HookError struct {
	Err error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("atlasdb: on-acquire hook failed: %v", e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// PoolClosed is terminal. It carries the correlation id stamped by the
// close() call that produced it, standing in for a captured stack trace.
type PoolClosed struct {
	CloseTrace uuid.UUID
}

func (e *PoolClosed) Error() string {
	return fmt.Sprintf("atlasdb: pool closed (trace %s)", e.CloseTrace)
}

// InitError reports that init() (including its mandatory test-acquire)
// failed. It leaves the controller retriable, subject to FAILED backoff.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("atlasdb: init failed: %v", e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// AlreadyClosed is returned by an explicit init() call observing CLOSED.
type AlreadyClosed struct {
	CloseTrace uuid.UUID
}

func (e *AlreadyClosed) Error() string {
	return fmt.Sprintf("atlasdb: already closed (trace %s)", e.CloseTrace)
}

// errDriverUnavailable is wrapped in the DriverError returned by driver
// adapters that have no real connector wired in this module (see
// driver.go's oracleAdapter).
var errDriverUnavailable = fmt.Errorf("atlasdb: no driver available for this db_kind in this build")
