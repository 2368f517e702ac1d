package atlasdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	_ "github.com/lib/pq"           // registers "postgres"
	_ "github.com/mattn/go-sqlite3" // registers "sqlite3"
)

// lookupDriver resolves a registered database/sql driver by name without
// opening a connection: sql.Open is lazy for every driver in this module's
// dependency set, so DB.Driver() just hands back the registered
// driver.Driver reference. This lets the Pool Engine own pooling
// (materializing raw driver.Conn values) instead of database/sql's.
func lookupDriver(name string) (driver.Driver, error) {
	db, err := sql.Open(name, "")
	if err != nil {
		return nil, fmt.Errorf("resolving driver %q: %w", name, err)
	}
	defer db.Close()
	return db.Driver(), nil
}

// DriverAdapter is the out-of-scope collaborator named in spec.md §1: it
// materializes a fresh physical connection given a URL, driver class name
// and property bag. Implementations must be safe for concurrent use.
type DriverAdapter interface {
	// Materialize dials a new physical connection. props is opaque to the
	// caller: at minimum it carries login, password, socket/connect
	// timeouts, and any SSL properties injected by synthesizeOracleSSL.
	Materialize(ctx context.Context, url, driverClass string, props map[string]string) (driver.Conn, error)
}

// newDriverAdapter picks the concrete adapter for a db_kind. Oracle has no
// real Go driver in this module's dependency set (see SPEC_FULL.md): its
// adapter's Materialize always fails with a typed DriverError wrapping
// errDriverUnavailable. The Oracle property-bag synthesis happens before
// that, in buildDriverProps.
func newDriverAdapter(kind DBKind) DriverAdapter {
	switch kind {
	case DBKindPostgres:
		return &sqlDriverAdapter{kind: kind, registeredName: "postgres"}
	case DBKindH2:
		return &sqlDriverAdapter{kind: kind, registeredName: "sqlite3"}
	case DBKindOracle:
		return &oracleAdapter{}
	default:
		return &oracleAdapter{kind: kind}
	}
}

// sqlDriverAdapter materializes connections through a database/sql/driver
// registered under registeredName (lib/pq for Postgres, go-sqlite3 as the
// H2-analog embedded driver), bypassing database/sql's own pool entirely:
// this module owns pooling via the Pool Engine, so we want the raw
// driver.Conn, not a *sql.DB.
type sqlDriverAdapter struct {
	kind           DBKind
	registeredName string
}

func (a *sqlDriverAdapter) Materialize(ctx context.Context, url, driverClass string, props map[string]string) (driver.Conn, error) {
	d, err := lookupDriver(a.registeredName)
	if err != nil {
		return nil, &DriverError{DBKind: a.kind, Err: err}
	}

	dsn := dsnFor(a.kind, url, props)

	type result struct {
		conn driver.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := d.Open(dsn)
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, &DriverError{DBKind: a.kind, Err: r.err}
		}
		return r.conn, nil
	case <-ctx.Done():
		return nil, &DriverError{DBKind: a.kind, Err: ctx.Err()}
	}
}

// dsnFor builds the connection string handed to driver.Open. Postgres
// takes key=value pairs; sqlite3 takes the bare path/URL with the login
// properties dropped (the H2-analog substitute has no authentication).
func dsnFor(kind DBKind, url string, props map[string]string) string {
	switch kind {
	case DBKindPostgres:
		dsn := fmt.Sprintf("%s user=%s password=%s", url, props["user"], props["password"])
		if t, ok := props["connectTimeout"]; ok && t != "0" {
			dsn += fmt.Sprintf(" connect_timeout=%s", t)
		}
		return dsn
	default:
		return url
	}
}

// oracleAdapter always fails to dial: no Oracle driver is part of this
// module. The Oracle SSL/property-bag synthesis is done separately, by
// synthesizeOracleSSL (ssl.go) when buildDriverProps assembles the props
// this adapter receives. Callers configured for ORACLE get a clear, typed
// error rather than a silently-wrong connection.
type oracleAdapter struct {
	kind DBKind
}

func (a *oracleAdapter) Materialize(ctx context.Context, url, driverClass string, props map[string]string) (driver.Conn, error) {
	kind := a.kind
	if kind == "" {
		kind = DBKindOracle
	}
	return nil, &DriverError{DBKind: kind, Err: errDriverUnavailable}
}
