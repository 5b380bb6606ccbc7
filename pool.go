package pg

import (
	"context"

	// Packages
	pgxpool "github.com/jackc/pgx/v5/pgxpool"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// PoolConn is a connection pool. Statements which are not run within Tx
// each use a connection from the pool.
type PoolConn interface {
	Conn

	// Acquire a connection and ping the server
	Ping(context.Context) error

	// Close all connections
	Close()

	// Close idle connections, and connections in use once released
	Reset()

	// Return a listener, which holds a dedicated connection for LISTEN
	// until it is closed
	Listener() Listener
}

type poolconn struct {
	conn
	pool *pgxpool.Pool
}

// Ensure interfaces are satisfied
var _ PoolConn = (*poolconn)(nil)
var _ querier = (*pgxpool.Pool)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewPool creates a connection pool. Connections are established lazily,
// so use Ping to check the server is reachable.
func NewPool(ctx context.Context, opts ...Opt) (PoolConn, error) {
	o, err := apply(opts...)
	if err != nil {
		return nil, err
	}
	config, err := pgxpool.ParseConfig(o.connString())
	if err != nil {
		return nil, ErrBadParameter.With(err)
	}

	// Set the tracer, and report the connection parameters
	if o.tracer != nil {
		config.ConnConfig.Tracer = o.tracer
		if o.tracer.fn != nil {
			o.tracer.fn(ctx, "CONNECT", o.params("password"), nil)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, pgerror(err)
	}

	// Return success
	return &poolconn{conn{q: pool, bind: o.bind}, pool}, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (p *poolconn) Ping(ctx context.Context) error {
	return pgerror(p.pool.Ping(ctx))
}

func (p *poolconn) Close() {
	p.pool.Close()
}

func (p *poolconn) Reset() {
	p.pool.Reset()
}

func (p *poolconn) Listener() Listener {
	return newListener(p.pool)
}

// With returns the pool with additional bound parameters
func (p *poolconn) With(params ...any) Conn {
	return &poolconn{conn{q: p.pool, bind: p.bind.Copy(params...)}, p.pool}
}

// WithQueries returns the pool with bound statements
func (p *poolconn) WithQueries(queries ...*Queries) Conn {
	return &poolconn{conn{q: p.pool, bind: p.bind.withQueries(queries...)}, p.pool}
}
