package test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	testcontainers "github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	wait "github.com/testcontainers/testcontainers-go/wait"
	zap "go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Conn is shared by the tests in a package, and is set up by Main
type Conn struct {
	pg.PoolConn
	err error
}

// PoolConn is returned by Begin. Closing it does not close the shared pool.
type PoolConn struct {
	pg.PoolConn
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	pgxContainer = "postgres:17-alpine"
	pgxDatabase  = "pgboss_test"
	pgxUser      = "postgres"
	pgxPassword  = "password"
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// Main starts a PostgreSQL container, runs the tests and then terminates
// the container. When the container cannot be started (for example, docker
// is not available) tests which call Begin are skipped.
func Main(m *testing.M, conn *Conn) {
	ctx := context.Background()

	container, pool, err := NewPgxContainer(ctx, testing.Verbose())
	if err != nil {
		conn.err = err
	} else {
		conn.PoolConn = pool
	}

	// Run the tests
	code := m.Run()

	// Terminate the container
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		if err := container.Terminate(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "terminate container:", err)
		}
	}

	os.Exit(code)
}

// NewPgxContainer creates a new PostgreSQL container and connection pool. When
// verbose is true, queries are logged.
func NewPgxContainer(ctx context.Context, verbose bool) (*pgmodule.PostgresContainer, pg.PoolConn, error) {
	container, err := pgmodule.Run(ctx, pgxContainer,
		pgmodule.WithDatabase(pgxDatabase),
		pgmodule.WithUsername(pgxUser),
		pgmodule.WithPassword(pgxPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, errors.Join(err, container.Terminate(ctx))
	}

	// Options
	opts := []pg.Opt{
		pg.WithURL(url),
		pg.WithMaxConns(20),
		pg.WithApplicationName("pgboss_test"),
	}
	if verbose {
		logger := zap.NewExample()
		opts = append(opts, pg.WithTrace(func(_ context.Context, sql string, args any, err error) {
			if err != nil {
				logger.Warn(sql, zap.Any("args", args), zap.Error(err))
			} else {
				logger.Debug(sql, zap.Any("args", args))
			}
		}))
	}

	// Create a connection pool
	pool, err := pg.NewPool(ctx, opts...)
	if err != nil {
		return nil, nil, errors.Join(err, container.Terminate(ctx))
	} else if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, errors.Join(err, container.Terminate(ctx))
	}

	// Return success
	return container, pool, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Begin returns the shared pool, or skips the test when there is no
// database available
func (c *Conn) Begin(t *testing.T) *PoolConn {
	t.Helper()
	if c.PoolConn == nil {
		t.Skip("database not available: ", c.err)
	}
	return &PoolConn{c.PoolConn}
}

// Close does nothing, the pool is closed when all tests have completed
func (c *PoolConn) Close() {}
