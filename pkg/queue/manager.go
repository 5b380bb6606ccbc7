package queue

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	sql "github.com/timgit/pg-boss-sub002/pkg/queue/sql"
	zap "go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Manager is the queue engine. It is safe for concurrent use by many
// goroutines, and by many processes sharing the same schema.
type Manager struct {
	opts
	conn     pg.PoolConn
	objects  *pg.Queries
	warnings *warnings
	skew     atomic.Int64
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	transientAttempts = 3
	transientDelay    = 50 * time.Millisecond
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a new queue manager. The schema is installed or upgraded unless
// WithMigrate(false) is set.
func New(ctx context.Context, conn pg.PoolConn, opt ...Opt) (*Manager, error) {
	self := new(Manager)

	// Apply options
	if o, err := applyOpts(opt); err != nil {
		return nil, err
	} else {
		self.opts = o
	}

	// Parse query SQL
	queries, err := pg.ParseQueries(sql.Queries)
	if err != nil {
		return nil, err
	}

	// Parse object SQL
	objects, err := pg.ParseQueries(sql.Objects)
	if err != nil {
		return nil, err
	} else {
		self.objects = objects
	}

	// Check and set connection
	if conn == nil {
		return nil, pg.ErrBadParameter.With("connection is nil")
	} else {
		self.conn = conn.WithQueries(queries).With("schema", self.opts.schema).(pg.PoolConn)
	}

	// Warnings are rate limited per type and queue
	self.warnings = newWarnings(self.opts.monitorInterval)

	// Install or upgrade the schema
	if self.opts.migrate {
		if err := self.migrate(ctx); err != nil {
			return nil, err
		}
	}

	// Return success
	return self, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Schema returns the name of the PostgreSQL schema which holds the tables
func (manager *Manager) Schema() string {
	return manager.opts.schema
}

// Conn returns the connection pool, with the queue statements bound
func (manager *Manager) Conn() pg.PoolConn {
	return manager.conn
}

// Log returns the logger
func (manager *Manager) Log() *zap.Logger {
	return manager.opts.log
}

// Channel returns the notification channel for job inserts
func (manager *Manager) Channel() string {
	return manager.opts.schema + schema.TopicJobInsert
}

// Now returns the local time corrected by the last measured difference
// between the database and local clocks
func (manager *Manager) Now() time.Time {
	return time.Now().Add(time.Duration(manager.skew.Load()))
}

// IsInstalled returns true if the schema has been installed
func (manager *Manager) IsInstalled(ctx context.Context) (bool, error) {
	var installed schema.Bool
	if err := manager.conn.Get(ctx, &installed, schema.Installed{}); err != nil {
		return false, err
	}
	return bool(installed), nil
}

// SchemaVersion returns the installed schema version, or zero if the schema
// is not installed
func (manager *Manager) SchemaVersion(ctx context.Context) (int, error) {
	if installed, err := manager.IsInstalled(ctx); err != nil {
		return 0, err
	} else if !installed {
		return 0, nil
	}
	var version schema.Version
	if err := manager.conn.Get(ctx, &version, schema.VersionRequest{}); err != nil {
		return 0, err
	}
	return version.Version, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// notify sends a job insert notification for a queue within a transaction,
// which is delivered on commit
func (manager *Manager) notify(ctx context.Context, conn pg.Conn, name string) error {
	return conn.Get(ctx, nil, schema.Notify{Channel: manager.Channel(), Payload: name})
}

// lock takes a transaction-scoped advisory lock
func lock(ctx context.Context, conn pg.Conn, name ...string) error {
	return conn.Get(ctx, nil, schema.Lock{Name: lockName(name...)})
}

// lockShared takes a transaction-scoped advisory lock which other shared
// holders do not wait for, but an exclusive lock of the same name does
func lockShared(ctx context.Context, conn pg.Conn, name ...string) error {
	return conn.Get(ctx, nil, schema.Lock{Name: lockName(name...), Shared: true})
}

// tryLock takes a transaction-scoped advisory lock, and returns false if
// another transaction holds it
func tryLock(ctx context.Context, conn pg.Conn, name ...string) (bool, error) {
	var locked schema.Bool
	if err := conn.Get(ctx, &locked, schema.Lock{Name: lockName(name...), Try: true}); err != nil {
		return false, err
	}
	return bool(locked), nil
}

// lockName joins the parts of a lock name, each prefixed with its length,
// so that different parts never join to the same name
func lockName(parts ...string) string {
	var name strings.Builder
	for _, part := range parts {
		name.WriteString(strconv.Itoa(len(part)))
		name.WriteByte(':')
		name.WriteString(part)
	}
	return name.String()
}

// retry runs fn again when it fails with a transient error, such as a
// serialization failure or deadlock, up to three attempts in total
func (manager *Manager) retry(ctx context.Context, fn func() error) error {
	var err error
	delay := transientDelay
	for attempt := 0; attempt < transientAttempts; attempt++ {
		if err = fn(); err == nil || !pg.IsTransient(err) {
			return err
		}
		manager.log.Debug("transient error", zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}
	return err
}
