package queue

import (
	"errors"
	"os"
	"runtime"
	"time"

	// Packages
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	types "github.com/timgit/pg-boss-sub002/pkg/types"
	trace "go.opentelemetry.io/otel/trace"
	zap "go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Opt is a functional option for the manager and worker pool.
type Opt func(*opts) error

type opts struct {
	// Manager
	schema              string
	log                 *zap.Logger
	tracer              trace.Tracer
	migrate             bool
	catchUp             time.Duration
	scheduleInterval    time.Duration
	maintenanceInterval time.Duration
	monitorInterval     time.Duration
	maintenanceBatch    int
	slowQuery           time.Duration
	clockSkew           time.Duration
	persistWarnings     bool

	// Worker pool
	name      string
	workers   int
	period    time.Duration
	batchSize int
}

////////////////////////////////////////////////////////////////////////////////
// ERRORS

var (
	ErrInvalidWorkers   = errors.New("workers must be >= 1")
	ErrInvalidPeriod    = errors.New("period must be >= 1ms")
	ErrInvalidSchema    = errors.New("invalid schema name")
	ErrInvalidBatchSize = errors.New("batch size must be >= 1")
	ErrInvalidInterval  = errors.New("interval must be >= 1s")
)

////////////////////////////////////////////////////////////////////////////////
// OPTIONS - MANAGER

// WithSchema sets the PostgreSQL schema which holds the queue tables.
// Defaults to pgboss.
func WithSchema(name string) Opt {
	return func(o *opts) error {
		if !types.IsIdentifier(name) {
			return ErrInvalidSchema
		}
		o.schema = name
		return nil
	}
}

// WithLogger sets the logger. Defaults to a logger which discards output.
func WithLogger(log *zap.Logger) Opt {
	return func(o *opts) error {
		if log != nil {
			o.log = log
		}
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer used for worker and supervisor spans.
func WithTracer(tracer trace.Tracer) Opt {
	return func(o *opts) error {
		o.tracer = tracer
		return nil
	}
}

// WithMigrate determines whether the schema is installed or upgraded when
// the manager is created. Defaults to true.
func WithMigrate(migrate bool) Opt {
	return func(o *opts) error {
		o.migrate = migrate
		return nil
	}
}

// WithCatchUp sets how far in the past a missed schedule occurrence still
// fires. Older occurrences are skipped.
func WithCatchUp(d time.Duration) Opt {
	return func(o *opts) error {
		if d < 0 {
			return ErrInvalidInterval
		}
		o.catchUp = d
		return nil
	}
}

// WithScheduleInterval sets how often the scheduler evaluates schedules.
func WithScheduleInterval(d time.Duration) Opt {
	return func(o *opts) error {
		if d < time.Second {
			return ErrInvalidInterval
		}
		o.scheduleInterval = d
		return nil
	}
}

// WithMaintenanceInterval sets how often expiration, archive and deletion
// passes run.
func WithMaintenanceInterval(d time.Duration) Opt {
	return func(o *opts) error {
		if d < time.Second {
			return ErrInvalidInterval
		}
		o.maintenanceInterval = d
		return nil
	}
}

// WithMonitorInterval sets how often queue counts are cached and warnings
// checked.
func WithMonitorInterval(d time.Duration) Opt {
	return func(o *opts) error {
		if d < time.Second {
			return ErrInvalidInterval
		}
		o.monitorInterval = d
		return nil
	}
}

// WithMaintenanceBatch sets the number of rows processed in each
// maintenance batch.
func WithMaintenanceBatch(n int) Opt {
	return func(o *opts) error {
		if n < 1 {
			return ErrInvalidBatchSize
		}
		o.maintenanceBatch = n
		return nil
	}
}

// WithSlowQueryThreshold sets the duration above which the monitor query
// records a slow query warning.
func WithSlowQueryThreshold(d time.Duration) Opt {
	return func(o *opts) error {
		o.slowQuery = d
		return nil
	}
}

// WithClockSkewThreshold sets the difference between database and local
// time above which a clock skew warning is recorded.
func WithClockSkewThreshold(d time.Duration) Opt {
	return func(o *opts) error {
		o.clockSkew = d
		return nil
	}
}

// WithPersistWarnings determines whether warnings are stored in the warning
// table as well as logged. Defaults to true.
func WithPersistWarnings(persist bool) Opt {
	return func(o *opts) error {
		o.persistWarnings = persist
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// OPTIONS - WORKER POOL

// WithWorkerName sets the worker name used to identify this worker instance.
// Defaults to the hostname if not specified.
func WithWorkerName(name string) Opt {
	return func(o *opts) error {
		o.name = name
		return nil
	}
}

// WithWorkers sets the number of concurrent workers shared by all queues.
// Returns ErrInvalidWorkers if n < 1.
func WithWorkers(n int) Opt {
	return func(o *opts) error {
		if n < 1 {
			return ErrInvalidWorkers
		}
		o.workers = n
		return nil
	}
}

// WithPeriod sets the polling period of the worker pool.
// Returns ErrInvalidPeriod if d < 1ms.
func WithPeriod(d time.Duration) Opt {
	return func(o *opts) error {
		if d < time.Millisecond {
			return ErrInvalidPeriod
		}
		o.period = d
		return nil
	}
}

// WithBatchSize sets the maximum number of jobs fetched from a queue in
// each poll.
func WithBatchSize(n int) Opt {
	return func(o *opts) error {
		if n < 1 {
			return ErrInvalidBatchSize
		}
		o.batchSize = n
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func applyOpts(opt []Opt) (opts, error) {
	// Get hostname
	hostname, err := os.Hostname()
	if err != nil {
		return opts{}, err
	}

	// Set defaults
	o := opts{
		schema:              schema.SchemaName,
		log:                 zap.NewNop(),
		migrate:             true,
		catchUp:             schema.CatchUpWindow,
		scheduleInterval:    schema.ScheduleInterval,
		maintenanceInterval: schema.MaintenanceInterval,
		monitorInterval:     schema.MonitorInterval,
		maintenanceBatch:    schema.FetchLimit,
		slowQuery:           schema.SlowQueryThreshold,
		clockSkew:           schema.ClockSkewThreshold,
		persistWarnings:     true,
		name:                hostname,
		workers:             runtime.NumCPU(),
		period:              schema.PollPeriod,
		batchSize:           schema.DefaultBatchSize,
	}

	// Apply options
	for _, fn := range opt {
		if err := fn(&o); err != nil {
			return opts{}, err
		}
	}

	// Return success
	return o, nil
}
