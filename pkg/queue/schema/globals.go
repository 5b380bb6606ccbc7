package schema

import (
	"encoding/json"
	"time"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// SchemaName is the default PostgreSQL schema which holds the queue tables
	SchemaName = "pgboss"

	// SchemaVersion is the version installed by the current migrations
	SchemaVersion = 1

	// DefaultPartition is the job table partition for queues without a
	// dedicated partition
	DefaultPartition = "job_common"

	// TopicJobInsert is the pg_notify channel suffix for job inserts. The
	// channel is <schema>_job_insert and the payload is the queue name.
	TopicJobInsert = "_job_insert"
)

// Defaults for queues and jobs
const (
	DefaultRetryLimit    = 2
	DefaultExpireIn      = 15 * time.Minute
	DefaultRetention     = 14 * 24 * time.Hour
	DefaultDeletion      = 7 * 24 * time.Hour
	DefaultRetryDelayMax = time.Hour
	DefaultBatchSize     = 1
)

// Limits
const (
	QueueListLimit    = 100
	JobListLimit      = 1000
	WarningListLimit  = 100
	FetchLimit        = 1000
	MaxBackoffShift   = 20
	MaxPriority       = 1<<31 - 1
	MaxQueueNameBytes = 48

	// Jobs of groups under their limit which are ranked for each job
	// fetched from a queue with group concurrency
	GroupScanFactor = 10
)

// Supervisor, monitor and scheduler intervals
const (
	MaintenanceInterval = time.Minute
	MonitorInterval     = time.Minute
	ScheduleInterval    = 30 * time.Second
	CatchUpWindow       = time.Hour
	WarningRetention    = 7 * 24 * time.Hour
	SlowQueryThreshold  = 30 * time.Second
	ClockSkewThreshold  = time.Minute
	PollPeriod          = 2 * time.Second
	PollPeriodMin       = 100 * time.Millisecond
)

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func stringify[T any](v T) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}

// marshal returns a JSON string, or nil when v is nil, for binding to
// a jsonb parameter
func marshal(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(v) == 0 {
			return nil, nil
		}
		return string(v), nil
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		if !json.Valid(v) {
			return nil, errInvalidJSON
		}
		return string(v), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// seconds truncates a duration to second granularity
func seconds(d time.Duration) time.Duration {
	return d.Truncate(time.Second)
}
