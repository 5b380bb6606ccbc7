package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	types "github.com/timgit/pg-boss-sub002/pkg/types"
	zap "go.uber.org/zap"
	rate "golang.org/x/time/rate"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// warnings rate limits repeated warnings of the same type and queue
type warnings struct {
	sync.Mutex
	interval time.Duration
	limits   map[string]*rate.Sometimes
	total    atomic.Uint64
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Number of recent warnings returned in the status
	statusWarnings = 10

	// Number of monitor intervals between repeated warnings
	warningRepeat = 5
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func newWarnings(interval time.Duration) *warnings {
	return &warnings{
		interval: interval * warningRepeat,
		limits:   make(map[string]*rate.Sometimes),
	}
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// GetBamStatus returns the schema version and watermarks, the database
// time, the counts cached on each queue by the monitor, and the most
// recent warnings
func (manager *Manager) GetBamStatus(ctx context.Context) (*schema.BamStatus, error) {
	var status schema.BamStatus

	// Version and time
	if err := manager.conn.Get(ctx, &status.Version, schema.VersionRequest{}); err != nil {
		return nil, err
	}
	var now schema.Timestamp
	if err := manager.conn.Get(ctx, &now, schema.Now{}); err != nil {
		return nil, err
	} else {
		status.Now = time.Time(now)
	}

	// Queues
	queues, err := manager.GetQueues(ctx)
	if err != nil {
		return nil, err
	}
	for _, queue := range queues {
		status.Queues = append(status.Queues, queue.Stats())
	}

	// Warnings
	if warnings, err := manager.GetWarnings(ctx, schema.WarningListRequest{OffsetLimit: pg.OffsetLimit{Limit: types.Ptr(uint64(statusWarnings))}}); err != nil {
		return nil, err
	} else {
		status.Warnings = warnings
	}

	// Return success
	return &status, nil
}

// GetWarnings returns the persisted warnings, most recent first
func (manager *Manager) GetWarnings(ctx context.Context, req schema.WarningListRequest) ([]schema.Warning, error) {
	var list schema.WarningList
	if err := manager.conn.List(ctx, &list, req); err != nil {
		return nil, err
	}
	return list, nil
}

// Total returns the number of warnings raised since the manager was created
func (w *warnings) Total() uint64 {
	return w.total.Load()
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// monitor measures the clock skew, caches the job counts on each queue and
// raises warnings. Unless forced, returns nil when another process has run
// the monitor within the interval.
func (manager *Manager) monitor(ctx context.Context, force bool, names ...string) ([]schema.QueueStats, error) {
	if err := manager.measureSkew(ctx); err != nil {
		return nil, err
	}
	if !force {
		if due, err := manager.due(ctx, schema.WatermarkMonitored, manager.monitorInterval); err != nil {
			return nil, err
		} else if !due {
			return nil, nil
		}
	}

	// Cache the counts on the queues
	var stats schema.QueueStatsList
	start := time.Now()
	if err := manager.conn.List(ctx, &stats, schema.QueueMonitorRequest{Names: names}); err != nil {
		return nil, err
	}
	if elapsed := time.Since(start); manager.slowQuery > 0 && elapsed > manager.slowQuery {
		manager.warn(ctx, "", schema.WarningMeta{
			Type:    schema.WarningSlowQuery,
			Message: fmt.Sprintf("queue monitor took %v", elapsed.Truncate(time.Millisecond)),
			Data:    map[string]any{"elapsed": elapsed.Seconds(), "threshold": manager.slowQuery.Seconds()},
		})
	}

	// Backlog warnings
	for _, queue := range stats {
		if queue.WarningQueued > 0 && queue.Queued > uint64(queue.WarningQueued) {
			manager.warn(ctx, queue.Name, schema.WarningMeta{
				Type:    schema.WarningQueueBacklog,
				Message: fmt.Sprintf("queue %q has %d queued jobs", queue.Name, queue.Queued),
				Data:    map[string]any{"name": queue.Name, "queued": queue.Queued, "warning_queued": queue.WarningQueued},
			})
		}
	}

	// Return the counts
	return stats, nil
}

// measureSkew stores the difference between the database and local clocks,
// and raises a warning when it is above the threshold
func (manager *Manager) measureSkew(ctx context.Context) error {
	var now schema.Timestamp
	start := time.Now()
	if err := manager.conn.Get(ctx, &now, schema.Now{}); err != nil {
		return err
	}
	local := start.Add(time.Since(start) / 2)
	skew := time.Time(now).Sub(local)
	manager.skew.Store(int64(skew))

	if manager.clockSkew > 0 && (skew > manager.clockSkew || skew < -manager.clockSkew) {
		manager.warn(ctx, "", schema.WarningMeta{
			Type:    schema.WarningClockSkew,
			Message: fmt.Sprintf("database clock differs from local clock by %v", skew.Truncate(time.Millisecond)),
			Data:    map[string]any{"skew": skew.Seconds(), "threshold": manager.clockSkew.Seconds()},
		})
	}
	return nil
}

// warn logs a warning and stores it, unless a warning with the same type
// and queue was raised recently. A warning which cannot be stored is logged.
func (manager *Manager) warn(ctx context.Context, queue string, meta schema.WarningMeta) {
	if !manager.warnings.allow(string(meta.Type) + "." + queue) {
		return
	}

	manager.log.Warn(meta.Message, zap.String("type", string(meta.Type)), zap.String("queue", queue))
	if !manager.persistWarnings {
		return
	}
	var warning schema.Warning
	if err := manager.conn.Insert(ctx, &warning, meta); err != nil {
		manager.log.Error("store warning", zap.String("type", string(meta.Type)), zap.Error(err))
	}
}

// allow returns true when a warning with the key has not been raised within
// the repeat interval, and counts it
func (w *warnings) allow(key string) bool {
	w.Lock()
	limit, exists := w.limits[key]
	if !exists {
		limit = &rate.Sometimes{First: 1, Interval: w.interval}
		w.limits[key] = limit
	}
	w.Unlock()

	var allowed bool
	limit.Do(func() {
		allowed = true
		w.total.Add(1)
	})
	return allowed
}
