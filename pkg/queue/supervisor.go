package queue

import (
	"context"
	"errors"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	attribute "go.opentelemetry.io/otel/attribute"
	zap "go.uber.org/zap"
	errgroup "golang.org/x/sync/errgroup"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	// Output stored on a job which ran past its expiry
	expiredOutput = map[string]any{"message": "job expired"}
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Run runs the maintenance, monitor and scheduler loops until the context
// is cancelled. Errors in a cycle are logged and the loop continues.
func (manager *Manager) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return manager.loop(ctx, "maintenance", manager.maintenanceInterval, func(ctx context.Context) error {
			_, err := manager.maintain(ctx, false)
			return err
		})
	})
	group.Go(func() error {
		return manager.loop(ctx, "monitor", manager.monitorInterval, func(ctx context.Context) error {
			_, err := manager.monitor(ctx, false)
			return err
		})
	})
	group.Go(func() error {
		return manager.loop(ctx, "scheduler", manager.scheduleInterval, func(ctx context.Context) error {
			_, err := manager.Tick(ctx, manager.Now())
			return err
		})
	})

	// Wait for the loops to end
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Supervise runs the expiration, archive, deletion and monitor passes now,
// for the named queues or all queues when no names are given, and returns
// the number of rows processed
func (manager *Manager) Supervise(ctx context.Context, names ...string) (*schema.Maintenance, error) {
	queues := make([]string, 0, len(names))
	for _, name := range names {
		if name, err := schema.QueueName(name).Name(); err != nil {
			return nil, err
		} else {
			queues = append(queues, name)
		}
	}

	// Maintenance passes
	result, err := manager.maintain(ctx, true, queues...)
	if result == nil {
		return nil, err
	}

	// Monitor pass
	warnings := manager.warnings.Total()
	if _, err_ := manager.monitor(ctx, true, queues...); err_ != nil {
		err = errors.Join(err, err_)
	}
	result.Warnings = int(manager.warnings.Total() - warnings)

	// Return the result, and any errors
	return result, err
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// loop runs fn immediately and then on every interval
func (manager *Manager) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTimer(0)
	defer ticker.Stop()

	manager.log.Debug("starting loop", zap.String("loop", name), zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			manager.log.Debug("stopping loop", zap.String("loop", name))
			return nil
		case <-ticker.C:
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				manager.log.Error(name, zap.Error(err))
			}
			ticker.Reset(interval)
		}
	}
}

// due advances a watermark and returns true when the cycle has not run
// within the interval, in this or any other process
func (manager *Manager) due(ctx context.Context, watermark schema.Watermark, interval time.Duration) (bool, error) {
	var version schema.Version

	// Allow some jitter between processes
	interval -= interval / 10
	if err := manager.conn.Update(ctx, &version, schema.WatermarkRequest{Watermark: watermark, Interval: interval}, nil); errors.Is(err, pg.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// maintain runs the expiration, archive and deletion passes. A pass which
// fails is logged, and the remaining passes continue.
func (manager *Manager) maintain(ctx context.Context, force bool, names ...string) (*schema.Maintenance, error) {
	if !force {
		if due, err := manager.due(ctx, schema.WatermarkMaintained, manager.maintenanceInterval); err != nil {
			return nil, err
		} else if !due {
			return nil, nil
		}
	}

	var result schema.Maintenance
	var errs error
	ctx, endspan := startSpan(manager.tracer, ctx, spanManagerName("maintain"))
	defer func() {
		endspan(errs, attribute.Int("expired", result.Expired), attribute.Int("archived", result.Archived), attribute.Int("deleted", result.Deleted))
	}()

	// Expire active jobs which have run too long
	n, err := manager.batch(ctx, "expire", func(conn pg.Conn) (int, error) {
		var jobs schema.JobList
		if err := conn.List(ctx, &jobs, schema.JobExpired{Names: names, Limit: manager.maintenanceBatch}); err != nil {
			return 0, err
		}
		for _, job := range jobs {
			if err := manager.fail(ctx, conn, job, expiredOutput); err != nil {
				return 0, err
			}
		}
		return len(jobs), nil
	})
	result.Expired = n
	if err != nil {
		errs = errors.Join(errs, err)
	}

	// Move jobs past their retention into the archive
	n, err = manager.batch(ctx, "archive", func(conn pg.Conn) (int, error) {
		var ids schema.IdList
		if err := conn.List(ctx, &ids, schema.JobArchive{Names: names, Limit: manager.maintenanceBatch}); err != nil {
			return 0, err
		}
		return len(ids), nil
	})
	result.Archived = n
	if err != nil {
		errs = errors.Join(errs, err)
	}

	// Delete archived jobs past their deletion period
	n, err = manager.batch(ctx, "delete", func(conn pg.Conn) (int, error) {
		var ids schema.IdList
		if err := conn.List(ctx, &ids, schema.ArchiveDelete{Names: names, Limit: manager.maintenanceBatch}); err != nil {
			return 0, err
		}
		return len(ids), nil
	})
	result.Deleted = n
	if err != nil {
		errs = errors.Join(errs, err)
	}

	// Delete old warnings
	if len(names) == 0 {
		var ids schema.IdList
		if err := manager.conn.List(ctx, &ids, schema.WarningPurge{}); err != nil {
			manager.log.Error("purge warnings", zap.Error(err))
			errs = errors.Join(errs, err)
		}
	}

	if result.Expired > 0 || result.Archived > 0 || result.Deleted > 0 {
		manager.log.Info("maintenance", zap.Int("expired", result.Expired), zap.Int("archived", result.Archived), zap.Int("deleted", result.Deleted))
	}

	// Return the result, and any errors
	return &result, errs
}

// batch runs fn in a transaction until it processes fewer rows than the
// batch size, and returns the total number of rows processed
func (manager *Manager) batch(ctx context.Context, name string, fn func(pg.Conn) (int, error)) (int, error) {
	var total int
	for {
		var n int
		if err := manager.retry(ctx, func() error {
			return manager.conn.Tx(ctx, func(conn pg.Conn) error {
				var err error
				n, err = fn(conn)
				return err
			})
		}); err != nil {
			manager.log.Error(name, zap.Int("count", total), zap.Error(err))
			return total, err
		}
		total += n
		if n < manager.maintenanceBatch || ctx.Err() != nil {
			return total, nil
		}
	}
}
