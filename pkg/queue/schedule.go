package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	attribute "go.opentelemetry.io/otel/attribute"
	zap "go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Schedule creates or replaces the schedule for a queue and key, creating
// the queue if it does not exist, and returns it
func (manager *Manager) Schedule(ctx context.Context, name, cron string, data any, options schema.ScheduleOptions) (*schema.Schedule, error) {
	meta := schema.ScheduleMeta{Name: name, Cron: cron, Data: data, ScheduleOptions: options}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	var schedule schema.Schedule
	if err := manager.conn.Tx(ctx, func(conn pg.Conn) error {
		var queue schema.Queue
		if err := manager.createQueue(ctx, conn, &queue, schema.QueueMeta{Name: name}); err != nil {
			return err
		}
		return conn.Insert(ctx, &schedule, meta)
	}); err != nil {
		return nil, err
	}

	// Return success
	return &schedule, nil
}

// Unschedule deletes the schedule for a queue and key, and returns it. An
// empty key is the default schedule for the queue.
func (manager *Manager) Unschedule(ctx context.Context, name, key string) (*schema.Schedule, error) {
	var schedule schema.Schedule
	if err := manager.conn.Delete(ctx, &schedule, schema.ScheduleKey{Name: name, Key: key}); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// GetSchedules returns schedules. An empty name returns the schedules for
// all queues, and a nil key returns the schedules for all keys.
func (manager *Manager) GetSchedules(ctx context.Context, name string, key *string) ([]schema.Schedule, error) {
	var schedules schema.ScheduleList
	if err := manager.conn.List(ctx, &schedules, schema.ScheduleListRequest{Name: name, Key: key}); err != nil {
		return nil, err
	}
	return schedules, nil
}

// Tick evaluates all schedules as of the given time, and sends a job for
// each schedule with an occurrence due. Returns the number of jobs sent.
// Only one process evaluates schedules at a time, and an occurrence is
// never sent twice.
func (manager *Manager) Tick(ctx context.Context, at time.Time) (int, error) {
	var sent int
	ctx, endspan := startSpan(manager.tracer, ctx, spanManagerName("tick"))
	err := manager.conn.Tx(ctx, func(conn pg.Conn) error {
		if locked, err := tryLock(ctx, conn, "cron"); err != nil {
			return err
		} else if !locked {
			return nil
		}

		// Get all schedules
		var schedules schema.ScheduleList
		if err := conn.List(ctx, &schedules, schema.ScheduleListRequest{}); err != nil {
			return err
		}

		// Fire the due schedules, each within a savepoint
		for _, schedule := range schedules {
			due, ok, err := schedule.Due(at, manager.catchUp)
			if err != nil {
				manager.log.Warn("invalid schedule", zap.String("queue", schedule.Name), zap.String("key", schedule.Key), zap.Error(err))
				continue
			} else if !ok {
				continue
			}
			if fired, err := manager.fire(ctx, conn, schedule, due); err != nil {
				manager.log.Error("schedule", zap.String("queue", schedule.Name), zap.String("key", schedule.Key), zap.Error(err))
			} else if fired {
				sent++
			}
		}

		// Record the tick
		var version schema.Version
		if err := conn.Update(ctx, &version, schema.WatermarkRequest{Watermark: schema.WatermarkCron}, nil); err != nil && !errors.Is(err, pg.ErrNotFound) {
			return err
		}
		return nil
	})
	endspan(err, attribute.Int("sent", sent))
	if err != nil {
		return 0, err
	}

	// Return the number of jobs sent
	return sent, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// fire advances the watermark of a schedule to the due occurrence, and
// sends the job. Returns false if the occurrence was already fired.
func (manager *Manager) fire(ctx context.Context, conn pg.Conn, schedule schema.Schedule, due time.Time) (bool, error) {
	var fired bool
	if err := conn.Tx(ctx, func(conn pg.Conn) error {
		var updated schema.Schedule
		if err := conn.Update(ctx, &updated, schema.ScheduleFire{ScheduleKey: schema.ScheduleKey{Name: schedule.Name, Key: schedule.Key}, FiredOn: due}, nil); errors.Is(err, pg.ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}

		// Send the job
		var id schema.JobId
		if err := manager.send(ctx, conn, &id, schema.JobSend{Name: schedule.Name, Data: schedule.Data, SendOptions: schedule.Options}); err != nil {
			return err
		}
		fired = true
		manager.log.Debug("fired schedule", zap.String("queue", schedule.Name), zap.String("key", schedule.Key), zap.Time("due", due), zap.String("job", string(id)))
		return nil
	}); err != nil {
		return false, err
	}
	return fired, nil
}

func spanManagerName(op string) string {
	return strings.Join([]string{schema.SchemaName, "manager", op}, ".")
}
