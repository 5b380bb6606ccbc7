package queue

import (
	"context"
	"errors"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	zap "go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - QUEUE

// CreateQueue creates a new queue, or updates the options of an existing
// queue, and returns it. The partition option is only applied when the queue
// is created.
func (manager *Manager) CreateQueue(ctx context.Context, name string, options schema.QueueOptions) (*schema.Queue, error) {
	meta := schema.QueueMeta{Name: name, QueueOptions: options}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	var queue schema.Queue
	if err := manager.conn.Tx(ctx, func(conn pg.Conn) error {
		if err := manager.createQueue(ctx, conn, &queue, meta); err != nil {
			return err
		}

		// Update the queue options
		if !options.HasPatch() {
			return nil
		}
		return conn.Update(ctx, &queue, schema.QueueName(name), meta)
	}); err != nil {
		return nil, err
	}

	// Return success
	return &queue, nil
}

// UpdateQueue updates the options of an existing queue, and returns it
func (manager *Manager) UpdateQueue(ctx context.Context, name string, options schema.QueueOptions) (*schema.Queue, error) {
	var queue schema.Queue
	if err := manager.conn.Update(ctx, &queue, schema.QueueName(name), schema.QueueMeta{Name: name, QueueOptions: options}); err != nil {
		return nil, err
	}
	return &queue, nil
}

// GetQueue returns a queue by name
func (manager *Manager) GetQueue(ctx context.Context, name string) (*schema.Queue, error) {
	var queue schema.Queue
	if err := manager.conn.Get(ctx, &queue, schema.QueueName(name)); err != nil {
		return nil, err
	}
	return &queue, nil
}

// ListQueues returns queues as a list, with the total count
func (manager *Manager) ListQueues(ctx context.Context, req schema.QueueListRequest) (*schema.QueueList, error) {
	var list schema.QueueList
	if err := manager.conn.List(ctx, &list, req); err != nil {
		return nil, err
	}
	list.QueueListRequest = req
	return &list, nil
}

// GetQueues returns the named queues, or all queues when no names are given
func (manager *Manager) GetQueues(ctx context.Context, names ...string) ([]schema.Queue, error) {
	var result []schema.Queue
	var req schema.QueueListRequest
	req.Names = names
	for {
		req.Limit = nil
		req.Clamp(schema.QueueListLimit)
		list, err := manager.ListQueues(ctx, req)
		if err != nil {
			return nil, err
		}
		result = append(result, list.Body...)
		if len(list.Body) == 0 || uint64(len(result)) >= list.Count {
			return result, nil
		}
		req.Offset += uint64(len(list.Body))
	}
}

// DeleteQueue deletes a queue which has no queued or active jobs, with its
// stored and archived jobs, schedules and subscriptions, and returns it.
// Returns pg.ErrConflict if the queue has live jobs.
func (manager *Manager) DeleteQueue(ctx context.Context, name string) (*schema.Queue, error) {
	name, err := schema.QueueName(name).Name()
	if err != nil {
		return nil, err
	}

	var queue schema.Queue
	if err := manager.conn.Tx(ctx, func(conn pg.Conn) error {
		// Wait for sends to the queue to end, and block new sends until the
		// queue is deleted
		if err := lock(ctx, conn, "queue", name); err != nil {
			return err
		}
		if err := conn.Get(ctx, &queue, schema.QueueName(name)); err != nil {
			return err
		}

		// Check for live jobs
		var live schema.Count
		if err := conn.Get(ctx, &live, schema.QueueLive(name)); err != nil {
			return err
		} else if live > 0 {
			return pg.ErrConflict.Withf("queue %q has %d unfinished jobs", name, live)
		}

		// Remove stored jobs
		if queue.Partition {
			if err := conn.Get(ctx, nil, schema.QueueDrop{Table: queue.Table}); err != nil {
				return err
			}
		} else {
			var ids schema.IdList
			if err := conn.List(ctx, &ids, schema.JobDelete{Names: []string{queue.Name}}); err != nil {
				return err
			}
		}

		// Remove archived jobs
		var ids schema.IdList
		if err := conn.List(ctx, &ids, schema.ArchivePurge{Names: []string{queue.Name}}); err != nil {
			return err
		}

		// Delete the queue
		return conn.Delete(ctx, &queue, schema.QueueName(name))
	}); err != nil {
		return nil, err
	}

	manager.log.Debug("deleted queue", zap.String("queue", queue.Name))
	return &queue, nil
}

// GetQueueStats returns the current job counts for a queue
func (manager *Manager) GetQueueStats(ctx context.Context, name string) (*schema.QueueStats, error) {
	var stats schema.QueueStatsList
	if err := manager.conn.List(ctx, &stats, schema.QueueStatsRequest{Names: []string{name}}); err != nil {
		return nil, err
	} else if len(stats) == 0 {
		return nil, pg.ErrNotFound.Withf("queue %q", name)
	}
	return &stats[0], nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// createQueue inserts a queue, with a dedicated partition if requested, or
// gets the queue if it already exists
func (manager *Manager) createQueue(ctx context.Context, conn pg.Conn, queue *schema.Queue, meta schema.QueueMeta) error {
	if err := conn.Get(ctx, queue, schema.QueueName(meta.Name)); err == nil {
		return nil
	} else if !errors.Is(err, pg.ErrNotFound) {
		return err
	}

	// Insert the queue. A concurrent insert wins the conflict and the queue
	// is read back.
	if err := conn.Insert(ctx, queue, meta); errors.Is(err, pg.ErrNotFound) {
		return conn.Get(ctx, queue, schema.QueueName(meta.Name))
	} else if err != nil {
		return err
	}

	// Create the partition
	if queue.Partition {
		if err := conn.Get(ctx, nil, schema.QueuePartition{Name: queue.Name, Table: queue.Table}); err != nil {
			return err
		}
	}

	manager.log.Debug("created queue", zap.String("queue", queue.Name), zap.Bool("partition", queue.Partition))
	return nil
}
