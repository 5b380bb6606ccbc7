package queue

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	zap "go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - SEND

// Send inserts a job into a queue, creating the queue if it does not exist,
// and returns the job identifier. An empty identifier is returned, without
// an error, when the job is suppressed by a singleton key or throttle window.
func (manager *Manager) Send(ctx context.Context, name string, data any, options schema.SendOptions) (string, error) {
	name, err := schema.QueueName(name).Name()
	if err != nil {
		return "", err
	} else if err := options.Validate(); err != nil {
		return "", err
	}

	var id schema.JobId
	if err := manager.conn.Tx(ctx, func(conn pg.Conn) error {
		return manager.send(ctx, conn, &id, schema.JobSend{Name: name, Data: data, SendOptions: options})
	}); err != nil {
		return "", err
	}

	// Return the identifier
	return string(id), nil
}

// SendAfter inserts a job which is not fetched before the given time
func (manager *Manager) SendAfter(ctx context.Context, name string, data any, at time.Time, options schema.SendOptions) (string, error) {
	options.StartAfter = &at
	return manager.Send(ctx, name, data, options)
}

// SendThrottled inserts a job unless a job with the same key was sent within
// the window, in which case an empty identifier is returned
func (manager *Manager) SendThrottled(ctx context.Context, name string, data any, window time.Duration, key string, options schema.SendOptions) (string, error) {
	options.SingletonWindow = window
	options.SingletonKey = key
	options.Debounce = false
	return manager.Send(ctx, name, data, options)
}

// SendDebounced inserts a job which starts after the window. When a job with
// the same key was sent within the window and has not started, its data is
// replaced and its identifier returned instead.
func (manager *Manager) SendDebounced(ctx context.Context, name string, data any, window time.Duration, key string, options schema.SendOptions) (string, error) {
	options.SingletonWindow = window
	options.SingletonKey = key
	options.Debounce = true
	return manager.Send(ctx, name, data, options)
}

// Insert inserts many jobs into a queue in a single batch, and returns their
// identifiers in the same order. Jobs with a singleton key already queued
// have an empty identifier. Throttle and debounce windows are rejected, use
// Send for those.
func (manager *Manager) Insert(ctx context.Context, name string, jobs []schema.JobInsert) ([]string, error) {
	name, err := schema.QueueName(name).Name()
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return nil, err
		} else if job.Debounce || job.SingletonWindow > 0 {
			return nil, pg.ErrBadParameter.With("throttle and debounce windows are not supported for batch inserts")
		}
	}
	if len(jobs) == 0 {
		return []string{}, nil
	}

	ids := make([]schema.JobId, len(jobs))
	if err := manager.conn.Tx(ctx, func(conn pg.Conn) error {
		var queue schema.Queue
		if err := lockShared(ctx, conn, "queue", name); err != nil {
			return err
		}
		if err := manager.createQueue(ctx, conn, &queue, schema.QueueMeta{Name: name}); err != nil {
			return err
		}
		if err := conn.Bulk(ctx, func(conn pg.Conn) error {
			for i, job := range jobs {
				if err := conn.Insert(ctx, &ids[i], schema.JobSend{Name: queue.Name, Data: job.Data, SendOptions: job.SendOptions}); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
		return manager.notify(ctx, conn, queue.Name)
	}); err != nil {
		return nil, err
	}

	// Return the identifiers
	result := make([]string, len(ids))
	for i, id := range ids {
		result[i] = string(id)
	}
	return result, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - FETCH

// Fetch claims up to BatchSize queued jobs from a queue, in priority order,
// and returns them in the active state. An empty list is returned when there
// are no jobs to fetch. Returns pg.ErrNotFound if the queue does not exist.
func (manager *Manager) Fetch(ctx context.Context, name string, options schema.FetchOptions) ([]schema.Job, error) {
	if options.BatchSize == 0 {
		options.BatchSize = schema.DefaultBatchSize
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	var jobs schema.JobList
	if err := manager.retry(ctx, func() error {
		jobs = jobs[:0]
		return manager.conn.Tx(ctx, func(conn pg.Conn) error {
			var queue schema.Queue
			if err := conn.Get(ctx, &queue, schema.QueueName(name)); err != nil {
				return err
			}

			// Group limits are counted under a lock on the queue
			group := queue.GroupConcurrency > 0 || len(queue.GroupTiers) > 0
			if group {
				if err := lock(ctx, conn, "fetch", queue.Name); err != nil {
					return err
				}
			}
			return conn.List(ctx, &jobs, schema.JobFetch{Name: queue.Name, Limit: options.BatchSize, Group: group})
		})
	}); err != nil {
		return nil, err
	}

	// Return jobs in priority order
	sortJobs(jobs)
	result := make([]schema.Job, len(jobs))
	for i, job := range jobs {
		result[i] = job.Metadata(options.IncludeMetadata)
	}
	return result, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - FIND

// GetJob returns a job by queue name and identifier. When archive is true
// and the job is not in the job table, the archive is searched.
func (manager *Manager) GetJob(ctx context.Context, name, id string, archive bool) (*schema.Job, error) {
	var job schema.Job
	if err := manager.conn.Get(ctx, &job, schema.JobName{Name: name, Id: id}); errors.Is(err, pg.ErrNotFound) && archive {
		if err := manager.conn.Get(ctx, &job, schema.JobName{Name: name, Id: id, Archived: true}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindJobs returns the jobs in a queue which match the request
func (manager *Manager) FindJobs(ctx context.Context, name string, req schema.FindRequest) ([]schema.Job, error) {
	queue, err := schema.QueueName(name).Name()
	if err != nil {
		return nil, err
	}
	var jobs schema.JobList
	if err := manager.conn.With("name", queue).List(ctx, &jobs, req); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetBlockedKeys returns the singleton keys of the unfinished jobs in a
// queue, which block new jobs with the same key
func (manager *Manager) GetBlockedKeys(ctx context.Context, name string) ([]string, error) {
	var keys schema.BlockedKeys
	if err := manager.conn.List(ctx, &keys, schema.BlockedKeysRequest(name)); err != nil {
		return nil, err
	}
	return keys, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - DELETE

// DeleteQueuedJobs deletes the jobs in a queue which have not been fetched,
// and returns the number deleted
func (manager *Manager) DeleteQueuedJobs(ctx context.Context, name string) (int, error) {
	return manager.deleteJobs(ctx, schema.JobDelete{Queued: true}, name)
}

// DeleteStoredJobs deletes the completed, cancelled and failed jobs in a
// queue, and returns the number deleted
func (manager *Manager) DeleteStoredJobs(ctx context.Context, name string) (int, error) {
	return manager.deleteJobs(ctx, schema.JobDelete{Stored: true}, name)
}

// DeleteAllJobs deletes all jobs, including archived jobs, in the named
// queues or in all queues when no names are given, and returns the number
// deleted
func (manager *Manager) DeleteAllJobs(ctx context.Context, names ...string) (int, error) {
	return manager.deleteJobs(ctx, schema.JobDelete{}, names...)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// send inserts a job within a transaction, applying the throttle and
// debounce windows under an advisory lock on the queue and key. The queue
// cannot be deleted until the transaction ends.
func (manager *Manager) send(ctx context.Context, conn pg.Conn, id *schema.JobId, job schema.JobSend) error {
	var queue schema.Queue
	if err := lockShared(ctx, conn, "queue", job.Name); err != nil {
		return err
	}
	if err := manager.createQueue(ctx, conn, &queue, schema.QueueMeta{Name: job.Name}); err != nil {
		return err
	} else {
		job.Name = queue.Name
	}

	// Throttle and debounce windows
	if job.SingletonWindow > 0 {
		if err := lock(ctx, conn, "send", job.Name, job.SingletonKey); err != nil {
			return err
		}
		window := schema.JobThrottled{Name: job.Name, Key: job.SingletonKey, Window: job.SingletonWindow}
		if job.Debounce {
			if err := conn.Update(ctx, id, schema.JobDebounce{JobThrottled: window, Data: job.Data}, nil); err == nil {
				manager.log.Debug("debounced job", zap.String("queue", job.Name), zap.String("job", string(*id)))
				return nil
			} else if !errors.Is(err, pg.ErrNotFound) {
				return err
			}
			if job.StartAfter == nil {
				at := manager.Now().Add(job.SingletonWindow)
				job.StartAfter = &at
			}
		} else {
			var throttled schema.Bool
			if err := conn.Get(ctx, &throttled, window); err != nil {
				return err
			} else if throttled {
				*id = ""
				return nil
			}
		}
	}

	// Insert the job. No row is returned when a unique index suppresses it.
	if err := conn.Insert(ctx, id, job); errors.Is(err, pg.ErrNotFound) {
		*id = ""
		return nil
	} else if err != nil {
		return err
	}

	// Wake up workers
	return manager.notify(ctx, conn, job.Name)
}

func (manager *Manager) deleteJobs(ctx context.Context, req schema.JobDelete, names ...string) (int, error) {
	for _, name := range names {
		if name, err := schema.QueueName(name).Name(); err != nil {
			return 0, err
		} else {
			req.Names = append(req.Names, name)
		}
	}

	var n int
	if err := manager.conn.Tx(ctx, func(conn pg.Conn) error {
		var ids schema.IdList
		if err := conn.List(ctx, &ids, req); err != nil {
			return err
		}
		n = len(ids)

		// Delete all jobs includes the archive
		if !req.Queued && !req.Stored {
			var archived schema.IdList
			if err := conn.List(ctx, &archived, schema.ArchivePurge{Names: req.Names}); err != nil {
				return err
			}
			n += len(archived)
		}
		return nil
	}); err != nil {
		return 0, err
	}

	// Return the count
	return n, nil
}

// sortJobs orders jobs by priority, then creation time, then identifier
func sortJobs(jobs []schema.Job) {
	slices.SortStableFunc(jobs, func(a, b schema.Job) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		if c := a.CreatedOn.Compare(b.CreatedOn); c != 0 {
			return c
		}
		return strings.Compare(a.Id, b.Id)
	})
}
