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
// TYPES

// CompleteOptions are the options for completing jobs
type CompleteOptions struct {
	// Also complete jobs which have not been fetched
	IncludeQueued bool `json:"include_queued,omitempty" help:"Also complete jobs which have not been fetched"`
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Complete moves active jobs to the completed state with an output, and
// returns the number of jobs completed. Jobs which are not active, or do not
// exist, are skipped.
func (manager *Manager) Complete(ctx context.Context, name string, ids []string, output any, options CompleteOptions) (int, error) {
	req := schema.JobComplete{JobIds: schema.JobIds{Name: name, Ids: ids}, Output: errorOutput(output), IncludeQueued: options.IncludeQueued}
	return manager.transition(ctx, req)
}

// Fail fails unfinished jobs with an output, and returns the number of jobs
// failed. A job with retries remaining moves to the retry state with a delay.
// Otherwise it moves to the failed state, and a job is sent to its
// dead-letter queue if it has one.
func (manager *Manager) Fail(ctx context.Context, name string, ids []string, output any) (int, error) {
	req := schema.JobLock{JobIds: schema.JobIds{Name: name, Ids: ids}}
	output = errorOutput(output)
	if _, err := schema.QueueName(name).Name(); err != nil {
		return 0, err
	} else if _, err := schema.ParseIds(ids...); err != nil {
		return 0, err
	}

	var n int
	if err := manager.retry(ctx, func() error {
		n = 0
		return manager.conn.Tx(ctx, func(conn pg.Conn) error {
			var jobs schema.JobList
			if err := conn.List(ctx, &jobs, req); err != nil {
				return err
			}
			for _, job := range jobs {
				if err := manager.fail(ctx, conn, job, output); err != nil {
					return err
				}
				n++
			}
			return nil
		})
	}); err != nil {
		return 0, err
	}

	// Return the count
	return n, nil
}

// Cancel cancels unfinished jobs, and returns the number of jobs cancelled
func (manager *Manager) Cancel(ctx context.Context, name string, ids ...string) (int, error) {
	return manager.transition(ctx, schema.JobCancel{JobIds: schema.JobIds{Name: name, Ids: ids}})
}

// Resume moves cancelled jobs back to the created state, and returns the
// number of jobs resumed. Jobs past their retention time are not resumed.
func (manager *Manager) Resume(ctx context.Context, name string, ids ...string) (int, error) {
	return manager.transition(ctx, schema.JobResume{JobIds: schema.JobIds{Name: name, Ids: ids}})
}

// Retry moves failed jobs to the retry state, so they are fetched once more,
// and returns the number of jobs retried
func (manager *Manager) Retry(ctx context.Context, name string, ids ...string) (int, error) {
	return manager.transition(ctx, schema.JobRetry{JobIds: schema.JobIds{Name: name, Ids: ids}})
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// transition applies a state change to jobs by identifier, and returns the
// number of jobs changed
func (manager *Manager) transition(ctx context.Context, req pg.Selector) (int, error) {
	var ids schema.IdList
	if err := manager.retry(ctx, func() error {
		ids = ids[:0]
		return manager.conn.List(ctx, &ids, req)
	}); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// fail applies the retry policy of a locked job
func (manager *Manager) fail(ctx context.Context, conn pg.Conn, job schema.Job, output any) error {
	tr, err := job.RetryPolicy().Fail(job.State, job.RetryCount)
	if err != nil {
		return err
	}

	var id schema.JobId
	if err := conn.Update(ctx, &id, schema.JobFail{Name: job.Name, Id: job.Id, Transition: tr, Output: output}, nil); err != nil {
		return err
	}
	if tr.State == schema.StateRetry {
		manager.log.Debug("retry job", zap.String("queue", job.Name), zap.String("job", job.Id), zap.Int("retry_count", tr.RetryCount), zap.Duration("delay", tr.Delay))
		return manager.notify(ctx, conn, job.Name)
	}

	// Send to the dead-letter queue
	manager.log.Debug("failed job", zap.String("queue", job.Name), zap.String("job", job.Id))
	if job.DeadLetter == nil || *job.DeadLetter == "" || *job.DeadLetter == job.Name {
		return nil
	}
	var dl schema.JobId
	if err := lockShared(ctx, conn, "queue", *job.DeadLetter); err != nil {
		return err
	}
	if err := conn.Insert(ctx, &dl, schema.DeadLetter{
		Name: *job.DeadLetter,
		Data: job.Data,
		Output: map[string]any{
			"job_id": job.Id,
			"name":   job.Name,
			"output": output,
		},
	}); errors.Is(err, pg.ErrNotFound) {
		manager.log.Warn("dead-letter queue not found", zap.String("queue", job.Name), zap.String("dead_letter", *job.DeadLetter))
		return nil
	} else if err != nil {
		return err
	}
	return manager.notify(ctx, conn, *job.DeadLetter)
}

// errorOutput converts an error into an output which can be stored
func errorOutput(output any) any {
	if err, ok := output.(error); ok && err != nil {
		return map[string]any{"message": err.Error()}
	}
	return output
}
