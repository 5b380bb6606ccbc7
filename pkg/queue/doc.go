/*
Package queue provides a PostgreSQL-backed job queue with retries and
exponential backoff, singleton keys, throttled and debounced sends, cron
schedules, dead-letter queues and background maintenance.

# Manager

Create a manager, which installs or upgrades the schema:

	mgr, err := queue.New(ctx, pool, queue.WithSchema("pgboss"), queue.WithLogger(log))
	if err != nil {
		panic(err)
	}

# Queues

Queues are created explicitly, or when the first job is sent:

	queue, err := mgr.CreateQueue(ctx, "emails", schema.QueueOptions{
		RetryLimit:   types.Ptr(3),
		RetryDelay:   types.Ptr(time.Minute),
		RetryBackoff: types.Ptr(true),
		DeadLetter:   types.Ptr("emails_failed"),
	})

# Jobs

Send, fetch and complete jobs:

	// Send a job
	id, err := mgr.Send(ctx, "emails", map[string]any{"to": "user@example.com"}, schema.SendOptions{})

	// Send unless a job with the same key was sent in the last minute
	id, err := mgr.SendThrottled(ctx, "emails", data, time.Minute, "user@example.com", schema.SendOptions{})

	// Fetch up to ten jobs
	jobs, err := mgr.Fetch(ctx, "emails", schema.FetchOptions{BatchSize: 10})

	// Complete or fail the jobs
	n, err := mgr.Complete(ctx, "emails", ids, output, queue.CompleteOptions{})
	n, err := mgr.Fail(ctx, "emails", ids, err)

# WorkerPool

Use WorkerPool to run handlers for jobs:

	pool, err := queue.NewWorkerPool(mgr,
		queue.WithWorkers(4),
		queue.WithWorkerName("worker-1"),
	)

	// Register queue handlers
	pool.RegisterQueue(ctx, "emails", func(ctx context.Context, job schema.Job) (any, error) {
		return nil, nil
	})

	// Run blocks until context is cancelled
	err = pool.Run(ctx)

# Schedules and maintenance

Schedules send jobs on a cron expression. The maintenance, monitor and
scheduler loops run in Manager.Run, in as many processes as required:

	_, err := mgr.Schedule(ctx, "report", "0 * * * *", nil, schema.ScheduleOptions{})
	err = mgr.Run(ctx)

# Subpackages

  - schema: Data types, validation, the job state machine and SQL binding
  - sql: Embedded SQL for the schema objects and queries
*/
package queue
