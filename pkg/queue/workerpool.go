package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	attribute "go.opentelemetry.io/otel/attribute"
	zap "go.uber.org/zap"
	errgroup "golang.org/x/sync/errgroup"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// WorkerPool fetches jobs from the registered queues and runs their
// handlers, with a fixed number of workers shared by all queues.
type WorkerPool struct {
	sync.RWMutex
	opts
	manager  *Manager
	handlers map[string]Handler
	slots    chan struct{}
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewWorkerPool creates a new worker pool for the given manager. The
// logger and tracer of the manager are used unless set in the options.
func NewWorkerPool(manager *Manager, opt ...Opt) (*WorkerPool, error) {
	if manager == nil {
		return nil, pg.ErrBadParameter.With("manager is nil")
	}
	o, err := applyOpts(append([]Opt{WithLogger(manager.log), WithTracer(manager.tracer)}, opt...))
	if err != nil {
		return nil, err
	}

	return &WorkerPool{
		opts:     o,
		manager:  manager,
		handlers: make(map[string]Handler),
		slots:    make(chan struct{}, o.workers),
	}, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// RegisterQueue registers the handler for a queue, which must exist.
// Returns pg.ErrConflict if the queue already has a handler.
func (wp *WorkerPool) RegisterQueue(ctx context.Context, name string, handler Handler) (*schema.Queue, error) {
	if handler == nil {
		return nil, pg.ErrBadParameter.With("handler is nil")
	}
	queue, err := wp.manager.GetQueue(ctx, name)
	if err != nil {
		return nil, err
	}

	wp.Lock()
	defer wp.Unlock()
	if _, exists := wp.handlers[queue.Name]; exists {
		return nil, pg.ErrConflict.Withf("queue %q already has a handler", queue.Name)
	}
	wp.handlers[queue.Name] = handler

	// Return success
	return queue, nil
}

// Queues returns the names of the registered queues
func (wp *WorkerPool) Queues() []string {
	wp.RLock()
	defer wp.RUnlock()
	result := make([]string, 0, len(wp.handlers))
	for name := range wp.handlers {
		result = append(result, name)
	}
	return result
}

// Run polls the registered queues and runs jobs until the context is
// cancelled, then waits for running jobs to be completed or failed
func (wp *WorkerPool) Run(ctx context.Context) error {
	wp.RLock()
	handlers := make(map[string]Handler, len(wp.handlers))
	wake := make(map[string]chan struct{}, len(wp.handlers))
	for name, handler := range wp.handlers {
		handlers[name] = handler
		wake[name] = make(chan struct{}, 1)
	}
	wp.RUnlock()
	if len(handlers) == 0 {
		return pg.ErrBadParameter.With("no queues registered")
	}

	// Listen for job insert notifications
	listener := wp.manager.conn.Listener()
	if listener == nil {
		return pg.ErrBadParameter.With("listener is nil")
	}
	defer listener.Close(context.Background())
	if err := listener.Listen(ctx, wp.manager.Channel()); errors.Is(err, context.Canceled) {
		return nil
	} else if err != nil {
		return err
	}

	// Running jobs are waited for after the poll loops end
	var jobs sync.WaitGroup
	defer jobs.Wait()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return wp.listen(ctx, listener, wake)
	})
	for name, handler := range handlers {
		group.Go(func() error {
			return wp.poll(ctx, &jobs, name, handler, wake[name])
		})
	}

	// Wait for the loops to end
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// listen wakes up the poll loop of a queue when a job is inserted into it
func (wp *WorkerPool) listen(ctx context.Context, listener pg.Listener, wake map[string]chan struct{}) error {
	for {
		notification, err := listener.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if ch, exists := wake[string(notification.Payload)]; exists {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// poll fetches jobs from a queue on every period, or when woken up, until
// the queue is empty
func (wp *WorkerPool) poll(ctx context.Context, jobs *sync.WaitGroup, name string, handler Handler, wake <-chan struct{}) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	wp.log.Debug("polling queue", zap.String("queue", name), zap.String("worker", wp.name))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		// Fetch until fewer jobs are returned than requested
		for ctx.Err() == nil {
			n, fetched, err := wp.fetch(ctx, jobs, name, handler)
			if err != nil {
				if ctx.Err() == nil {
					wp.log.Error("fetch", zap.String("queue", name), zap.Error(err))
				}
				break
			} else if fetched < n {
				break
			}
		}
		timer.Reset(wp.period)
	}
}

// fetch waits for a free worker, then fetches as many jobs as there are free
// workers, up to the batch size, and runs them. Returns the number of jobs
// requested and the number fetched.
func (wp *WorkerPool) fetch(ctx context.Context, jobs *sync.WaitGroup, name string, handler Handler) (int, int, error) {
	n, err := wp.acquire(ctx)
	if err != nil {
		return 0, 0, err
	}

	// Fetch the jobs, and release the unused workers
	result, err := wp.manager.Fetch(ctx, name, schema.FetchOptions{BatchSize: n, IncludeMetadata: true})
	wp.release(n - len(result))
	if err != nil {
		return n, 0, err
	}

	// Run the jobs
	for _, job := range result {
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			defer wp.release(1)
			wp.run(ctx, job, handler)
		}()
	}

	// Return the number of jobs requested and fetched
	return n, len(result), nil
}

// run executes the handler for a job, then completes or fails it
func (wp *WorkerPool) run(ctx context.Context, job schema.Job, handler Handler) {
	var deadline time.Duration
	if at := job.Deadline(); !at.IsZero() {
		deadline = at.Sub(wp.manager.Now())
		if deadline <= 0 {
			deadline = time.Millisecond
		}
	}

	// Create the span
	ctx, endspan := startSpan(wp.tracer, ctx, spanManagerName("job."+job.Name),
		attribute.String("job", job.Id),
		attribute.Int("retry_count", job.RetryCount),
	)

	output, err := runWork(ctx, deadline, job, handler)
	endspan(err)

	// Report the outcome after shutdown has started
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		wp.log.Warn("job failed", zap.String("queue", job.Name), zap.String("job", job.Id), zap.Error(err))
		if _, err := wp.manager.Fail(ctx, job.Name, []string{job.Id}, err); err != nil {
			wp.log.Error("fail", zap.String("queue", job.Name), zap.String("job", job.Id), zap.Error(err))
		}
	} else if _, err := wp.manager.Complete(ctx, job.Name, []string{job.Id}, output, CompleteOptions{}); err != nil {
		wp.log.Error("complete", zap.String("queue", job.Name), zap.String("job", job.Id), zap.Error(err))
	}
}

// acquire blocks until a worker is free, then takes as many free workers as
// possible up to the batch size
func (wp *WorkerPool) acquire(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case wp.slots <- struct{}{}:
	}
	n := 1
	for n < wp.batchSize {
		select {
		case wp.slots <- struct{}{}:
			n++
		default:
			return n, nil
		}
	}
	return n, nil
}

// release frees n workers
func (wp *WorkerPool) release(n int) {
	for i := 0; i < n; i++ {
		<-wp.slots
	}
}
