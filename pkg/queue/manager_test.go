package queue_test

import (
	"context"
	"testing"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	queue "github.com/timgit/pg-boss-sub002/pkg/queue"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	test "github.com/timgit/pg-boss-sub002/pkg/test"
	types "github.com/timgit/pg-boss-sub002/pkg/types"
	assert "github.com/stretchr/testify/assert"
)

// Global connection variable
var conn test.Conn

// Start up a container and test the pool
func TestMain(m *testing.M) {
	test.Main(m, &conn)
}

// newManager returns a manager with its own schema
func newManager(t *testing.T, conn pg.PoolConn, name string, opt ...queue.Opt) *queue.Manager {
	t.Helper()
	mgr, err := queue.New(context.TODO(), conn, append([]queue.Opt{queue.WithSchema(name)}, opt...)...)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return mgr
}

////////////////////////////////////////////////////////////////////////////////
// MANAGER LIFECYCLE TESTS

func Test_Manager_001(t *testing.T) {
	assert := assert.New(t)
	conn := conn.Begin(t)
	defer conn.Close()

	t.Run("ValidConnection", func(t *testing.T) {
		mgr := newManager(t, conn, "test_manager")
		assert.Equal("test_manager", mgr.Schema())
		assert.Equal("test_manager_job_insert", mgr.Channel())

		installed, err := mgr.IsInstalled(context.TODO())
		assert.NoError(err)
		assert.True(installed)

		version, err := mgr.SchemaVersion(context.TODO())
		assert.NoError(err)
		assert.Equal(schema.SchemaVersion, version)
	})

	t.Run("MigrateTwice", func(t *testing.T) {
		mgr := newManager(t, conn, "test_manager")
		version, err := mgr.SchemaVersion(context.TODO())
		assert.NoError(err)
		assert.Equal(schema.SchemaVersion, version)
	})

	t.Run("NotInstalled", func(t *testing.T) {
		mgr := newManager(t, conn, "test_manager_none", queue.WithMigrate(false))
		installed, err := mgr.IsInstalled(context.TODO())
		assert.NoError(err)
		assert.False(installed)

		version, err := mgr.SchemaVersion(context.TODO())
		assert.NoError(err)
		assert.Zero(version)
	})

	t.Run("NilConnection", func(t *testing.T) {
		_, err := queue.New(context.TODO(), nil)
		assert.ErrorIs(err, pg.ErrBadParameter)
	})

	t.Run("InvalidSchema", func(t *testing.T) {
		_, err := queue.New(context.TODO(), conn, queue.WithSchema("1invalid"))
		assert.ErrorIs(err, queue.ErrInvalidSchema)
	})

	t.Run("InvalidWorkers", func(t *testing.T) {
		_, err := queue.New(context.TODO(), conn, queue.WithWorkers(0))
		assert.ErrorIs(err, queue.ErrInvalidWorkers)
	})

	t.Run("ConcurrentMigrate", func(t *testing.T) {
		errs := make(chan error, 4)
		for i := 0; i < cap(errs); i++ {
			go func() {
				_, err := queue.New(context.TODO(), conn, queue.WithSchema("test_manager_concurrent"))
				errs <- err
			}()
		}
		for i := 0; i < cap(errs); i++ {
			assert.NoError(<-errs)
		}
	})
}

////////////////////////////////////////////////////////////////////////////////
// QUEUE TESTS

func Test_Queue_001(t *testing.T) {
	assert := assert.New(t)
	conn := conn.Begin(t)
	defer conn.Close()
	mgr := newManager(t, conn, "test_queue")
	ctx := context.TODO()

	t.Run("CreateQueue", func(t *testing.T) {
		queue, err := mgr.CreateQueue(ctx, "create", schema.QueueOptions{
			RetryLimit: types.Ptr(5),
			RetryDelay: types.Ptr(10 * time.Second),
			ExpireIn:   types.Ptr(time.Hour),
		})
		if !assert.NoError(err) {
			t.FailNow()
		}
		assert.Equal("create", queue.Name)
		assert.Equal(5, queue.RetryLimit)
		assert.Equal(10*time.Second, queue.RetryDelay)
		assert.Equal(time.Hour, queue.ExpireIn)
		assert.Equal(schema.DefaultPartition, queue.Table)
		assert.False(queue.Partition)
	})

	t.Run("CreateQueueTwice", func(t *testing.T) {
		queue, err := mgr.CreateQueue(ctx, "create", schema.QueueOptions{RetryLimit: types.Ptr(1)})
		assert.NoError(err)
		assert.Equal(1, queue.RetryLimit)
		assert.Equal(time.Hour, queue.ExpireIn)
	})

	t.Run("CreateQueueInvalidName", func(t *testing.T) {
		_, err := mgr.CreateQueue(ctx, "", schema.QueueOptions{})
		assert.ErrorIs(err, pg.ErrBadParameter)
		_, err = mgr.CreateQueue(ctx, "has space", schema.QueueOptions{})
		assert.ErrorIs(err, pg.ErrBadParameter)
	})

	t.Run("CreateQueueInvalidOptions", func(t *testing.T) {
		_, err := mgr.CreateQueue(ctx, "invalid", schema.QueueOptions{RetryLimit: types.Ptr(-1)})
		assert.ErrorIs(err, pg.ErrBadParameter)
	})

	t.Run("CreateQueueMissingDeadLetter", func(t *testing.T) {
		_, err := mgr.CreateQueue(ctx, "orphan", schema.QueueOptions{DeadLetter: types.Ptr("missing")})
		assert.ErrorIs(err, pg.ErrNotFound)
	})

	t.Run("UpdateQueue", func(t *testing.T) {
		queue, err := mgr.UpdateQueue(ctx, "create", schema.QueueOptions{RetryBackoff: types.Ptr(true), WarningQueued: types.Ptr(100)})
		assert.NoError(err)
		assert.True(queue.RetryBackoff)
		assert.Equal(100, queue.WarningQueued)
		assert.Equal(1, queue.RetryLimit)
	})

	t.Run("UpdateQueueNotFound", func(t *testing.T) {
		_, err := mgr.UpdateQueue(ctx, "missing", schema.QueueOptions{RetryLimit: types.Ptr(1)})
		assert.ErrorIs(err, pg.ErrNotFound)
	})

	t.Run("GetQueue", func(t *testing.T) {
		queue, err := mgr.GetQueue(ctx, "create")
		assert.NoError(err)
		assert.Equal("create", queue.Name)

		_, err = mgr.GetQueue(ctx, "missing")
		assert.ErrorIs(err, pg.ErrNotFound)
	})

	t.Run("GetQueues", func(t *testing.T) {
		for _, name := range []string{"list_a", "list_b", "list_c"} {
			_, err := mgr.CreateQueue(ctx, name, schema.QueueOptions{})
			assert.NoError(err)
		}
		queues, err := mgr.GetQueues(ctx, "list_a", "list_c")
		assert.NoError(err)
		assert.Len(queues, 2)

		all, err := mgr.GetQueues(ctx)
		assert.NoError(err)
		assert.GreaterOrEqual(len(all), 4)
	})

	t.Run("ListQueues", func(t *testing.T) {
		list, err := mgr.ListQueues(ctx, schema.QueueListRequest{OffsetLimit: pg.OffsetLimit{Limit: types.Ptr(uint64(1))}})
		assert.NoError(err)
		assert.Len(list.Body, 1)
		assert.GreaterOrEqual(list.Count, uint64(4))
	})

	t.Run("DeleteQueue", func(t *testing.T) {
		queue, err := mgr.DeleteQueue(ctx, "list_b")
		assert.NoError(err)
		assert.Equal("list_b", queue.Name)

		_, err = mgr.GetQueue(ctx, "list_b")
		assert.ErrorIs(err, pg.ErrNotFound)

		_, err = mgr.DeleteQueue(ctx, "list_b")
		assert.ErrorIs(err, pg.ErrNotFound)
	})

	t.Run("DeleteQueueWithJobs", func(t *testing.T) {
		_, err := mgr.Send(ctx, "busy", map[string]any{"n": 1}, schema.SendOptions{})
		assert.NoError(err)

		_, err = mgr.DeleteQueue(ctx, "busy")
		assert.ErrorIs(err, pg.ErrConflict)

		n, err := mgr.DeleteQueuedJobs(ctx, "busy")
		assert.NoError(err)
		assert.Equal(1, n)

		_, err = mgr.DeleteQueue(ctx, "busy")
		assert.NoError(err)
	})

	t.Run("PartitionedQueue", func(t *testing.T) {
		q, err := mgr.CreateQueue(ctx, "partitioned", schema.QueueOptions{Partition: true})
		if !assert.NoError(err) {
			t.FailNow()
		}
		assert.True(q.Partition)
		assert.Equal(schema.PartitionTable("partitioned"), q.Table)

		id, err := mgr.Send(ctx, "partitioned", nil, schema.SendOptions{})
		assert.NoError(err)
		jobs, err := mgr.Fetch(ctx, "partitioned", schema.FetchOptions{})
		assert.NoError(err)
		if assert.Len(jobs, 1) {
			assert.Equal(id, jobs[0].Id)
		}
		n, err := mgr.Complete(ctx, "partitioned", []string{id}, nil, queue.CompleteOptions{})
		assert.NoError(err)
		assert.Equal(1, n)

		_, err = mgr.DeleteQueue(ctx, "partitioned")
		assert.NoError(err)

		// Recreate after the partition was dropped
		_, err = mgr.CreateQueue(ctx, "partitioned", schema.QueueOptions{Partition: true})
		assert.NoError(err)
	})

	t.Run("GetQueueStats", func(t *testing.T) {
		_, err := mgr.SendAfter(ctx, "stats", nil, time.Now().Add(time.Hour), schema.SendOptions{})
		assert.NoError(err)
		_, err = mgr.Send(ctx, "stats", nil, schema.SendOptions{})
		assert.NoError(err)
		_, err = mgr.Send(ctx, "stats", nil, schema.SendOptions{})
		assert.NoError(err)
		_, err = mgr.Fetch(ctx, "stats", schema.FetchOptions{})
		assert.NoError(err)

		stats, err := mgr.GetQueueStats(ctx, "stats")
		assert.NoError(err)
		assert.Equal(uint64(2), stats.Queued)
		assert.Equal(uint64(1), stats.Deferred)
		assert.Equal(uint64(1), stats.Active)
		assert.Equal(uint64(3), stats.Total)

		_, err = mgr.GetQueueStats(ctx, "missing")
		assert.ErrorIs(err, pg.ErrNotFound)
	})
}
