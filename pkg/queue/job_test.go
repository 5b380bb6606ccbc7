package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	queue "github.com/timgit/pg-boss-sub002/pkg/queue"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	types "github.com/timgit/pg-boss-sub002/pkg/types"
	assert "github.com/stretchr/testify/assert"
)

////////////////////////////////////////////////////////////////////////////////
// SEND AND FETCH TESTS

func Test_Job_001(t *testing.T) {
	assert := assert.New(t)
	conn := conn.Begin(t)
	defer conn.Close()
	mgr := newManager(t, conn, "test_job_001")
	ctx := context.TODO()

	t.Run("RoundTrip", func(t *testing.T) {
		id, err := mgr.Send(ctx, "roundtrip", map[string]any{"to": "user@example.com"}, schema.SendOptions{})
		assert.NoError(err)
		assert.NotEmpty(id)

		jobs, err := mgr.Fetch(ctx, "roundtrip", schema.FetchOptions{})
		assert.NoError(err)
		if assert.Len(jobs, 1) {
			assert.Equal(id, jobs[0].Id)
			assert.Equal(schema.StateActive, jobs[0].State)
			assert.JSONEq(`{"to":"user@example.com"}`, string(jobs[0].Data))
		}

		// Nothing left to fetch
		jobs, err = mgr.Fetch(ctx, "roundtrip", schema.FetchOptions{})
		assert.NoError(err)
		assert.Empty(jobs)

		n, err := mgr.Complete(ctx, "roundtrip", []string{id}, map[string]any{"sent": true}, queue.CompleteOptions{})
		assert.NoError(err)
		assert.Equal(1, n)

		job, err := mgr.GetJob(ctx, "roundtrip", id, false)
		assert.NoError(err)
		assert.Equal(schema.StateCompleted, job.State)
		assert.JSONEq(`{"sent":true}`, string(job.Output))
		if assert.NotNil(job.CompletedOn) {
			assert.False(job.KeepUntil.Before(*job.CompletedOn))
		}

		// Completing again does nothing
		n, err = mgr.Complete(ctx, "roundtrip", []string{id}, nil, queue.CompleteOptions{})
		assert.NoError(err)
		assert.Zero(n)
	})

	t.Run("FetchMissingQueue", func(t *testing.T) {
		_, err := mgr.Fetch(ctx, "missing", schema.FetchOptions{})
		assert.ErrorIs(err, pg.ErrNotFound)
	})

	t.Run("FetchInvalidBatchSize", func(t *testing.T) {
		_, err := mgr.Fetch(ctx, "roundtrip", schema.FetchOptions{BatchSize: -1})
		assert.ErrorIs(err, pg.ErrBadParameter)
	})

	t.Run("Priority", func(t *testing.T) {
		low, err := mgr.Send(ctx, "priority", nil, schema.SendOptions{Priority: 1})
		assert.NoError(err)
		high, err := mgr.Send(ctx, "priority", nil, schema.SendOptions{Priority: 10})
		assert.NoError(err)
		normal, err := mgr.Send(ctx, "priority", nil, schema.SendOptions{})
		assert.NoError(err)

		jobs, err := mgr.Fetch(ctx, "priority", schema.FetchOptions{BatchSize: 10, IncludeMetadata: true})
		assert.NoError(err)
		if assert.Len(jobs, 3) {
			assert.Equal(high, jobs[0].Id)
			assert.Equal(low, jobs[1].Id)
			assert.Equal(normal, jobs[2].Id)
		}
	})

	t.Run("SendAfter", func(t *testing.T) {
		_, err := mgr.SendAfter(ctx, "deferred", nil, time.Now().Add(time.Hour), schema.SendOptions{})
		assert.NoError(err)
		jobs, err := mgr.Fetch(ctx, "deferred", schema.FetchOptions{})
		assert.NoError(err)
		assert.Empty(jobs)
	})

	t.Run("SendWithId", func(t *testing.T) {
		id := "0b3f6c3e-5b0e-4a3b-9a9e-3a1c7f2d9e10"
		result, err := mgr.Send(ctx, "withid", nil, schema.SendOptions{Id: id})
		assert.NoError(err)
		assert.Equal(id, result)

		_, err = mgr.Send(ctx, "withid", nil, schema.SendOptions{Id: "not-a-uuid"})
		assert.ErrorIs(err, pg.ErrBadParameter)
	})

	t.Run("Insert", func(t *testing.T) {
		ids, err := mgr.Insert(ctx, "insert", []schema.JobInsert{
			{Data: map[string]any{"n": 1}},
			{Data: map[string]any{"n": 2}, SendOptions: schema.SendOptions{SingletonKey: "key"}},
			{Data: map[string]any{"n": 3}, SendOptions: schema.SendOptions{SingletonKey: "key"}},
		})
		assert.NoError(err)
		if assert.Len(ids, 3) {
			assert.NotEmpty(ids[0])
			assert.NotEmpty(ids[1])
			assert.Empty(ids[2])
		}

		_, err = mgr.Insert(ctx, "insert", []schema.JobInsert{
			{SendOptions: schema.SendOptions{SingletonKey: "key", SingletonWindow: time.Minute, Debounce: true}},
		})
		assert.ErrorIs(err, pg.ErrBadParameter)

		// Throttled jobs are only sent one at a time
		_, err = mgr.Insert(ctx, "insert", []schema.JobInsert{
			{SendOptions: schema.SendOptions{SingletonKey: "throttle", SingletonWindow: time.Minute}},
		})
		assert.ErrorIs(err, pg.ErrBadParameter)
	})

	t.Run("FindJobs", func(t *testing.T) {
		_, err := mgr.Send(ctx, "find", map[string]any{"type": "a"}, schema.SendOptions{SingletonKey: "one"})
		assert.NoError(err)
		_, err = mgr.Send(ctx, "find", map[string]any{"type": "b"}, schema.SendOptions{})
		assert.NoError(err)

		jobs, err := mgr.FindJobs(ctx, "find", schema.FindRequest{})
		assert.NoError(err)
		assert.Len(jobs, 2)

		jobs, err = mgr.FindJobs(ctx, "find", schema.FindRequest{Key: "one"})
		assert.NoError(err)
		assert.Len(jobs, 1)

		jobs, err = mgr.FindJobs(ctx, "find", schema.FindRequest{Data: map[string]any{"type": "b"}})
		assert.NoError(err)
		assert.Len(jobs, 1)

		keys, err := mgr.GetBlockedKeys(ctx, "find")
		assert.NoError(err)
		assert.Equal([]string{"one"}, keys)
	})
}

////////////////////////////////////////////////////////////////////////////////
// CONCURRENT FETCH TESTS

func Test_Job_002(t *testing.T) {
	assert := assert.New(t)
	conn := conn.Begin(t)
	defer conn.Close()
	mgr := newManager(t, conn, "test_job_002")
	ctx := context.TODO()

	const jobs = 50
	const workers = 8

	// Insert the jobs
	insert := make([]schema.JobInsert, jobs)
	for i := range insert {
		insert[i].Data = map[string]any{"n": i}
	}
	ids, err := mgr.Insert(ctx, "concurrent", insert)
	assert.NoError(err)
	assert.Len(ids, jobs)

	// Fetch from many goroutines until the queue is empty
	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed := make(map[string]int)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				result, err := mgr.Fetch(ctx, "concurrent", schema.FetchOptions{BatchSize: 3})
				if !assert.NoError(err) || len(result) == 0 {
					return
				}
				mu.Lock()
				for _, job := range result {
					claimed[job.Id]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Every job is claimed exactly once
	assert.Len(claimed, jobs)
	for id, n := range claimed {
		assert.Equal(1, n, "job %s claimed %d times", id, n)
	}
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE TESTS

func Test_Job_003(t *testing.T) {
	assert := assert.New(t)
	conn := conn.Begin(t)
	defer conn.Close()
	mgr := newManager(t, conn, "test_job_003")
	ctx := context.TODO()

	t.Run("RetryThenFail", func(t *testing.T) {
		_, err := mgr.CreateQueue(ctx, "retry", schema.QueueOptions{
			RetryLimit: types.Ptr(2),
			RetryDelay: types.Ptr(time.Duration(0)),
		})
		assert.NoError(err)
		id, err := mgr.Send(ctx, "retry", nil, schema.SendOptions{})
		assert.NoError(err)

		for _, expect := range []schema.State{schema.StateRetry, schema.StateRetry, schema.StateFailed} {
			jobs, err := mgr.Fetch(ctx, "retry", schema.FetchOptions{})
			assert.NoError(err)
			if !assert.Len(jobs, 1) {
				t.FailNow()
			}
			n, err := mgr.Fail(ctx, "retry", []string{id}, errors.New("handler error"))
			assert.NoError(err)
			assert.Equal(1, n)

			job, err := mgr.GetJob(ctx, "retry", id, false)
			assert.NoError(err)
			assert.Equal(expect, job.State)
			assert.JSONEq(`{"message":"handler error"}`, string(job.Output))
		}

		job, err := mgr.GetJob(ctx, "retry", id, false)
		assert.NoError(err)
		assert.Equal(2, job.RetryCount)
		assert.NotNil(job.CompletedOn)
	})

	t.Run("RetryDelay", func(t *testing.T) {
		id, err := mgr.Send(ctx, "delay", nil, schema.SendOptions{RetryLimit: types.Ptr(1), RetryDelay: types.Ptr(time.Hour)})
		assert.NoError(err)
		_, err = mgr.Fetch(ctx, "delay", schema.FetchOptions{})
		assert.NoError(err)
		_, err = mgr.Fail(ctx, "delay", []string{id}, nil)
		assert.NoError(err)

		job, err := mgr.GetJob(ctx, "delay", id, false)
		assert.NoError(err)
		assert.Equal(schema.StateRetry, job.State)
		assert.Nil(job.CompletedOn)
		assert.True(job.StartAfter.After(time.Now().Add(50 * time.Minute)))
		assert.False(job.KeepUntil.Before(job.StartAfter))

		// Not fetched before the delay
		jobs, err := mgr.Fetch(ctx, "delay", schema.FetchOptions{})
		assert.NoError(err)
		assert.Empty(jobs)
	})

	t.Run("CancelResumeRetry", func(t *testing.T) {
		id, err := mgr.Send(ctx, "cancel", nil, schema.SendOptions{RetryLimit: types.Ptr(0)})
		assert.NoError(err)

		n, err := mgr.Cancel(ctx, "cancel", id)
		assert.NoError(err)
		assert.Equal(1, n)
		job, err := mgr.GetJob(ctx, "cancel", id, false)
		assert.NoError(err)
		assert.Equal(schema.StateCancelled, job.State)

		// Cancel again does nothing
		n, err = mgr.Cancel(ctx, "cancel", id)
		assert.NoError(err)
		assert.Zero(n)

		n, err = mgr.Resume(ctx, "cancel", id)
		assert.NoError(err)
		assert.Equal(1, n)
		job, err = mgr.GetJob(ctx, "cancel", id, false)
		assert.NoError(err)
		assert.Equal(schema.StateCreated, job.State)

		_, err = mgr.Fetch(ctx, "cancel", schema.FetchOptions{})
		assert.NoError(err)
		n, err = mgr.Fail(ctx, "cancel", []string{id}, nil)
		assert.NoError(err)
		assert.Equal(1, n)
		job, err = mgr.GetJob(ctx, "cancel", id, false)
		assert.NoError(err)
		assert.Equal(schema.StateFailed, job.State)

		n, err = mgr.Retry(ctx, "cancel", id)
		assert.NoError(err)
		assert.Equal(1, n)
		jobs, err := mgr.Fetch(ctx, "cancel", schema.FetchOptions{})
		assert.NoError(err)
		assert.Len(jobs, 1)
	})

	t.Run("CompleteQueued", func(t *testing.T) {
		id, err := mgr.Send(ctx, "complete", nil, schema.SendOptions{})
		assert.NoError(err)

		n, err := mgr.Complete(ctx, "complete", []string{id}, nil, queue.CompleteOptions{})
		assert.NoError(err)
		assert.Zero(n)

		n, err = mgr.Complete(ctx, "complete", []string{id}, nil, queue.CompleteOptions{IncludeQueued: true})
		assert.NoError(err)
		assert.Equal(1, n)
	})

	t.Run("InvalidIds", func(t *testing.T) {
		_, err := mgr.Complete(ctx, "complete", []string{"invalid"}, nil, queue.CompleteOptions{})
		assert.ErrorIs(err, pg.ErrBadParameter)
		_, err = mgr.Fail(ctx, "complete", []string{"invalid"}, nil)
		assert.ErrorIs(err, pg.ErrBadParameter)
	})

	t.Run("DeadLetter", func(t *testing.T) {
		_, err := mgr.CreateQueue(ctx, "dlq", schema.QueueOptions{})
		assert.NoError(err)
		_, err = mgr.CreateQueue(ctx, "source", schema.QueueOptions{
			RetryLimit: types.Ptr(0),
			DeadLetter: types.Ptr("dlq"),
		})
		assert.NoError(err)

		id, err := mgr.Send(ctx, "source", map[string]any{"order": 42}, schema.SendOptions{})
		assert.NoError(err)
		_, err = mgr.Fetch(ctx, "source", schema.FetchOptions{})
		assert.NoError(err)
		_, err = mgr.Fail(ctx, "source", []string{id}, errors.New("boom"))
		assert.NoError(err)

		jobs, err := mgr.Fetch(ctx, "dlq", schema.FetchOptions{IncludeMetadata: true})
		assert.NoError(err)
		if assert.Len(jobs, 1) {
			assert.JSONEq(`{"order":42}`, string(jobs[0].Data))
			var output struct {
				JobId string `json:"job_id"`
				Name  string `json:"name"`
			}
			assert.NoError(json.Unmarshal(jobs[0].Output, &output))
			assert.Equal(id, output.JobId)
			assert.Equal("source", output.Name)
		}
	})
}

////////////////////////////////////////////////////////////////////////////////
// DEDUPLICATION TESTS

func Test_Job_004(t *testing.T) {
	assert := assert.New(t)
	conn := conn.Begin(t)
	defer conn.Close()
	mgr := newManager(t, conn, "test_job_004")
	ctx := context.TODO()

	t.Run("SingletonKey", func(t *testing.T) {
		first, err := mgr.Send(ctx, "singleton", nil, schema.SendOptions{SingletonKey: "key"})
		assert.NoError(err)
		assert.NotEmpty(first)

		second, err := mgr.Send(ctx, "singleton", nil, schema.SendOptions{SingletonKey: "key"})
		assert.NoError(err)
		assert.Empty(second)

		// Another key is not blocked
		other, err := mgr.Send(ctx, "singleton", nil, schema.SendOptions{SingletonKey: "other"})
		assert.NoError(err)
		assert.NotEmpty(other)

		// Once the job is finished, the key is free
		_, err = mgr.Cancel(ctx, "singleton", first)
		assert.NoError(err)
		third, err := mgr.Send(ctx, "singleton", nil, schema.SendOptions{SingletonKey: "key"})
		assert.NoError(err)
		assert.NotEmpty(third)
	})

	t.Run("Throttle", func(t *testing.T) {
		first, err := mgr.SendThrottled(ctx, "throttle", nil, time.Minute, "key", schema.SendOptions{})
		assert.NoError(err)
		assert.NotEmpty(first)

		second, err := mgr.SendThrottled(ctx, "throttle", nil, time.Minute, "key", schema.SendOptions{})
		assert.NoError(err)
		assert.Empty(second)

		// The throttle applies after the job is finished
		_, err = mgr.Complete(ctx, "throttle", []string{first}, nil, queue.CompleteOptions{IncludeQueued: true})
		assert.NoError(err)
		third, err := mgr.SendThrottled(ctx, "throttle", nil, time.Minute, "key", schema.SendOptions{})
		assert.NoError(err)
		assert.Empty(third)
	})

	t.Run("ConcurrentThrottle", func(t *testing.T) {
		var wg sync.WaitGroup
		ids := make(chan string, 10)
		for i := 0; i < cap(ids); i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := mgr.SendThrottled(ctx, "throttle", nil, time.Minute, "concurrent", schema.SendOptions{})
				assert.NoError(err)
				ids <- id
			}()
		}
		wg.Wait()
		close(ids)

		var sent int
		for id := range ids {
			if id != "" {
				sent++
			}
		}
		assert.Equal(1, sent)
	})

	t.Run("ConcurrentDeleteQueue", func(t *testing.T) {
		for _, partition := range []bool{false, true} {
			for i := 0; i < 5; i++ {
				_, err := mgr.CreateQueue(ctx, "deleted", schema.QueueOptions{Partition: partition})
				assert.NoError(err)

				var wg sync.WaitGroup
				var id string
				var sendErr, deleteErr error
				wg.Add(2)
				go func() {
					defer wg.Done()
					id, sendErr = mgr.Send(ctx, "deleted", nil, schema.SendOptions{})
				}()
				go func() {
					defer wg.Done()
					_, deleteErr = mgr.DeleteQueue(ctx, "deleted")
				}()
				wg.Wait()

				// The queue is deleted before the send, or not at all
				assert.NoError(sendErr)
				if deleteErr != nil {
					assert.ErrorIs(deleteErr, pg.ErrConflict)
				}
				_, err = mgr.GetQueue(ctx, "deleted")
				assert.NoError(err)
				job, err := mgr.GetJob(ctx, "deleted", id, false)
				if assert.NoError(err) {
					assert.Equal(schema.StateCreated, job.State)
				}

				_, err = mgr.DeleteAllJobs(ctx, "deleted")
				assert.NoError(err)
				_, err = mgr.DeleteQueue(ctx, "deleted")
				assert.NoError(err)
			}
		}
	})

	t.Run("Debounce", func(t *testing.T) {
		first, err := mgr.SendDebounced(ctx, "debounce", map[string]any{"n": 1}, time.Minute, "key", schema.SendOptions{})
		assert.NoError(err)
		assert.NotEmpty(first)

		second, err := mgr.SendDebounced(ctx, "debounce", map[string]any{"n": 2}, time.Minute, "key", schema.SendOptions{})
		assert.NoError(err)
		assert.Equal(first, second)

		job, err := mgr.GetJob(ctx, "debounce", first, false)
		assert.NoError(err)
		assert.JSONEq(`{"n":2}`, string(job.Data))
		assert.True(job.StartAfter.After(time.Now()))

		// Not fetched before the window ends
		jobs, err := mgr.Fetch(ctx, "debounce", schema.FetchOptions{})
		assert.NoError(err)
		assert.Empty(jobs)
	})

	t.Run("GroupConcurrency", func(t *testing.T) {
		_, err := mgr.CreateQueue(ctx, "group", schema.QueueOptions{GroupConcurrency: types.Ptr(1)})
		assert.NoError(err)
		for i := 0; i < 3; i++ {
			_, err := mgr.Send(ctx, "group", nil, schema.SendOptions{GroupId: "tenant"})
			assert.NoError(err)
		}
		_, err = mgr.Send(ctx, "group", nil, schema.SendOptions{})
		assert.NoError(err)

		jobs, err := mgr.Fetch(ctx, "group", schema.FetchOptions{BatchSize: 10})
		assert.NoError(err)
		assert.Len(jobs, 2)

		// The group is at its limit
		jobs, err = mgr.Fetch(ctx, "group", schema.FetchOptions{BatchSize: 10})
		assert.NoError(err)
		assert.Empty(jobs)
	})

	t.Run("GroupBacklog", func(t *testing.T) {
		_, err := mgr.CreateQueue(ctx, "backlog", schema.QueueOptions{GroupConcurrency: types.Ptr(1)})
		assert.NoError(err)
		ids, err := mgr.Insert(ctx, "backlog", make([]schema.JobInsert, 3*schema.GroupScanFactor))
		assert.NoError(err)
		for range ids {
			_, err := mgr.Send(ctx, "backlog", nil, schema.SendOptions{GroupId: "hot", Priority: 1})
			assert.NoError(err)
		}
		cold, err := mgr.Send(ctx, "backlog", nil, schema.SendOptions{GroupId: "cold", Priority: 1})
		assert.NoError(err)

		// The first job of the hot group
		jobs, err := mgr.Fetch(ctx, "backlog", schema.FetchOptions{})
		assert.NoError(err)
		if assert.Len(jobs, 1) {
			assert.Equal("hot", types.Value(jobs[0].GroupId))
		}

		// The hot group is at its limit, so the cold group is next
		jobs, err = mgr.Fetch(ctx, "backlog", schema.FetchOptions{})
		assert.NoError(err)
		if assert.Len(jobs, 1) {
			assert.Equal(cold, jobs[0].Id)
		}

		// Then the jobs without a group
		jobs, err = mgr.Fetch(ctx, "backlog", schema.FetchOptions{BatchSize: 5})
		assert.NoError(err)
		assert.Len(jobs, 5)
		for _, job := range jobs {
			assert.Nil(job.GroupId)
		}
	})
}

////////////////////////////////////////////////////////////////////////////////
// DELETE TESTS

func Test_Job_005(t *testing.T) {
	assert := assert.New(t)
	conn := conn.Begin(t)
	defer conn.Close()
	mgr := newManager(t, conn, "test_job_005")
	ctx := context.TODO()

	for i := 0; i < 3; i++ {
		_, err := mgr.Send(ctx, "delete", nil, schema.SendOptions{})
		assert.NoError(err)
	}
	jobs, err := mgr.Fetch(ctx, "delete", schema.FetchOptions{})
	assert.NoError(err)
	if assert.Len(jobs, 1) {
		_, err := mgr.Complete(ctx, "delete", []string{jobs[0].Id}, nil, queue.CompleteOptions{})
		assert.NoError(err)
	}

	n, err := mgr.DeleteStoredJobs(ctx, "delete")
	assert.NoError(err)
	assert.Equal(1, n)

	n, err = mgr.DeleteQueuedJobs(ctx, "delete")
	assert.NoError(err)
	assert.Equal(2, n)

	n, err = mgr.DeleteAllJobs(ctx, "delete")
	assert.NoError(err)
	assert.Zero(n)
}
