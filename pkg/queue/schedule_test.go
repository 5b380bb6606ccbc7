package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	types "github.com/timgit/pg-boss-sub002/pkg/types"
	assert "github.com/stretchr/testify/assert"
)

////////////////////////////////////////////////////////////////////////////////
// SCHEDULE TESTS

func Test_Schedule_001(t *testing.T) {
	assert := assert.New(t)
	conn := conn.Begin(t)
	defer conn.Close()
	mgr := newManager(t, conn, "test_schedule")
	ctx := context.TODO()

	t.Run("Schedule", func(t *testing.T) {
		schedule, err := mgr.Schedule(ctx, "report", "* * * * *", map[string]any{"type": "hourly"}, schema.ScheduleOptions{})
		assert.NoError(err)
		assert.Equal("report", schedule.Name)
		assert.Equal("* * * * *", schedule.Cron)
		assert.Equal("UTC", schedule.Timezone)

		// Replace the schedule
		schedule, err = mgr.Schedule(ctx, "report", "*/5 * * * *", nil, schema.ScheduleOptions{Timezone: "Europe/Berlin"})
		assert.NoError(err)
		assert.Equal("*/5 * * * *", schedule.Cron)
		assert.Equal("Europe/Berlin", schedule.Timezone)
	})

	t.Run("ScheduleInvalid", func(t *testing.T) {
		_, err := mgr.Schedule(ctx, "report", "not a cron", nil, schema.ScheduleOptions{})
		assert.ErrorIs(err, pg.ErrBadParameter)
		_, err = mgr.Schedule(ctx, "report", "* * * * *", nil, schema.ScheduleOptions{Timezone: "Nowhere/Special"})
		assert.ErrorIs(err, pg.ErrBadParameter)
	})

	t.Run("GetSchedules", func(t *testing.T) {
		_, err := mgr.Schedule(ctx, "report", "0 * * * *", nil, schema.ScheduleOptions{Key: "hourly"})
		assert.NoError(err)

		schedules, err := mgr.GetSchedules(ctx, "report", nil)
		assert.NoError(err)
		assert.Len(schedules, 2)

		schedules, err = mgr.GetSchedules(ctx, "report", types.Ptr("hourly"))
		assert.NoError(err)
		assert.Len(schedules, 1)
	})

	t.Run("Unschedule", func(t *testing.T) {
		schedule, err := mgr.Unschedule(ctx, "report", "hourly")
		assert.NoError(err)
		assert.Equal("hourly", schedule.Key)

		_, err = mgr.Unschedule(ctx, "report", "hourly")
		assert.ErrorIs(err, pg.ErrNotFound)

		_, err = mgr.Unschedule(ctx, "report", "")
		assert.NoError(err)
	})
}

func Test_Schedule_002(t *testing.T) {
	assert := assert.New(t)
	conn := conn.Begin(t)
	defer conn.Close()
	mgr := newManager(t, conn, "test_tick")
	ctx := context.TODO()

	_, err := mgr.Schedule(ctx, "tick", "* * * * *", map[string]any{"n": 1}, schema.ScheduleOptions{
		Send: schema.SendOptions{Priority: 5},
	})
	if !assert.NoError(err) {
		t.FailNow()
	}
	at := time.Now().Add(2 * time.Minute)

	t.Run("ConcurrentTick", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		var sent int
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n, err := mgr.Tick(ctx, at)
				assert.NoError(err)
				mu.Lock()
				sent += n
				mu.Unlock()
			}()
		}
		wg.Wait()

		// Overlapping ticks may all skip, the next tick catches up
		n, err := mgr.Tick(ctx, at)
		assert.NoError(err)
		assert.Equal(1, sent+n)
	})

	t.Run("TickTwice", func(t *testing.T) {
		n, err := mgr.Tick(ctx, at)
		assert.NoError(err)
		assert.Zero(n)
	})

	t.Run("Fired", func(t *testing.T) {
		jobs, err := mgr.Fetch(ctx, "tick", schema.FetchOptions{BatchSize: 10, IncludeMetadata: true})
		assert.NoError(err)
		if assert.Len(jobs, 1) {
			assert.JSONEq(`{"n":1}`, string(jobs[0].Data))
			assert.Equal(5, jobs[0].Priority)
		}
	})

	t.Run("NextOccurrence", func(t *testing.T) {
		n, err := mgr.Tick(ctx, at.Add(time.Minute))
		assert.NoError(err)
		assert.Equal(1, n)
	})
}
