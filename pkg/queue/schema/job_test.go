package schema_test

import (
	"testing"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	types "github.com/timgit/pg-boss-sub002/pkg/types"
	assert "github.com/stretchr/testify/assert"
)

func Test_Job_001(t *testing.T) {
	assert := assert.New(t)

	t.Run("ValidateEmpty", func(t *testing.T) {
		assert.NoError(schema.SendOptions{}.Validate())
	})

	t.Run("ValidateId", func(t *testing.T) {
		assert.NoError(schema.SendOptions{Id: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}.Validate())
		assert.ErrorIs(schema.SendOptions{Id: "123"}.Validate(), pg.ErrBadParameter)
	})

	t.Run("ValidateWindow", func(t *testing.T) {
		assert.NoError(schema.SendOptions{SingletonKey: "k", SingletonWindow: time.Minute}.Validate())
		assert.ErrorIs(schema.SendOptions{SingletonWindow: time.Millisecond}.Validate(), pg.ErrBadParameter)
		assert.ErrorIs(schema.SendOptions{SingletonWindow: -time.Second}.Validate(), pg.ErrBadParameter)
		assert.ErrorIs(schema.SendOptions{Debounce: true}.Validate(), pg.ErrBadParameter)
	})

	t.Run("ValidateRetry", func(t *testing.T) {
		assert.NoError(schema.SendOptions{RetryLimit: types.Ptr(0)}.Validate())
		assert.ErrorIs(schema.SendOptions{RetryLimit: types.Ptr(-1)}.Validate(), pg.ErrBadParameter)
		assert.ErrorIs(schema.SendOptions{RetryDelay: types.Ptr(-time.Second)}.Validate(), pg.ErrBadParameter)
		assert.ErrorIs(schema.SendOptions{ExpireIn: types.Ptr(time.Duration(0))}.Validate(), pg.ErrBadParameter)
	})

	t.Run("ValidateGroup", func(t *testing.T) {
		assert.NoError(schema.SendOptions{GroupId: "tenant"}.Validate())
		assert.ErrorIs(schema.SendOptions{GroupTier: "gold"}.Validate(), pg.ErrBadParameter)
	})

	t.Run("ValidateDeadLetter", func(t *testing.T) {
		assert.NoError(schema.SendOptions{DeadLetter: "dlq"}.Validate())
		assert.ErrorIs(schema.SendOptions{DeadLetter: "bad name!"}.Validate(), pg.ErrBadParameter)
	})

	t.Run("FetchOptions", func(t *testing.T) {
		assert.NoError(schema.FetchOptions{BatchSize: 1}.Validate())
		assert.ErrorIs(schema.FetchOptions{BatchSize: 0}.Validate(), pg.ErrBadParameter)
		assert.ErrorIs(schema.FetchOptions{BatchSize: schema.FetchLimit + 1}.Validate(), pg.ErrBadParameter)
	})
}

func Test_Job_002(t *testing.T) {
	assert := assert.New(t)

	t.Run("ParseIds", func(t *testing.T) {
		ids, err := schema.ParseIds(" 6BA7B810-9DAD-11D1-80B4-00C04FD430C8 ")
		assert.NoError(err)
		assert.Equal([]string{"6ba7b810-9dad-11d1-80b4-00c04fd430c8"}, ids)

		_, err = schema.ParseIds()
		assert.ErrorIs(err, pg.ErrBadParameter)
		_, err = schema.ParseIds("not-a-uuid")
		assert.ErrorIs(err, pg.ErrBadParameter)
	})

	t.Run("Metadata", func(t *testing.T) {
		started := time.Now()
		job := schema.Job{Id: "a", Name: "q", Priority: 5, RetryLimit: 3, StartedOn: &started, ExpireIn: time.Minute}
		assert.Equal(job, job.Metadata(true))
		stripped := job.Metadata(false)
		assert.Equal("a", stripped.Id)
		assert.Equal(0, stripped.Priority)
		assert.Equal(0, stripped.RetryLimit)
		assert.Equal(started.Add(time.Minute), stripped.Deadline())
	})

	t.Run("RetryPolicy", func(t *testing.T) {
		job := schema.Job{RetryLimit: 3, RetryDelay: time.Second, RetryBackoff: true}
		policy := job.RetryPolicy()
		assert.Equal(3, policy.Limit)
		assert.Equal(time.Second, policy.Delay)
		assert.True(policy.Backoff)
	})
}

func Test_Job_003(t *testing.T) {
	assert := assert.New(t)

	t.Run("SendBindsAllParameters", func(t *testing.T) {
		bind := pg.NewBind()
		_, err := schema.JobSend{Name: "email", Data: map[string]any{"to": "a@b.c"}}.Insert(bind)
		assert.NoError(err)
		for _, key := range []string{
			"id", "name", "priority", "data", "retry_limit", "retry_delay", "retry_backoff",
			"retry_delay_max", "expire_in", "retention", "start_after", "singleton_key",
			"singleton_on", "singleton_seconds", "group_id", "group_tier", "dead_letter",
		} {
			assert.True(bind.Has(key), key)
		}
		assert.Equal("email", bind.Get("name"))
		assert.Equal(`{"to":"a@b.c"}`, bind.Get("data"))
		assert.Nil(bind.Get("singleton_key"))
		assert.Equal(0, bind.Get("singleton_seconds"))
	})

	t.Run("SendThrottled", func(t *testing.T) {
		bind := pg.NewBind()
		_, err := schema.JobSend{Name: "email", SendOptions: schema.SendOptions{SingletonWindow: time.Minute}}.Insert(bind)
		assert.NoError(err)
		assert.Equal("", bind.Get("singleton_key"))
		assert.Equal(60, bind.Get("singleton_seconds"))
		assert.Nil(bind.Get("singleton_on"))
	})

	t.Run("SendDebounced", func(t *testing.T) {
		bind := pg.NewBind()
		_, err := schema.JobSend{Name: "email", SendOptions: schema.SendOptions{SingletonKey: "k", SingletonWindow: time.Minute, Debounce: true}}.Insert(bind)
		assert.NoError(err)
		assert.Equal("k", bind.Get("singleton_key"))
		assert.NotNil(bind.Get("singleton_on"))
	})

	t.Run("SendInvalidName", func(t *testing.T) {
		_, err := schema.JobSend{Name: ""}.Insert(pg.NewBind())
		assert.ErrorIs(err, pg.ErrBadParameter)
	})

	t.Run("SendInvalidData", func(t *testing.T) {
		_, err := schema.JobSend{Name: "email", Data: []byte("{")}.Insert(pg.NewBind())
		assert.ErrorIs(err, pg.ErrBadParameter)
	})

	t.Run("FindWhere", func(t *testing.T) {
		bind := pg.NewBind("name", "email")
		_, err := schema.FindRequest{Key: "k", Queued: true}.Select(bind, pg.List)
		assert.NoError(err)
		assert.Equal("AND singleton_key = @key AND state < 'active'", bind.Get("where"))
		assert.Equal("LIMIT 1000", bind.Get("offsetlimit"))
	})

	t.Run("DeleteWhere", func(t *testing.T) {
		bind := pg.NewBind()
		_, err := schema.JobDelete{Names: []string{"a"}, Stored: true}.Select(bind, pg.List)
		assert.NoError(err)
		assert.Equal("name = ANY(@names) AND state > 'active'", bind.Get("where"))

		bind = pg.NewBind()
		_, err = schema.JobDelete{}.Select(bind, pg.List)
		assert.NoError(err)
		assert.Equal("TRUE", bind.Get("where"))
	})

	t.Run("CompleteWhere", func(t *testing.T) {
		id := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
		bind := pg.NewBind()
		_, err := schema.JobComplete{JobIds: schema.JobIds{Name: "email", Ids: []string{id}}}.Select(bind, pg.List)
		assert.NoError(err)
		assert.Equal("j.state = 'active'", bind.Get("where"))

		bind = pg.NewBind()
		_, err = schema.JobComplete{JobIds: schema.JobIds{Name: "email", Ids: []string{id}}, IncludeQueued: true}.Select(bind, pg.List)
		assert.NoError(err)
		assert.Equal("j.state <= 'active'", bind.Get("where"))
	})

	t.Run("CompleteMissingIds", func(t *testing.T) {
		_, err := schema.JobComplete{JobIds: schema.JobIds{Name: "email"}}.Select(pg.NewBind(), pg.List)
		assert.ErrorIs(err, pg.ErrBadParameter)
	})

	t.Run("FailTransition", func(t *testing.T) {
		bind := pg.NewBind()
		_, err := schema.JobFail{Name: "email", Id: "x", Transition: schema.Transition{State: schema.StateRetry, RetryCount: 1, Delay: time.Second}}.Select(bind, pg.Update)
		assert.NoError(err)
		assert.Equal(1, bind.Get("retry_count"))
		assert.Equal(time.Second, bind.Get("delay"))

		_, err = schema.JobFail{Name: "email", Id: "x", Transition: schema.Transition{State: schema.StateActive}}.Select(pg.NewBind(), pg.Update)
		assert.ErrorIs(err, pg.ErrInternalError)
	})
}
