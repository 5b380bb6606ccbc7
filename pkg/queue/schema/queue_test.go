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

func Test_Queue_001(t *testing.T) {
	assert := assert.New(t)

	t.Run("Name", func(t *testing.T) {
		name, err := schema.QueueName("  email ").Name()
		assert.NoError(err)
		assert.Equal("email", name)

		_, err = schema.QueueName("").Name()
		assert.ErrorIs(err, pg.ErrBadParameter)
		_, err = schema.QueueName("1abc").Name()
		assert.ErrorIs(err, pg.ErrBadParameter)
		_, err = schema.QueueName("has space").Name()
		assert.ErrorIs(err, pg.ErrBadParameter)
		_, err = schema.QueueName("a123456789012345678901234567890123456789012345678").Name()
		assert.ErrorIs(err, pg.ErrBadParameter)
	})

	t.Run("PartitionTable", func(t *testing.T) {
		table := schema.PartitionTable("email")
		assert.Len(table, 33)
		assert.Equal("j", table[:1])
		assert.Equal(table, schema.PartitionTable("email"))
		assert.NotEqual(table, schema.PartitionTable("email2"))
	})

	t.Run("Validate", func(t *testing.T) {
		assert.NoError(schema.QueueOptions{}.Validate())
		assert.NoError(schema.QueueOptions{RetryLimit: types.Ptr(3), RetryDelay: types.Ptr(time.Second)}.Validate())
		assert.ErrorIs(schema.QueueOptions{RetryLimit: types.Ptr(-1)}.Validate(), pg.ErrBadParameter)
		assert.ErrorIs(schema.QueueOptions{ExpireIn: types.Ptr(time.Duration(0))}.Validate(), pg.ErrBadParameter)
		assert.ErrorIs(schema.QueueOptions{GroupTiers: map[string]int{"gold": 0}}.Validate(), pg.ErrBadParameter)
	})

	t.Run("HasPatch", func(t *testing.T) {
		assert.False(schema.QueueOptions{}.HasPatch())
		assert.False(schema.QueueOptions{Partition: true}.HasPatch())
		assert.True(schema.QueueOptions{WarningQueued: types.Ptr(10)}.HasPatch())
	})
}

func Test_Queue_002(t *testing.T) {
	assert := assert.New(t)

	t.Run("Insert", func(t *testing.T) {
		bind := pg.NewBind()
		_, err := schema.QueueMeta{Name: "email"}.Insert(bind)
		assert.NoError(err)
		assert.Equal(schema.DefaultPartition, bind.Get("table_name"))

		bind = pg.NewBind()
		_, err = schema.QueueMeta{Name: "email", QueueOptions: schema.QueueOptions{Partition: true}}.Insert(bind)
		assert.NoError(err)
		assert.Equal(schema.PartitionTable("email"), bind.Get("table_name"))
	})

	t.Run("Patch", func(t *testing.T) {
		bind := pg.NewBind()
		err := schema.QueueMeta{Name: "email", QueueOptions: schema.QueueOptions{
			RetryLimit: types.Ptr(5),
			ExpireIn:   types.Ptr(90 * time.Second),
		}}.Update(bind)
		assert.NoError(err)
		assert.Equal("retry_limit = @retry_limit, expire_in = @expire_in::INTERVAL", bind.Get("patch"))
		assert.Equal(90*time.Second, bind.Get("expire_in"))
	})

	t.Run("PatchDeadLetterClear", func(t *testing.T) {
		bind := pg.NewBind()
		err := schema.QueueMeta{Name: "email", QueueOptions: schema.QueueOptions{DeadLetter: types.Ptr("")}}.Update(bind)
		assert.NoError(err)
		assert.Equal("dead_letter = NULL", bind.Get("patch"))
	})

	t.Run("PatchEmpty", func(t *testing.T) {
		err := schema.QueueMeta{Name: "email"}.Update(pg.NewBind())
		assert.ErrorIs(err, pg.ErrBadParameter)
	})
}
