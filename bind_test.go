package pg_test

import (
	"testing"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	assert "github.com/stretchr/testify/assert"
)

func Test_Bind_001(t *testing.T) {
	assert := assert.New(t)

	t.Run("NewBind", func(t *testing.T) {
		bind := pg.NewBind("queue", "emails")
		if assert.NotNil(bind) {
			assert.True(bind.Has("queue"))
			assert.Equal("emails", bind.Get("queue"))
			assert.False(bind.Has("id"))
		}
	})

	t.Run("NewBindOdd", func(t *testing.T) {
		assert.Nil(pg.NewBind("queue", "emails", "id"))
	})

	t.Run("NewBindEmptyKey", func(t *testing.T) {
		assert.Nil(pg.NewBind("", "emails"))
	})

	t.Run("NewBindValue", func(t *testing.T) {
		bind := pg.NewBind("priority", 10, "backoff", true)
		if assert.NotNil(bind) {
			assert.Equal(10, bind.Get("priority"))
			assert.Equal(true, bind.Get("backoff"))
		}
	})

	t.Run("Set", func(t *testing.T) {
		bind := pg.NewBind()
		assert.Equal("@retry_limit", bind.Set("retry_limit", 3))
		assert.Equal(3, bind.Get("retry_limit"))
		assert.Equal("@retry_limit", bind.Set("retry_limit", 5))
		assert.Equal(5, bind.Get("retry_limit"))
	})

	t.Run("SetEmptyKey", func(t *testing.T) {
		assert.Empty(pg.NewBind().Set("", 3))
	})
}

func Test_Bind_002(t *testing.T) {
	assert := assert.New(t)
	bind := pg.NewBind(
		"schema", "pgboss",
		"quote", "it's",
		"ident", `my"queue`,
	)

	tests := []struct {
		In  string
		Out string
	}{
		{In: `$schema`, Out: "pgboss"},
		{In: `${schema}.job`, Out: "pgboss.job"},
		{In: `${'schema'}`, Out: "'pgboss'"},
		{In: `${"schema"}.job`, Out: `"pgboss".job`},
		{In: `${'quote'}`, Out: `'it''s'`},
		{In: `${"ident"}`, Out: `"my""queue"`},
		{In: `@id AND $1`, Out: `@id AND $1`},
		{In: `${2}`, Out: `$2`},
		{In: `$$ BEGIN $$`, Out: `$$ BEGIN $$`},
	}
	for _, test := range tests {
		t.Run(test.In, func(t *testing.T) {
			assert.Equal(test.Out, bind.Replace(test.In))
		})
	}
}

func Test_Bind_003(t *testing.T) {
	assert := assert.New(t)

	t.Run("QuotedList", func(t *testing.T) {
		bind := pg.NewBind("states", []string{"created", "retry"})
		assert.Equal("state IN ('created','retry')", bind.Replace("state IN (${'states'})"))
	})

	t.Run("EmptyList", func(t *testing.T) {
		bind := pg.NewBind("states", []string{})
		assert.Equal("state IN ()", bind.Replace("state IN (${'states'})"))
	})
}

func Test_Bind_004(t *testing.T) {
	assert := assert.New(t)

	t.Run("Copy", func(t *testing.T) {
		bind := pg.NewBind("schema", "pgboss")
		copy := bind.Copy("name", "email")
		assert.True(copy.Has("schema"))
		assert.True(copy.Has("name"))
		assert.False(bind.Has("name"))
	})

	t.Run("CopyOdd", func(t *testing.T) {
		assert.Nil(pg.NewBind().Copy("name"))
	})

	t.Run("Append", func(t *testing.T) {
		bind := pg.NewBind()
		assert.True(bind.Append("where", "a = 1"))
		assert.True(bind.Append("where", "b = 2"))
		assert.Equal("a = 1 AND b = 2", bind.Join("where", " AND "))
	})

	t.Run("AppendNotList", func(t *testing.T) {
		bind := pg.NewBind("where", "a = 1")
		assert.False(bind.Append("where", "b = 2"))
		assert.Equal("a = 1", bind.Join("where", " AND "))
	})

	t.Run("Del", func(t *testing.T) {
		bind := pg.NewBind("name", "email")
		bind.Del("name")
		assert.False(bind.Has("name"))
		assert.Equal("", bind.Join("name", ","))
	})

	t.Run("NestedReplace", func(t *testing.T) {
		bind := pg.NewBind("schema", "pgboss", "pgboss.job_get", `SELECT * FROM ${"schema"}.job`)
		assert.Equal(`SELECT * FROM "pgboss".job`, bind.Replace(bind.Replace("${pgboss.job_get}")))
	})
}
