package pg_test

import (
	"strings"
	"testing"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	assert "github.com/stretchr/testify/assert"
)

func Test_Queries_001(t *testing.T) {
	assert := assert.New(t)

	t.Run("Parse", func(t *testing.T) {
		queries, err := pg.NewQueries(strings.NewReader(`
-- ignored until the first key
-- job.get
SELECT * FROM job
WHERE id = @id

-- job.delete
DELETE FROM job WHERE id = @id
`))
		if !assert.NoError(err) {
			t.FailNow()
		}
		assert.Equal([]string{"job.get", "job.delete"}, queries.Keys())
		assert.Equal("SELECT * FROM job\nWHERE id = @id", queries.Get("job.get"))
		assert.Equal("DELETE FROM job WHERE id = @id", queries.Get("job.delete"))
		assert.Equal("", queries.Get("job.missing"))
	})

	t.Run("Duplicate", func(t *testing.T) {
		_, err := pg.NewQueries(strings.NewReader("-- a\nSELECT 1\n-- a\nSELECT 2\n"))
		assert.ErrorIs(err, pg.ErrBadParameter)
	})

	t.Run("ParseComments", func(t *testing.T) {
		queries, err := pg.ParseQueries("-- queue.get\r\n-- Returns one queue\r\nSELECT 1")
		if assert.NoError(err) {
			assert.Equal([]string{"queue.get"}, queries.Keys())
			assert.Contains(queries.Get("queue.get"), "-- Returns one queue")
			assert.Contains(queries.Get("queue.get"), "SELECT 1")
		}
	})

	t.Run("Empty", func(t *testing.T) {
		queries, err := pg.NewQueries(strings.NewReader(""))
		assert.NoError(err)
		assert.Empty(queries.Keys())
	})
}

func Test_OffsetLimit_001(t *testing.T) {
	assert := assert.New(t)
	limit := func(n uint64) *uint64 { return &n }

	tests := []struct {
		name string
		in   pg.OffsetLimit
		max  uint64
		out  string
	}{
		{"None", pg.OffsetLimit{}, 0, ""},
		{"Max", pg.OffsetLimit{}, 100, "LIMIT 100"},
		{"Limit", pg.OffsetLimit{Limit: limit(10)}, 100, "LIMIT 10"},
		{"Clamped", pg.OffsetLimit{Limit: limit(1000)}, 100, "LIMIT 100"},
		{"Unbounded", pg.OffsetLimit{Limit: limit(1000)}, 0, "LIMIT 1000"},
		{"Offset", pg.OffsetLimit{Offset: 20, Limit: limit(10)}, 100, "LIMIT 10 OFFSET 20"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bind := pg.NewBind()
			test.in.Bind(bind, test.max)
			assert.Equal(test.out, bind.Get("offsetlimit"))
		})
	}

	t.Run("Clamp", func(t *testing.T) {
		var r pg.OffsetLimit
		r.Clamp(50)
		assert.Equal(uint64(50), *r.Limit)
		r.Limit = limit(10)
		r.Clamp(50)
		assert.Equal(uint64(10), *r.Limit)
	})
}
