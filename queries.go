package pg

import (
	"io"
	"regexp"
	"strings"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Queries are named SQL statements. In the source text each statement
// follows a line "-- name", where the name contains letters, digits,
// underscores, dots and hyphens. Any text before the first name is
// ignored, and other comment lines are part of the statement.
//
//	-- job.get
//	SELECT * FROM job WHERE id = @id
//
//	-- job.delete
//	DELETE FROM job WHERE id = @id
type Queries struct {
	keys []string
	sql  map[string]string
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	reQueryName = regexp.MustCompile(`^--\s*([a-zA-Z0-9_.-]+)\s*$`)
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewQueries reads and parses named statements
func NewQueries(r io.Reader) (*Queries, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseQueries(string(data))
}

// ParseQueries parses named statements. Returns an error if a name is
// repeated.
func ParseQueries(text string) (*Queries, error) {
	q := &Queries{sql: make(map[string]string)}

	var key string
	var body strings.Builder
	flush := func() {
		if key != "" {
			q.keys = append(q.keys, key)
			q.sql[key] = strings.TrimSpace(body.String())
		}
		body.Reset()
	}

	for line := range strings.Lines(text) {
		match := reQueryName.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
		if match == nil {
			body.WriteString(line)
			continue
		}
		flush()
		if _, exists := q.sql[match[1]]; exists {
			return nil, ErrBadParameter.Withf("duplicate statement %q", match[1])
		}
		key = match[1]
	}
	flush()

	// Return success
	return q, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Keys returns the statement names in the order they appear
func (q *Queries) Keys() []string {
	return q.keys
}

// Get returns a statement, or an empty string if the name does not exist
func (q *Queries) Get(key string) string {
	return q.sql[key]
}
