package pg

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"strings"
	"sync"

	// Packages
	pgx "github.com/jackc/pgx/v5"
	types "github.com/timgit/pg-boss-sub002/pkg/types"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Bind holds the variables for a query. Every variable is passed to the
// server as a named argument (@key), and can also be substituted into the
// query text itself (${key}), which is how identifiers such as the schema
// name and nested statements are expanded.
type Bind struct {
	sync.RWMutex
	vars pgx.NamedArgs
}

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewBind returns a Bind with name/value pairs, or nil if the pairs are
// not well formed
func NewBind(pairs ...any) *Bind {
	vars, ok := appendPairs(make(pgx.NamedArgs, len(pairs)>>1), pairs)
	if !ok {
		return nil
	}
	return &Bind{vars: vars}
}

// Copy returns a copy of the bind variables with additional name/value
// pairs, or nil if the pairs are not well formed
func (bind *Bind) Copy(pairs ...any) *Bind {
	bind.RLock()
	vars := make(pgx.NamedArgs, len(bind.vars)+len(pairs)>>1)
	maps.Copy(vars, bind.vars)
	bind.RUnlock()

	if vars, ok := appendPairs(vars, pairs); !ok {
		return nil
	} else {
		return &Bind{vars: vars}
	}
}

// withQueries returns a copy with each named statement set as a variable,
// so that ${name} expands to the statement text
func (bind *Bind) withQueries(queries ...*Queries) *Bind {
	result := bind.Copy()
	for _, q := range queries {
		for _, key := range q.Keys() {
			result.vars[key] = q.Get(key)
		}
	}
	return result
}

///////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (bind *Bind) MarshalJSON() ([]byte, error) {
	bind.RLock()
	defer bind.RUnlock()
	return json.Marshal(bind.vars)
}

func (bind *Bind) String() string {
	data, err := json.MarshalIndent(bind, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Set sets a variable and returns the named argument for it, or an empty
// string if the key is empty
func (bind *Bind) Set(key string, value any) string {
	if key == "" {
		return ""
	}

	bind.Lock()
	defer bind.Unlock()
	bind.vars[key] = value
	return "@" + key
}

// Get returns a variable, or nil if it is not set
func (bind *Bind) Get(key string) any {
	bind.RLock()
	defer bind.RUnlock()
	return bind.vars[key]
}

// Has returns true if a variable is set
func (bind *Bind) Has(key string) bool {
	bind.RLock()
	defer bind.RUnlock()
	_, exists := bind.vars[key]
	return exists
}

// Del removes a variable
func (bind *Bind) Del(key string) {
	bind.Lock()
	defer bind.Unlock()
	delete(bind.vars, key)
}

// Append adds a value to a list variable, creating the list if needed.
// Returns false if the variable exists and is not a list.
func (bind *Bind) Append(key string, value any) bool {
	bind.Lock()
	defer bind.Unlock()

	switch list := bind.vars[key].(type) {
	case nil:
		bind.vars[key] = []any{value}
	case []any:
		bind.vars[key] = append(list, value)
	default:
		return false
	}
	return true
}

// Join returns a list variable as a string with a separator between the
// elements. A scalar is formatted as-is, and a missing variable is empty.
func (bind *Bind) Join(key, sep string) string {
	bind.RLock()
	defer bind.RUnlock()

	value, exists := bind.vars[key]
	if !exists {
		return ""
	}
	list, ok := value.([]any)
	if !ok {
		return fmt.Sprint(value)
	}
	parts := make([]string, 0, len(list))
	for _, elem := range list {
		parts = append(parts, fmt.Sprint(elem))
	}
	return strings.Join(parts, sep)
}

// Replace substitutes variables into the query text:
//   - ${key} => value
//   - ${'key'} => 'value', or 'a','b' for a []string
//   - ${"key"} => "value"
//
// Positional parameters ($1) and dollar quotes ($$) are kept.
func (bind *Bind) Replace(query string) string {
	bind.RLock()
	defer bind.RUnlock()
	return expand(query, bind.vars)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// args returns the query with variables substituted, and the named arguments
func (bind *Bind) args(query string) (string, pgx.NamedArgs) {
	bind.RLock()
	defer bind.RUnlock()
	return expand(query, bind.vars), bind.vars
}

func appendPairs(vars pgx.NamedArgs, pairs []any) (pgx.NamedArgs, bool) {
	if len(pairs)%2 != 0 {
		return nil, false
	}
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok || key == "" {
			return nil, false
		}
		vars[key] = pairs[i+1]
	}
	return vars, true
}

func expand(query string, vars pgx.NamedArgs) string {
	return os.Expand(query, func(key string) string {
		switch {
		case key == "$":
			return "$$"
		case types.IsNumeric(key):
			return "$" + key
		case types.IsSingleQuoted(key):
			value := vars[strings.Trim(key, "'")]
			if list, ok := value.([]string); ok {
				quoted := make([]string, len(list))
				for i, elem := range list {
					quoted[i] = types.Quote(elem)
				}
				return strings.Join(quoted, ",")
			}
			return types.Quote(fmt.Sprint(value))
		case types.IsDoubleQuoted(key):
			return types.DoubleQuote(fmt.Sprint(vars[strings.Trim(key, `"`)]))
		default:
			return fmt.Sprint(vars[key])
		}
	})
}
