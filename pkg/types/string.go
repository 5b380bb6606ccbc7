package types

import (
	"regexp"
	"strings"
	"time"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	reIdentifier = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)
	reNumeric    = regexp.MustCompile(`^[0-9]+$`)
)

const (
	// Maximum identifier length in PostgreSQL
	MaxIdentifierLength = 63
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Quote returns a single-quoted string, with single quotes escaped
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// DoubleQuote returns a double-quoted string, with double quotes escaped
func DoubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// IsNumeric returns true if the string contains only digits
func IsNumeric(s string) bool {
	return reNumeric.MatchString(s)
}

// IsSingleQuoted returns true if the string is wrapped in single quotes
func IsSingleQuoted(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'")
}

// IsDoubleQuoted returns true if the string is wrapped in double quotes
func IsDoubleQuoted(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`)
}

// IsIdentifier returns true if the string starts with a letter and contains
// only letters, digits, underscores, hyphens and periods
func IsIdentifier(s string) bool {
	return len(s) <= MaxIdentifierLength && reIdentifier.MatchString(s)
}

// Ptr returns a pointer to a value
func Ptr[T any](v T) *T {
	return &v
}

// Value returns the value of a pointer, or the zero value if nil
func Value[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

// PtrDuration returns the duration, or zero if nil
func PtrDuration(v *time.Duration) time.Duration {
	return Value(v)
}
