package pg

import (
	"fmt"
	"strings"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// OffsetLimit is embedded in list requests to page through results
type OffsetLimit struct {
	Offset uint64  `json:"offset,omitempty" help:"Number of results to skip"`
	Limit  *uint64 `json:"limit,omitempty" help:"Maximum number of results"`
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Bind sets the offsetlimit bind var. The limit is clamped to max, and
// when max is zero, there is no upper bound.
func (r OffsetLimit) Bind(bind *Bind, max uint64) {
	var parts []string

	// Limit
	if r.Limit != nil {
		limit := *r.Limit
		if max > 0 && limit > max {
			limit = max
		}
		parts = append(parts, fmt.Sprintf("LIMIT %d", limit))
	} else if max > 0 {
		parts = append(parts, fmt.Sprintf("LIMIT %d", max))
	}

	// Offset
	if r.Offset > 0 {
		parts = append(parts, fmt.Sprintf("OFFSET %d", r.Offset))
	}

	bind.Set("offsetlimit", strings.Join(parts, " "))
}

// Clamp sets the limit to max when it is unset or exceeds max
func (r *OffsetLimit) Clamp(max uint64) {
	if r.Limit == nil || *r.Limit > max {
		r.Limit = &max
	}
}
