package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	// Packages
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Handler processes a job. The value returned is stored as the output of
// the completed job. Return an error, or panic, to fail the job.
type Handler func(context.Context, schema.Job) (any, error)

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// runWork executes a handler with a deadline and panic recovery
func runWork(parent context.Context, deadline time.Duration, job schema.Job, fn Handler) (output any, errs error) {
	ctx, cancel := contextWithDeadline(parent, deadline)
	defer cancel()

	// Catch panics
	defer func() {
		if r := recover(); r != nil {
			output = nil
			errs = errors.Join(errs, fmt.Errorf("panic: %v", r))
		}
	}()

	// Run the handler
	output, errs = fn(ctx, job)

	// Include context error if not already present
	if ctx.Err() != nil && !errors.Is(errs, ctx.Err()) {
		errs = errors.Join(errs, ctx.Err())
	}

	return output, errs
}

func contextWithDeadline(ctx context.Context, deadline time.Duration) (context.Context, context.CancelFunc) {
	if deadline > 0 {
		return context.WithTimeout(ctx, deadline)
	}
	return context.WithCancel(ctx)
}
