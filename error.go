package pg

import (
	"context"
	"errors"
	"fmt"

	// Packages
	pgx "github.com/jackc/pgx/v5"
	pgconn "github.com/jackc/pgx/v5/pgconn"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Err is a kind of error returned by the package. Use errors.Is to test
// whether an error is of a given kind.
type Err int

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	ErrSuccess Err = iota
	ErrNotFound
	ErrBadParameter
	ErrConflict
	ErrNotImplemented
	ErrTransient
	ErrInternalError
)

// PostgreSQL error codes which are mapped onto error kinds
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeNotNullViolation     = "23502"
	codeCheckViolation       = "23514"
	codeInvalidText          = "22P02"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUndefinedTable       = "42P01"
)

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (e Err) Error() string {
	switch e {
	case ErrSuccess:
		return "success"
	case ErrNotFound:
		return "not found"
	case ErrBadParameter:
		return "bad parameter"
	case ErrConflict:
		return "conflict"
	case ErrNotImplemented:
		return "not implemented"
	case ErrTransient:
		return "transient error"
	case ErrInternalError:
		return "internal error"
	}
	return fmt.Sprintf("error code %d", int(e))
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// With returns the error kind with additional context
func (e Err) With(args ...any) error {
	return fmt.Errorf("%w: %s", e, fmt.Sprint(args...))
}

// Withf returns the error kind with formatted context
func (e Err) Withf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", e, fmt.Sprintf(format, args...))
}

// IsTransient returns true if the operation which returned the error can be
// retried, for example after a serialization failure or deadlock
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// pgerror maps driver errors onto error kinds. The driver message is not
// included, only the constraint or table name where relevant.
func pgerror(err error) error {
	if err == nil {
		return nil
	}

	// Already mapped
	var kind Err
	if errors.As(err, &kind) {
		return err
	}

	// Context errors are returned as-is
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	// No rows
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	// Server errors
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return ErrConflict.With("duplicate key ", pgErr.ConstraintName)
		case codeForeignKeyViolation:
			return ErrNotFound.With("referenced row does not exist ", pgErr.ConstraintName)
		case codeNotNullViolation, codeCheckViolation, codeInvalidText:
			return ErrBadParameter.With("invalid value ", pgErr.ColumnName)
		case codeSerializationFailure, codeDeadlockDetected:
			return ErrTransient.With(pgErr.Code)
		case codeUndefinedTable:
			return ErrNotFound.With("table does not exist ", pgErr.TableName)
		default:
			return ErrInternalError.With("database error ", pgErr.Code)
		}
	}

	// Return other errors unchanged
	return err
}
