package pg

import (
	"context"
	"errors"
	"strings"

	// Packages
	pgx "github.com/jackc/pgx/v5"
	pgconn "github.com/jackc/pgx/v5/pgconn"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Conn runs statements against a pool or within a transaction. Statements
// are built by a Writer (insert or update) or a Selector (get, update,
// delete and list) and the rows are scanned by a Reader.
type Conn interface {
	// Return a new connection with bound parameters
	With(...any) Conn

	// Return a new connection with bound queries
	WithQueries(...*Queries) Conn

	// Run a function in a transaction, or a savepoint if already in a
	// transaction. The transaction is rolled back if the function returns
	// an error.
	Tx(context.Context, func(Conn) error) error

	// Queue inserts within the function, and send them as a single batch
	// when it returns. Only Insert is supported within the function.
	Bulk(context.Context, func(Conn) error) error

	// Execute a statement without reading any rows
	Exec(context.Context, string) error

	// Insert a row and scan the returned row
	Insert(context.Context, Reader, Writer) error

	// Update rows and scan the returned rows. The writer may be nil when
	// the selector binds all the parameters.
	Update(context.Context, Reader, Selector, Writer) error

	// Delete rows and scan the returned rows
	Delete(context.Context, Reader, Selector) error

	// Get one or more rows. Returns ErrNotFound if no rows are returned.
	Get(context.Context, Reader, Selector) error

	// List rows. When the reader is a ListReader, the count of all rows
	// ignoring ${offsetlimit} is scanned first. No rows is not an error.
	List(context.Context, Reader, Selector) error
}

// Op is passed to a Selector to indicate which statement to return
type Op uint

// Row is a single row to scan
type Row pgx.Row

// Reader scans a row into an object
type Reader interface {
	Scan(Row) error
}

// ListReader also scans the count of rows for a list
type ListReader interface {
	Reader
	ScanCount(Row) error
}

// Writer binds the parameters for an insert or update
type Writer interface {
	// Bind parameters and return the insert statement
	Insert(*Bind) (string, error)

	// Bind parameters for an update
	Update(*Bind) error
}

// Selector binds parameters and returns the statement for an operation
type Selector interface {
	Select(*Bind, Op) (string, error)
}

// querier is implemented by both a pool and a transaction
type querier interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

// conn runs statements with a set of bind variables. When batch is set,
// inserts are queued rather than executed.
type conn struct {
	q     querier
	bind  *Bind
	batch *pgx.Batch
}

// Ensure interfaces are satisfied
var _ Conn = (*conn)(nil)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	None Op = iota
	Get
	Insert
	Update
	Delete
	List
)

// offsetLimitVar is appended to list statements, and set by the selector
const offsetLimitVar = "offsetlimit"

func (o Op) String() string {
	switch o {
	case Get:
		return "GET"
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	case List:
		return "LIST"
	}
	return "UNKNOWN"
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (c *conn) With(params ...any) Conn {
	return &conn{c.q, c.bind.Copy(params...), c.batch}
}

func (c *conn) WithQueries(queries ...*Queries) Conn {
	return &conn{c.q, c.bind.withQueries(queries...), c.batch}
}

func (c *conn) Tx(ctx context.Context, fn func(Conn) error) error {
	if c.batch != nil {
		return ErrNotImplemented.With("transaction within bulk")
	}
	tx, err := c.q.Begin(ctx)
	if err != nil {
		return pgerror(err)
	}
	if err := fn(&conn{tx, c.bind.Copy(), nil}); err != nil {
		return errors.Join(pgerror(err), tx.Rollback(ctx))
	}
	return pgerror(tx.Commit(ctx))
}

func (c *conn) Bulk(ctx context.Context, fn func(Conn) error) error {
	if c.batch != nil {
		return ErrNotImplemented.With("bulk within bulk")
	}
	batch := new(pgx.Batch)
	if err := fn(&conn{c.q, c.bind.Copy(), batch}); err != nil {
		return pgerror(err)
	} else if batch.Len() == 0 {
		return nil
	}
	return pgerror(c.q.SendBatch(ctx, batch).Close())
}

func (c *conn) Exec(ctx context.Context, query string) error {
	if c.batch != nil {
		return ErrNotImplemented.With("exec within bulk")
	}
	sql, args := c.bind.args(query)
	_, err := c.q.Exec(ctx, sql, args)
	return pgerror(err)
}

func (c *conn) Insert(ctx context.Context, reader Reader, writer Writer) error {
	bind := c.bind.Copy()
	setSpanName(bind, Insert)
	query, err := writer.Insert(bind)
	if err != nil {
		return err
	}
	if c.batch != nil {
		queue(c.batch, bind, query, reader)
		return nil
	}
	return c.run(ctx, bind, query, reader)
}

func (c *conn) Update(ctx context.Context, reader Reader, sel Selector, writer Writer) error {
	bind, query, err := c.selectOp(sel, Update)
	if err != nil {
		return err
	}
	if writer != nil {
		if err := writer.Update(bind); err != nil {
			return err
		}
	}
	return c.run(ctx, bind, query, reader)
}

func (c *conn) Delete(ctx context.Context, reader Reader, sel Selector) error {
	bind, query, err := c.selectOp(sel, Delete)
	if err != nil {
		return err
	}
	return c.run(ctx, bind, query, reader)
}

func (c *conn) Get(ctx context.Context, reader Reader, sel Selector) error {
	bind, query, err := c.selectOp(sel, Get)
	if err != nil {
		return err
	}
	return c.run(ctx, bind, query, reader)
}

func (c *conn) List(ctx context.Context, reader Reader, sel Selector) error {
	bind, query, err := c.selectOp(sel, List)
	if err != nil {
		return err
	}

	// Count all the rows first
	if counter, ok := reader.(ListReader); ok {
		sql, args := bind.args(`WITH sq AS (` + query + `) SELECT COUNT(*) AS "count" FROM sq`)
		if err := counter.ScanCount(c.q.QueryRow(ctx, sql, args)); err != nil {
			return pgerror(err)
		}
	}

	// An empty list is not an error
	if err := c.run(ctx, bind, query+` ${`+offsetLimitVar+`}`, reader); errors.Is(err, ErrNotFound) {
		return nil
	} else {
		return err
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// selectOp copies the bind variables and returns the statement for the
// operation. Only inserts can be queued in a batch.
func (c *conn) selectOp(sel Selector, op Op) (*Bind, string, error) {
	if c.batch != nil {
		return nil, "", ErrNotImplemented.Withf("%v within bulk", op)
	}
	bind := c.bind.Copy()
	setSpanName(bind, op)
	if op == List {
		bind.Set(offsetLimitVar, "")
	}
	query, err := sel.Select(bind, op)
	if err != nil {
		return nil, "", pgerror(err)
	}
	return bind, query, nil
}

// setSpanName names the span for a statement by operation, unless a name
// has already been bound
func setSpanName(bind *Bind, op Op) {
	if !bind.Has(TraceSpanNameArg) {
		bind.Set(TraceSpanNameArg, "pg."+strings.ToLower(op.String()))
	}
}

// run executes a statement and scans every returned row into the reader.
// Returns ErrNotFound if there is a reader and no rows are returned.
func (c *conn) run(ctx context.Context, bind *Bind, query string, reader Reader) error {
	sql, args := bind.args(query)
	if reader == nil {
		_, err := c.q.Exec(ctx, sql, args)
		return pgerror(err)
	}

	rows, err := c.q.Query(ctx, sql, args)
	if err != nil {
		return pgerror(err)
	}
	defer rows.Close()

	var n int
	for rows.Next() {
		if err := reader.Scan(rows); err != nil {
			return pgerror(err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return pgerror(err)
	} else if n == 0 {
		return ErrNotFound
	}

	// Return success
	return nil
}
