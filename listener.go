package pg

import (
	"context"
	"sync"

	// Packages
	pgx "github.com/jackc/pgx/v5"
	pgxpool "github.com/jackc/pgx/v5/pgxpool"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Listener subscribes to notification channels on a dedicated connection.
type Listener interface {
	// Listen to a channel
	Listen(context.Context, string) error

	// Unlisten from a channel
	Unlisten(context.Context, string) error

	// Block until a notification is received, or the context is cancelled
	WaitForNotification(context.Context) (*Notification, error)

	// Release the connection back to the pool
	Close(context.Context) error
}

// Notification is a message received on a channel
type Notification struct {
	Channel string
	Payload []byte
}

type listener struct {
	sync.Mutex
	pool *pgxpool.Pool
	conn *pgxpool.Conn
}

// Ensure interfaces are satisfied
var _ Listener = (*listener)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func newListener(pool *pgxpool.Pool) *listener {
	return &listener{pool: pool}
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Listen acquires a connection, if one is not held already, and starts
// listening on the channel
func (l *listener) Listen(ctx context.Context, channel string) error {
	l.Lock()
	defer l.Unlock()

	// Acquire a connection
	if l.conn == nil {
		conn, err := l.pool.Acquire(ctx)
		if err != nil {
			return pgerror(err)
		}
		l.conn = conn
	}

	// Listen
	_, err := l.conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize())
	return pgerror(err)
}

// Unlisten stops listening on the channel
func (l *listener) Unlisten(ctx context.Context, channel string) error {
	l.Lock()
	defer l.Unlock()

	if l.conn == nil {
		return nil
	}
	_, err := l.conn.Exec(ctx, "UNLISTEN "+pgx.Identifier{channel}.Sanitize())
	return pgerror(err)
}

// WaitForNotification blocks until a notification is received. Listen must
// have been called first.
func (l *listener) WaitForNotification(ctx context.Context) (*Notification, error) {
	l.Lock()
	conn := l.conn
	l.Unlock()
	if conn == nil {
		return nil, ErrBadParameter.With("listener is not listening")
	}

	n, err := conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return nil, pgerror(err)
	}
	return &Notification{
		Channel: n.Channel,
		Payload: []byte(n.Payload),
	}, nil
}

// Close releases the connection. A connection which was interrupted while
// waiting is closed rather than returned to the pool.
func (l *listener) Close(ctx context.Context) error {
	l.Lock()
	defer l.Unlock()

	if l.conn == nil {
		return nil
	}

	// Unlisten on a healthy connection before returning it
	var result error
	if !l.conn.Conn().IsClosed() {
		if _, err := l.conn.Exec(ctx, "UNLISTEN *"); err != nil {
			result = pgerror(err)
			l.conn.Conn().Close(ctx)
		}
	}
	l.conn.Release()
	l.conn = nil

	// Return any errors
	return result
}
