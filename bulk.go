package pg

import (
	"errors"

	// Packages
	pgx "github.com/jackc/pgx/v5"
)

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// queue adds an insert to a batch. The returned row is scanned into the
// reader when the batch is sent, and an insert which returns no row (for
// example, one suppressed by ON CONFLICT DO NOTHING) is skipped.
func queue(batch *pgx.Batch, bind *Bind, query string, reader Reader) {
	sql, args := bind.args(query)
	queued := batch.Queue(sql, args)
	if reader == nil {
		return
	}
	queued.QueryRow(func(row pgx.Row) error {
		if err := reader.Scan(row); errors.Is(err, pgx.ErrNoRows) {
			return nil
		} else {
			return err
		}
	})
}
