package database

import (
	"database/sql"

	"bigbrotr.dev/pkg/encoders/relay"
	"bigbrotr.dev/pkg/utils/context"
)

// InsertRelay upserts a relay by URL, conflict-do-nothing.
func (d *D) InsertRelay(c context.T, r relay.R, insertedAt int64) (err error) {
	return d.retry(
		c, "insert_relay", func(cc context.T) (err error) {
			_, err = d.db.ExecContext(
				cc, `SELECT insert_relay($1, $2, $3)`,
				r.URL, r.Network, insertedAt,
			)
			return
		},
	)
}

// InsertRelayBatch inserts the set in one transaction, one procedure call
// per row.
func (d *D) InsertRelayBatch(c context.T, rs []relay.R, insertedAt int64) (err error) {
	if len(rs) == 0 {
		return
	}
	return d.inTx(
		c, "insert_relay_batch", func(cc context.T, tx *sql.Tx) (err error) {
			for _, r := range rs {
				if _, err = tx.ExecContext(
					cc, `SELECT insert_relay($1, $2, $3)`,
					r.URL, r.Network, insertedAt,
				); err != nil {
					return
				}
			}
			return
		},
	)
}
