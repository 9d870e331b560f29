package database

import (
	"bigbrotr.dev/pkg/utils/context"
)

// DeleteOrphanEvents deletes every event with no surviving relay
// association. Idempotent; re-calling on a clean table deletes zero rows.
func (d *D) DeleteOrphanEvents(c context.T) (deleted int64, err error) {
	err = d.retry(
		c, "delete_orphan_events", func(cc context.T) (err error) {
			row := d.db.QueryRowContext(cc, `SELECT delete_orphan_events()`)
			return row.Scan(&deleted)
		},
	)
	return
}
