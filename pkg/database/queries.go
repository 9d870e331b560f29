package database

import (
	"database/sql"

	"bigbrotr.dev/pkg/encoders/relay"
	"bigbrotr.dev/pkg/utils/context"
)

// MaxSeenAt returns the max created_at of events ever seen via this relay,
// or nil if none have been.
func (d *D) MaxSeenAt(c context.T, relayURL string) (max *int64, err error) {
	err = d.retry(
		c, "max_seen_at", func(cc context.T) (err error) {
			row := d.db.QueryRowContext(
				cc, `SELECT max(e.created_at)
				FROM events e
				JOIN events_relays er ON er.event_id = e.id
				WHERE er.relay_url = $1`, relayURL,
			)
			var v sql.NullInt64
			if err = row.Scan(&v); err != nil {
				return
			}
			if v.Valid {
				max = &v.Int64
			}
			return
		},
	)
	return
}

// ListRelaysNeedingMetadata returns relays with no metadata row newer than
// olderThan, i.e. the monitor's work list.
func (d *D) ListRelaysNeedingMetadata(c context.T, olderThan int64) (rs []relay.R, err error) {
	err = d.retry(
		c, "list_relays_needing_metadata", func(cc context.T) (err error) {
			rows, err := d.db.QueryContext(
				cc, `SELECT r.url, r.network FROM relays r
				WHERE NOT EXISTS (
					SELECT 1 FROM relay_metadata m
					WHERE m.relay_url = r.url AND m.generated_at > $1
				)
				ORDER BY r.url`, olderThan,
			)
			if err != nil {
				return
			}
			defer rows.Close()
			rs, err = scanRelays(rows)
			return
		},
	)
	return
}

// ListReadableRelays returns relays whose metadata at or after freshSince
// reports nip66 readable, i.e. the synchronizer's work list.
func (d *D) ListReadableRelays(c context.T, freshSince int64) (rs []relay.R, err error) {
	err = d.retry(
		c, "list_readable_relays", func(cc context.T) (err error) {
			rows, err := d.db.QueryContext(
				cc, `SELECT DISTINCT r.url, r.network FROM relays r
				JOIN relay_metadata m ON m.relay_url = r.url
				JOIN nip66 n ON n.id = m.nip66_id
				WHERE m.generated_at >= $1 AND n.readable
				ORDER BY r.url`, freshSince,
			)
			if err != nil {
				return
			}
			defer rows.Close()
			rs, err = scanRelays(rows)
			return
		},
	)
	return
}

func scanRelays(rows *sql.Rows) (rs []relay.R, err error) {
	for rows.Next() {
		var r relay.R
		if err = rows.Scan(&r.URL, &r.Network); err != nil {
			return
		}
		rs = append(rs, r)
	}
	return rs, rows.Err()
}
