package database

import (
	"database/sql"
	"encoding/json"

	"bigbrotr.dev/pkg/encoders/event"
	"bigbrotr.dev/pkg/encoders/hex"
	"bigbrotr.dev/pkg/encoders/relay"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/log"
)

// structurallySound filters out events that cannot possibly be valid rows;
// the engine already verified ids and signatures, this is the last line
// before SQL.
func structurallySound(ev *event.E) bool {
	return ev != nil &&
		hex.Valid(ev.ID, 32) &&
		hex.Valid(ev.Pubkey, 32) &&
		hex.Valid(ev.Sig, 64)
}

func eventArgs(ev *event.E, r relay.R, seenAt int64) []any {
	tags, _ := json.Marshal(ev.Tags)
	return []any{
		ev.ID, ev.Pubkey, ev.CreatedAt, ev.Kind, string(tags), ev.Content,
		ev.Sig, r.URL, r.Network, seenAt,
	}
}

const insertEventCall = `SELECT insert_event($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// InsertEvent atomically upserts the event and relay and records the
// association row. Idempotent under retries.
func (d *D) InsertEvent(c context.T, ev *event.E, r relay.R, seenAt int64) (err error) {
	if !structurallySound(ev) {
		log.W.F("{%s} dropping structurally bad event", r.URL)
		return
	}
	return d.retry(
		c, "insert_event", func(cc context.T) (err error) {
			_, err = d.db.ExecContext(cc, insertEventCall, eventArgs(ev, r, seenAt)...)
			return
		},
	)
}

// InsertEventBatch inserts the set in a single transaction. Structurally bad
// events are skipped with a warning and do not abort the batch.
func (d *D) InsertEventBatch(c context.T, evs event.S, r relay.R, seenAt int64) (err error) {
	if len(evs) == 0 {
		return
	}
	return d.inTx(
		c, "insert_event_batch", func(cc context.T, tx *sql.Tx) (err error) {
			for _, ev := range evs {
				if !structurallySound(ev) {
					log.W.F("{%s} skipping structurally bad event in batch", r.URL)
					continue
				}
				if _, err = tx.ExecContext(
					cc, insertEventCall, eventArgs(ev, r, seenAt)...,
				); err != nil {
					return
				}
			}
			return
		},
	)
}
