package database

import (
	"database/sql"
	"encoding/json"

	"bigbrotr.dev/pkg/encoders/relayinfo"
	"bigbrotr.dev/pkg/utils/context"
)

const insertRelayMetadataCall = `SELECT insert_relay_metadata(
	$1, $2, $3,
	$4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
	$18, $19, $20, $21, $22, $23, $24
)`

func metadataArgs(m *relayinfo.T) []any {
	args := []any{m.Relay.URL, m.Relay.Network, m.GeneratedAt}
	if d := m.NIP11; d != nil {
		var nips, lim, extra *string
		if d.SupportedNIPs != nil {
			nips = jsonString(d.SupportedNIPs)
		}
		if d.Limitation != nil {
			lim = jsonString(d.Limitation)
		}
		if d.ExtraFields != nil {
			extra = jsonString(d.ExtraFields)
		}
		args = append(
			args, d.Hash(), d.Name, d.Description, d.Banner, d.Icon,
			d.Pubkey, d.Contact, nips, d.Software, d.Version,
			d.PrivacyPolicy, d.TermsOfService, lim, extra,
		)
	} else {
		args = append(
			args, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
			nil, nil, nil,
		)
	}
	if n := m.NIP66; n != nil {
		args = append(
			args, n.Hash(), n.Openable, n.Readable, n.Writable,
			n.RTTOpen, n.RTTRead, n.RTTWrite,
		)
	} else {
		args = append(args, nil, false, false, false, nil, nil, nil)
	}
	return args
}

func jsonString(v any) *string {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

// InsertRelayMetadata inserts one time-series observation; the nip11 and
// nip66 blocks are deduplicated by content hash inside the procedure.
func (d *D) InsertRelayMetadata(c context.T, m *relayinfo.T) (err error) {
	return d.retry(
		c, "insert_relay_metadata", func(cc context.T) (err error) {
			_, err = d.db.ExecContext(cc, insertRelayMetadataCall, metadataArgs(m)...)
			return
		},
	)
}

// InsertRelayMetadataBatch inserts the set in a single transaction.
func (d *D) InsertRelayMetadataBatch(c context.T, ms []*relayinfo.T) (err error) {
	if len(ms) == 0 {
		return
	}
	return d.inTx(
		c, "insert_relay_metadata_batch",
		func(cc context.T, tx *sql.Tx) (err error) {
			for _, m := range ms {
				if _, err = tx.ExecContext(
					cc, insertRelayMetadataCall, metadataArgs(m)...,
				); err != nil {
					return
				}
			}
			return
		},
	)
}
