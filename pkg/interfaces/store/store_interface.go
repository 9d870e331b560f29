// Package store is the persistence contract of the archiver. It is composed
// of small single-purpose interfaces so components can depend on only the
// slice they use, and so the in-memory test adapter stays honest.
package store

import (
	"io"

	"bigbrotr.dev/pkg/encoders/event"
	"bigbrotr.dev/pkg/encoders/relay"
	"bigbrotr.dev/pkg/encoders/relayinfo"
	"bigbrotr.dev/pkg/utils/context"
)

// I is the full persistence surface. All operations are idempotent: repeated
// application with the same arguments yields the same rows.
type I interface {
	io.Closer
	Pinger
	RelayInserter
	EventInserter
	MetadataInserter
	OrphanSweeper
	Watermarker
	Selector
}

type Pinger interface {
	// Ping verifies connectivity; the health endpoint reports ready only
	// after it succeeds.
	Ping(c context.T) (err error)
}

type RelayInserter interface {
	// InsertRelay upserts a relay by URL, conflict-do-nothing.
	InsertRelay(c context.T, r relay.R, insertedAt int64) (err error)
	// InsertRelayBatch inserts the set in a single transaction.
	InsertRelayBatch(c context.T, rs []relay.R, insertedAt int64) (err error)
}

type EventInserter interface {
	// InsertEvent atomically upserts the event, upserts the relay, and
	// records the (event, relay, seen_at) association.
	InsertEvent(c context.T, ev *event.E, r relay.R, seenAt int64) (err error)
	// InsertEventBatch inserts the set in a single transaction. A
	// structurally bad event is skipped with a warning; it does not abort
	// the batch.
	InsertEventBatch(c context.T, evs event.S, r relay.R, seenAt int64) (err error)
}

type MetadataInserter interface {
	// InsertRelayMetadata dedupes the nip11 and nip66 blocks independently
	// by content hash, then inserts a time-series row referencing them.
	InsertRelayMetadata(c context.T, m *relayinfo.T) (err error)
	// InsertRelayMetadataBatch inserts the set in a single transaction.
	InsertRelayMetadataBatch(c context.T, ms []*relayinfo.T) (err error)
}

type OrphanSweeper interface {
	// DeleteOrphanEvents deletes every event with no relay association and
	// returns how many went.
	DeleteOrphanEvents(c context.T) (deleted int64, err error)
}

type Watermarker interface {
	// MaxSeenAt returns the max created_at of events ever seen via this
	// relay, or nil if none; crawls resume past it.
	MaxSeenAt(c context.T, relayURL string) (max *int64, err error)
}

type Selector interface {
	// ListRelaysNeedingMetadata returns relays with no metadata row newer
	// than olderThan.
	ListRelaysNeedingMetadata(c context.T, olderThan int64) (rs []relay.R, err error)
	// ListReadableRelays returns relays whose metadata at or after
	// freshSince reports nip66 readable.
	ListReadableRelays(c context.T, freshSince int64) (rs []relay.R, err error)
}
