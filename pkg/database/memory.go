package database

import (
	"sort"
	"sync"

	"bigbrotr.dev/pkg/encoders/event"
	"bigbrotr.dev/pkg/encoders/hex"
	"bigbrotr.dev/pkg/encoders/relay"
	"bigbrotr.dev/pkg/encoders/relayinfo"
	"bigbrotr.dev/pkg/interfaces/store"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/log"
)

// Memory is the in-memory store adapter. It honors the same contracts as the
// Postgres adapter (idempotence, block dedup, orphan sweep) and exists so
// engine, fabric and service tests run without a database.
type Memory struct {
	mu       sync.RWMutex
	relays   map[string]memRelay
	events   map[string]*event.E
	assoc    map[string]map[string]int64 // event id -> relay url -> seen_at
	nip11    map[string]*relayinfo.Document
	nip66    map[string]*relayinfo.Connectivity
	metadata []memMetaRow
}

type memRelay struct {
	network    string
	insertedAt int64
}

type memMetaRow struct {
	relayURL    string
	generatedAt int64
	nip11Hash   string
	nip66Hash   string
}

var _ store.I = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		relays: make(map[string]memRelay),
		events: make(map[string]*event.E),
		assoc:  make(map[string]map[string]int64),
		nip11:  make(map[string]*relayinfo.Document),
		nip66:  make(map[string]*relayinfo.Connectivity),
	}
}

func (m *Memory) Ping(context.T) (err error) { return }
func (m *Memory) Close() (err error)         { return }

func (m *Memory) insertRelayLocked(r relay.R, insertedAt int64) {
	if _, ok := m.relays[r.URL]; !ok {
		m.relays[r.URL] = memRelay{network: r.Network, insertedAt: insertedAt}
	}
}

func (m *Memory) InsertRelay(_ context.T, r relay.R, insertedAt int64) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertRelayLocked(r, insertedAt)
	return
}

func (m *Memory) InsertRelayBatch(_ context.T, rs []relay.R, insertedAt int64) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rs {
		m.insertRelayLocked(r, insertedAt)
	}
	return
}

func (m *Memory) insertEventLocked(ev *event.E, r relay.R, seenAt int64) {
	if !structurallySound(ev) {
		log.W.F("{%s} skipping structurally bad event", r.URL)
		return
	}
	if _, ok := m.events[ev.ID]; !ok {
		m.events[ev.ID] = ev
	}
	m.insertRelayLocked(r, seenAt)
	if m.assoc[ev.ID] == nil {
		m.assoc[ev.ID] = make(map[string]int64)
	}
	if _, ok := m.assoc[ev.ID][r.URL]; !ok {
		m.assoc[ev.ID][r.URL] = seenAt
	}
}

func (m *Memory) InsertEvent(_ context.T, ev *event.E, r relay.R, seenAt int64) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertEventLocked(ev, r, seenAt)
	return
}

func (m *Memory) InsertEventBatch(_ context.T, evs event.S, r relay.R, seenAt int64) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range evs {
		m.insertEventLocked(ev, r, seenAt)
	}
	return
}

func (m *Memory) insertMetadataLocked(meta *relayinfo.T) {
	m.insertRelayLocked(meta.Relay, meta.GeneratedAt)
	row := memMetaRow{
		relayURL:    meta.Relay.URL,
		generatedAt: meta.GeneratedAt,
	}
	if meta.NIP11 != nil {
		row.nip11Hash = hex.Enc(meta.NIP11.Hash())
		if _, ok := m.nip11[row.nip11Hash]; !ok {
			m.nip11[row.nip11Hash] = meta.NIP11
		}
	}
	if meta.NIP66 != nil {
		row.nip66Hash = hex.Enc(meta.NIP66.Hash())
		if _, ok := m.nip66[row.nip66Hash]; !ok {
			m.nip66[row.nip66Hash] = meta.NIP66
		}
	}
	for _, existing := range m.metadata {
		if existing.relayURL == row.relayURL &&
			existing.generatedAt == row.generatedAt {
			return
		}
	}
	m.metadata = append(m.metadata, row)
}

func (m *Memory) InsertRelayMetadata(_ context.T, meta *relayinfo.T) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertMetadataLocked(meta)
	return
}

func (m *Memory) InsertRelayMetadataBatch(_ context.T, ms []*relayinfo.T) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, meta := range ms {
		m.insertMetadataLocked(meta)
	}
	return
}

func (m *Memory) DeleteOrphanEvents(context.T) (deleted int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.events {
		if len(m.assoc[id]) == 0 {
			delete(m.events, id)
			delete(m.assoc, id)
			deleted++
		}
	}
	return
}

func (m *Memory) MaxSeenAt(_ context.T, relayURL string) (max *int64, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, byRelay := range m.assoc {
		if _, ok := byRelay[relayURL]; !ok {
			continue
		}
		ev := m.events[id]
		if ev == nil {
			continue
		}
		if max == nil || ev.CreatedAt > *max {
			v := ev.CreatedAt
			max = &v
		}
	}
	return
}

func (m *Memory) ListRelaysNeedingMetadata(_ context.T, olderThan int64) (rs []relay.R, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fresh := make(map[string]bool)
	for _, row := range m.metadata {
		if row.generatedAt > olderThan {
			fresh[row.relayURL] = true
		}
	}
	for url, r := range m.relays {
		if !fresh[url] {
			rs = append(rs, relay.R{URL: url, Network: r.network})
		}
	}
	sortRelays(rs)
	return
}

func (m *Memory) ListReadableRelays(_ context.T, freshSince int64) (rs []relay.R, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	readable := make(map[string]bool)
	for _, row := range m.metadata {
		if row.generatedAt < freshSince || row.nip66Hash == "" {
			continue
		}
		if n := m.nip66[row.nip66Hash]; n != nil && n.Readable {
			readable[row.relayURL] = true
		}
	}
	for url := range readable {
		rs = append(rs, relay.R{URL: url, Network: m.relays[url].network})
	}
	sortRelays(rs)
	return
}

func sortRelays(rs []relay.R) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].URL < rs[j].URL })
}

// Test inspection helpers.

// EventCount returns the number of stored events.
func (m *Memory) EventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// HasEvent reports whether an event row exists.
func (m *Memory) HasEvent(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.events[id]
	return ok
}

// SeenAt returns the association row for (event, relay), if any.
func (m *Memory) SeenAt(eventID, relayURL string) (seenAt int64, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seenAt, ok = m.assoc[eventID][relayURL]
	return
}

// RemoveAssociation deletes one association row, orphaning the event if it
// was the last.
func (m *Memory) RemoveAssociation(eventID, relayURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assoc[eventID], relayURL)
}

// MetadataCount returns the number of time-series rows.
func (m *Memory) MetadataCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.metadata)
}

// DistinctBlocks returns how many deduplicated nip11 and nip66 rows exist.
func (m *Memory) DistinctBlocks() (nip11, nip66 int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nip11), len(m.nip66)
}
