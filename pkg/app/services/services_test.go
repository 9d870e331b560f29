package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigbrotr.dev/pkg/app/config"
	"bigbrotr.dev/pkg/crypto/keys"
	"bigbrotr.dev/pkg/database"
	"bigbrotr.dev/pkg/encoders/relay"
	"bigbrotr.dev/pkg/fabric"
	"bigbrotr.dev/pkg/interfaces/store"
	"bigbrotr.dev/pkg/protocol/relaytest"
	"bigbrotr.dev/pkg/ratelimit"
	"bigbrotr.dev/pkg/utils/context"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relays.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testDeps(m *database.Memory, cfg *config.C) Deps {
	if cfg.NumCores == 0 {
		cfg.NumCores = 2
	}
	if cfg.RequestsPerCore == 0 {
		cfg.RequestsPerCore = 2
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return Deps{
		Cfg:     cfg,
		Store:   m,
		Factory: func() (store.I, error) { return m, nil },
		Limiter: ratelimit.New(100000, 100000),
		Keys:    keys.Generate(),
		Tracker: fabric.NewFailureTracker(10, 0.99),
	}
}

func TestReadRelayFile(t *testing.T) {
	path := writeTempFile(t, `
# seed relays
wss://relay.example.com
ws://other.example.com/

not-a-relay-url
wss://third.example.com
`)
	rs, err := ReadRelayFile(path)
	require.NoError(t, err)
	require.Len(t, rs, 3)
	assert.Equal(t, "wss://relay.example.com", rs[0].URL)
	assert.Equal(t, "ws://other.example.com", rs[1].URL)
}

func TestReadRelayFileMissing(t *testing.T) {
	_, err := ReadRelayFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestInitializerSeedsRelays(t *testing.T) {
	m := database.NewMemory()
	path := writeTempFile(t, "wss://relay.example.com\nwss://second.example.com\n")
	init := &Initializer{Deps: testDeps(m, &config.C{SeedFile: path})}
	require.NoError(t, init.Run(context.Bg()))

	rs, err := m.ListRelaysNeedingMetadata(context.Bg(), 0)
	require.NoError(t, err)
	assert.Len(t, rs, 2)

	// idempotent on re-run
	require.NoError(t, init.Run(context.Bg()))
	rs, err = m.ListRelaysNeedingMetadata(context.Bg(), 0)
	require.NoError(t, err)
	assert.Len(t, rs, 2)
}

func TestInitializerRequiresSeedFile(t *testing.T) {
	init := &Initializer{Deps: testDeps(database.NewMemory(), &config.C{})}
	assert.Error(t, init.Run(context.Bg()))
}

func TestMonitorCycleStoresMetadata(t *testing.T) {
	srv := relaytest.New(nil)
	defer srv.Close()

	m := database.NewMemory()
	deps := testDeps(m, &config.C{MonitorInterval: time.Hour})
	require.NoError(t, m.InsertRelayBatch(
		context.Bg(),
		mustRelays(t, srv.URL()),
		time.Now().Unix(),
	))

	mon := &Monitor{Deps: deps}
	require.NoError(t, mon.cycle(context.Bg()))

	assert.Equal(t, 1, m.MetadataCount())
	rs, err := m.ListReadableRelays(context.Bg(), 0)
	require.NoError(t, err)
	require.Len(t, rs, 1)
}

func TestSynchronizerCycleCrawlsReadableRelays(t *testing.T) {
	srv := relaytest.New(nil)
	defer srv.Close()

	m := database.NewMemory()
	deps := testDeps(m, &config.C{
		SyncInterval:      time.Hour,
		MetadataFreshness: time.Hour,
		Stop:              time.Now().Unix(),
	})

	// probe first so the relay is known readable
	mon := &Monitor{Deps: deps}
	require.NoError(t, m.InsertRelayBatch(
		context.Bg(), mustRelays(t, srv.URL()), time.Now().Unix(),
	))
	require.NoError(t, mon.cycle(context.Bg()))

	sync := &Synchronizer{Deps: deps}
	require.NoError(t, sync.cycle(context.Bg()))
	// the stub holds only the probe's own discovery event
	assert.LessOrEqual(t, m.EventCount(), 1)
}

func TestPrioritySynchronizerReadsFileEachCycle(t *testing.T) {
	srv := relaytest.New(nil)
	defer srv.Close()

	m := database.NewMemory()
	path := writeTempFile(t, srv.URL()+"\n")
	deps := testDeps(m, &config.C{
		PriorityFile: path,
		Stop:         time.Now().Unix(),
	})

	ps := &PrioritySynchronizer{Synchronizer: Synchronizer{Deps: deps}}
	require.NoError(t, ps.cycle(context.Bg()))

	rs, err := m.ListRelaysNeedingMetadata(context.Bg(), 0)
	require.NoError(t, err)
	require.Len(t, rs, 1)
}

func mustRelays(t *testing.T, urls ...string) (rs []relay.R) {
	t.Helper()
	for _, u := range urls {
		rs = append(rs, relay.MustNew(u))
	}
	return
}
