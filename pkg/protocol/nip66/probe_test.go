package nip66

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigbrotr.dev/pkg/crypto/keys"
	"bigbrotr.dev/pkg/encoders/event"
	"bigbrotr.dev/pkg/encoders/relay"
	"bigbrotr.dev/pkg/encoders/relayinfo"
	"bigbrotr.dev/pkg/protocol/relaytest"
	"bigbrotr.dev/pkg/utils/context"
)

func TestProbeWritableRoundTrip(t *testing.T) {
	srv := relaytest.New(nil)
	defer srv.Close()
	r := relay.MustNew(srv.URL())

	p := &Prober{Keys: keys.Generate(), StepTimeout: 5 * time.Second}
	conn, err := p.Probe(context.Bg(), r, nil)
	require.NoError(t, err)
	require.NotNil(t, conn)

	assert.True(t, conn.Openable)
	assert.True(t, conn.Readable)
	assert.True(t, conn.Writable)
	require.NotNil(t, conn.RTTOpen)
	require.NotNil(t, conn.RTTRead)
	require.NotNil(t, conn.RTTWrite)
	assert.GreaterOrEqual(t, *conn.RTTWrite, int64(0))

	// the write check leaves a discovery event tagged with the relay URL
	stored := srv.Stored()
	require.Len(t, stored, 1)
	assert.Equal(t, KindRelayDiscovery, stored[0].Kind)
	assert.Equal(t, r.URL, stored[0].TagValue("d"))
	valid, err := stored[0].Verify()
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestProbeRejectedWriteIsNotWritable(t *testing.T) {
	srv := relaytest.New(nil)
	srv.Accept = func(*event.E) (bool, string) { return false, "restricted" }
	defer srv.Close()

	p := &Prober{Keys: keys.Generate(), StepTimeout: 5 * time.Second}
	conn, err := p.Probe(context.Bg(), relay.MustNew(srv.URL()), nil)
	require.NoError(t, err)
	assert.True(t, conn.Openable)
	assert.True(t, conn.Readable)
	assert.False(t, conn.Writable)
	assert.Nil(t, conn.RTTWrite)
}

func TestProbeUnreachableRelay(t *testing.T) {
	p := &Prober{Keys: keys.Generate(), StepTimeout: time.Second}
	conn, err := p.Probe(context.Bg(), relay.MustNew("ws://127.0.0.1:1"), nil)
	require.NoError(t, err)
	assert.False(t, conn.Openable)
	assert.False(t, conn.Readable)
	assert.False(t, conn.Writable)
	assert.Nil(t, conn.RTTOpen)
}

func TestProbeHonorsPowTarget(t *testing.T) {
	srv := relaytest.New(nil)
	defer srv.Close()

	target := 8
	doc := &relayinfo.Document{
		Limitation: map[string]any{"min_pow_difficulty": float64(target)},
	}
	p := &Prober{Keys: keys.Generate(), StepTimeout: 10 * time.Second}
	conn, err := p.Probe(context.Bg(), relay.MustNew(srv.URL()), doc)
	require.NoError(t, err)
	require.True(t, conn.Writable)

	stored := srv.Stored()
	require.Len(t, stored, 1)
	assert.GreaterOrEqual(t, Difficulty(stored[0].ID), target)
	assert.NotEmpty(t, stored[0].TagValue("nonce"))
}
