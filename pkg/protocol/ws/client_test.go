package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigbrotr.dev/pkg/crypto/keys"
	"bigbrotr.dev/pkg/encoders/event"
	"bigbrotr.dev/pkg/encoders/filter"
	"bigbrotr.dev/pkg/protocol/relaytest"
	"bigbrotr.dev/pkg/utils/context"
)

func stubEvents(t *testing.T, n int) event.S {
	t.Helper()
	kp := keys.Generate()
	evs := make(event.S, 0, n)
	for i := 0; i < n; i++ {
		ev := &event.E{
			Pubkey:    kp.Pub(),
			CreatedAt: int64(100 + i),
			Kind:      1,
			Tags:      [][]string{},
			Content:   "stub",
		}
		require.NoError(t, ev.Sign(kp))
		evs = append(evs, ev)
	}
	return evs
}

func TestSubscribeReceivesEventsThenEose(t *testing.T) {
	srv := relaytest.New(stubEvents(t, 3))
	defer srv.Close()

	client, err := Dial(context.Bg(), srv.URL(), nil)
	require.NoError(t, err)
	defer client.Close()

	sub, err := client.Subscribe(context.Bg(), filter.New())
	require.NoError(t, err)
	defer sub.Unsub()

	n := 0
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sub.Events:
			assert.NotNil(t, ev)
			n++
		case <-sub.EOSE:
			// stored events queued ahead of the EOSE stay deliverable
			for {
				select {
				case <-sub.Events:
					n++
				default:
					assert.Equal(t, 3, n)
					return
				}
			}
		case <-timeout:
			t.Fatal("timeout waiting for EOSE")
		}
	}
}

func TestSubscribeAppliesFilter(t *testing.T) {
	srv := relaytest.New(stubEvents(t, 5))
	defer srv.Close()

	client, err := Dial(context.Bg(), srv.URL(), nil)
	require.NoError(t, err)
	defer client.Close()

	since := int64(103)
	sub, err := client.Subscribe(context.Bg(), &filter.F{Since: &since})
	require.NoError(t, err)
	defer sub.Unsub()

	n := 0
	timeout := time.After(5 * time.Second)
	for {
		select {
		case <-sub.Events:
			n++
		case <-sub.EOSE:
			for {
				select {
				case <-sub.Events:
					n++
				default:
					assert.Equal(t, 2, n)
					return
				}
			}
		case <-timeout:
			t.Fatal("timeout waiting for EOSE")
		}
	}
}

func TestPublishAccepted(t *testing.T) {
	srv := relaytest.New(nil)
	defer srv.Close()

	client, err := Dial(context.Bg(), srv.URL(), nil)
	require.NoError(t, err)
	defer client.Close()

	kp := keys.Generate()
	ev := &event.E{
		Pubkey: kp.Pub(), CreatedAt: 100, Kind: 1,
		Tags: [][]string{}, Content: "published",
	}
	require.NoError(t, ev.Sign(kp))
	require.NoError(t, client.Publish(context.Bg(), ev))
	require.Len(t, srv.Stored(), 1)
	assert.Equal(t, ev.ID, srv.Stored()[0].ID)
}

func TestPublishRejected(t *testing.T) {
	srv := relaytest.New(nil)
	srv.Accept = func(*event.E) (bool, string) { return false, "blocked: not today" }
	defer srv.Close()

	client, err := Dial(context.Bg(), srv.URL(), nil)
	require.NoError(t, err)
	defer client.Close()

	kp := keys.Generate()
	ev := &event.E{
		Pubkey: kp.Pub(), CreatedAt: 100, Kind: 1,
		Tags: [][]string{}, Content: "published",
	}
	require.NoError(t, ev.Sign(kp))
	err = client.Publish(context.Bg(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not today")
	assert.Empty(t, srv.Stored())
}

func TestPublishDeadlineWithoutOK(t *testing.T) {
	srv := relaytest.New(nil)
	srv.Accept = func(*event.E) (bool, string) {
		time.Sleep(2 * time.Second)
		return true, ""
	}
	defer srv.Close()

	client, err := Dial(context.Bg(), srv.URL(), nil)
	require.NoError(t, err)
	defer client.Close()

	kp := keys.Generate()
	ev := &event.E{
		Pubkey: kp.Pub(), CreatedAt: 100, Kind: 1,
		Tags: [][]string{}, Content: "slow ack",
	}
	require.NoError(t, ev.Sign(kp))

	c, cancel := context.Timeout(context.Bg(), 200*time.Millisecond)
	defer cancel()
	err = client.Publish(c, ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDialFailsFast(t *testing.T) {
	c, cancel := context.Timeout(context.Bg(), 500*time.Millisecond)
	defer cancel()
	_, err := Dial(c, "ws://127.0.0.1:1", nil)
	assert.Error(t, err)
}
