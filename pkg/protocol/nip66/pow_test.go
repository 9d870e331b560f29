package nip66

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigbrotr.dev/pkg/encoders/event"
	"bigbrotr.dev/pkg/utils/context"
)

func TestDifficulty(t *testing.T) {
	assert.Equal(t, 0, Difficulty("ff00000000000000000000000000000000000000000000000000000000000000"))
	assert.Equal(t, 8, Difficulty("00ff000000000000000000000000000000000000000000000000000000000000"))
	assert.Equal(t, 10, Difficulty("002f000000000000000000000000000000000000000000000000000000000000"))
	assert.Equal(t, 256, Difficulty("0000000000000000000000000000000000000000000000000000000000000000"))
	assert.Equal(t, 0, Difficulty("not hex"))
}

func TestMineReachesTarget(t *testing.T) {
	ev := &event.E{
		Pubkey:    "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d",
		CreatedAt: 1700000000,
		Kind:      1,
		Tags:      [][]string{},
		Content:   "pow",
	}
	require.NoError(t, Mine(context.Bg(), ev, 10))
	assert.GreaterOrEqual(t, Difficulty(ev.ID), 10)
	assert.Equal(t, ev.ComputeID(), ev.ID)
	assert.NotEmpty(t, ev.TagValue("nonce"))
}

func TestMineZeroTargetJustComputesID(t *testing.T) {
	ev := &event.E{Kind: 1, Tags: [][]string{}, Content: "x"}
	require.NoError(t, Mine(context.Bg(), ev, 0))
	assert.Equal(t, ev.ComputeID(), ev.ID)
	assert.Empty(t, ev.TagValue("nonce"))
}

func TestMineStopsOnCancel(t *testing.T) {
	ev := &event.E{Kind: 1, Tags: [][]string{}, Content: "x"}
	c, cancel := context.Timeout(context.Bg(), 50*time.Millisecond)
	defer cancel()
	// 64 bits is out of reach, the deadline must end the grind
	err := Mine(c, ev, 64)
	assert.Error(t, err)
}
