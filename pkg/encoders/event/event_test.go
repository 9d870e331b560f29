package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigbrotr.dev/pkg/crypto/keys"
)

func sampleEvent() *E {
	return &E{
		Pubkey:    "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d",
		CreatedAt: 1700000000,
		Kind:      1,
		Tags:      [][]string{{"e", "abc"}, {"p", "def", "wss://relay.example.com"}},
		Content:   "hello world",
	}
}

// The id must equal the sha256 of the canonical array form. Cross-checked
// against an independent serialization for content with no special escapes.
func TestComputeIDMatchesIndependentSerialization(t *testing.T) {
	ev := sampleEvent()
	arr := []any{
		0, ev.Pubkey, ev.CreatedAt, ev.Kind, ev.Tags, ev.Content,
	}
	b, err := json.Marshal(arr)
	require.NoError(t, err)
	sum := sha256.Sum256(b)
	assert.Equal(t, hex.EncodeToString(sum[:]), ev.ComputeID())
}

func TestCanonicalStability(t *testing.T) {
	ev := sampleEvent()
	ev.Content = "line1\nline2\t\"quoted\" back\\slash"
	first := ev.SerializeCanonical(nil)
	second := ev.SerializeCanonical(nil)
	assert.Equal(t, first, second)
	assert.Equal(t, ev.ComputeID(), ev.ComputeID())
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	ev := sampleEvent()
	ev.ID = ev.ComputeID()
	ev.Sig = "00"
	ev.Content = "escapes: \" \\ \n \r \t and controls \x01 done"
	out, err := Unmarshal(ev.Marshal(nil))
	require.NoError(t, err)
	assert.Equal(t, ev, out)
}

func TestUnmarshalRelaxedRecoversRawControls(t *testing.T) {
	// a raw newline and a stray backslash inside the content string, as some
	// relays emit them
	raw := []byte(`{"id":"","pubkey":"","created_at":1,"kind":1,"tags":[],"content":"a` + "\n" + `b \d","sig":""}`)
	_, err := Unmarshal(raw)
	require.Error(t, err)
	ev, err := UnmarshalRelaxed(raw)
	require.NoError(t, err)
	assert.Equal(t, "a\nb \\d", ev.Content)
}

func TestUnmarshalRelaxedStillRejectsGarbage(t *testing.T) {
	_, err := UnmarshalRelaxed([]byte(`{"id":`))
	assert.Error(t, err)
}

func TestSignVerify(t *testing.T) {
	kp := keys.Generate()
	ev := sampleEvent()
	ev.Pubkey = kp.Pub()
	require.NoError(t, ev.Sign(kp))
	assert.True(t, ev.CheckID())
	valid, err := ev.Verify()
	require.NoError(t, err)
	assert.True(t, valid)

	ev.Content = "tampered"
	valid, _ = ev.Verify()
	assert.False(t, valid)
}

func TestVerifyRejectsWrongID(t *testing.T) {
	kp := keys.Generate()
	ev := sampleEvent()
	ev.Pubkey = kp.Pub()
	require.NoError(t, ev.Sign(kp))
	ev.ID = "deadbeef" + ev.ID[8:]
	valid, err := ev.Verify()
	assert.False(t, valid)
	assert.Error(t, err)
}

func TestTagValue(t *testing.T) {
	ev := sampleEvent()
	assert.Equal(t, "abc", ev.TagValue("e"))
	assert.Equal(t, "", ev.TagValue("d"))
}
