package relayinfo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigbrotr.dev/pkg/encoders/relay"
)

func TestParseDocumentCoercion(t *testing.T) {
	d, err := ParseDocument([]byte(`{
		"name": "test relay",
		"description": 42,
		"supported_nips": [1, 11, "66-draft", {"bad": true}],
		"limitation": {"min_pow_difficulty": 20, "max_limit": 500},
		"posting_policy": "https://example.com/policy"
	}`))
	require.NoError(t, err)
	require.NotNil(t, d)
	require.NotNil(t, d.Name)
	assert.Equal(t, "test relay", *d.Name)
	assert.Nil(t, d.Description)
	assert.Equal(t, []any{1, 11, "66-draft"}, d.SupportedNIPs)
	assert.Equal(t, 20, d.MinPowDifficulty())
	assert.Contains(t, d.ExtraFields, "posting_policy")
}

func TestParseDocumentEmptyIsNil(t *testing.T) {
	d, err := ParseDocument([]byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = ParseDocument([]byte(`{"name": 7, "description": false}`))
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestParseDocumentRejectsNonObject(t *testing.T) {
	_, err := ParseDocument([]byte(`"just a string"`))
	assert.Error(t, err)
}

func TestDocumentHashStable(t *testing.T) {
	body := []byte(`{"name":"x","limitation":{"a":1,"b":2}}`)
	d1, err := ParseDocument(body)
	require.NoError(t, err)
	d2, err := ParseDocument(body)
	require.NoError(t, err)
	assert.Equal(t, d1.Hash(), d2.Hash())

	d3, err := ParseDocument([]byte(`{"name":"y"}`))
	require.NoError(t, err)
	assert.NotEqual(t, d1.Hash(), d3.Hash())
}

func TestConnectivityHashDistinguishes(t *testing.T) {
	rtt := int64(42)
	a := &Connectivity{Openable: true, RTTOpen: &rtt}
	b := &Connectivity{Openable: true}
	assert.NotEqual(t, a.Hash(), b.Hash())
	assert.Equal(t, a.Hash(), (&Connectivity{Openable: true, RTTOpen: &rtt}).Hash())
}

func TestMetadataJSONRoundTrip(t *testing.T) {
	rtt := int64(10)
	meta := &T{
		Relay:       relay.MustNew("wss://relay.example.com"),
		GeneratedAt: 1700000000,
		NIP66:       &Connectivity{Openable: true, Readable: true, RTTOpen: &rtt},
	}
	b, err := json.Marshal(meta)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, meta.Relay, out.Relay)
	assert.Nil(t, out.NIP11)
	require.NotNil(t, out.NIP66)
	assert.Equal(t, meta.NIP66, out.NIP66)
}
