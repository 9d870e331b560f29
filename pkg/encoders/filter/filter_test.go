package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigbrotr.dev/pkg/encoders/event"
)

func TestParseDropsUnknownKeys(t *testing.T) {
	f, err := Parse([]byte(`{"kinds":[1,30166],"since":10,"bogus":{"x":1},"search":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 30166}, f.Kinds)
	require.NotNil(t, f.Since)
	assert.EqualValues(t, 10, *f.Since)
	assert.Nil(t, f.Until)
}

func TestParseTagFilters(t *testing.T) {
	f, err := Parse([]byte(`{"#d":["wss://relay.example.com"],"#notatag":["x"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://relay.example.com"}, f.Tags["d"])
	_, ok := f.Tags["notatag"]
	assert.False(t, ok)
}

func TestMarshalParseRoundTrip(t *testing.T) {
	since, until, limit := int64(5), int64(50), 7
	f := &F{
		IDs:     []string{"aa"},
		Authors: []string{"bb"},
		Kinds:   []int{1},
		Since:   &since,
		Until:   &until,
		Limit:   &limit,
		Tags:    map[string][]string{"e": {"cc"}, "p": {"dd"}},
	}
	out, err := Parse(f.Marshal(nil))
	require.NoError(t, err)
	assert.Equal(t, f, out)
}

func TestMarshalEmpty(t *testing.T) {
	assert.Equal(t, "{}", string(New().Marshal(nil)))
}

func TestMatch(t *testing.T) {
	ev := &event.E{
		ID:        "id1",
		Pubkey:    "pk1",
		CreatedAt: 100,
		Kind:      1,
		Tags:      [][]string{{"d", "val"}},
	}
	since := int64(50)
	until := int64(150)
	assert.True(t, (&F{Since: &since, Until: &until}).Match(ev))
	late := int64(101)
	assert.False(t, (&F{Since: &late}).Match(ev))
	assert.True(t, (&F{Kinds: []int{1, 2}}).Match(ev))
	assert.False(t, (&F{Kinds: []int{2}}).Match(ev))
	assert.True(t, (&F{Tags: map[string][]string{"d": {"val"}}}).Match(ev))
	assert.False(t, (&F{Tags: map[string][]string{"d": {"other"}}}).Match(ev))
	assert.False(t, (&F{Authors: []string{"someone"}}).Match(ev))
}

func TestCloneIsolatesWindowFields(t *testing.T) {
	f := &F{Kinds: []int{1}}
	c := f.Clone()
	s := int64(9)
	c.Since = &s
	assert.Nil(t, f.Since)
	assert.Equal(t, f.Kinds, c.Kinds)
}
