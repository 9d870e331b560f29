package envelopes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigbrotr.dev/pkg/encoders/filter"
)

func TestParseEventFrame(t *testing.T) {
	env, err := Parse([]byte(`["EVENT","sub1",{"id":"aa","pubkey":"bb","created_at":5,"kind":1,"tags":[],"content":"hi","sig":"cc"}]`))
	require.NoError(t, err)
	assert.Equal(t, LEvent, env.Label)
	assert.Equal(t, "sub1", env.SubID)
	require.NotNil(t, env.Event)
	assert.Equal(t, "hi", env.Event.Content)
}

func TestParseOKFrame(t *testing.T) {
	env, err := Parse([]byte(`["OK","abcd",false,"pow: too low"]`))
	require.NoError(t, err)
	assert.Equal(t, LOK, env.Label)
	assert.Equal(t, "abcd", env.EventID)
	assert.False(t, env.Accepted)
	assert.Equal(t, "pow: too low", env.Reason)
}

func TestParseEoseClosedNotice(t *testing.T) {
	env, err := Parse([]byte(`["EOSE","s"]`))
	require.NoError(t, err)
	assert.Equal(t, LEose, env.Label)

	env, err = Parse([]byte(`["CLOSED","s","rate-limited"]`))
	require.NoError(t, err)
	assert.Equal(t, "rate-limited", env.Reason)

	env, err = Parse([]byte(`["NOTICE","slow down"]`))
	require.NoError(t, err)
	assert.Equal(t, "slow down", env.Notice)
}

func TestParseRejectsUnknownAndMalformed(t *testing.T) {
	for _, frame := range []string{
		`["WHAT","x"]`, `{"not":"an array"}`, `[]`, `["EVENT","sub"]`,
	} {
		_, err := Parse([]byte(frame))
		assert.Error(t, err, frame)
	}
}

func TestAppendReq(t *testing.T) {
	since := int64(10)
	out := AppendReq(nil, "s1", &filter.F{Since: &since})
	assert.Equal(t, `["REQ","s1",{"since":10}]`, string(out))
}

func TestAppendClose(t *testing.T) {
	assert.Equal(t, `["CLOSE","s1"]`, string(AppendClose(nil, "s1")))
}
