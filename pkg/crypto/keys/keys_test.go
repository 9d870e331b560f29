package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigbrotr.dev/pkg/encoders/hex"
)

func TestGenerateProducesUsableKeypair(t *testing.T) {
	kp := Generate()
	assert.True(t, hex.Valid(kp.Pub(), 32))
	sig, err := kp.Sign(make([]byte, 32))
	require.NoError(t, err)
	assert.Len(t, sig, 64)
}

func TestFromSecretHexDeterministic(t *testing.T) {
	const sec = "0000000000000000000000000000000000000000000000000000000000000001"
	a, err := FromSecretHex(sec)
	require.NoError(t, err)
	b, err := FromSecretHex(sec)
	require.NoError(t, err)
	assert.Equal(t, a.Pub(), b.Pub())
}

func TestFromSecretHexRejectsBadInput(t *testing.T) {
	for _, sec := range []string{"", "zz", "00ff"} {
		_, err := FromSecretHex(sec)
		assert.Error(t, err, sec)
	}
}
