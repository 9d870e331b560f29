package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigbrotr.dev/pkg/utils/context"
)

func TestBurstThenExhaustion(t *testing.T) {
	l := New(1, 2)
	url := "wss://relay.example.com"
	assert.True(t, l.TryAcquire(url, 1))
	assert.True(t, l.TryAcquire(url, 1))
	assert.False(t, l.TryAcquire(url, 1))
}

func TestBucketsAreIndependent(t *testing.T) {
	l := New(1, 1)
	assert.True(t, l.TryAcquire("wss://a.example.com", 1))
	assert.False(t, l.TryAcquire("wss://a.example.com", 1))
	assert.True(t, l.TryAcquire("wss://b.example.com", 1))
}

func TestAcquireBlocksUntilRefill(t *testing.T) {
	l := New(100, 1)
	url := "wss://relay.example.com"
	require.True(t, l.TryAcquire(url, 1))
	start := time.Now()
	require.NoError(t, l.Acquire(context.Bg(), url, 1))
	// one token at 100/s refills in about 10ms
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestAcquireHonorsContext(t *testing.T) {
	l := New(0.001, 1)
	url := "wss://relay.example.com"
	require.True(t, l.TryAcquire(url, 1))
	c, cancel := context.Timeout(context.Bg(), 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(c, url, 1)
	assert.Error(t, err)
}

func TestDefaultsApplied(t *testing.T) {
	l := New(0, 0)
	url := "wss://relay.example.com"
	assert.True(t, l.TryAcquire(url, DefaultBurst))
	assert.False(t, l.TryAcquire(url, 1))
}
