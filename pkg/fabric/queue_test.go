package fabric

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int](0)
	for i := 0; i < 5; i++ {
		require.True(t, q.Put(i))
	}
	for i := 0; i < 5; i++ {
		v, ok := q.Get(time.Second)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestQueueGetTimesOutEmpty(t *testing.T) {
	q := NewQueue[int](0)
	start := time.Now()
	_, ok := q.Get(30 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestQueueBounded(t *testing.T) {
	q := NewQueue[int](2)
	assert.True(t, q.Put(1))
	assert.True(t, q.Put(2))
	assert.False(t, q.Put(3))
	q.Get(time.Millisecond)
	assert.True(t, q.Put(3))
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewQueue[int](0)
	q.Put(1)
	q.Close()
	assert.False(t, q.Put(2))
	v, ok := q.Get(time.Second)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = q.Get(time.Second)
	assert.False(t, ok)
}

func TestQueueEachItemConsumedOnce(t *testing.T) {
	const items = 1000
	const readers = 8
	q := NewQueue[int](0)
	for i := 0; i < items; i++ {
		q.Put(i)
	}
	q.Close()

	var mu sync.Mutex
	seen := make(map[int]int)
	var wg sync.WaitGroup
	for w := 0; w < readers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, ok := q.Get(100 * time.Millisecond)
				if !ok {
					return
				}
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, items)
	for v, n := range seen {
		assert.Equal(t, 1, n, "item %d consumed %d times", v, n)
	}
}

func TestQueueWakesWaitingReader(t *testing.T) {
	q := NewQueue[string](0)
	done := make(chan string, 1)
	go func() {
		v, ok := q.Get(2 * time.Second)
		if ok {
			done <- v
		}
	}()
	time.Sleep(20 * time.Millisecond)
	q.Put("hello")
	select {
	case v := <-done:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("reader did not wake")
	}
}
