package fabric

import (
	"sync"

	"bigbrotr.dev/pkg/utils/log"
)

// FailureTracker keeps a rolling window of per-relay outcomes and warns when
// the recent failure rate crosses a threshold. One warning per excursion
// above the threshold, re-armed once the rate recovers.
type FailureTracker struct {
	mu        sync.Mutex
	window    []bool
	size      int
	next      int
	filled    bool
	threshold float64
	alerted   bool
}

// NewFailureTracker tracks the last size outcomes and alerts above the given
// failure ratio. Defaults: 100 outcomes, 10 percent.
func NewFailureTracker(size int, threshold float64) *FailureTracker {
	if size <= 0 {
		size = 100
	}
	if threshold <= 0 {
		threshold = 0.1
	}
	return &FailureTracker{window: make([]bool, size), size: size, threshold: threshold}
}

// Record notes one outcome and returns the current failure rate.
func (t *FailureTracker) Record(failed bool) (rate float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window[t.next] = failed
	t.next = (t.next + 1) % t.size
	if t.next == 0 {
		t.filled = true
	}
	n := t.size
	if !t.filled {
		n = t.next
	}
	fails := 0
	for i := 0; i < n; i++ {
		if t.window[i] {
			fails++
		}
	}
	rate = float64(fails) / float64(n)
	if rate > t.threshold {
		if !t.alerted {
			t.alerted = true
			log.W.F(
				"relay failure rate %.0f%% over last %d exceeds %.0f%%",
				rate*100, n, t.threshold*100,
			)
		}
	} else {
		t.alerted = false
	}
	return
}

// Rate returns the failure rate over the current window.
func (t *FailureTracker) Rate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.size
	if !t.filled {
		n = t.next
	}
	if n == 0 {
		return 0
	}
	fails := 0
	for i := 0; i < n; i++ {
		if t.window[i] {
			fails++
		}
	}
	return float64(fails) / float64(n)
}
