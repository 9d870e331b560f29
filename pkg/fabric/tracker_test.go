package fabric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerRate(t *testing.T) {
	tr := NewFailureTracker(10, 0.5)
	for i := 0; i < 5; i++ {
		tr.Record(false)
	}
	assert.Equal(t, 0.0, tr.Rate())
	tr.Record(true)
	assert.InDelta(t, 1.0/6.0, tr.Rate(), 1e-9)
}

func TestTrackerRollsOver(t *testing.T) {
	tr := NewFailureTracker(4, 0.9)
	tr.Record(true)
	tr.Record(true)
	tr.Record(false)
	tr.Record(false)
	assert.InDelta(t, 0.5, tr.Rate(), 1e-9)
	// two more successes push the failures out of the window
	tr.Record(false)
	tr.Record(false)
	assert.Equal(t, 0.0, tr.Rate())
}

func TestTrackerEmptyRateIsZero(t *testing.T) {
	tr := NewFailureTracker(10, 0.1)
	assert.Equal(t, 0.0, tr.Rate())
}

func TestTrackerDefaults(t *testing.T) {
	tr := NewFailureTracker(0, 0)
	assert.Equal(t, 100, tr.size)
	assert.InDelta(t, 0.1, tr.threshold, 1e-9)
}
