package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoints_IncorrectIsAlwaysZero(t *testing.T) {
	limit := 30 * time.Second

	for _, taken := range []time.Duration{
		0,
		500 * time.Millisecond,
		15 * time.Second,
		30 * time.Second,
		45 * time.Second,
		-time.Second,
	} {
		assert.Equal(t, 0, Points(false, taken, limit), "taken=%v", taken)
	}
}

func TestPoints_MonotonicNonIncreasing(t *testing.T) {
	limit := 30 * time.Second

	prev := Points(true, 0, limit)
	for taken := 100 * time.Millisecond; taken <= limit; taken += 100 * time.Millisecond {
		cur := Points(true, taken, limit)
		assert.LessOrEqual(t, cur, prev, "points must not increase with elapsed time at taken=%v", taken)
		prev = cur
	}
}

func TestPoints_Bounds(t *testing.T) {
	limit := 20 * time.Second

	assert.Equal(t, MaxCorrectPoints(), Points(true, 0, limit))
	assert.Equal(t, MinCorrectPoints(), Points(true, limit, limit))

	// Past the limit the answer is capped, never below the minimum bonus.
	assert.Equal(t, MinCorrectPoints(), Points(true, limit+10*time.Second, limit))

	// Negative elapsed time is clamped to an instant answer.
	assert.Equal(t, MaxCorrectPoints(), Points(true, -5*time.Second, limit))
}

func TestPoints_Deterministic(t *testing.T) {
	limit := 30 * time.Second
	taken := 12345 * time.Millisecond

	first := Points(true, taken, limit)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Points(true, taken, limit))
	}
}

func TestPoints_SlowCorrectBeatsNothingButFastCorrect(t *testing.T) {
	limit := 30 * time.Second

	fast := Points(true, 1*time.Second, limit)
	slow := Points(true, 29500*time.Millisecond, limit)

	assert.Greater(t, fast, slow)
	assert.Equal(t, MinCorrectPoints(), slow)
	assert.Greater(t, slow, 0)
}

func TestPoints_BonusQuantizedToWholeRemainingSeconds(t *testing.T) {
	limit := 30 * time.Second

	// Anywhere inside the final second of the window earns exactly the
	// minimum bonus.
	for _, taken := range []time.Duration{
		29001 * time.Millisecond,
		29500 * time.Millisecond,
		29999 * time.Millisecond,
	} {
		assert.Equal(t, MinCorrectPoints(), Points(true, taken, limit), "taken=%v", taken)
	}

	// A whole second of slack steps the bonus up off the floor.
	assert.Equal(t, 113, Points(true, 29*time.Second, limit))
	assert.Equal(t, 197, Points(true, 1*time.Second, limit))
}

func TestPoints_ZeroLimitFallsBackToMinimum(t *testing.T) {
	assert.Equal(t, MinCorrectPoints(), Points(true, 5*time.Second, 0))
}
