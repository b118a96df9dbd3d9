package scoring

import (
	"time"
)

// Point constants for a single question. A correct answer earns the base
// plus a speed bonus that steps down from MaxSpeedBonus at instant
// answers to MinSpeedBonus at or past the time limit.
const (
	BasePoints    = 100
	MaxSpeedBonus = 100
	MinSpeedBonus = 10
)

// Points computes the score for one answer from correctness and elapsed
// time alone. The result is deterministic and reproducible so the same
// value can be recomputed by the store for validation or by any client
// displaying a breakdown.
func Points(isCorrect bool, timeTaken, timeLimit time.Duration) int {
	if !isCorrect {
		return 0
	}
	if timeLimit <= 0 {
		return BasePoints + MinSpeedBonus
	}

	if timeTaken < 0 {
		timeTaken = 0
	}
	if timeTaken > timeLimit {
		timeTaken = timeLimit
	}

	// The bonus is computed from whole seconds remaining in the window, so
	// any answer inside the final second earns exactly the minimum bonus.
	// Integer math keeps the value bit-for-bit reproducible everywhere.
	limitSec := int(timeLimit / time.Second)
	if limitSec <= 0 {
		return BasePoints + MinSpeedBonus
	}
	remSec := int((timeLimit - timeTaken) / time.Second)
	bonus := MinSpeedBonus + (MaxSpeedBonus-MinSpeedBonus)*remSec/limitSec

	return BasePoints + bonus
}

// MinCorrectPoints is the lowest score any correct answer can earn.
func MinCorrectPoints() int {
	return BasePoints + MinSpeedBonus
}

// MaxCorrectPoints is the highest score any correct answer can earn.
func MaxCorrectPoints() int {
	return BasePoints + MaxSpeedBonus
}
