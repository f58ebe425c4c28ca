package autotune

import (
	"fmt"
	"math"
	"sort"
)

// Loss compares the expected anomaly rate with the fraction of scores a
// candidate flags.
//
// The threshold is the (1 - expectedRate) quantile of scores, linearly
// interpolated between the closest ranks. Every score at or above the
// threshold counts as detected and the loss is |detected - expectedRate|.
// Lower is better; 0 means the flagged fraction matches the expected rate
// exactly.
func Loss(scores []float64, expectedRate float64) (float64, error) {
	if err := validateRate(expectedRate); err != nil {
		return 0, err
	}

	if len(scores) == 0 {
		return 0, fmt.Errorf("%w: no scores to evaluate", ErrValidation)
	}

	sorted := make([]float64, len(scores))
	for i, s := range scores {
		if math.IsNaN(s) {
			return 0, fmt.Errorf("%w: score %d is NaN", ErrValidation, i)
		}

		sorted[i] = s
	}

	sort.Float64s(sorted)

	threshold := Quantile(sorted, 1-expectedRate)

	// sorted is ascending, the first index at or above the threshold gives
	// the detected count.
	first := sort.SearchFloat64s(sorted, threshold)
	detected := float64(len(sorted)-first) / float64(len(sorted))

	return math.Abs(detected - expectedRate), nil
}

// Quantile returns the p-quantile of an ascending, non-empty slice with
// linear interpolation at rank h = (n-1)*p. p is clamped to [0, 1].
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 || p <= 0 {
		return sorted[0]
	}

	h := float64(n-1) * p
	lo := int(math.Floor(h))

	if lo >= n-1 {
		return sorted[n-1]
	}

	frac := h - float64(lo)
	if frac == 0 {
		return sorted[lo]
	}

	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// validateRate checks that an expected anomaly rate lies in (0, 1).
func validateRate(rate float64) error {
	if math.IsNaN(rate) || rate <= 0 || rate >= 1 {
		return fmt.Errorf("%w: expected anomaly rate must lie in (0, 1), got %v", ErrValidation, rate)
	}

	return nil
}
