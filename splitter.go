package autotune

import (
	"fmt"
	"math"
)

// SplitSeries partitions series into nSplits time-ordered (train, validation)
// pairs.
//
// The last split puts the boundary at the first trainValRatio/(trainValRatio+1)
// fraction of the series, so its validation partition runs from there to the
// end. Earlier splits use an expanding window: the boundary moves back by a
// fixed stride per split and the validation window keeps the same length, so
// every split covers a different, earlier stretch of time.
//
// With L points, T = floor(L*r/(r+1)), V = L-T and stride = max(1, V/n),
// split i (0-based) trains on [0, T-(n-1-i)*stride) and validates on the V
// points that follow.
//
// Returned partitions are copies and do not alias series.
func SplitSeries(series []float64, nSplits int, trainValRatio float64) ([]Split, error) {
	if nSplits < 1 {
		return nil, fmt.Errorf("%w: n_splits must be >= 1, got %d", ErrValidation, nSplits)
	}

	if math.IsNaN(trainValRatio) || math.IsInf(trainValRatio, 0) || trainValRatio <= 0 {
		return nil, fmt.Errorf("%w: train/validation ratio must be > 0, got %v", ErrValidation, trainValRatio)
	}

	length := len(series)
	if length < nSplits+1 {
		return nil, fmt.Errorf(
			"%w: series of %d points is too short for %d splits (need at least %d)",
			ErrValidation, length, nSplits, nSplits+1,
		)
	}

	trainEnd := int(float64(length) * trainValRatio / (trainValRatio + 1))
	valLen := length - trainEnd

	stride := valLen / nSplits
	if stride < 1 {
		stride = 1
	}

	firstEnd := trainEnd - (nSplits-1)*stride
	if firstEnd < 1 || valLen < 1 {
		return nil, fmt.Errorf(
			"%w: series of %d points with ratio %v leaves an empty partition across %d splits",
			ErrValidation, length, trainValRatio, nSplits,
		)
	}

	splits := make([]Split, nSplits)

	for i := range splits {
		end := trainEnd - (nSplits-1-i)*stride

		splits[i] = Split{
			Train:      clone(series[:end]),
			Validation: clone(series[end : end+valLen]),
		}
	}

	return splits, nil
}

// clone returns a copy of xs.
func clone(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)

	return out
}
