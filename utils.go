package autotune

import (
	"math"
	"math/rand"

	"golang.org/x/exp/constraints"
)

//////
// Helper functions.
//////

// Helper function used by PI and EI to compute the cumulative distribution
// function of the standard normal distribution.
func normalCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// Helper function used by EI to compute the probability density function
// of the standard normal distribution.
func normalPDF(x float64) float64 {
	return math.Exp(-x*x/2.0) / math.Sqrt(2.0*math.Pi)
}

// sampleUniform draws a value uniformly from r.
//
// Integer ranges are sampled in [Min, Max] like the rest of the integer
// world expects; float ranges are sampled in [Min, Max). A constant range
// always returns Min.
func sampleUniform[T constraints.Integer | constraints.Float](rng *rand.Rand, r ParameterRange[T]) T {
	if r.IsConstant() {
		return r.Min
	}

	switch any(r.Min).(type) {
	case float32, float64:
		min := float64(r.Min)
		max := float64(r.Max)

		v := min + rng.Float64()*(max-min)

		// Rounding can land exactly on max for very narrow ranges.
		if v >= max {
			v = math.Nextafter(max, min)
		}

		return T(v)
	default:
		min := int64(r.Min)
		max := int64(r.Max)

		return T(min + rng.Int63n(max-min+1))
	}
}

// normalize maps v from r onto [0, 1). Constant ranges map to 0.
func normalize(r ParameterRange[float64], v float64) float64 {
	if r.IsConstant() {
		return 0
	}

	return (v - r.Min) / (r.Max - r.Min)
}
