package autotune

import "math"

//////
// Available acquisition functions for the guided sampler.
// Each function ranks a candidate from the surrogate's predicted loss and
// uncertainty. Lower values are more promising.
//////

// UCB implements the (lower) confidence bound acquisition function.
//
// How it works:
// - Combines the predicted loss with the uncertainty (variance)
// - The Beta parameter controls the trade-off between exploration and exploitation
//
// Example:
//
//	params := AcquisitionParams{Beta: 2.0}
//	value := UCB(0.05, 0.2, params)
func UCB(mean, variance float64, params AcquisitionParams) float64 {
	return mean - params.Beta*math.Sqrt(variance)
}

// ProbabilityOfImprovement (PI) ranks a candidate by the probability that its
// loss improves on params.BestSoFar by at least params.Xi. The probability is
// negated so that lower values stay more promising.
func ProbabilityOfImprovement(mean, variance float64, params AcquisitionParams) float64 {
	z := (params.BestSoFar - params.Xi - mean) / math.Sqrt(variance)

	return -normalCDF(z)
}

// ExpectedImprovement (EI) ranks a candidate by the expected amount its loss
// improves on params.BestSoFar, negated so that lower is more promising.
//
// Example:
//
//	params := AcquisitionParams{
//	    BestSoFar: 0.02,
//	    Xi: 0.001,
//	}
//	expected := ExpectedImprovement(0.01, 0.2, params)
func ExpectedImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(variance)

	improvement := params.BestSoFar - params.Xi - mean
	z := improvement / sigma

	return -(improvement*normalCDF(z) + sigma*normalPDF(z))
}

// ThompsonSampling draws one sample from the predicted loss distribution.
//
// Warning:
// - params.RandomState must not be nil
// - Don't share RandomState between concurrent runs.
func ThompsonSampling(mean, variance float64, params AcquisitionParams) float64 {
	return mean + math.Sqrt(variance)*params.RandomState.NormFloat64()
}
