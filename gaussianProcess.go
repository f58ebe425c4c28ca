package autotune

import (
	"math"
	"sync"
)

//////
// Const, vars, types.
//////

// defaultKernelWidth is the RBF width used on normalized candidates, where
// every coordinate lies in [0, 1).
const defaultKernelWidth = 0.25

// varianceFloor keeps predictions strictly uncertain so PI and EI never
// divide by zero.
const varianceFloor = 1e-9

// gaussianProcess is a lightweight Gaussian Process surrogate used by the
// guided sampler to predict the loss of untested candidates from the losses
// already observed in the run.
//
// Fields:
// - mu: RWMutex for thread-safe access to all fields
// - X: Observed candidates, normalized to the unit hypercube
// - Y: Observed average losses at each candidate
// - sigma: Kernel width controlling the smoothness of interpolation
type gaussianProcess struct {
	// mu protects access to all fields
	mu sync.RWMutex

	// X stores the observed normalized candidates.
	X [][]float64

	// Y stores the observed losses, same length as X.
	Y []float64

	// sigma is the kernel width parameter
	// Larger values = smoother interpolation
	// Smaller values = more local influence
	sigma float64
}

//////
// Methods.
//////

// rbfKernel measures the similarity of two points:
//
//	k(x1, x2) = exp(-sum((x1 - x2)^2) / (2 * sigma^2))
//
// Panics if the vectors have different lengths. Callers must hold at least a
// read lock.
func (gp *gaussianProcess) rbfKernel(x1, x2 []float64) float64 {
	if len(x1) != len(x2) {
		panic("input vectors must have the same length")
	}

	var sum float64

	for i := range x1 {
		diff := x1[i] - x2[i]

		sum += diff * diff
	}

	return math.Exp(-sum / (2 * gp.sigma * gp.sigma))
}

// Predict estimates the loss and its uncertainty at x.
//
// The mean is the kernel-weighted average of the observed losses. The
// variance starts at 1 and shrinks as x gets close to observed points. With
// no observations it returns (0, 1).
func (gp *gaussianProcess) Predict(x []float64) (mean, variance float64) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	if len(gp.X) == 0 {
		return 0, 1
	}

	k := make([]float64, len(gp.X))

	var weight, sum float64

	for i := range gp.X {
		k[i] = gp.rbfKernel(x, gp.X[i])
		weight += k[i]
		sum += k[i] * gp.Y[i]
	}

	if weight > 0 {
		mean = sum / weight
	} else {
		// Far from every observation: fall back to the plain average.
		for _, y := range gp.Y {
			mean += y
		}

		mean /= float64(len(gp.Y))
	}

	variance = 1.0

	for i := range gp.X {
		for j := range gp.X {
			variance -= k[i] * k[j] / float64(len(gp.X)*len(gp.X))
		}
	}

	return mean, math.Max(variance, varianceFloor)
}

// Update adds an observation. x is copied.
func (gp *gaussianProcess) Update(x []float64, y float64) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	newX := make([]float64, len(x))
	copy(newX, x)

	gp.X = append(gp.X, newX)
	gp.Y = append(gp.Y, y)
}

// SetSigma updates the kernel width. Must be positive.
func (gp *gaussianProcess) SetSigma(sigma float64) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	gp.sigma = sigma
}

// GetSigma returns the current kernel width.
func (gp *gaussianProcess) GetSigma() float64 {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return gp.sigma
}

// Len returns the number of observations.
func (gp *gaussianProcess) Len() int {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return len(gp.X)
}

//////
// Factory.
//////

// newGaussianProcess creates an empty surrogate with the default kernel width
// for normalized inputs.
func newGaussianProcess() *gaussianProcess {
	return &gaussianProcess{
		sigma: defaultKernelWidth,
	}
}
