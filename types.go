package autotune

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/exp/constraints"
)

// ProgressUpdate represents the current state of a tuning run. One update is
// emitted per trial on OptimizationConfig.ProgressChan.
type ProgressUpdate struct {
	// RunID identifies the tuning run the update belongs to.
	RunID string

	// Phase indicates how the trial candidate was chosen: "Random",
	// "InitialSampling" or "Guided".
	Phase string

	// CurrentTrial is the 1-based trial number.
	CurrentTrial int

	// TotalTrials is the trial budget of the run.
	TotalTrials int

	// CurrentCandidate holds the hyperparameters evaluated by this trial.
	CurrentCandidate Candidate

	// CurrentLoss is the average loss of this trial. NaN when Failed is true.
	CurrentLoss float64

	// Failed reports whether the trial could not be evaluated.
	Failed bool

	// CurrentBestCandidate holds the best candidate found so far.
	CurrentBestCandidate Candidate

	// CurrentBestLoss holds the best average loss found so far.
	CurrentBestLoss float64

	// Elapsed is the wall-clock time spent since the run started.
	Elapsed time.Duration
}

// ParameterRange defines the valid sampling range for a hyperparameter.
//
// Type Parameter:
//   - T: The numeric type for this parameter range (integer or float)
//
// Fields:
// - Min: The lower bound (inclusive)
// - Max: The upper bound (exclusive when Min < Max)
//
// Usage:
//
//	threshold := ParameterRange[float64]{Min: 1.5, Max: 5.0}
//
// Validation:
//   - Min must be less than or equal to Max
//   - Min == Max degenerates to a constant
type ParameterRange[T constraints.Integer | constraints.Float] struct {
	// Min is the lower bound of the range.
	Min T `json:"min" yaml:"min"`

	// Max is the upper bound of the range.
	Max T `json:"max" yaml:"max"`
}

// IsConstant reports whether the range collapses to a single value.
func (r ParameterRange[T]) IsConstant() bool {
	return r.Min == r.Max
}

// SearchSpace maps a hyperparameter name to its continuous sampling bounds.
type SearchSpace map[string]ParameterRange[float64]

// Names returns the hyperparameter names in sorted order. Sampling iterates
// names in this order so a seeded run is reproducible.
func (s SearchSpace) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Validate checks every range of the search space.
func (s SearchSpace) Validate() error {
	for _, name := range s.Names() {
		r := s[name]

		if name == "" {
			return fmt.Errorf("%w: empty hyperparameter name", ErrValidation)
		}

		if math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) {
			return fmt.Errorf("%w: hyperparameter %q has non-finite bounds", ErrValidation, name)
		}

		if r.Min > r.Max {
			return fmt.Errorf("%w: hyperparameter %q has min %v > max %v", ErrValidation, name, r.Min, r.Max)
		}
	}

	return nil
}

// Candidate is one concrete assignment of hyperparameter values.
type Candidate map[string]float64

// Get returns the value of name, or fallback when the candidate does not
// define it.
func (c Candidate) Get(name string, fallback float64) float64 {
	if v, ok := c[name]; ok {
		return v
	}

	return fallback
}

// Clone returns an independent copy of the candidate.
func (c Candidate) Clone() Candidate {
	if c == nil {
		return nil
	}

	out := make(Candidate, len(c))
	for k, v := range c {
		out[k] = v
	}

	return out
}

// Split is one (train, validation) partition of a series.
type Split struct {
	Train      []float64
	Validation []float64
}

// TuningResult is the best candidate found by a tuning run.
type TuningResult struct {
	// RunID correlates the run with its log lines.
	RunID string `json:"run_id"`

	// Candidate is the winning hyperparameter assignment.
	Candidate Candidate `json:"candidate"`

	// Loss is the average objective loss of Candidate across all splits.
	Loss float64 `json:"loss"`

	// Trials is the number of trials that completed.
	Trials int `json:"trials"`

	// FailedTrials is the number of trials that could not be evaluated.
	FailedTrials int `json:"failed_trials"`

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration `json:"elapsed"`
}

// Model is the capability every anomaly detector exposes to the tuning core.
// Scores have the same length as the input and higher means more anomalous.
type Model interface {
	Fit(train []float64) error
	Score(series []float64) ([]float64, error)
}

// Factory constructs a fresh, unfitted model from a candidate.
type Factory func(params Candidate) (Model, error)

// AcquisitionFunc defines the signature for acquisition functions used by the
// guided sampler. These functions decide which of the randomly drawn
// candidates is evaluated next.
//
// Parameters:
// - mean: The predicted loss at a point (lower is better)
// - variance: The predicted variance/uncertainty at that point
// - params: Additional parameters needed by specific acquisition functions
//
// Returns:
// - float64: Acquisition value (lower values indicate more promising points)
//
// Built-in acquisition functions:
// - UCB: Upper Confidence Bound
// - ProbabilityOfImprovement: Probability of finding better value
// - ExpectedImprovement: Expected magnitude of improvement
// - ThompsonSampling: Random sampling from posterior
type AcquisitionFunc func(mean, variance float64, params AcquisitionParams) float64

// AcquisitionParams holds parameters used by the acquisition functions.
type AcquisitionParams struct {
	// Beta controls the exploration-exploitation trade-off of UCB.
	// Typical values range from 0.1 to 5.0.
	Beta float64

	// Xi is the minimum improvement looked for by PI and EI.
	// Typical values range from 0.01 to 0.1.
	Xi float64

	// BestSoFar is the best (lowest) loss observed so far. The optimizer
	// keeps it updated during the run.
	BestSoFar float64

	// RandomState is the random number generator used by Thompson Sampling.
	// When nil the optimizer installs its own run generator.
	RandomState *rand.Rand
}

// SamplerKind selects how trial candidates are drawn.
type SamplerKind string

const (
	// SamplerRandom draws every candidate uniformly from the search space.
	SamplerRandom SamplerKind = "random"

	// SamplerGP draws InitialSamples candidates uniformly, then picks each
	// following candidate among NumCandidates uniform draws using a Gaussian
	// Process fitted to the observed losses.
	SamplerGP SamplerKind = "gp"
)

// OptimizationConfig holds all configuration parameters for a tuning run.
//
// Fields explanation:
// - Trials: Maximum number of candidates evaluated
// - Timeout: Wall-clock budget, checked before every trial
// - Seed: Seed of the run generator, 0 seeds from the clock
// - Sampler: Candidate sampling strategy
// - InitialSamples, NumCandidates, AcquisitionFunc, AcqParams: guided sampler
// - ProgressChan: Optional progress sink
//
// Usage example:
//
//	config := DefaultOptimizationConfig()
//	config.Trials = 30
//	config.Timeout = 3 * time.Second
//
// Note:
// - Create separate configs for parallel runs, a config owns its ProgressChan.
type OptimizationConfig struct {
	// Trials is the maximum number of candidates evaluated. Zero means no
	// trial runs and the run reports ErrTuningExhausted.
	Trials int

	// Timeout is the wall-clock budget. It is checked at trial granularity:
	// a trial in flight is never interrupted.
	Timeout time.Duration

	// Seed seeds the run generator. Zero seeds from the current time.
	Seed int64

	// Sampler selects the candidate sampling strategy. Empty means random.
	Sampler SamplerKind

	// InitialSamples is the number of uniformly drawn trials the guided
	// sampler runs before it starts consulting its model.
	InitialSamples int

	// NumCandidates is the number of uniform draws the guided sampler ranks
	// per trial.
	NumCandidates int

	// AcquisitionFunc ranks candidates for the guided sampler.
	AcquisitionFunc AcquisitionFunc

	// AcqParams holds the parameters for the acquisition function.
	AcqParams AcquisitionParams

	// ProgressChan is used to send progress updates during optimization.
	// If nil, no updates will be sent.
	ProgressChan chan<- ProgressUpdate

	// ModelName labels logs and metrics.
	ModelName string

	// RunID correlates logs. A new one is generated when empty.
	RunID string

	// Logger receives per-trial debug logs. Nil uses slog.Default().
	Logger *slog.Logger

	// Metrics records trial counters. Nil disables metrics.
	Metrics *Metrics
}
