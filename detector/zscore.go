package detector

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/thalesfsp/autotune"
)

// ZScoreName is the registry name of the z-score detector.
const ZScoreName = "zscore"

// stdEpsilon keeps constant training series from dividing by zero.
const stdEpsilon = 1e-8

// ZScore scores a point by its absolute distance from the training mean, in
// population standard deviations.
type ZScore struct {
	threshold float64
	mean      float64
	std       float64
	fitted    bool
}

type zscoreState struct {
	Threshold float64 `json:"threshold"`
	Mean      float64 `json:"mean"`
	Std       float64 `json:"std"`
}

// NewZScore creates an unfitted z-score detector flagging points whose score
// exceeds threshold.
func NewZScore(threshold float64) (*ZScore, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold <= 0 {
		return nil, fmt.Errorf("%w: z_threshold must be a positive number, got %v", autotune.ErrValidation, threshold)
	}

	return &ZScore{threshold: threshold}, nil
}

func newZScoreModel(params autotune.Candidate) (autotune.Model, error) {
	return NewZScore(params.Get("z_threshold", 3))
}

// Threshold returns the z-score above which Detect flags a point.
func (z *ZScore) Threshold() float64 {
	return z.threshold
}

// Fit learns the mean and standard deviation of train.
func (z *ZScore) Fit(train []float64) error {
	if err := checkSeries(train, 1); err != nil {
		return err
	}

	mean, std := stat.PopMeanStdDev(train, nil)

	z.mean = mean
	z.std = std + stdEpsilon
	z.fitted = true

	return nil
}

// Score implements autotune.Model.
func (z *ZScore) Score(series []float64) ([]float64, error) {
	if !z.fitted {
		return nil, autotune.ErrNotFitted
	}

	scores := make([]float64, len(series))
	for i, x := range series {
		scores[i] = math.Abs(x-z.mean) / z.std
	}

	return scores, nil
}

// Detect flags every point whose score exceeds the threshold.
func (z *ZScore) Detect(series []float64) ([]bool, error) {
	scores, err := z.Score(series)
	if err != nil {
		return nil, err
	}

	return above(scores, z.threshold), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (z *ZScore) MarshalBinary() ([]byte, error) {
	if !z.fitted {
		return nil, autotune.ErrNotFitted
	}

	return json.Marshal(zscoreState{Threshold: z.threshold, Mean: z.mean, Std: z.std})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (z *ZScore) UnmarshalBinary(data []byte) error {
	var state zscoreState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode zscore state: %w", err)
	}

	if state.Std <= 0 {
		return fmt.Errorf("%w: zscore state has non-positive std %v", autotune.ErrValidation, state.Std)
	}

	z.threshold = state.Threshold
	z.mean = state.Mean
	z.std = state.Std
	z.fitted = true

	return nil
}

//////
// Helpers shared by the detectors.
//////

// checkSeries rejects series shorter than minLen or holding NaN or Inf.
func checkSeries(series []float64, minLen int) error {
	if len(series) < minLen {
		return fmt.Errorf("%w: need at least %d training points, got %d", autotune.ErrValidation, minLen, len(series))
	}

	if floats.HasNaN(series) {
		return fmt.Errorf("%w: training series holds NaN", autotune.ErrValidation)
	}

	if math.IsInf(floats.Max(series), 1) || math.IsInf(floats.Min(series), -1) {
		return fmt.Errorf("%w: training series holds Inf", autotune.ErrValidation)
	}

	return nil
}

// above flags every score strictly greater than threshold.
func above(scores []float64, threshold float64) []bool {
	flags := make([]bool, len(scores))
	for i, s := range scores {
		flags[i] = s > threshold
	}

	return flags
}
