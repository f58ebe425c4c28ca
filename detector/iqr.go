package detector

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/thalesfsp/autotune"
)

// IQRName is the registry name of the interquartile range detector.
const IQRName = "iqr"

// IQR scores a point by how far it falls outside the fences
// [q1 - factor*IQR, q3 + factor*IQR]. Points inside the fences score <= 0.
type IQR struct {
	factor float64
	lower  float64
	upper  float64
	fitted bool
}

type iqrState struct {
	Factor float64 `json:"factor"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
}

// NewIQR creates an unfitted IQR detector with the given fence factor.
func NewIQR(factor float64) (*IQR, error) {
	if math.IsNaN(factor) || math.IsInf(factor, 0) || factor < 0 {
		return nil, fmt.Errorf("%w: factor must be a non-negative number, got %v", autotune.ErrValidation, factor)
	}

	return &IQR{factor: factor}, nil
}

func newIQRModel(params autotune.Candidate) (autotune.Model, error) {
	return NewIQR(params.Get("factor", 1.5))
}

// Fences returns the lower and upper fence learned by Fit.
func (d *IQR) Fences() (lower, upper float64) {
	return d.lower, d.upper
}

// Fit learns the quartiles of train.
func (d *IQR) Fit(train []float64) error {
	if err := checkSeries(train, 1); err != nil {
		return err
	}

	sorted := make([]float64, len(train))
	copy(sorted, train)
	sort.Float64s(sorted)

	q1 := autotune.Quantile(sorted, 0.25)
	q3 := autotune.Quantile(sorted, 0.75)
	iqr := q3 - q1

	d.lower = q1 - d.factor*iqr
	d.upper = q3 + d.factor*iqr
	d.fitted = true

	return nil
}

// Score implements autotune.Model.
func (d *IQR) Score(series []float64) ([]float64, error) {
	if !d.fitted {
		return nil, autotune.ErrNotFitted
	}

	scores := make([]float64, len(series))
	for i, x := range series {
		scores[i] = math.Max(x-d.upper, d.lower-x)
	}

	return scores, nil
}

// Detect flags every point outside the fences.
func (d *IQR) Detect(series []float64) ([]bool, error) {
	scores, err := d.Score(series)
	if err != nil {
		return nil, err
	}

	return above(scores, 0), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (d *IQR) MarshalBinary() ([]byte, error) {
	if !d.fitted {
		return nil, autotune.ErrNotFitted
	}

	return json.Marshal(iqrState{Factor: d.factor, Lower: d.lower, Upper: d.upper})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (d *IQR) UnmarshalBinary(data []byte) error {
	var state iqrState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode iqr state: %w", err)
	}

	if state.Lower > state.Upper {
		return fmt.Errorf("%w: iqr state has lower fence above upper fence", autotune.ErrValidation)
	}

	d.factor = state.Factor
	d.lower = state.Lower
	d.upper = state.Upper
	d.fitted = true

	return nil
}
