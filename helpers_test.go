package autotune

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"time"
)

const fakeModelName = "fake"

var errFakeFit = errors.New("fake fit failure")

// fakeModel scores a point by its distance from the training mean. With the
// "flat" parameter >= 0.5 every score is zero, which flags every point and
// gives the worst possible loss.
type fakeModel struct {
	Flat   bool    `json:"flat"`
	Mean   float64 `json:"mean"`
	fitted bool
	delay  time.Duration
}

func (m *fakeModel) Fit(train []float64) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	if len(train) == 0 {
		return ErrValidation
	}

	sum := 0.0
	for _, x := range train {
		if math.IsNaN(x) {
			return errFakeFit
		}

		sum += x
	}

	m.Mean = sum / float64(len(train))
	m.fitted = true

	return nil
}

func (m *fakeModel) Score(series []float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}

	scores := make([]float64, len(series))
	if m.Flat {
		return scores, nil
	}

	for i, x := range series {
		scores[i] = x - m.Mean
	}

	return scores, nil
}

func (m *fakeModel) MarshalBinary() ([]byte, error) {
	return json.Marshal(m)
}

func (m *fakeModel) UnmarshalBinary(data []byte) error {
	if err := json.Unmarshal(data, m); err != nil {
		return err
	}

	m.fitted = true

	return nil
}

func newFakeModel(params Candidate) (Model, error) {
	return &fakeModel{Flat: params.Get("flat", 0) >= 0.5}, nil
}

func fakeSpace() SearchSpace {
	return SearchSpace{"flat": {Min: 0, Max: 1}}
}

func fakeDefinition() ModelDefinition {
	return ModelDefinition{
		Name:        fakeModelName,
		Description: "Distance from the training mean.",
		SearchSpace: fakeSpace(),
		New:         newFakeModel,
	}
}

func fakeRegistry() *Registry {
	reg := NewRegistry()
	if err := reg.Register(fakeDefinition()); err != nil {
		panic(err)
	}

	return reg
}

// normalSeries returns n standard normal points from a seeded generator.
func normalSeries(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))

	series := make([]float64, n)
	for i := range series {
		series[i] = rng.NormFloat64()
	}

	return series
}

// testOptimizationConfig returns a small, reproducible tuning budget.
func testOptimizationConfig() OptimizationConfig {
	config := DefaultOptimizationConfig()
	config.Trials = 10
	config.Timeout = 10 * time.Second
	config.Seed = 7
	config.ModelName = fakeModelName

	return config
}
