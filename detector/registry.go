package detector

import (
	"github.com/thalesfsp/autotune"
)

// Definitions returns the model definitions of every detector in this
// package.
func Definitions() []autotune.ModelDefinition {
	return []autotune.ModelDefinition{
		{
			Name:        ZScoreName,
			Description: "Absolute z-score against the training mean and standard deviation.",
			SearchSpace: autotune.SearchSpace{
				"z_threshold": {Min: 1.5, Max: 5.0},
			},
			New: newZScoreModel,
		},
		{
			Name:        IQRName,
			Description: "Distance outside the interquartile range fences.",
			SearchSpace: autotune.SearchSpace{
				"factor": {Min: 0.5, Max: 3.0},
			},
			New: newIQRModel,
		},
		{
			Name:        IsolationForestName,
			Description: "Isolation forest anomaly score.",
			SearchSpace: autotune.SearchSpace{
				"n_estimators": {Min: 50, Max: 300},
				"random_state": {Min: 0, Max: 10000},
			},
			New: newIsolationForestModel,
		},
	}
}

// Register adds every detector of this package to reg.
func Register(reg *autotune.Registry) error {
	for _, def := range Definitions() {
		if err := reg.Register(def); err != nil {
			return err
		}
	}

	return nil
}

// NewRegistry returns a registry holding every detector of this package.
func NewRegistry() *autotune.Registry {
	reg := autotune.NewRegistry()

	if err := Register(reg); err != nil {
		// Definitions are static, a failure here is a programming error.
		panic(err)
	}

	return reg
}
