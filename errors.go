package autotune

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is; every error returned by
// this package wraps exactly one of them.
var (
	// ErrUnknownModel is returned when a model type name is not registered.
	ErrUnknownModel = errors.New("unknown model")

	// ErrValidation is returned for degenerate series, splits, rates or
	// configuration values.
	ErrValidation = errors.New("validation failed")

	// ErrTuningExhausted is returned when no trial completed within budget.
	ErrTuningExhausted = errors.New("tuning exhausted without a completed trial")

	// ErrNotFitted is returned by predict and save before any fit or load.
	ErrNotFitted = errors.New("model not fitted")

	// ErrUnknownLabelSet is returned when predicting for a label set that has
	// no trained model.
	ErrUnknownLabelSet = errors.New("unknown label set")

	// ErrStorageNotFound is returned by load when the storage location does
	// not exist.
	ErrStorageNotFound = errors.New("storage not found")
)

// LabelSetError reports the label set an operation failed for.
type LabelSetError struct {
	Labels LabelSet
	Err    error
}

func (e *LabelSetError) Error() string {
	return fmt.Sprintf("label set %s: %v", e.Labels, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *LabelSetError) Unwrap() error {
	return e.Err
}
