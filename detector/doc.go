// Package detector provides the anomaly detectors tuned by autotune.
//
// Every detector implements autotune.Model: Fit learns from a training
// series, Score returns one anomaly score per point where higher means more
// anomalous, and Detect flags the points past the detector's own threshold.
// Detectors also implement encoding.BinaryMarshaler and
// encoding.BinaryUnmarshaler so a fitted detector can be saved and restored.
//
// # Detectors
//
//   - zscore: distance from the training mean in standard deviations.
//     Tuned parameter: z_threshold in [1.5, 5].
//   - iqr: distance outside the Tukey fences q1 - k*IQR and q3 + k*IQR.
//     Tuned parameter: factor in [0.5, 3].
//   - isolation_forest: average isolation depth over a forest of random
//     trees, normalized to (0, 1]. Tuned parameters: n_estimators in
//     [50, 300] and random_state in [0, 10000].
//
// # Usage
//
//	registry := detector.NewRegistry()
//
//	tuner, err := autotune.New(autotune.DefaultConfig(detector.ZScoreName, 0.01), registry)
//	if err != nil {
//	    return err
//	}
package detector
