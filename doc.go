// Package autotune tunes anomaly detection models to an expected anomaly
// rate. Given a time series, or a batch of series tagged with label sets, it
// searches each model's hyperparameter space with time-ordered
// cross-validation, fits one tuned model per label set and routes later
// scoring requests to the matching model.
//
// # Features
//
// The package includes the following key features:
//
//   - Time-ordered cross-validation: validation points always follow the
//     training points of their split
//   - Rate-matching objective: a candidate is good when the fraction of points
//     it flags matches the expected anomaly rate
//   - Budgeted search: random search bounded by a trial count and a
//     wall-clock timeout, with an optional Gaussian Process guided sampler
//   - Per label set models: batches are grouped by label set and every group
//     gets its own tuned model
//   - Pluggable models: any type implementing Model can be registered
//   - Persistence: the model table is saved to and restored from a file or
//     BadgerDB store, one entry per label set
//   - Progress Monitoring: per-trial updates via channels
//   - Prometheus metrics and structured logging with log/slog
//
// # Usage
//
//	registry := detector.NewRegistry()
//
//	cfg := autotune.DefaultConfig("zscore", 0.01)
//	cfg.Trials = 20
//	cfg.Timeout = 3 * time.Second
//
//	tuner, err := autotune.New(cfg, registry)
//	if err != nil {
//	    return err
//	}
//
//	if err := tuner.FitBatch(ctx, []autotune.LabeledSeries{
//	    {Labels: autotune.LabelSet{"host": "A"}, Values: hostA},
//	    {Labels: autotune.LabelSet{"host": "B"}, Values: hostB},
//	}); err != nil {
//	    return err
//	}
//
//	scores, err := tuner.PredictBatch(items)
//
// # Guided sampling
//
// Setting Config.Sampler to "gp" replaces uniform sampling after the first
// InitialSamples trials: each trial draws NumCandidates uniform candidates,
// predicts their loss with a Gaussian Process fitted to the losses observed so
// far, and evaluates the one the acquisition function ranks best. Lower
// acquisition values are better. The library provides four acquisition
// functions:
//
// 1. Upper Confidence Bound (UCB):
//
//   - Balances exploration and exploitation
//
//   - Controlled by Beta parameter (higher = more exploration)
//
//     config := DefaultOptimizationConfig()  // Uses UCB by default
//     config.AcqParams.Beta = 2.0
//
// 2. Probability of Improvement (PI):
//
//   - Focuses on small, reliable improvements
//
//     config.AcquisitionFunc = ProbabilityOfImprovement
//     config.AcqParams.Xi = 0.01  // Minimum improvement threshold
//
// 3. Expected Improvement (EI):
//
//   - Balances improvement probability and magnitude
//
//     config.AcquisitionFunc = ExpectedImprovement
//
// 4. Thompson Sampling:
//
//   - Samples from the predicted distribution, no parameter tuning required
//
//     config.AcquisitionFunc = ThompsonSampling
//
// # Configuration
//
// Config is validated with struct tags and can be loaded from YAML with
// LoadConfig and overridden from AUTOTUNE_* environment variables with
// ApplyEnv:
//
//	model: iqr
//	expected_rate: 0.01
//	n_splits: 3
//	train_val_ratio: 3
//	trials: 128
//	timeout: 10s
//	storage_dir: models_store
//	storage_backend: file
//	sampler: random
//	parallelism: 4
//
// # Thread Safety
//
// AutoTuner methods are safe for concurrent use. The model table is guarded by
// a RWMutex and each tuned model is committed with one exclusive write, so
// predictions never observe a partially fitted model. A tuning run itself is
// sequential; FitBatch tunes up to Config.Parallelism label sets at once.
package autotune
