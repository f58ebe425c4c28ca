package autotune

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

//////
// Exported functionalities.
//////

// DefaultOptimizationConfig returns the default tuning budget: 128 random
// trials within 10 seconds. The guided sampler settings only apply when
// Sampler is SamplerGP.
func DefaultOptimizationConfig() OptimizationConfig {
	return OptimizationConfig{
		Trials:          128,
		Timeout:         10 * time.Second,
		Sampler:         SamplerRandom,
		InitialSamples:  10,
		NumCandidates:   50,
		AcquisitionFunc: UCB,
		AcqParams: AcquisitionParams{
			BestSoFar: math.MaxFloat64,
			Beta:      2.0,
			Xi:        0.001,
		},
		ProgressChan: nil, // Default to no progress updates.
	}
}

// Optimize searches space for the candidate whose models best match
// expectedRate across splits.
//
// How it works:
// 1. Records the start time
// 2. For up to config.Trials trials, stopping as soon as config.Timeout has
// elapsed or ctx is done (checked before each trial only):
//   - Samples a candidate, uniformly or through the guided sampler
//   - For every split, builds a fresh model with factory, fits it on the
//     train partition, scores the validation partition and computes Loss
//   - Averages the split losses into the trial loss
//   - Keeps the candidate if its loss is strictly lower than the best so far
//
// 3. Returns the best candidate found
//
// A trial whose model cannot be built, fitted or scored is counted as failed
// and skipped; it is never retried. When no trial completes the error wraps
// ErrTuningExhausted.
//
// Important notes:
// - Sequential: one trial at a time, trials are never preempted
// - Ties keep the earlier candidate
// - Reproducible: a non-zero config.Seed replays the same candidates
func Optimize(
	ctx context.Context,
	factory Factory,
	space SearchSpace,
	splits []Split,
	expectedRate float64,
	config OptimizationConfig,
) (*TuningResult, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: nil model factory", ErrValidation)
	}

	if err := space.Validate(); err != nil {
		return nil, err
	}

	if err := validateRate(expectedRate); err != nil {
		return nil, err
	}

	if len(splits) == 0 {
		return nil, fmt.Errorf("%w: no splits to evaluate", ErrValidation)
	}

	if config.Trials < 0 {
		return nil, fmt.Errorf("%w: trial budget must be >= 0, got %d", ErrValidation, config.Trials)
	}

	start := time.Now()

	runID := config.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("run_id", runID), slog.String("model", config.ModelName))

	// Seeding from the clock keeps unseeded runs independent of each other.
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(seed))

	if config.AcqParams.RandomState == nil {
		config.AcqParams.RandomState = rng
	}

	if config.AcquisitionFunc == nil {
		config.AcquisitionFunc = UCB
	}

	names := space.Names()

	// randomCandidate draws one value per search space entry.
	randomCandidate := func() Candidate {
		c := make(Candidate, len(names))
		for _, name := range names {
			c[name] = sampleUniform(rng, space[name])
		}

		return c
	}

	// toPoint maps a candidate onto the unit hypercube for the surrogate.
	toPoint := func(c Candidate) []float64 {
		point := make([]float64, len(names))
		for i, name := range names {
			point[i] = normalize(space[name], c[name])
		}

		return point
	}

	gp := newGaussianProcess()

	// nextCandidate picks the candidate of the next trial and names the
	// phase it was drawn in.
	nextCandidate := func(trial int) (Candidate, string) {
		if config.Sampler != SamplerGP {
			return randomCandidate(), "Random"
		}

		if trial < config.InitialSamples || gp.Len() == 0 {
			return randomCandidate(), "InitialSampling"
		}

		var next Candidate

		bestAcquisition := math.Inf(1)

		draws := config.NumCandidates
		if draws < 1 {
			draws = 1
		}

		for j := 0; j < draws; j++ {
			c := randomCandidate()

			mean, variance := gp.Predict(toPoint(c))

			acquisition := config.AcquisitionFunc(mean, variance, config.AcqParams)
			if next == nil || acquisition < bestAcquisition {
				bestAcquisition = acquisition
				next = c
			}
		}

		return next, "Guided"
	}

	// evaluate runs one trial: a fresh model per split, averaged loss.
	evaluate := func(c Candidate) (float64, error) {
		losses := make([]float64, 0, len(splits))

		for i, split := range splits {
			model, err := factory(c.Clone())
			if err != nil {
				return 0, fmt.Errorf("split %d: construct model: %w", i, err)
			}

			if err := model.Fit(split.Train); err != nil {
				return 0, fmt.Errorf("split %d: fit: %w", i, err)
			}

			scores, err := model.Score(split.Validation)
			if err != nil {
				return 0, fmt.Errorf("split %d: score: %w", i, err)
			}

			if len(scores) != len(split.Validation) {
				return 0, fmt.Errorf(
					"split %d: model returned %d scores for %d points",
					i, len(scores), len(split.Validation),
				)
			}

			loss, err := Loss(scores, expectedRate)
			if err != nil {
				return 0, fmt.Errorf("split %d: %w", i, err)
			}

			losses = append(losses, loss)
		}

		return stat.Mean(losses, nil), nil
	}

	var bestCandidate Candidate

	bestLoss := math.Inf(1)

	// Helper function to send progress updates.
	sendProgress := func(phase string, trial int, c Candidate, loss float64, failed bool) {
		if config.ProgressChan == nil {
			return
		}

		update := ProgressUpdate{
			RunID:                runID,
			Phase:                phase,
			CurrentTrial:         trial,
			TotalTrials:          config.Trials,
			CurrentCandidate:     c.Clone(),
			CurrentLoss:          loss,
			Failed:               failed,
			CurrentBestCandidate: bestCandidate.Clone(),
			CurrentBestLoss:      bestLoss,
			Elapsed:              time.Since(start),
		}

		select {
		case config.ProgressChan <- update:
		default:
			// Skip update if channel is full.
		}
	}

	completed, failed := 0, 0

	var lastErr error

	for trial := 0; trial < config.Trials; trial++ {
		if time.Since(start) > config.Timeout {
			logger.Debug("tuning budget elapsed", slog.Int("trials", trial), slog.Duration("timeout", config.Timeout))

			break
		}

		if err := ctx.Err(); err != nil {
			lastErr = err

			break
		}

		candidate, phase := nextCandidate(trial)

		trialStart := time.Now()
		loss, err := evaluate(candidate)
		config.Metrics.observeTrial(config.ModelName, err != nil, time.Since(trialStart))

		if err != nil {
			failed++
			lastErr = err

			logger.Debug("trial failed", slog.Int("trial", trial+1), slog.Any("candidate", candidate), slog.String("error", err.Error()))

			sendProgress(phase, trial+1, candidate, math.NaN(), true)

			continue
		}

		completed++

		gp.Update(toPoint(candidate), loss)

		if loss < bestLoss {
			bestLoss = loss
			bestCandidate = candidate
			config.AcqParams.BestSoFar = loss
		}

		logger.Debug(
			"trial completed",
			slog.Int("trial", trial+1),
			slog.String("phase", phase),
			slog.Any("candidate", candidate),
			slog.Float64("loss", loss),
			slog.Float64("best_loss", bestLoss),
		)

		sendProgress(phase, trial+1, candidate, loss, false)
	}

	if bestCandidate == nil {
		err := fmt.Errorf(
			"%w: %d trials completed, %d failed within %s",
			ErrTuningExhausted, completed, failed, config.Timeout,
		)

		if lastErr != nil {
			err = errors.Join(err, lastErr)
		}

		return nil, err
	}

	config.Metrics.setBestLoss(config.ModelName, bestLoss)

	return &TuningResult{
		RunID:        runID,
		Candidate:    bestCandidate,
		Loss:         bestLoss,
		Trials:       completed,
		FailedTrials: failed,
		Elapsed:      time.Since(start),
	}, nil
}
