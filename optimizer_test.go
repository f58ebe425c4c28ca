package autotune

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSplits(t *testing.T) []Split {
	t.Helper()

	splits, err := SplitSeries(normalSeries(11, 400), 3, 3)
	require.NoError(t, err)

	return splits
}

func TestOptimize(t *testing.T) {
	config := testOptimizationConfig()
	config.Trials = 30

	result, err := Optimize(context.Background(), newFakeModel, fakeSpace(), testSplits(t), 0.05, config)
	require.NoError(t, err)

	// Flat candidates flag everything, the winner must not be one.
	assert.Less(t, result.Candidate["flat"], 0.5)
	assert.Less(t, result.Loss, 0.9)
	assert.Equal(t, 30, result.Trials)
	assert.Zero(t, result.FailedTrials)
	assert.NotEmpty(t, result.RunID)
}

func TestOptimizeCandidatesWithinBounds(t *testing.T) {
	config := testOptimizationConfig()
	config.Trials = 50

	space := SearchSpace{
		"flat":  {Min: 0, Max: 1},
		"gain":  {Min: 1, Max: 2},
		"shift": {Min: -5, Max: 5},
		"fixed": {Min: 3, Max: 3},
	}

	progressChan := make(chan ProgressUpdate, config.Trials)
	config.ProgressChan = progressChan

	_, err := Optimize(context.Background(), newFakeModel, space, testSplits(t), 0.05, config)
	require.NoError(t, err)

	close(progressChan)

	count := 0

	for update := range progressChan {
		count++

		for name, r := range space {
			v, ok := update.CurrentCandidate[name]
			require.True(t, ok, "missing %s", name)

			if r.IsConstant() {
				assert.Equal(t, r.Min, v)

				continue
			}

			assert.GreaterOrEqual(t, v, r.Min, name)
			assert.Less(t, v, r.Max, name)
		}
	}

	assert.Equal(t, config.Trials, count)
}

func TestOptimizeTrialCap(t *testing.T) {
	config := testOptimizationConfig()
	config.Trials = 7

	var constructed int32

	factory := func(params Candidate) (Model, error) {
		atomic.AddInt32(&constructed, 1)

		return newFakeModel(params)
	}

	splits := testSplits(t)

	result, err := Optimize(context.Background(), factory, fakeSpace(), splits, 0.05, config)
	require.NoError(t, err)

	assert.Equal(t, 7, result.Trials+result.FailedTrials)

	// One fresh model per split per trial.
	assert.Equal(t, int32(7*len(splits)), atomic.LoadInt32(&constructed))
}

func TestOptimizeTimeout(t *testing.T) {
	config := testOptimizationConfig()
	config.Trials = 1000
	config.Timeout = 50 * time.Millisecond

	const fitDelay = 10 * time.Millisecond

	factory := func(params Candidate) (Model, error) {
		return &fakeModel{delay: fitDelay}, nil
	}

	splits := testSplits(t)

	// Each trial fits once per split, so trial k starts no earlier than
	// (k-1)*perTrial. Only trials starting within the budget may run.
	perTrial := time.Duration(len(splits)) * fitDelay
	maxTrials := int(config.Timeout/perTrial) + 1

	start := time.Now()

	result, err := Optimize(context.Background(), factory, fakeSpace(), splits, 0.05, config)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.Trials, 1)
	assert.LessOrEqual(t, result.Trials, maxTrials)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestOptimizeKeepsEarliestBest(t *testing.T) {
	config := testOptimizationConfig()

	progressChan := make(chan ProgressUpdate, config.Trials)
	config.ProgressChan = progressChan

	// Every candidate is flat: all trials tie.
	factory := func(params Candidate) (Model, error) {
		return &fakeModel{Flat: true}, nil
	}

	result, err := Optimize(context.Background(), factory, fakeSpace(), testSplits(t), 0.05, config)
	require.NoError(t, err)

	close(progressChan)

	first := <-progressChan

	assert.Equal(t, first.CurrentCandidate, result.Candidate)
	assert.InDelta(t, 0.95, result.Loss, 1e-12)
}

func TestOptimizeReproducible(t *testing.T) {
	config := testOptimizationConfig()
	config.Seed = 42

	splits := testSplits(t)

	a, err := Optimize(context.Background(), newFakeModel, fakeSpace(), splits, 0.05, config)
	require.NoError(t, err)

	b, err := Optimize(context.Background(), newFakeModel, fakeSpace(), splits, 0.05, config)
	require.NoError(t, err)

	assert.Equal(t, a.Candidate, b.Candidate)
	assert.Equal(t, a.Loss, b.Loss)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestOptimizeFailedTrials(t *testing.T) {
	config := testOptimizationConfig()

	// Every other trial fails to build its model.
	var calls int32

	factory := func(params Candidate) (Model, error) {
		if atomic.AddInt32(&calls, 1)%2 == 0 {
			return nil, errors.New("boom")
		}

		return newFakeModel(params)
	}

	// A single split makes one factory call per trial.
	splits, err := SplitSeries(normalSeries(12, 200), 1, 3)
	require.NoError(t, err)

	result, err := Optimize(context.Background(), factory, fakeSpace(), splits, 0.05, config)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Trials)
	assert.Equal(t, 5, result.FailedTrials)
}

func TestOptimizeExhausted(t *testing.T) {
	config := testOptimizationConfig()

	factory := func(params Candidate) (Model, error) {
		return nil, errFakeFit
	}

	_, err := Optimize(context.Background(), factory, fakeSpace(), testSplits(t), 0.05, config)
	assert.ErrorIs(t, err, ErrTuningExhausted)
	assert.ErrorIs(t, err, errFakeFit)

	// No budget at all.
	config.Trials = 0

	_, err = Optimize(context.Background(), newFakeModel, fakeSpace(), testSplits(t), 0.05, config)
	assert.ErrorIs(t, err, ErrTuningExhausted)
}

func TestOptimizeCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Optimize(ctx, newFakeModel, fakeSpace(), testSplits(t), 0.05, testOptimizationConfig())
	assert.ErrorIs(t, err, ErrTuningExhausted)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptimizeValidation(t *testing.T) {
	ctx := context.Background()
	config := testOptimizationConfig()
	splits := testSplits(t)

	_, err := Optimize(ctx, nil, fakeSpace(), splits, 0.05, config)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Optimize(ctx, newFakeModel, SearchSpace{"flat": {Min: 2, Max: 1}}, splits, 0.05, config)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Optimize(ctx, newFakeModel, fakeSpace(), splits, 1, config)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Optimize(ctx, newFakeModel, fakeSpace(), nil, 0.05, config)
	assert.ErrorIs(t, err, ErrValidation)

	config.Trials = -1
	_, err = Optimize(ctx, newFakeModel, fakeSpace(), splits, 0.05, config)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestOptimizeGuidedSampler(t *testing.T) {
	for _, acq := range []AcquisitionFunc{UCB, ProbabilityOfImprovement, ExpectedImprovement, ThompsonSampling} {
		config := testOptimizationConfig()
		config.Trials = 20
		config.Sampler = SamplerGP
		config.InitialSamples = 3
		config.NumCandidates = 20
		config.AcquisitionFunc = acq

		// Create a bidirectional channel for progress updates.
		progressChan := make(chan ProgressUpdate, config.Trials)
		config.ProgressChan = progressChan

		result, err := Optimize(context.Background(), newFakeModel, fakeSpace(), testSplits(t), 0.05, config)
		require.NoError(t, err)

		close(progressChan)

		phases := map[string]int{}
		for update := range progressChan {
			phases[update.Phase]++
		}

		assert.Equal(t, 3, phases["InitialSampling"])
		assert.Equal(t, 17, phases["Guided"])
		assert.Less(t, result.Candidate["flat"], 0.5)
	}
}

func TestOptimizeProgressNeverBlocks(t *testing.T) {
	config := testOptimizationConfig()

	// Unbuffered and never read.
	config.ProgressChan = make(chan ProgressUpdate)

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, err := Optimize(context.Background(), newFakeModel, fakeSpace(), testSplits(t), 0.05, config)
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("optimize blocked on the progress channel")
	}
}

func TestOptimizeMetrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	config := testOptimizationConfig()
	config.Metrics = metrics

	result, err := Optimize(context.Background(), newFakeModel, fakeSpace(), testSplits(t), 0.05, config)
	require.NoError(t, err)

	assert.Equal(t, 10.0, testutil.ToFloat64(metrics.trials.WithLabelValues(fakeModelName, outcomeCompleted)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.trials.WithLabelValues(fakeModelName, outcomeFailed)))
	assert.Equal(t, result.Loss, testutil.ToFloat64(metrics.bestLoss.WithLabelValues(fakeModelName)))
}
