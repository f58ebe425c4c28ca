package detector

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalesfsp/autotune"
)

func tunerConfig(t *testing.T, model string) autotune.Config {
	t.Helper()

	cfg := autotune.DefaultConfig(model, 0.01)
	cfg.Trials = 20
	cfg.Timeout = 5 * time.Second
	cfg.Seed = 1
	cfg.StorageDir = t.TempDir()

	return cfg
}

// topIndices returns the indices of the n highest scores.
func topIndices(scores []float64, n int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	return idx[:n]
}

func argmax(scores []float64) int {
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}

	return best
}

func TestTunedZScoreRanksOutliers(t *testing.T) {
	series := normalSeries(0, 1000)

	outliers := []int{120, 340, 505, 777, 901}
	for i, at := range outliers {
		if i%2 == 0 {
			series[at] = 8
		} else {
			series[at] = -8
		}
	}

	tuner, err := autotune.New(tunerConfig(t, ZScoreName), NewRegistry())
	require.NoError(t, err)

	require.NoError(t, tuner.Fit(context.Background(), series))

	scores, err := tuner.Predict(series)
	require.NoError(t, err)
	require.Len(t, scores, len(series))

	// Every outlier is in the top 1%.
	top := topIndices(scores, 10)
	for _, at := range outliers {
		assert.Contains(t, top, at)
	}

	result, ok := tuner.DefaultResult()
	require.True(t, ok)

	threshold := result.Candidate["z_threshold"]
	assert.GreaterOrEqual(t, threshold, 1.5)
	assert.Less(t, threshold, 5.0)
}

func TestTunedIsolationForestScoresOutliers(t *testing.T) {
	series := normalSeries(0, 2000)
	for i := 300; i < 305; i++ {
		series[i] = 7
	}

	for i := 1200; i < 1205; i++ {
		series[i] = -8
	}

	cfg := tunerConfig(t, IsolationForestName)
	cfg.Trials = 5

	tuner, err := autotune.New(cfg, NewRegistry())
	require.NoError(t, err)

	require.NoError(t, tuner.Fit(context.Background(), series))

	scores, err := tuner.Predict(series)
	require.NoError(t, err)

	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	median := sorted[len(sorted)/2]

	for _, at := range []int{300, 304, 1200, 1204} {
		assert.Greater(t, scores[at], median, "index %d", at)
	}
}

func TestTunedLabelSets(t *testing.T) {
	hostA := normalSeries(10, 1000)
	hostA[100] = 10

	hostB := normalSeries(11, 1000)
	hostB[800] = -9

	items := []autotune.LabeledSeries{
		{Labels: autotune.LabelSet{"host": "A"}, Values: hostA},
		{Labels: autotune.LabelSet{"host": "B"}, Values: hostB},
	}

	tuner, err := autotune.New(tunerConfig(t, ZScoreName), NewRegistry())
	require.NoError(t, err)

	require.NoError(t, tuner.FitBatch(context.Background(), items))

	results, err := tuner.PredictBatch(items)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 100, argmax(results[0]))
	assert.Equal(t, 800, argmax(results[1]))

	_, err = tuner.PredictBatch([]autotune.LabeledSeries{
		{Labels: autotune.LabelSet{"host": "C"}, Values: hostA},
	})
	assert.ErrorIs(t, err, autotune.ErrUnknownLabelSet)
}

func TestTunedPersistence(t *testing.T) {
	for _, backend := range []string{autotune.BackendFile, autotune.BackendBadger} {
		for _, model := range []string{ZScoreName, IQRName, IsolationForestName} {
			t.Run(backend+"/"+model, func(t *testing.T) {
				ctx := context.Background()

				cfg := tunerConfig(t, model)
				cfg.Trials = 3
				cfg.StorageBackend = backend

				items := []autotune.LabeledSeries{
					{Labels: autotune.LabelSet{"host": "A"}, Values: normalSeries(12, 400)},
					{Labels: autotune.LabelSet{"host": "B"}, Values: normalSeries(13, 400)},
				}

				trained, err := autotune.New(cfg, NewRegistry())
				require.NoError(t, err)
				require.NoError(t, trained.FitBatch(ctx, items))
				require.NoError(t, trained.Save(ctx))

				restored, err := autotune.New(cfg, NewRegistry())
				require.NoError(t, err)
				require.NoError(t, restored.Load(ctx))

				want, err := trained.PredictBatch(items)
				require.NoError(t, err)

				got, err := restored.PredictBatch(items)
				require.NoError(t, err)

				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("scores mismatch after load (-want +got):\n%s", diff)
				}
			})
		}
	}
}
