package autotune

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("zscore", 0.01)

	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.NSplits)
	assert.Equal(t, 3.0, cfg.TrainValRatio)
	assert.Equal(t, 128, cfg.Trials)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, "models_store", cfg.StorageDir)
	assert.Equal(t, BackendFile, cfg.StorageBackend)
	assert.Equal(t, SamplerRandom, cfg.Sampler)
	assert.Equal(t, 1, cfg.Parallelism)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no model", mutate: func(c *Config) { c.Model = "" }},
		{name: "zero rate", mutate: func(c *Config) { c.ExpectedRate = 0 }},
		{name: "rate of one", mutate: func(c *Config) { c.ExpectedRate = 1 }},
		{name: "no splits", mutate: func(c *Config) { c.NSplits = 0 }},
		{name: "zero ratio", mutate: func(c *Config) { c.TrainValRatio = 0 }},
		{name: "negative trials", mutate: func(c *Config) { c.Trials = -1 }},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }},
		{name: "no storage dir", mutate: func(c *Config) { c.StorageDir = "" }},
		{name: "unknown backend", mutate: func(c *Config) { c.StorageBackend = "s3" }},
		{name: "unknown sampler", mutate: func(c *Config) { c.Sampler = "grid" }},
		{name: "no parallelism", mutate: func(c *Config) { c.Parallelism = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("zscore", 0.01)
			tt.mutate(&cfg)

			assert.ErrorIs(t, cfg.Validate(), ErrValidation)
		})
	}

	// Zero trials is a valid, if useless, budget.
	cfg := DefaultConfig("zscore", 0.01)
	cfg.Trials = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autotune.yaml")

	content := `model: iqr
expected_rate: 0.02
trials: 64
timeout: 5s
storage_backend: badger
sampler: gp
parallelism: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "iqr", cfg.Model)
	assert.Equal(t, 0.02, cfg.ExpectedRate)
	assert.Equal(t, 64, cfg.Trials)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, BackendBadger, cfg.StorageBackend)
	assert.Equal(t, SamplerGP, cfg.Sampler)
	assert.Equal(t, 4, cfg.Parallelism)

	// Missing keys keep their defaults.
	assert.Equal(t, 3, cfg.NSplits)
	assert.Equal(t, "models_store", cfg.StorageDir)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trials: [not a number"), 0o600))

	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigApplyEnv(t *testing.T) {
	t.Setenv("AUTOTUNE_MODEL", "isolation_forest")
	t.Setenv("AUTOTUNE_EXPECTED_RATE", "0.03")
	t.Setenv("AUTOTUNE_TRIALS", "12")
	t.Setenv("AUTOTUNE_TIMEOUT", "1m")
	t.Setenv("AUTOTUNE_STORAGE_DIR", "/tmp/models")
	t.Setenv("AUTOTUNE_PARALLELISM", "not-a-number")

	cfg := DefaultConfig("zscore", 0.01).ApplyEnv()

	assert.Equal(t, "isolation_forest", cfg.Model)
	assert.Equal(t, 0.03, cfg.ExpectedRate)
	assert.Equal(t, 12, cfg.Trials)
	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.Equal(t, "/tmp/models", cfg.StorageDir)

	// Unparsable values are ignored.
	assert.Equal(t, 1, cfg.Parallelism)
}

func TestConfigOptimization(t *testing.T) {
	cfg := DefaultConfig("zscore", 0.01)
	cfg.Trials = 9
	cfg.Seed = 3
	cfg.Sampler = SamplerGP

	oc := cfg.optimization()

	assert.Equal(t, 9, oc.Trials)
	assert.Equal(t, cfg.Timeout, oc.Timeout)
	assert.Equal(t, int64(3), oc.Seed)
	assert.Equal(t, SamplerGP, oc.Sampler)
	assert.Equal(t, "zscore", oc.ModelName)
	assert.NotNil(t, oc.AcquisitionFunc)
}
