package autotune

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/thalesfsp/autotune/store"
)

// Storage backends.
const (
	// BackendFile stores one compressed file per model table entry.
	BackendFile = store.BackendFile

	// BackendBadger stores model table entries in a BadgerDB database.
	BackendBadger = store.BackendBadger
)

// configValidate is safe for concurrent use and caches struct metadata.
var configValidate = validator.New()

// Config holds the AutoTuner configuration.
type Config struct {
	// Model is the registered model type to tune, e.g. "zscore".
	Model string `json:"model" yaml:"model" validate:"required"`

	// ExpectedRate is the fraction of points expected to be anomalous.
	ExpectedRate float64 `json:"expected_rate" yaml:"expected_rate" validate:"gt=0,lt=1"`

	// NSplits is the number of cross-validation splits.
	NSplits int `json:"n_splits" yaml:"n_splits" validate:"gte=1"`

	// TrainValRatio is the train/validation length ratio of a split.
	TrainValRatio float64 `json:"train_val_ratio" yaml:"train_val_ratio" validate:"gt=0"`

	// Trials is the trial budget of every tuning run.
	Trials int `json:"trials" yaml:"trials" validate:"gte=0"`

	// Timeout is the wall-clock budget of every tuning run.
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`

	// StorageDir is where Save writes and Load reads the model table.
	StorageDir string `json:"storage_dir" yaml:"storage_dir" validate:"required"`

	// StorageBackend is "file" or "badger".
	StorageBackend string `json:"storage_backend" yaml:"storage_backend" validate:"oneof=file badger"`

	// Sampler is "random" or "gp".
	Sampler SamplerKind `json:"sampler" yaml:"sampler" validate:"oneof=random gp"`

	// Seed makes tuning reproducible. Zero seeds every run from the clock.
	Seed int64 `json:"seed" yaml:"seed"`

	// Parallelism bounds how many label sets FitBatch tunes concurrently.
	Parallelism int `json:"parallelism" yaml:"parallelism" validate:"gte=1"`
}

// DefaultConfig returns the default configuration for model tuned to
// expectedRate.
func DefaultConfig(model string, expectedRate float64) Config {
	return Config{
		Model:          model,
		ExpectedRate:   expectedRate,
		NSplits:        3,
		TrainValRatio:  3,
		Trials:         128,
		Timeout:        10 * time.Second,
		StorageDir:     "models_store",
		StorageBackend: BackendFile,
		Sampler:        SamplerRandom,
		Parallelism:    1,
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: invalid config: %v", ErrValidation, err)
	}

	return nil
}

// LoadConfig reads a YAML configuration file. Fields missing from the file
// keep their DefaultConfig values.
//
// Example file:
//
//	model: iqr
//	expected_rate: 0.01
//	trials: 64
//	timeout: 5s
//	storage_backend: badger
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig("", 0)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from AUTOTUNE_* environment variables and returns
// the result. Unset or unparsable variables leave the field unchanged.
func (c Config) ApplyEnv() Config {
	c.Model = getEnv("AUTOTUNE_MODEL", c.Model)
	c.ExpectedRate = getEnvFloat("AUTOTUNE_EXPECTED_RATE", c.ExpectedRate)
	c.NSplits = getEnvInt("AUTOTUNE_N_SPLITS", c.NSplits)
	c.TrainValRatio = getEnvFloat("AUTOTUNE_TRAIN_VAL_RATIO", c.TrainValRatio)
	c.Trials = getEnvInt("AUTOTUNE_TRIALS", c.Trials)
	c.Timeout = getEnvDuration("AUTOTUNE_TIMEOUT", c.Timeout)
	c.StorageDir = getEnv("AUTOTUNE_STORAGE_DIR", c.StorageDir)
	c.StorageBackend = getEnv("AUTOTUNE_STORAGE_BACKEND", c.StorageBackend)
	c.Sampler = SamplerKind(getEnv("AUTOTUNE_SAMPLER", string(c.Sampler)))
	c.Parallelism = getEnvInt("AUTOTUNE_PARALLELISM", c.Parallelism)

	return c
}

// optimization returns the per-run optimizer settings of the configuration.
func (c Config) optimization() OptimizationConfig {
	oc := DefaultOptimizationConfig()

	oc.Trials = c.Trials
	oc.Timeout = c.Timeout
	oc.Seed = c.Seed
	oc.Sampler = c.Sampler
	oc.ModelName = c.Model

	return oc
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}

	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}

	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
	}

	return defaultValue
}
