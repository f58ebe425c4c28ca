package autotune

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/thalesfsp/autotune/store"
)

// entry is one model table slot.
type entry struct {
	labels  LabelSet
	labeled bool
	model   Model
	params  Candidate
	result  *TuningResult
}

// AutoTuner tunes and owns one fitted model per label set.
//
// The zero value is not usable, build one with New. All methods are safe for
// concurrent use. The model table is guarded by a RWMutex and every fitted
// model is committed with a single exclusive write. Save and Load are
// serialized against each other since the storage location admits one
// opener at a time.
type AutoTuner struct {
	cfg      Config
	def      ModelDefinition
	logger   *slog.Logger
	metrics  *Metrics
	progress chan<- ProgressUpdate
	store    store.Store

	// persistMu is held across open, read or write, and close of storage.
	persistMu sync.Mutex

	mu     sync.RWMutex
	models map[string]*entry
}

// Option configures an AutoTuner.
type Option func(*AutoTuner)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *AutoTuner) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics records tuning metrics.
func WithMetrics(m *Metrics) Option {
	return func(t *AutoTuner) {
		t.metrics = m
	}
}

// WithProgress forwards per-trial progress updates. Sends never block.
func WithProgress(ch chan<- ProgressUpdate) Option {
	return func(t *AutoTuner) {
		t.progress = ch
	}
}

// WithStore persists the model table to s instead of opening the configured
// storage location on every Save and Load. The AutoTuner never closes s.
func WithStore(s store.Store) Option {
	return func(t *AutoTuner) {
		t.store = s
	}
}

// New creates an AutoTuner for cfg.Model, looked up in registry.
//
// Usage example:
//
//	registry := detector.NewRegistry()
//	tuner, err := autotune.New(autotune.DefaultConfig("zscore", 0.01), registry)
//	if err != nil {
//	    return err
//	}
//
//	if err := tuner.Fit(ctx, series); err != nil {
//	    return err
//	}
//
//	scores, err := tuner.Predict(series)
func New(cfg Config, registry *Registry, opts ...Option) (*AutoTuner, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrValidation)
	}

	def, err := registry.Lookup(cfg.Model)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &AutoTuner{
		cfg:    cfg,
		def:    def,
		logger: slog.Default(),
		models: make(map[string]*entry),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// Config returns the configuration of the tuner.
func (t *AutoTuner) Config() Config {
	return t.cfg
}

//////
// Fitting.
//////

// Fit tunes and fits one model on series and stores it as the single-series
// model, replacing any previous one.
func (t *AutoTuner) Fit(ctx context.Context, series []float64) error {
	e, err := t.tune(ctx, nil, false, series)
	if err != nil {
		return err
	}

	t.commit(e)

	return nil
}

// FitBatch groups items by label set, concatenates every group's series in
// arrival order and tunes and fits one model per group.
//
// Up to Config.Parallelism groups are tuned concurrently. Each group's model
// is stored as soon as it is fitted: when a group fails, the groups already
// fitted keep their new models and the error names the failing label set.
func (t *AutoTuner) FitBatch(ctx context.Context, items []LabeledSeries) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: empty batch", ErrValidation)
	}

	groups := GroupByLabelSet(items)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Parallelism)

	for _, group := range groups {
		group := group
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			e, err := t.tune(gctx, group.Labels, true, group.merge())
			if err != nil {
				return &LabelSetError{Labels: group.Labels, Err: err}
			}

			t.commit(e)

			return nil
		})
	}

	return g.Wait()
}

// tune runs split, optimize and the final fit for one series.
func (t *AutoTuner) tune(ctx context.Context, labels LabelSet, labeled bool, series []float64) (e *entry, err error) {
	runID := uuid.NewString()

	base := t.logger
	if labeled {
		base = base.With(slog.String("labels", labels.String()))
	}

	logger := base.With(slog.String("run_id", runID), slog.String("model", t.cfg.Model))

	defer func() {
		t.metrics.observeFit(t.cfg.Model, err)
	}()

	if len(series) == 0 {
		return nil, fmt.Errorf("%w: empty series", ErrValidation)
	}

	splits, err := SplitSeries(series, t.cfg.NSplits, t.cfg.TrainValRatio)
	if err != nil {
		return nil, err
	}

	oc := t.cfg.optimization()
	oc.RunID = runID
	oc.Logger = base
	oc.Metrics = t.metrics
	oc.ProgressChan = t.progress

	result, err := Optimize(ctx, t.def.New, t.def.SearchSpace, splits, t.cfg.ExpectedRate, oc)
	if err != nil {
		logger.Warn("tuning failed", slog.String("error", err.Error()))

		return nil, err
	}

	model, err := t.def.New(result.Candidate.Clone())
	if err != nil {
		return nil, fmt.Errorf("construct tuned model: %w", err)
	}

	if err := model.Fit(series); err != nil {
		return nil, fmt.Errorf("fit tuned model: %w", err)
	}

	logger.Info(
		"model tuned",
		slog.Int("points", len(series)),
		slog.Any("params", result.Candidate),
		slog.Float64("loss", result.Loss),
		slog.Int("trials", result.Trials),
		slog.Int("failed_trials", result.FailedTrials),
		slog.Duration("elapsed", result.Elapsed),
	)

	return &entry{
		labels:  labels,
		labeled: labeled,
		model:   model,
		params:  result.Candidate,
		result:  result,
	}, nil
}

// commit stores e, replacing the previous model of its label set.
func (t *AutoTuner) commit(e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.models[tableKey(e.labels, e.labeled)] = e
}

//////
// Prediction.
//////

// Predict scores series with the single-series model.
func (t *AutoTuner) Predict(series []float64) ([]float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.models) == 0 {
		return nil, ErrNotFitted
	}

	e, ok := t.models[sentinelKey]
	if !ok {
		return nil, fmt.Errorf("%w: no single-series model, fit with Fit or predict with PredictBatch", ErrNotFitted)
	}

	return e.model.Score(series)
}

// PredictBatch scores every item with the model of its label set. The result
// has one score slice per item, in input order.
func (t *AutoTuner) PredictBatch(items []LabeledSeries) ([][]float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.models) == 0 {
		return nil, ErrNotFitted
	}

	results := make([][]float64, len(items))

	for i, item := range items {
		e, ok := t.models[tableKey(item.Labels, true)]
		if !ok {
			return nil, &LabelSetError{Labels: item.Labels, Err: ErrUnknownLabelSet}
		}

		scores, err := e.model.Score(item.Values)
		if err != nil {
			return nil, &LabelSetError{Labels: item.Labels, Err: fmt.Errorf("item %d: %w", i, err)}
		}

		results[i] = scores
	}

	return results, nil
}

//////
// Introspection.
//////

// Len returns the number of fitted models.
func (t *AutoTuner) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.models)
}

// LabelSets returns the label sets with a fitted model, sorted by their
// canonical form. The single-series model is not included.
func (t *AutoTuner) LabelSets() []LabelSet {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, len(t.models))
	for key, e := range t.models {
		if e.labeled {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	out := make([]LabelSet, len(keys))
	for i, key := range keys {
		out[i] = t.models[key].labels.Clone()
	}

	return out
}

// Result returns the tuning result of the model fitted for labels.
func (t *AutoTuner) Result(labels LabelSet) (*TuningResult, bool) {
	return t.result(tableKey(labels, true))
}

// DefaultResult returns the tuning result of the single-series model.
func (t *AutoTuner) DefaultResult() (*TuningResult, bool) {
	return t.result(sentinelKey)
}

func (t *AutoTuner) result(key string) (*TuningResult, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.models[key]
	if !ok || e.result == nil {
		return nil, false
	}

	r := *e.result
	r.Candidate = r.Candidate.Clone()

	return &r, true
}

//////
// Persistence.
//////

// storeConfig returns the storage configuration derived from the tuner
// configuration.
func (t *AutoTuner) storeConfig() store.Config {
	cfg := store.DefaultConfig(t.cfg.StorageDir)
	cfg.Backend = t.cfg.StorageBackend
	cfg.Logger = t.logger

	return cfg
}

// Save persists every model of the table, one storage location per label set,
// and removes locations left over from earlier saves.
func (t *AutoTuner) Save(ctx context.Context) error {
	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	t.mu.RLock()
	entries := make([]*entry, 0, len(t.models))
	for _, e := range t.models {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	if len(entries) == 0 {
		return ErrNotFitted
	}

	s := t.store
	if s == nil {
		opened, err := store.Open(t.storeConfig())
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer opened.Close()

		s = opened
	}

	written := make(map[string]string, len(entries))

	for _, e := range entries {
		location := locationFor(e.labels, e.labeled)

		if other, dup := written[location]; dup {
			return fmt.Errorf("label sets %s and %s map to the same storage location %s", other, e.labels, location)
		}

		data, err := encodeEntry(t.cfg.Model, e)
		if err != nil {
			return &LabelSetError{Labels: e.labels, Err: err}
		}

		if err := s.Put(ctx, location, data); err != nil {
			return fmt.Errorf("persist %s: %w", location, err)
		}

		written[location] = e.labels.String()
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if _, ok := written[key]; ok {
			continue
		}

		if err := s.Delete(ctx, key); err != nil {
			return fmt.Errorf("prune %s: %w", key, err)
		}
	}

	t.logger.Info(
		"models saved",
		slog.String("model", t.cfg.Model),
		slog.Int("models", len(entries)),
		slog.String("storage", t.cfg.StorageDir),
	)

	return nil
}

// Load replaces the model table with the models persisted at the configured
// storage location.
func (t *AutoTuner) Load(ctx context.Context) error {
	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	s := t.store
	if s == nil {
		opened, err := store.OpenExisting(t.storeConfig())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrStorageNotFound, t.cfg.StorageDir)
			}

			return fmt.Errorf("open storage: %w", err)
		}
		defer opened.Close()

		s = opened
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}

	models := make(map[string]*entry, len(keys))

	for _, key := range keys {
		data, err := s.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("restore %s: %w", key, err)
		}

		e, err := decodeEntry(t.def, data)
		if err != nil {
			return fmt.Errorf("restore %s: %w", key, err)
		}

		models[tableKey(e.labels, e.labeled)] = e
	}

	if len(models) == 0 {
		t.logger.Warn("storage holds no models", slog.String("storage", t.cfg.StorageDir))
	}

	t.mu.Lock()
	t.models = models
	t.mu.Unlock()

	t.logger.Info(
		"models loaded",
		slog.String("model", t.cfg.Model),
		slog.Int("models", len(models)),
		slog.String("storage", t.cfg.StorageDir),
	)

	return nil
}
