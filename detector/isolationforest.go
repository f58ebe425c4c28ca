package detector

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/thalesfsp/autotune"
)

// IsolationForestName is the registry name of the isolation forest detector.
const IsolationForestName = "isolation_forest"

const (
	// maxSubsample caps the points each tree is grown on.
	maxSubsample = 256

	// eulerGamma is the Euler-Mascheroni constant.
	eulerGamma = 0.5772156649015329

	// anomalyScore is the score above which Detect flags a point. Scores
	// near 1 isolate quickly, scores well below 0.5 are normal.
	anomalyScore = 0.5
)

// itreeNode is one node of an isolation tree, stored flat. Leaves have
// Left == Right == -1.
type itreeNode struct {
	Split float64 `json:"s"`
	Left  int     `json:"l"`
	Right int     `json:"r"`
	Size  int     `json:"n"`
}

type itree []itreeNode

// IsolationForest scores a point by how few random splits isolate it. Scores
// lie in (0, 1]; higher is more anomalous.
type IsolationForest struct {
	estimators  int
	randomState int64
	subsample   int
	trees       []itree
}

type isolationForestState struct {
	Estimators  int     `json:"n_estimators"`
	RandomState int64   `json:"random_state"`
	Subsample   int     `json:"subsample"`
	Trees       []itree `json:"trees"`
}

// NewIsolationForest creates an unfitted forest of estimators trees grown
// from a generator seeded with randomState.
func NewIsolationForest(estimators int, randomState int64) (*IsolationForest, error) {
	if estimators < 1 {
		return nil, fmt.Errorf("%w: n_estimators must be >= 1, got %d", autotune.ErrValidation, estimators)
	}

	return &IsolationForest{estimators: estimators, randomState: randomState}, nil
}

func newIsolationForestModel(params autotune.Candidate) (autotune.Model, error) {
	estimators := params.Get("n_estimators", 100)
	randomState := params.Get("random_state", 0)

	if math.IsNaN(estimators) || math.IsNaN(randomState) {
		return nil, fmt.Errorf("%w: isolation forest parameters must be numbers", autotune.ErrValidation)
	}

	return NewIsolationForest(int(math.Round(estimators)), int64(math.Round(randomState)))
}

// Fit grows the forest on random subsamples of train.
func (f *IsolationForest) Fit(train []float64) error {
	if err := checkSeries(train, 2); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(f.randomState))

	f.subsample = min(maxSubsample, len(train))
	maxDepth := int(math.Ceil(math.Log2(float64(f.subsample))))

	f.trees = make([]itree, f.estimators)

	sample := make([]float64, f.subsample)

	perm := make([]int, len(train))
	for i := range perm {
		perm[i] = i
	}

	for t := range f.trees {
		// Partial Fisher-Yates: only the first subsample slots are drawn.
		for i := range sample {
			j := i + rng.Intn(len(perm)-i)
			perm[i], perm[j] = perm[j], perm[i]
			sample[i] = train[perm[i]]
		}

		var tree itree
		grow(&tree, sample, 0, maxDepth, rng)
		f.trees[t] = tree
	}

	return nil
}

// grow appends the subtree isolating xs to tree and returns its root index.
// xs is reordered in place.
func grow(tree *itree, xs []float64, depth, maxDepth int, rng *rand.Rand) int {
	idx := len(*tree)
	*tree = append(*tree, itreeNode{Left: -1, Right: -1, Size: len(xs)})

	if depth >= maxDepth || len(xs) <= 1 {
		return idx
	}

	lo, hi := floats.Min(xs), floats.Max(xs)
	if lo == hi {
		return idx
	}

	split := lo + rng.Float64()*(hi-lo)

	// Partition: values below split first.
	k := 0
	for i, x := range xs {
		if x < split {
			xs[i], xs[k] = xs[k], xs[i]
			k++
		}
	}

	left := grow(tree, xs[:k], depth+1, maxDepth, rng)
	right := grow(tree, xs[k:], depth+1, maxDepth, rng)

	(*tree)[idx].Split = split
	(*tree)[idx].Left = left
	(*tree)[idx].Right = right

	return idx
}

// validate checks the preorder layout grow emits: every node is a leaf or
// has both children strictly after it, so traversal always terminates.
func (t itree) validate() error {
	if len(t) == 0 {
		return errors.New("empty tree")
	}

	for idx, node := range t {
		if node.Left == -1 && node.Right == -1 {
			continue
		}

		if node.Left <= idx || node.Left >= len(t) || node.Right <= idx || node.Right >= len(t) {
			return fmt.Errorf("node %d has invalid children (%d, %d)", idx, node.Left, node.Right)
		}
	}

	return nil
}

// pathLength returns the isolation depth of x, adjusted by the expected depth
// of the unresolved points left in its leaf.
func (t itree) pathLength(x float64) float64 {
	depth := 0
	node := 0

	for t[node].Left >= 0 {
		if x < t[node].Split {
			node = t[node].Left
		} else {
			node = t[node].Right
		}

		depth++
	}

	return float64(depth) + averagePathLength(t[node].Size)
}

// averagePathLength is the average depth of an unsuccessful search in a
// binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}

	m := float64(n - 1)

	return 2*(math.Log(m)+eulerGamma) - 2*m/float64(n)
}

// Score implements autotune.Model.
func (f *IsolationForest) Score(series []float64) ([]float64, error) {
	if len(f.trees) == 0 {
		return nil, autotune.ErrNotFitted
	}

	norm := averagePathLength(f.subsample)
	scores := make([]float64, len(series))

	for i, x := range series {
		total := 0.0
		for _, tree := range f.trees {
			total += tree.pathLength(x)
		}

		mean := total / float64(len(f.trees))
		scores[i] = math.Exp2(-mean / norm)
	}

	return scores, nil
}

// Detect flags every point scoring above 0.5.
func (f *IsolationForest) Detect(series []float64) ([]bool, error) {
	scores, err := f.Score(series)
	if err != nil {
		return nil, err
	}

	return above(scores, anomalyScore), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (f *IsolationForest) MarshalBinary() ([]byte, error) {
	if len(f.trees) == 0 {
		return nil, autotune.ErrNotFitted
	}

	return json.Marshal(isolationForestState{
		Estimators:  f.estimators,
		RandomState: f.randomState,
		Subsample:   f.subsample,
		Trees:       f.trees,
	})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (f *IsolationForest) UnmarshalBinary(data []byte) error {
	var state isolationForestState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode isolation forest state: %w", err)
	}

	if len(state.Trees) == 0 || state.Subsample < 2 {
		return fmt.Errorf("%w: isolation forest state holds no usable trees", autotune.ErrValidation)
	}

	for i, tree := range state.Trees {
		if err := tree.validate(); err != nil {
			return fmt.Errorf("%w: isolation forest tree %d: %w", autotune.ErrValidation, i, err)
		}
	}

	f.estimators = state.Estimators
	f.randomState = state.RandomState
	f.subsample = state.Subsample
	f.trees = state.Trees

	return nil
}
