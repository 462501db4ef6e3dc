package analysis

import (
	"fmt"
	"math"
	"math/rand"
)

const eulerGamma = 0.5772156649

// ForestConfig mirrors the knobs of a classic isolation forest.
type ForestConfig struct {
	NEstimators int
	// MaxSamples caps the per-tree subsample; the effective value is
	// min(MaxSamples, n_rows).
	MaxSamples    int
	Contamination float64
	RandomSeed    int64
}

// DefaultForestConfig returns the production settings: 100 trees, 256-row
// subsamples, 10% contamination, seed 42.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NEstimators:   100,
		MaxSamples:    256,
		Contamination: 0.1,
		RandomSeed:    42,
	}
}

type isoNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Size      int     `json:"n,omitempty"`
}

type isoTree struct {
	Nodes []isoNode `json:"nodes"`
}

// IsolationForest isolates points by random axis-aligned splits. Points that
// need fewer splits to isolate score lower (more anomalous).
type IsolationForest struct {
	NEstimators   int       `json:"n_estimators"`
	MaxSamples    int       `json:"max_samples"`
	Contamination float64   `json:"contamination"`
	RandomSeed    int64     `json:"random_seed"`
	NFeatures     int       `json:"n_features"`
	Offset        float64   `json:"offset"`
	Trees         []isoTree `json:"trees"`
}

func NewIsolationForest(cfg ForestConfig) *IsolationForest {
	return &IsolationForest{
		NEstimators:   cfg.NEstimators,
		MaxSamples:    cfg.MaxSamples,
		Contamination: cfg.Contamination,
		RandomSeed:    cfg.RandomSeed,
	}
}

func (f *IsolationForest) Fitted() bool {
	return f != nil && f.NFeatures > 0 && len(f.Trees) > 0
}

// Fit grows NEstimators trees on subsamples drawn without replacement and sets
// Offset so that Contamination of the training rows fall below zero.
func (f *IsolationForest) Fit(matrix [][]float64) error {
	width, err := matrixWidth(matrix)
	if err != nil {
		return err
	}
	if f.NEstimators <= 0 {
		return fmt.Errorf("n_estimators must be positive, got %d", f.NEstimators)
	}
	if f.Contamination <= 0 || f.Contamination > 0.5 {
		return fmt.Errorf("contamination must be in (0, 0.5], got %g", f.Contamination)
	}

	n := len(matrix)
	sampleCap := f.MaxSamples
	if sampleCap <= 0 || sampleCap > 256 {
		sampleCap = 256
	}
	f.MaxSamples = min(sampleCap, n)
	f.NFeatures = width

	heightLimit := int(math.Ceil(math.Log2(float64(max(f.MaxSamples, 2)))))
	rng := rand.New(rand.NewSource(f.RandomSeed))

	f.Trees = make([]isoTree, f.NEstimators)
	for t := range f.Trees {
		treeRng := rand.New(rand.NewSource(rng.Int63()))
		idx := treeRng.Perm(n)[:f.MaxSamples]
		f.Trees[t] = growTree(matrix, idx, width, heightLimit, treeRng)
	}

	scores := make([]float64, n)
	for i, row := range matrix {
		scores[i] = f.scoreSamples(row)
	}
	f.Offset = percentile(scores, 100*f.Contamination)
	return nil
}

// ScoreSamples returns -2^(-E[h(x)]/c(max_samples)); lower is more abnormal.
func (f *IsolationForest) ScoreSamples(x []float64) (float64, error) {
	if !f.Fitted() {
		return 0, ErrModelNotFitted
	}
	if len(x) != f.NFeatures {
		return 0, fmt.Errorf("%w: got %d features, forest expects %d", ErrDimensionMismatch, len(x), f.NFeatures)
	}
	return f.scoreSamples(x), nil
}

// DecisionFunction is ScoreSamples shifted by Offset; negative means outlier.
func (f *IsolationForest) DecisionFunction(x []float64) (float64, error) {
	s, err := f.ScoreSamples(x)
	if err != nil {
		return 0, err
	}
	return s - f.Offset, nil
}

func (f *IsolationForest) scoreSamples(x []float64) float64 {
	total := 0.0
	for _, t := range f.Trees {
		total += t.pathLength(x)
	}
	meanDepth := total / float64(len(f.Trees))

	ratio := 1.0
	if c := averagePathLength(f.MaxSamples); c > 0 {
		ratio = meanDepth / c
	}
	return -math.Pow(2, -ratio)
}

// averagePathLength is c(n), the mean unsuccessful-search depth of a BST with n nodes.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

func (t isoTree) pathLength(x []float64) float64 {
	node, depth := 0, 0
	for {
		nd := t.Nodes[node]
		if nd.Feature < 0 {
			return float64(depth) + averagePathLength(nd.Size)
		}
		if x[nd.Feature] <= nd.Threshold {
			node = nd.Left
		} else {
			node = nd.Right
		}
		depth++
	}
}

type growItem struct {
	node  int
	idx   []int
	depth int
}

func growTree(matrix [][]float64, idx []int, width, heightLimit int, rng *rand.Rand) isoTree {
	nodes := []isoNode{{}}
	stack := []growItem{{node: 0, idx: idx, depth: 0}}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if item.depth >= heightLimit || len(item.idx) <= 1 {
			nodes[item.node] = isoNode{Feature: -1, Size: len(item.idx)}
			continue
		}

		feature, lo, hi, ok := pickSplitFeature(matrix, item.idx, width, rng)
		if !ok {
			nodes[item.node] = isoNode{Feature: -1, Size: len(item.idx)}
			continue
		}

		threshold := lo + rng.Float64()*(hi-lo)
		if threshold >= hi {
			threshold = lo
		}

		var left, right []int
		for _, i := range item.idx {
			if matrix[i][feature] <= threshold {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}

		leftID := len(nodes)
		nodes = append(nodes, isoNode{}, isoNode{})
		nodes[item.node] = isoNode{Feature: feature, Threshold: threshold, Left: leftID, Right: leftID + 1}

		stack = append(stack,
			growItem{node: leftID + 1, idx: right, depth: item.depth + 1},
			growItem{node: leftID, idx: left, depth: item.depth + 1},
		)
	}

	return isoTree{Nodes: nodes}
}

// pickSplitFeature draws features in random order until one is not constant
// over idx. ok is false when every feature is constant.
func pickSplitFeature(matrix [][]float64, idx []int, width int, rng *rand.Rand) (feature int, lo, hi float64, ok bool) {
	for _, j := range rng.Perm(width) {
		lo, hi = matrix[idx[0]][j], matrix[idx[0]][j]
		for _, i := range idx[1:] {
			v := matrix[i][j]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi > lo {
			return j, lo, hi, true
		}
	}
	return 0, 0, 0, false
}
