package analysis

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaussianCloud(n, width int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float64, n)
	for i := range out {
		row := make([]float64, width)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		out[i] = row
	}
	return out
}

func TestAveragePathLength(t *testing.T) {
	tests := []struct {
		n        int
		expected float64
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{3, 2*(0.6931471805599453+eulerGamma) - 4.0/3.0},
		{256, 10.2447719},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.expected, averagePathLength(tt.n), 1e-6, "n=%d", tt.n)
	}
}

func TestIsolationForest_Fit(t *testing.T) {
	matrix := gaussianCloud(300, 4, 1)

	forest := NewIsolationForest(DefaultForestConfig())
	require.NoError(t, forest.Fit(matrix))

	assert.True(t, forest.Fitted())
	assert.Len(t, forest.Trees, 100)
	assert.Equal(t, 256, forest.MaxSamples)
	assert.Equal(t, 4, forest.NFeatures)

	flagged := 0
	for _, row := range matrix {
		d, err := forest.DecisionFunction(row)
		require.NoError(t, err)
		if d < 0 {
			flagged++
		}
	}
	assert.InDelta(t, 30, flagged, 3, "about 10%% of the training rows fall below the offset")
}

func TestIsolationForest_SmallSampleUsesAllRows(t *testing.T) {
	forest := NewIsolationForest(DefaultForestConfig())
	require.NoError(t, forest.Fit(gaussianCloud(40, 3, 2)))
	assert.Equal(t, 40, forest.MaxSamples)
}

func TestIsolationForest_IsolatesFarPoint(t *testing.T) {
	matrix := gaussianCloud(200, 3, 3)
	forest := NewIsolationForest(DefaultForestConfig())
	require.NoError(t, forest.Fit(matrix))

	inlier, err := forest.ScoreSamples([]float64{0, 0, 0})
	require.NoError(t, err)
	outlier, err := forest.ScoreSamples([]float64{12, -12, 12})
	require.NoError(t, err)

	assert.Less(t, outlier, inlier)
	assert.GreaterOrEqual(t, inlier, -1.0)
	assert.LessOrEqual(t, inlier, 0.0)

	d, err := forest.DecisionFunction([]float64{12, -12, 12})
	require.NoError(t, err)
	assert.Less(t, d, 0.0)
}

func TestIsolationForest_Deterministic(t *testing.T) {
	matrix := gaussianCloud(150, 5, 4)

	a := NewIsolationForest(DefaultForestConfig())
	b := NewIsolationForest(DefaultForestConfig())
	require.NoError(t, a.Fit(matrix))
	require.NoError(t, b.Fit(matrix))

	assert.Equal(t, a.Offset, b.Offset)
	assert.Equal(t, a.Trees, b.Trees)

	cfg := DefaultForestConfig()
	cfg.RandomSeed = 7
	c := NewIsolationForest(cfg)
	require.NoError(t, c.Fit(matrix))
	assert.NotEqual(t, a.Trees, c.Trees)
}

func TestIsolationForest_DegenerateInputs(t *testing.T) {
	t.Run("single row", func(t *testing.T) {
		forest := NewIsolationForest(DefaultForestConfig())
		require.NoError(t, forest.Fit([][]float64{{1, 2, 3}}))

		d, err := forest.DecisionFunction([]float64{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t, 0.0, d)
	})

	t.Run("constant rows", func(t *testing.T) {
		matrix := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}
		forest := NewIsolationForest(DefaultForestConfig())
		require.NoError(t, forest.Fit(matrix))

		for _, tree := range forest.Trees {
			assert.Len(t, tree.Nodes, 1)
		}
		d, err := forest.DecisionFunction([]float64{1, 1})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d, 0.0)
	})

	t.Run("empty matrix", func(t *testing.T) {
		forest := NewIsolationForest(DefaultForestConfig())
		assert.ErrorIs(t, forest.Fit(nil), ErrEmptyMatrix)
	})

	t.Run("ragged matrix", func(t *testing.T) {
		forest := NewIsolationForest(DefaultForestConfig())
		assert.ErrorIs(t, forest.Fit([][]float64{{1, 2}, {1}}), ErrDimensionMismatch)
	})

	t.Run("invalid contamination", func(t *testing.T) {
		cfg := DefaultForestConfig()
		cfg.Contamination = 0.9
		assert.Error(t, NewIsolationForest(cfg).Fit([][]float64{{1}, {2}}))
	})
}

func TestIsolationForest_ScoreErrors(t *testing.T) {
	forest := NewIsolationForest(DefaultForestConfig())
	_, err := forest.ScoreSamples([]float64{1, 2})
	assert.ErrorIs(t, err, ErrModelNotFitted)

	require.NoError(t, forest.Fit(gaussianCloud(20, 2, 5)))
	_, err = forest.ScoreSamples([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
