package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// isFinite checks if a float64 value is finite (not NaN or Inf)
func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name     string
		input    []float64
		expected float64
	}{
		{
			name:     "median of empty slice",
			input:    []float64{},
			expected: 0,
		},
		{
			name:     "median of single element",
			input:    []float64{5.0},
			expected: 5.0,
		},
		{
			name:     "median of odd length slice",
			input:    []float64{1, 3, 5, 7, 9},
			expected: 5.0,
		},
		{
			name:     "median of even length slice",
			input:    []float64{1, 2, 3, 4},
			expected: 2.5,
		},
		{
			name:     "median of unsorted slice",
			input:    []float64{9, 1, 7, 3, 5},
			expected: 5.0,
		},
		{
			name:     "median of slice with negative numbers",
			input:    []float64{-5, -1, 0, 3, 7},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, median(tt.input))
		})
	}
}

func TestMedianDoesNotMutateInput(t *testing.T) {
	input := []float64{3, 1, 2}
	median(input)
	assert.Equal(t, []float64{3, 1, 2}, input)
}

func TestMeanAndStdDev(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		mean float64
		std  float64
	}{
		{name: "empty", in: nil, mean: 0, std: 0},
		{name: "constant", in: []float64{4, 4, 4}, mean: 4, std: 0},
		{name: "population deviation", in: []float64{2, 4, 4, 4, 5, 5, 7, 9}, mean: 5, std: 2},
		{name: "two points", in: []float64{-1, 1}, mean: 0, std: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.mean, mean(tt.in), 1e-12)
			assert.InDelta(t, tt.std, stdDev(tt.in), 1e-12)
		})
	}
}

func TestPercentile(t *testing.T) {
	data := []float64{10, 1, 7, 3, 5, 9, 2, 8, 4, 6}

	tests := []struct {
		name     string
		q        float64
		expected float64
	}{
		{name: "minimum", q: 0, expected: 1},
		{name: "maximum", q: 100, expected: 10},
		{name: "median interpolates", q: 50, expected: 5.5},
		{name: "tenth percentile interpolates", q: 10, expected: 1.9},
		{name: "clamps below zero", q: -5, expected: 1},
		{name: "clamps above hundred", q: 150, expected: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, percentile(data, tt.q), 1e-12)
		})
	}

	assert.Equal(t, 0.0, percentile(nil, 50))
}

func TestClip(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		expected float64
	}{
		{name: "within range", x: 0.4, expected: 0.4},
		{name: "below range", x: -2, expected: 0},
		{name: "above range", x: 3, expected: 1},
		{name: "at bound", x: 1, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, clip(tt.x, 0, 1))
		})
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 12.35, round2(12.3456))
	assert.Equal(t, 10.0, round2(10))
}
