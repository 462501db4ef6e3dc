package analysis

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrModelNotFitted    = errors.New("model is not fitted")
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
	ErrEmptyMatrix       = errors.New("training matrix is empty")
)

// StandardScaler centres each column on its mean and divides by its
// population standard deviation. Constant columns keep scale 1.
type StandardScaler struct {
	Mean      []float64 `json:"mean"`
	Scale     []float64 `json:"scale"`
	NFeatures int       `json:"n_features"`
	NSamples  int       `json:"n_samples_seen"`
}

func (s *StandardScaler) Fitted() bool {
	return s != nil && s.NFeatures > 0 && len(s.Mean) == s.NFeatures && len(s.Scale) == s.NFeatures
}

// Fit learns per-column mean and scale.
func (s *StandardScaler) Fit(matrix [][]float64) error {
	width, err := matrixWidth(matrix)
	if err != nil {
		return err
	}

	s.NFeatures = width
	s.NSamples = len(matrix)
	s.Mean = make([]float64, width)
	s.Scale = make([]float64, width)

	col := make([]float64, len(matrix))
	for j := 0; j < width; j++ {
		for i, row := range matrix {
			col[i] = row[j]
		}
		s.Mean[j] = mean(col)
		sd := stdDev(col)
		if sd == 0 || !finite(sd) {
			sd = 1
		}
		s.Scale[j] = sd
	}
	return nil
}

// Transform scales a single row.
func (s *StandardScaler) Transform(row []float64) ([]float64, error) {
	if !s.Fitted() {
		return nil, ErrModelNotFitted
	}
	if len(row) != s.NFeatures {
		return nil, fmt.Errorf("%w: got %d features, scaler expects %d", ErrDimensionMismatch, len(row), s.NFeatures)
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// TransformMatrix scales every row.
func (s *StandardScaler) TransformMatrix(matrix [][]float64) ([][]float64, error) {
	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}

func matrixWidth(matrix [][]float64) (int, error) {
	if len(matrix) == 0 {
		return 0, ErrEmptyMatrix
	}
	width := len(matrix[0])
	if width == 0 {
		return 0, fmt.Errorf("%w: rows have no columns", ErrDimensionMismatch)
	}
	for i, row := range matrix {
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrDimensionMismatch, i, len(row), width)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("row %d contains a non-finite value", i)
			}
		}
	}
	return width, nil
}
