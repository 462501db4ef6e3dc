package analysis

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Model is an immutable fitted scaler + forest pair. Once published it is only
// ever replaced wholesale, never mutated.
type Model struct {
	ID           string
	CreatedAt    time.Time
	FeatureNames []string
	Scaler       *StandardScaler
	Forest       *IsolationForest
}

// FitModel standardizes matrix and fits a forest on the scaled rows.
func FitModel(matrix [][]float64, cfg ForestConfig) (*Model, error) {
	scaler := &StandardScaler{}
	if err := scaler.Fit(matrix); err != nil {
		return nil, fmt.Errorf("failed to fit scaler: %w", err)
	}

	scaled, err := scaler.TransformMatrix(matrix)
	if err != nil {
		return nil, fmt.Errorf("failed to scale training matrix: %w", err)
	}

	forest := NewIsolationForest(cfg)
	if err := forest.Fit(scaled); err != nil {
		return nil, fmt.Errorf("failed to fit isolation forest: %w", err)
	}

	return &Model{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		FeatureNames: append([]string(nil), FeatureNames...),
		Scaler:       scaler,
		Forest:       forest,
	}, nil
}

func (m *Model) Fitted() bool {
	return m != nil && m.Scaler.Fitted() && m.Forest.Fitted()
}

// Score returns the decision-function value (higher is more normal) and
// whether the vector is an outlier.
func (m *Model) Score(vector []float64) (float64, bool, error) {
	if !m.Fitted() {
		return 0, false, ErrModelNotFitted
	}

	scaled, err := m.Scaler.Transform(vector)
	if err != nil {
		return 0, false, err
	}

	raw, err := m.Forest.DecisionFunction(scaled)
	if err != nil {
		return 0, false, err
	}
	return raw, raw < 0, nil
}

// NormalizeScore maps a raw decision value onto [0,1] as (raw+1)/2. Raw values
// outside [-1,1] saturate at the bounds.
func NormalizeScore(raw float64) float64 {
	if !finite(raw) {
		return 0.5
	}
	return clip((raw+1)/2, 0, 1)
}
