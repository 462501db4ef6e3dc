package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_FeatureImportance(t *testing.T) {
	source := &fakeBidSource{records: GenerateSyntheticBids(SyntheticSamples, 42)}
	svc := NewService(source, NewTrainer(source, nil, TrainerOptions{}), nil, nil)

	report := svc.FeatureImportance(context.Background())
	require.Empty(t, report.Error)
	assert.Equal(t, 10, report.SuspiciousCount)
	assert.Equal(t, 90, report.NormalCount)
	require.Len(t, report.FeatureAnalysis, FeatureCount)

	amount := report.FeatureAnalysis["bid_amount"]
	assert.Less(t, amount.SuspiciousMean, amount.NormalMean)
	assert.Less(t, amount.DifferenceRatio, 1.0)

	hour := report.FeatureAnalysis["submission_hour"]
	assert.Equal(t, 2.0, hour.SuspiciousMean)
	assert.Equal(t, 10.0, hour.NormalMean)
	assert.Equal(t, 0.0, hour.SuspiciousStd)
	assert.InDelta(t, 0.2, hour.DifferenceRatio, 1e-12)

	weekday := report.FeatureAnalysis["submission_day_of_week"]
	assert.Equal(t, 0.0, weekday.NormalMean)
	assert.Equal(t, 1.0, weekday.DifferenceRatio, "zero normal mean reports a neutral ratio")
}

func TestService_FeatureImportanceInsufficientData(t *testing.T) {
	tests := []struct {
		name   string
		source *fakeBidSource
	}{
		{"no bids", &fakeBidSource{}},
		{"only normal bids", &fakeBidSource{records: GenerateSyntheticBids(5, 1)[:4]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.source, NewTrainer(tt.source, nil, TrainerOptions{}), nil, nil)
			report := svc.FeatureImportance(context.Background())
			assert.Equal(t, errInsufficientData, report.Error)
			assert.Nil(t, report.FeatureAnalysis)
		})
	}

	t.Run("storage failure", func(t *testing.T) {
		source := &fakeBidSource{err: errors.New("database is closed")}
		svc := NewService(source, NewTrainer(source, nil, TrainerOptions{}), nil, nil)
		report := svc.FeatureImportance(context.Background())
		assert.Contains(t, report.Error, "database is closed")
	})
}

func TestCompareFeatures_CapsNormalSample(t *testing.T) {
	bids := GenerateSyntheticBids(SyntheticSamples, 5)
	suspicious := bids[95:]
	normal := bids[:90]

	source := &fakeBidSource{records: append(append(bids[:0:0], normal...), suspicious...)}
	svc := NewService(source, NewTrainer(source, nil, TrainerOptions{}), nil, nil)

	report := svc.FeatureImportance(context.Background())
	require.Empty(t, report.Error)

	want := compareFeatures(suspicious, normal[:10])
	assert.Equal(t, want, report.FeatureAnalysis)
}
