package analysis

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ZanzyTHEbar/tender-guard/internal/types"
)

var fixedNow = time.Date(2025, 6, 4, 15, 0, 0, 0, time.UTC)

func suspiciousFields() types.BidFields {
	return types.BidFields{
		BidID:          99,
		TenderID:       1,
		CompanyName:    "SuspiciousCompany_X1",
		BidAmount:      types.Float(5000),
		ProposalText:   strings.Repeat("x", 20),
		NLPScore:       types.Float(0.15),
		CreatedAt:      "2024-01-01 02:00:00",
		TenderBudget:   types.Float(1000000),
		TenderDeadline: "2024-12-31 23:59:59",
	}
}

func TestExtractFeatures_SuspiciousScenario(t *testing.T) {
	v := ExtractFeatures(types.NewBidRecord(suspiciousFields(), fixedNow))

	assert.Equal(t, 5000.0, v[0])
	assert.InDelta(t, 0.005, v[1], 1e-12)
	assert.Equal(t, 20.0, v[2])
	assert.Equal(t, 20.0, v[3])
	assert.Equal(t, 2.0, v[4])
	assert.Equal(t, 0.0, v[5], "2024-01-01 is a Monday")
	assert.Equal(t, 0.15, v[6])
	assert.InDelta(t, 8760+22-1.0/3600, v[7], 1e-9)
}

func TestExtractFeatures_Totality(t *testing.T) {
	tests := []struct {
		name  string
		rec   types.BidRecord
		check func(t *testing.T, v FeatureVector)
	}{
		{
			name: "everything missing",
			rec:  types.NewBidRecord(types.BidFields{}, fixedNow),
			check: func(t *testing.T, v FeatureVector) {
				assert.Equal(t, 0.0, v[0])
				assert.Equal(t, 0.0, v[1])
				assert.Equal(t, float64(fixedNow.Hour()), v[4])
				assert.Equal(t, 2.0, v[5], "2025-06-04 is a Wednesday")
				assert.Equal(t, types.DefaultNLPScore, v[6])
				assert.Equal(t, DefaultHoursToDeadline, v[7])
			},
		},
		{
			name: "zero budget floors the denominator",
			rec: types.NewBidRecord(types.BidFields{
				BidAmount:    types.Float(250),
				TenderBudget: types.Float(0),
			}, fixedNow),
			check: func(t *testing.T, v FeatureVector) {
				assert.Equal(t, 250.0, v[1])
			},
		},
		{
			name: "negative budget floors the denominator",
			rec: types.NewBidRecord(types.BidFields{
				BidAmount:    types.Float(250),
				TenderBudget: types.Float(-1000),
			}, fixedNow),
			check: func(t *testing.T, v FeatureVector) {
				assert.Equal(t, 250.0, v[1])
			},
		},
		{
			name: "deadline already passed clamps to zero",
			rec: types.NewBidRecord(types.BidFields{
				CreatedAt:      "2024-06-01 12:00:00",
				TenderDeadline: "2024-05-01 12:00:00",
			}, fixedNow),
			check: func(t *testing.T, v FeatureVector) {
				assert.Equal(t, 0.0, v[7])
			},
		},
		{
			name: "unparsable deadline defaults to thirty days",
			rec: types.NewBidRecord(types.BidFields{
				CreatedAt:      "2024-06-01 12:00:00",
				TenderDeadline: "soon",
			}, fixedNow),
			check: func(t *testing.T, v FeatureVector) {
				assert.Equal(t, 720.0, v[7])
			},
		},
		{
			name: "lengths count characters not bytes",
			rec: types.NewBidRecord(types.BidFields{
				CompanyName:  "Société Générale",
				ProposalText: "Fourniture de matériel",
			}, fixedNow),
			check: func(t *testing.T, v FeatureVector) {
				assert.Equal(t, 16.0, v[3])
				assert.Equal(t, 22.0, v[2])
			},
		},
		{
			name: "non finite values in a hand built record",
			rec: types.BidRecord{
				BidAmount:    math.Inf(1),
				TenderBudget: math.NaN(),
				NLPScore:     math.NaN(),
			},
			check: func(t *testing.T, v FeatureVector) {
				assert.Equal(t, 0.0, v[0])
				assert.Equal(t, 0.0, v[1])
				assert.Equal(t, 0.0, v[6])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ExtractFeatures(tt.rec)
			assert.Len(t, v.Slice(), len(FeatureNames))
			for i, x := range v {
				assert.True(t, isFinite(x), "feature %s is not finite", FeatureNames[i])
			}
			tt.check(t, v)
		})
	}
}

func TestFeatureVector_Breakdown(t *testing.T) {
	v := ExtractFeatures(types.NewBidRecord(suspiciousFields(), fixedNow))
	b := v.Breakdown()

	assert.Len(t, b, FeatureCount)
	assert.Equal(t, 5000.0, b["bid_amount"])
	assert.Equal(t, 2.0, b["submission_hour"])
}

func TestBuildMatrix(t *testing.T) {
	records := GenerateSyntheticBids(12, 7)
	matrix := buildMatrix(records)

	assert.Len(t, matrix, 12)
	for _, row := range matrix {
		assert.Len(t, row, FeatureCount)
	}
}
