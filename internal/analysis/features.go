package analysis

import (
	"math"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/tender-guard/internal/types"
)

// FeatureCount is the width of every feature vector the model sees
const FeatureCount = 8

// DefaultHoursToDeadline is used when the tender deadline is unknown (30 days)
const DefaultHoursToDeadline = 24 * 30.0

// FeatureNames is the persisted feature schema, in vector order.
var FeatureNames = []string{
	"bid_amount",
	"bid_amount_normalized",
	"proposal_length",
	"company_name_length",
	"submission_hour",
	"submission_day_of_week",
	"nlp_score",
	"time_to_deadline_hours",
}

// FeatureVector is a fixed-width numeric view of one bid.
type FeatureVector [FeatureCount]float64

// Slice copies the vector into a fresh slice
func (v FeatureVector) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, v[:])
	return out
}

// Breakdown maps feature names to values for audit trails
func (v FeatureVector) Breakdown() map[string]float64 {
	out := make(map[string]float64, FeatureCount)
	for i, name := range FeatureNames {
		out[name] = v[i]
	}
	return out
}

// ExtractFeatures is total: every BidRecord yields eight finite numbers.
func ExtractFeatures(rec types.BidRecord) FeatureVector {
	hoursToDeadline := DefaultHoursToDeadline
	if rec.DeadlineKnown {
		hoursToDeadline = math.Max(rec.TenderDeadline.Sub(rec.CreatedAt).Hours(), 0)
	}

	v := FeatureVector{
		rec.BidAmount,
		rec.BidAmount / math.Max(rec.TenderBudget, 1),
		float64(utf8.RuneCountInString(rec.ProposalText)),
		float64(utf8.RuneCountInString(rec.CompanyName)),
		float64(rec.CreatedAt.Hour()),
		float64(mondayFirstWeekday(rec)),
		rec.NLPScore,
		hoursToDeadline,
	}

	for i := range v {
		if !finite(v[i]) {
			v[i] = 0
		}
	}
	return v
}

// mondayFirstWeekday numbers days Monday=0 .. Sunday=6.
func mondayFirstWeekday(rec types.BidRecord) int {
	return (int(rec.CreatedAt.Weekday()) + 6) % 7
}

// buildMatrix extracts features for every record and drops rows whose width
// does not match the schema.
func buildMatrix(records []types.BidRecord) [][]float64 {
	matrix := make([][]float64, 0, len(records))
	for _, rec := range records {
		row := ExtractFeatures(rec).Slice()
		if len(row) != len(FeatureNames) {
			continue
		}
		matrix = append(matrix, row)
	}
	return matrix
}
