package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/tender-guard/internal/types"
)

const errInsufficientData = "Insufficient data for feature analysis"

// FeatureImportance contrasts feature statistics of flagged bids with normal
// ones. At most twice as many normal bids as suspicious ones are compared.
func (s *Service) FeatureImportance(ctx context.Context) FeatureImportanceReport {
	report := FeatureImportanceReport{Timestamp: time.Now().UTC()}

	suspicious, normal, err := s.source.FetchBidsPartitionedBySuspicion(ctx)
	if err != nil {
		slog.Error("Feature importance analysis failed", "error", err)
		report.Error = fmt.Sprintf("failed to fetch bids: %v", err)
		return report
	}

	report.SuspiciousCount = len(suspicious)
	report.NormalCount = len(normal)
	if len(suspicious) == 0 || len(normal) == 0 {
		report.Error = errInsufficientData
		return report
	}

	if limit := 2 * len(suspicious); len(normal) > limit {
		normal = normal[:limit]
	}

	report.FeatureAnalysis = compareFeatures(suspicious, normal)
	return report
}

func compareFeatures(suspicious, normal []types.BidRecord) map[string]FeatureStats {
	sm := buildMatrix(suspicious)
	nm := buildMatrix(normal)

	out := make(map[string]FeatureStats, len(FeatureNames))
	for j, name := range FeatureNames {
		sv := column(sm, j)
		nv := column(nm, j)

		fs := FeatureStats{
			SuspiciousMean:   mean(sv),
			NormalMean:       mean(nv),
			SuspiciousStd:    stdDev(sv),
			NormalStd:        stdDev(nv),
			SuspiciousMedian: median(sv),
			NormalMedian:     median(nv),
			DifferenceRatio:  1,
		}
		if fs.NormalMean != 0 {
			fs.DifferenceRatio = fs.SuspiciousMean / fs.NormalMean
		}
		out[name] = fs
	}
	return out
}

func column(matrix [][]float64, j int) []float64 {
	col := make([]float64, len(matrix))
	for i, row := range matrix {
		col[i] = row[j]
	}
	return col
}
