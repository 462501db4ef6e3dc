package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/ZanzyTHEbar/tender-guard/internal/types"
)

// ErrBidNotFound is returned by a BidSource when the id does not exist.
var ErrBidNotFound = errors.New("bid not found")

// NeutralScore is reported whenever a bid cannot be scored.
const NeutralScore = 0.5

// ErrorCode tells callers why an AnomalyResult is neutral.
type ErrorCode string

const (
	CodeNotFound          ErrorCode = "not_found"
	CodeStorageError      ErrorCode = "storage_error"
	CodeModelUnavailable  ErrorCode = "model_unavailable"
	CodeLoadFailed        ErrorCode = "load_failed"
	CodeDimensionMismatch ErrorCode = "dimension_mismatch"
	CodeModelNotFitted    ErrorCode = "model_not_fitted"
)

// BidSource is the storage collaborator the pipeline reads from.
type BidSource interface {
	FetchBidWithTender(ctx context.Context, bidID int64) (types.BidRecord, error)
	FetchAllBidsWithTenders(ctx context.Context) ([]types.BidRecord, error)
	FetchBidsPartitionedBySuspicion(ctx context.Context) (suspicious, normal []types.BidRecord, err error)
}

// Recorder receives pipeline counters. monitoring.Metrics satisfies it.
type Recorder interface {
	RecordAnalysis(suspicious bool, errorCode string)
	RecordTraining(success bool, duration time.Duration)
	RecordProposalScored()
}

type nopRecorder struct{}

func (nopRecorder) RecordAnalysis(bool, string)        {}
func (nopRecorder) RecordTraining(bool, time.Duration) {}
func (nopRecorder) RecordProposalScored()              {}

// AnomalyResult is the verdict for one bid
type AnomalyResult struct {
	BidID            int64              `json:"bid_id"`
	AnomalyScore     float64            `json:"anomaly_score"`
	IsSuspicious     bool               `json:"is_suspicious"`
	RawScore         float64            `json:"raw_score"`
	FeatureBreakdown map[string]float64 `json:"feature_breakdown,omitempty"`
	ModelID          string             `json:"model_id,omitempty"`
	Error            string             `json:"error,omitempty"`
	ErrorCode        ErrorCode          `json:"error_code,omitempty"`
}

func neutralResult(bidID int64, code ErrorCode, msg string) AnomalyResult {
	return AnomalyResult{
		BidID:        bidID,
		AnomalyScore: NeutralScore,
		IsSuspicious: false,
		Error:        msg,
		ErrorCode:    code,
	}
}

// TrainingReport summarises one training run. Outlier figures are measured on
// the training set itself and say nothing about generalization.
type TrainingReport struct {
	Success                bool      `json:"success"`
	NSamples               int       `json:"n_samples,omitempty"`
	NOutliersDetected      int       `json:"n_outliers_detected"`
	OutlierPercentage      float64   `json:"outlier_percentage"`
	ContaminationThreshold float64   `json:"contamination_threshold"`
	FeatureNames           []string  `json:"feature_names,omitempty"`
	ModelSaved             bool      `json:"model_saved"`
	UsedSyntheticData      bool      `json:"used_synthetic_data"`
	Retrain                bool      `json:"retrain"`
	ModelID                string    `json:"model_id,omitempty"`
	DurationMS             int64     `json:"duration_ms"`
	Timestamp              time.Time `json:"timestamp"`
	Error                  string    `json:"error,omitempty"`
}

// ModelStatus describes the model currently serving inference
type ModelStatus struct {
	ModelLoaded            bool       `json:"model_loaded"`
	ScalerLoaded           bool       `json:"scaler_loaded"`
	ContaminationThreshold float64    `json:"contamination_threshold"`
	FeatureCount           int        `json:"feature_count"`
	FeatureNames           []string   `json:"feature_names"`
	ModelID                string     `json:"model_id,omitempty"`
	NEstimators            int        `json:"n_estimators,omitempty"`
	MaxSamples             int        `json:"max_samples,omitempty"`
	TrainedAt              *time.Time `json:"trained_at,omitempty"`
	ModelFileSize          int64      `json:"model_file_size,omitempty"`
	ModelLastModified      *time.Time `json:"model_last_modified,omitempty"`
	ScalerFileSize         int64      `json:"scaler_file_size,omitempty"`
	ScalerLastModified     *time.Time `json:"scaler_last_modified,omitempty"`
	SchemaVersion          int        `json:"schema_version"`
	LinguisticEnabled      bool       `json:"linguistic_enabled"`
	Error                  string     `json:"error,omitempty"`
}

// FeatureStats compares one feature across suspicious and normal bids
type FeatureStats struct {
	SuspiciousMean   float64 `json:"suspicious_mean"`
	NormalMean       float64 `json:"normal_mean"`
	SuspiciousStd    float64 `json:"suspicious_std"`
	NormalStd        float64 `json:"normal_std"`
	SuspiciousMedian float64 `json:"suspicious_median"`
	NormalMedian     float64 `json:"normal_median"`
	DifferenceRatio  float64 `json:"difference_ratio"`
}

// FeatureImportanceReport is the per-feature comparison of both populations
type FeatureImportanceReport struct {
	FeatureAnalysis map[string]FeatureStats `json:"feature_analysis,omitempty"`
	SuspiciousCount int                     `json:"suspicious_count"`
	NormalCount     int                     `json:"normal_count"`
	Timestamp       time.Time               `json:"timestamp"`
	Error           string                  `json:"error,omitempty"`
}
