package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZanzyTHEbar/tender-guard/internal/types"
)

const errNoTrainingData = "No valid training data available"

// TrainerOptions configures a Trainer. Zero values fall back to defaults.
type TrainerOptions struct {
	Forest        ForestConfig
	SyntheticSeed int64
	Recorder      Recorder
}

// Trainer fits a fresh model from the bid history (or a synthetic set on
// cold start) and publishes it. At most one training run is in flight.
type Trainer struct {
	source        BidSource
	store         ArtifactStore
	cfg           ForestConfig
	syntheticSeed int64
	recorder      Recorder

	mu      sync.Mutex
	current atomic.Pointer[Model]
}

func NewTrainer(source BidSource, store ArtifactStore, opts TrainerOptions) *Trainer {
	cfg := opts.Forest
	def := DefaultForestConfig()
	if cfg.NEstimators <= 0 {
		cfg.NEstimators = def.NEstimators
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = def.MaxSamples
	}
	if cfg.Contamination <= 0 {
		cfg.Contamination = def.Contamination
	}
	if cfg.RandomSeed == 0 {
		cfg.RandomSeed = def.RandomSeed
	}

	seed := opts.SyntheticSeed
	if seed == 0 {
		seed = cfg.RandomSeed
	}

	var rec Recorder = nopRecorder{}
	if opts.Recorder != nil {
		rec = opts.Recorder
	}

	return &Trainer{
		source:        source,
		store:         store,
		cfg:           cfg,
		syntheticSeed: seed,
		recorder:      rec,
	}
}

// Config returns the forest settings every run uses
func (t *Trainer) Config() ForestConfig {
	return t.cfg
}

// Current returns the model serving inference, or nil.
func (t *Trainer) Current() *Model {
	return t.current.Load()
}

func (t *Trainer) install(m *Model) {
	t.current.Store(m)
}

// Train refits from scratch on every stored bid. Fewer than
// MinTrainingRecords bids (or a failed fetch) switches to synthetic data.
// retrain is recorded in the report; every run builds a brand new model.
func (t *Trainer) Train(ctx context.Context, retrain bool) TrainingReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	var records []types.BidRecord
	if t.source != nil {
		var err error
		records, err = t.source.FetchAllBidsWithTenders(ctx)
		if err != nil {
			slog.Error("Failed to fetch training records, using synthetic data", "error", err)
			records = nil
		}
	}

	synthetic := false
	if len(records) < MinTrainingRecords {
		slog.Info("Using synthetic training data due to insufficient real data",
			"real_records", len(records),
			"min_records", MinTrainingRecords)
		records = GenerateSyntheticBids(SyntheticSamples, t.syntheticSeed)
		synthetic = true
	} else {
		slog.Info("Using real bids for training", "records", len(records))
	}

	return t.fitAndPublish(ctx, records, synthetic, retrain)
}

// TrainDefault fits the cold-start model on the synthetic set only.
func (t *Trainer) TrainDefault(ctx context.Context) TrainingReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.fitAndPublish(ctx, GenerateSyntheticBids(SyntheticSamples, t.syntheticSeed), true, false)
}

// TrainOnRecords fits on exactly the given records, without the synthetic
// fallback.
func (t *Trainer) TrainOnRecords(ctx context.Context, records []types.BidRecord) TrainingReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.fitAndPublish(ctx, records, false, true)
}

func (t *Trainer) fitAndPublish(ctx context.Context, records []types.BidRecord, synthetic, retrain bool) (report TrainingReport) {
	start := time.Now()
	report = TrainingReport{
		ContaminationThreshold: t.cfg.Contamination,
		UsedSyntheticData:      synthetic,
		Retrain:                retrain,
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Model training panicked", "panic", r)
			report.Success = false
			report.Error = fmt.Sprintf("training panicked: %v", r)
		}
		report.DurationMS = time.Since(start).Milliseconds()
		report.Timestamp = time.Now().UTC()
		t.recorder.RecordTraining(report.Success, time.Since(start))
	}()

	matrix := buildMatrix(records)
	if len(matrix) == 0 {
		report.Error = errNoTrainingData
		slog.Warn("Model training skipped", "error", report.Error)
		return report
	}

	model, err := FitModel(matrix, t.cfg)
	if err != nil {
		report.Error = err.Error()
		slog.Error("Model training failed", "error", err)
		return report
	}

	outliers := 0
	for _, row := range matrix {
		_, isOutlier, err := model.Score(row)
		if err != nil {
			report.Error = err.Error()
			return report
		}
		if isOutlier {
			outliers++
		}
	}

	if t.store != nil {
		if _, err := t.store.Save(ctx, model); err != nil {
			slog.Error("Failed to persist model artifacts", "model_id", model.ID, "error", err)
		} else {
			report.ModelSaved = true
		}
	}

	t.install(model)

	report.Success = true
	report.ModelID = model.ID
	report.NSamples = len(matrix)
	report.NOutliersDetected = outliers
	report.OutlierPercentage = round2(float64(outliers) / float64(len(matrix)) * 100)
	report.FeatureNames = append([]string(nil), FeatureNames...)

	slog.Info("Model training completed",
		"model_id", model.ID,
		"n_samples", report.NSamples,
		"n_outliers_detected", report.NOutliersDetected,
		"outlier_percentage", report.OutlierPercentage,
		"synthetic", synthetic,
		"retrain", retrain,
		"model_saved", report.ModelSaved,
		"duration_ms", time.Since(start).Milliseconds())

	return report
}
