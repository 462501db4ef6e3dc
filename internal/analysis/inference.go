package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ZanzyTHEbar/tender-guard/internal/types"
)

// Service answers scoring questions about bids and proposals. It never fails a
// caller: every problem degrades to a neutral AnomalyResult with an ErrorCode.
type Service struct {
	source   BidSource
	trainer  *Trainer
	store    ArtifactStore
	scorer   *QualityScorer
	recorder Recorder

	initMu      sync.Mutex
	lastLoadErr atomic.Pointer[string]
}

// NewService wires the inference side. scorer may be nil.
func NewService(source BidSource, trainer *Trainer, store ArtifactStore, scorer *QualityScorer) *Service {
	if scorer == nil {
		scorer = NewQualityScorer(nil)
	}
	return &Service{
		source:   source,
		trainer:  trainer,
		store:    store,
		scorer:   scorer,
		recorder: trainer.recorder,
	}
}

// Trainer exposes the training side sharing this service's model slot
func (s *Service) Trainer() *Trainer {
	return s.trainer
}

// ScoreProposal runs the text quality scorer.
func (s *Service) ScoreProposal(text string) QualityMetrics {
	s.recorder.RecordProposalScored()
	return s.scorer.Score(text)
}

// LoadOrCreate makes sure a model is installed: the published artifacts if
// they load cleanly, otherwise a freshly trained synthetic default.
func (s *Service) LoadOrCreate(ctx context.Context) (*Model, error) {
	if m := s.trainer.Current(); m != nil {
		return m, nil
	}

	s.initMu.Lock()
	defer s.initMu.Unlock()

	if m := s.trainer.Current(); m != nil {
		return m, nil
	}

	if s.store != nil {
		ref, err := s.store.Current()
		switch {
		case err == nil:
			m, loadErr := s.store.Load(ctx, ref)
			if loadErr == nil {
				s.trainer.install(m)
				s.lastLoadErr.Store(nil)
				slog.Info("Existing model loaded", "model_id", m.ID)
				return m, nil
			}
			s.noteLoadFailure(ref.ModelID, loadErr)
		case errors.Is(err, ErrNoArtifacts):
			slog.Info("No published model found, creating default model")
		default:
			s.noteLoadFailure("", err)
		}
	}

	report := s.trainer.TrainDefault(ctx)
	if !report.Success {
		return nil, fmt.Errorf("failed to create default model: %s", report.Error)
	}

	m := s.trainer.Current()
	if m == nil {
		return nil, errors.New("default model was not installed")
	}
	slog.Info("Default model created", "model_id", m.ID, "model_saved", report.ModelSaved)
	return m, nil
}

func (s *Service) noteLoadFailure(modelID string, err error) {
	msg := fmt.Sprintf("%s: %v", CodeLoadFailed, err)
	s.lastLoadErr.Store(&msg)
	slog.Error("Failed to load published model, falling back to default",
		"error_code", CodeLoadFailed,
		"model_id", modelID,
		"error", err)
}

// AnalyzeBid scores a stored bid.
func (s *Service) AnalyzeBid(ctx context.Context, bidID int64) AnomalyResult {
	rec, err := s.source.FetchBidWithTender(ctx, bidID)
	if err != nil {
		var result AnomalyResult
		if errors.Is(err, ErrBidNotFound) {
			result = neutralResult(bidID, CodeNotFound, "Bid not found")
		} else {
			slog.Error("Failed to fetch bid for analysis", "bid_id", bidID, "error", err)
			result = neutralResult(bidID, CodeStorageError, fmt.Sprintf("failed to fetch bid: %v", err))
		}
		s.recorder.RecordAnalysis(false, string(result.ErrorCode))
		return result
	}

	return s.AnalyzeRecord(ctx, rec)
}

// AnalyzeRecord scores a record that is already in hand.
func (s *Service) AnalyzeRecord(ctx context.Context, rec types.BidRecord) AnomalyResult {
	result := s.analyze(ctx, rec)
	s.recorder.RecordAnalysis(result.IsSuspicious, string(result.ErrorCode))
	return result
}

func (s *Service) analyze(ctx context.Context, rec types.BidRecord) AnomalyResult {
	vec := ExtractFeatures(rec)

	model, err := s.LoadOrCreate(ctx)
	if err != nil {
		slog.Error("Model not available", "bid_id", rec.BidID, "error", err)
		return neutralResult(rec.BidID, CodeModelUnavailable, "Model not available")
	}

	raw, isOutlier, err := model.Score(vec.Slice())
	if err != nil {
		code := CodeModelUnavailable
		switch {
		case errors.Is(err, ErrDimensionMismatch):
			code = CodeDimensionMismatch
		case errors.Is(err, ErrModelNotFitted):
			code = CodeModelNotFitted
		}
		slog.Warn("Bid scoring failed", "bid_id", rec.BidID, "error_code", code, "error", err)
		return neutralResult(rec.BidID, code, err.Error())
	}

	return AnomalyResult{
		BidID:            rec.BidID,
		AnomalyScore:     NormalizeScore(raw),
		IsSuspicious:     isOutlier,
		RawScore:         raw,
		FeatureBreakdown: vec.Breakdown(),
		ModelID:          model.ID,
	}
}

// Status describes the installed model and its artifacts.
func (s *Service) Status() ModelStatus {
	cfg := s.trainer.Config()
	st := ModelStatus{
		ContaminationThreshold: cfg.Contamination,
		FeatureCount:           len(FeatureNames),
		FeatureNames:           append([]string(nil), FeatureNames...),
		SchemaVersion:          ArtifactSchemaVersion,
		LinguisticEnabled:      s.scorer.LinguisticEnabled(),
	}

	if m := s.trainer.Current(); m != nil {
		st.ModelLoaded = m.Forest.Fitted()
		st.ScalerLoaded = m.Scaler.Fitted()
		st.ModelID = m.ID
		st.NEstimators = m.Forest.NEstimators
		st.MaxSamples = m.Forest.MaxSamples
		trained := m.CreatedAt
		st.TrainedAt = &trained
	}

	if s.store != nil {
		if ref, err := s.store.Current(); err == nil {
			if info, err := s.store.Stat(ref); err == nil {
				st.ModelFileSize = info.ForestSize
				st.ScalerFileSize = info.ScalerSize
				st.ModelLastModified = &info.ForestModified
				st.ScalerLastModified = &info.ScalerModified
			}
		}
	}

	if msg := s.lastLoadErr.Load(); msg != nil {
		st.Error = *msg
	}
	return st
}
