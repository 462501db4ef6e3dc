package procurement

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/tender-guard/internal/analysis"
	"github.com/ZanzyTHEbar/tender-guard/internal/database"
	"github.com/ZanzyTHEbar/tender-guard/internal/errors"
	"github.com/ZanzyTHEbar/tender-guard/internal/monitoring"
	"github.com/ZanzyTHEbar/tender-guard/internal/security"
	"github.com/ZanzyTHEbar/tender-guard/internal/types"
)

// Audit actions written by the submission flow
const (
	ActionTenderCreated  = "tender_created"
	ActionBidSubmitted   = "bid_submitted"
	ActionSuspiciousBid  = "suspicious_bid_detected"
	actorSystem          = "system"
	actorModel           = "ml_system"
	defaultNLPScore      = 0.5
	maxCompanyNameLength = 200

	verdictNotStoredMessage = "Bid submitted successfully; anomaly verdict was not stored"
)

var nonDigits = regexp.MustCompile(`\D`)

// Analyzer is the part of the anomaly pipeline the submission flow needs.
// analysis.Service satisfies it.
type Analyzer interface {
	ScoreProposal(text string) analysis.QualityMetrics
	AnalyzeBid(ctx context.Context, bidID int64) analysis.AnomalyResult
}

// Invalidator is told when stored data changes so derived views can be
// rebuilt.
type Invalidator interface {
	Invalidate()
}

// Actor identifies who triggered a write, for the audit log
type Actor struct {
	UserID    string
	IPAddress string
	UserAgent string
}

func (a Actor) userID(fallback string) string {
	if a.UserID != "" {
		return a.UserID
	}
	return fallback
}

// TenderRequest is the body of POST /api/tenders
type TenderRequest struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Department   string  `json:"department"`
	Region       string  `json:"region"`
	Deadline     string  `json:"deadline"`
	Budget       float64 `json:"budget"`
	Requirements string  `json:"requirements"`
}

// TenderCreated is returned after a tender is stored
type TenderCreated struct {
	TenderID int64  `json:"tender_id"`
	Message  string `json:"message"`
}

// BidRequest is the body of POST /api/bids
type BidRequest struct {
	TenderID     int64          `json:"tender_id"`
	CompanyName  string         `json:"company_name"`
	BidAmount    float64        `json:"bid_amount"`
	ProposalText string         `json:"proposal_text"`
	CompanyInfo  map[string]any `json:"company_info"`
	ContactEmail string         `json:"contact_email"`
}

// SubmitResult reports what happened to a submitted bid
type SubmitResult struct {
	BidID           int64                   `json:"bid_id"`
	Message         string                  `json:"message"`
	AnomalyAnalysis analysis.AnomalyResult  `json:"anomaly_analysis"`
	NLPAnalysis     analysis.QualityMetrics `json:"nlp_analysis"`
	AlertID         *int64                  `json:"alert_id,omitempty"`
	CorrelationID   string                  `json:"correlation_id"`
}

// Service runs the tender and bid workflows on top of the repository and
// the anomaly pipeline.
type Service struct {
	repo        *database.Repository
	analyzer    Analyzer
	notifier    monitoring.AlertNotifier
	logger      *monitoring.Logger
	guard       *security.SecurityMiddleware
	invalidator Invalidator
}

// NewService creates the procurement service. notifier may be nil.
func NewService(repo *database.Repository, analyzer Analyzer, notifier monitoring.AlertNotifier, logger *monitoring.Logger, guard *security.SecurityMiddleware) *Service {
	if guard == nil {
		guard = security.NewSecurityMiddleware(security.DefaultSecurityConfig())
	}
	return &Service{
		repo:     repo,
		analyzer: analyzer,
		notifier: notifier,
		logger:   logger,
		guard:    guard,
	}
}

// SetInvalidator registers a view to invalidate after every write
func (s *Service) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

func (s *Service) changed() {
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
}

// ValidateTender checks the required tender fields
func (s *Service) ValidateTender(req *TenderRequest) error {
	req.Title = security.SanitizeName(req.Title)
	req.Department = security.SanitizeName(req.Department)
	req.Region = security.SanitizeName(req.Region)
	req.Deadline = strings.TrimSpace(req.Deadline)

	problems := map[string]string{}
	required := map[string]string{
		"title":      req.Title,
		"department": req.Department,
		"region":     req.Region,
		"deadline":   req.Deadline,
	}
	for field, value := range required {
		if value == "" {
			problems[field] = "Missing required field: " + field
		}
	}
	if req.Budget <= 0 {
		problems["budget"] = "Missing required field: budget"
	}
	if req.Deadline != "" {
		if _, ok := types.ParseTimestamp(req.Deadline); !ok {
			problems["deadline"] = "deadline is not a recognised date"
		}
	}
	for field, value := range map[string]string{"description": req.Description, "requirements": req.Requirements} {
		if err := s.guard.ValidateText(field, value); err != nil {
			problems[field] = err.Error()
		}
	}

	if len(problems) > 0 {
		return errors.NewValidationErrorWithMap(problems)
	}
	return nil
}

// CreateTender validates and stores a tender
func (s *Service) CreateTender(ctx context.Context, req TenderRequest, actor Actor) (*TenderCreated, error) {
	if err := s.ValidateTender(&req); err != nil {
		return nil, err
	}

	id, err := s.repo.CreateTender(ctx, database.NewTender{
		Title:        req.Title,
		Description:  req.Description,
		Department:   req.Department,
		Region:       req.Region,
		Budget:       req.Budget,
		Deadline:     req.Deadline,
		Requirements: req.Requirements,
	})
	if err != nil {
		return nil, errors.NewStorageError("create tender", err)
	}

	s.audit(ctx, ActionTenderCreated, actor.userID(actorSystem), fmt.Sprintf("Tender %d created", id), actor)
	s.changed()

	return &TenderCreated{TenderID: id, Message: "Tender created successfully"}, nil
}

// ValidateBid checks the required bid fields and the optional contact details
func (s *Service) ValidateBid(req *BidRequest) error {
	req.CompanyName = security.SanitizeName(req.CompanyName)
	req.ContactEmail = strings.TrimSpace(req.ContactEmail)

	problems := map[string]string{}
	if req.TenderID <= 0 {
		problems["tender_id"] = "Missing required field: tender_id"
	}
	if req.CompanyName == "" {
		problems["company_name"] = "Missing required field: company_name"
	} else if utf8.RuneCountInString(req.CompanyName) > maxCompanyNameLength {
		problems["company_name"] = fmt.Sprintf("company_name exceeds %d characters", maxCompanyNameLength)
	}
	if req.BidAmount <= 0 {
		problems["bid_amount"] = "Missing required field: bid_amount"
	}
	if strings.TrimSpace(req.ProposalText) == "" {
		problems["proposal_text"] = "Missing required field: proposal_text"
	} else if err := s.guard.ValidateText("proposal_text", req.ProposalText); err != nil {
		problems["proposal_text"] = err.Error()
	}
	if req.ContactEmail != "" {
		if _, err := mail.ParseAddress(req.ContactEmail); err != nil {
			problems["contact_email"] = "contact_email is not a valid address"
		}
	}
	if mobile := mobileField(req.CompanyInfo); mobile != "" {
		if !ValidMobile(mobile) {
			problems["company_info.mobile"] = "Invalid mobile number format. Use Indian mobile number."
		}
	}

	if len(problems) > 0 {
		return errors.NewValidationErrorWithMap(problems)
	}
	return nil
}

func mobileField(info map[string]any) string {
	switch v := info["mobile"].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// ValidMobile accepts Indian mobile numbers written with the 91 country code,
// in any punctuation.
func ValidMobile(raw string) bool {
	digits := nonDigits.ReplaceAllString(raw, "")
	return len(digits) == 12 && strings.HasPrefix(digits, "91") && strings.ContainsRune("6789", rune(digits[2]))
}

// SubmitBid stores a bid and runs it through the anomaly pipeline. A
// suspicious verdict raises an alert and notifies the configured notifier;
// notification failures are logged and do not fail the submission.
func (s *Service) SubmitBid(ctx context.Context, req BidRequest, actor Actor) (*SubmitResult, error) {
	if err := s.ValidateBid(&req); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetTender(ctx, req.TenderID); err != nil {
		if stderrors.Is(err, database.ErrTenderNotFound) {
			return nil, errors.NewNotFoundError("tender", req.TenderID)
		}
		return nil, errors.NewStorageError("get tender", err)
	}

	correlationID := uuid.New().String()

	quality := s.analyzer.ScoreProposal(req.ProposalText)
	nlpScore := quality.QualityScore
	if quality.Error != "" {
		nlpScore = defaultNLPScore
	}

	bidID, err := s.repo.CreateBid(ctx, database.NewBid{
		TenderID:     req.TenderID,
		CompanyName:  req.CompanyName,
		BidAmount:    req.BidAmount,
		ProposalText: req.ProposalText,
		CompanyInfo:  req.CompanyInfo,
		ContactEmail: req.ContactEmail,
		NLPScore:     nlpScore,
	})
	if err != nil {
		return nil, errors.NewStorageError("create bid", err)
	}

	start := time.Now()
	verdict := s.analyzer.AnalyzeBid(ctx, bidID)
	s.logger.AnomalyLogger(bidID, verdict.AnomalyScore, verdict.IsSuspicious, string(verdict.ErrorCode), time.Since(start))

	result := &SubmitResult{
		BidID:           bidID,
		Message:         "Bid submitted successfully",
		AnomalyAnalysis: verdict,
		NLPAnalysis:     quality,
		CorrelationID:   correlationID,
	}

	// A neutral verdict is not a measurement; the score stays NULL so the
	// bid reads as not yet analyzed.
	if verdict.ErrorCode == "" {
		alert, err := s.repo.UpdateBidAnomalyScore(ctx, bidID, verdict.AnomalyScore, verdict.IsSuspicious)
		switch {
		case err != nil:
			// the bid is committed already and stays listed as not yet analyzed
			slog.Error("Failed to store anomaly verdict",
				"bid_id", bidID,
				"correlation_id", correlationID,
				"error", err)
			result.Message = verdictNotStoredMessage
		case alert != nil:
			result.AlertID = &alert.ID
			s.notify(ctx, alert, req, verdict)
		}
	} else {
		slog.Warn("Bid stored without anomaly verdict",
			"bid_id", bidID,
			"error_code", verdict.ErrorCode,
			"correlation_id", correlationID)
	}

	if verdict.IsSuspicious {
		s.audit(ctx, ActionSuspiciousBid, actorModel,
			fmt.Sprintf("Suspicious bid %d detected with score %.3f [%s]", bidID, verdict.AnomalyScore, correlationID), actor)
	}
	s.audit(ctx, ActionBidSubmitted, actor.userID(actorSystem),
		fmt.Sprintf("Bid %d submitted [%s]", bidID, correlationID), actor)
	s.changed()

	return result, nil
}

func (s *Service) notify(ctx context.Context, alert *database.Alert, req BidRequest, verdict analysis.AnomalyResult) {
	if s.notifier == nil {
		return
	}

	err := s.notifier.Notify(ctx, monitoring.BidAlert{
		AlertID:      alert.ID,
		BidID:        verdict.BidID,
		TenderID:     req.TenderID,
		CompanyName:  req.CompanyName,
		BidAmount:    req.BidAmount,
		AnomalyScore: verdict.AnomalyScore,
		Severity:     alert.Severity,
		Message:      alert.Message,
		RaisedAt:     alert.CreatedAt,
	})
	if err != nil {
		s.logger.Error("Failed to deliver bid alert", "alert_id", alert.ID, "bid_id", verdict.BidID, "error", err)
	}
}

// audit failures never fail the request
func (s *Service) audit(ctx context.Context, action, userID, details string, actor Actor) {
	err := s.repo.LogAudit(ctx, database.AuditLog{
		Action:    action,
		UserID:    userID,
		Details:   details,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	})
	if err != nil {
		s.logger.Error("Failed to write audit log", "action", action, "error", err)
	}
}

// Audit records an arbitrary action, e.g. model training or dashboard access
func (s *Service) Audit(ctx context.Context, action, details string, actor Actor) {
	s.audit(ctx, action, actor.userID(actorSystem), details, actor)
}
