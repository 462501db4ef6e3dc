package database

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ZanzyTHEbar/tender-guard/internal/types"
)

const (
	TenderStatusActive = "active"
	BidStatusSubmitted = "submitted"

	AlertTypeAnomaly = "anomaly_detection"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	RelatedTypeBid   = "bid"
)

// Tender is a procurement call that bids are submitted against
type Tender struct {
	ID           int64     `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	Department   string    `json:"department" db:"department"`
	Region       string    `json:"region" db:"region"`
	Budget       float64   `json:"budget" db:"budget"`
	Deadline     string    `json:"deadline" db:"deadline"`
	Requirements string    `json:"requirements" db:"requirements"`
	Status       string    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Bid is a stored bid joined with the title and department of its tender.
// AnomalyScore is nil until the bid has been analyzed.
type Bid struct {
	ID           int64           `json:"id" db:"id"`
	TenderID     int64           `json:"tender_id" db:"tender_id"`
	CompanyName  string          `json:"company_name" db:"company_name"`
	BidAmount    float64         `json:"bid_amount" db:"bid_amount"`
	ProposalText string          `json:"proposal_text" db:"proposal_text"`
	CompanyInfo  json.RawMessage `json:"company_info" db:"company_info"`
	ContactEmail string          `json:"contact_email,omitempty" db:"contact_email"`
	AnomalyScore *float64        `json:"anomaly_score" db:"anomaly_score"`
	IsSuspicious bool            `json:"is_suspicious" db:"is_suspicious"`
	NLPScore     float64         `json:"nlp_score" db:"nlp_score"`
	Status       string          `json:"status" db:"status"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	TenderTitle  string          `json:"tender_title,omitempty"`
	Department   string          `json:"department,omitempty"`
}

// NewBid carries the columns written when a bid is submitted
type NewBid struct {
	TenderID     int64
	CompanyName  string
	BidAmount    float64
	ProposalText string
	CompanyInfo  map[string]any
	ContactEmail string
	NLPScore     float64
}

// NewTender carries the columns written when a tender is created
type NewTender struct {
	Title        string
	Description  string
	Department   string
	Region       string
	Budget       float64
	Deadline     string
	Requirements string
}

// AuditLog records who did what and when
type AuditLog struct {
	ID        int64     `json:"id" db:"id"`
	Action    string    `json:"action" db:"action"`
	UserID    string    `json:"user_id" db:"user_id"`
	Details   string    `json:"details" db:"details"`
	IPAddress string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string    `json:"user_agent,omitempty" db:"user_agent"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// Alert is a system notification, typically raised for a suspicious bid
type Alert struct {
	ID          int64     `json:"id" db:"id"`
	Type        string    `json:"type" db:"type"`
	Title       string    `json:"title" db:"title"`
	Message     string    `json:"message" db:"message"`
	Severity    string    `json:"severity" db:"severity"`
	RelatedID   *int64    `json:"related_id,omitempty" db:"related_id"`
	RelatedType string    `json:"related_type,omitempty" db:"related_type"`
	IsRead      bool      `json:"is_read" db:"is_read"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// CountBucket is one row of a grouped count
type CountBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// TimelinePoint counts tenders and bids created on one day
type TimelinePoint struct {
	Date        string `json:"date"`
	TenderCount int    `json:"tender_count"`
	BidCount    int    `json:"bid_count"`
}

// SuspiciousBidSummary is the dashboard view of a flagged bid
type SuspiciousBidSummary struct {
	ID           int64     `json:"id"`
	CompanyName  string    `json:"company_name"`
	BidAmount    float64   `json:"bid_amount"`
	AnomalyScore float64   `json:"anomaly_score"`
	TenderTitle  string    `json:"tender_title"`
	CreatedAt    time.Time `json:"created_at"`
}

// bidFieldsRow is a bid joined with its tender budget and deadline, as the
// anomaly pipeline reads it.
type bidFieldsRow struct {
	id           int64
	tenderID     int64
	companyName  string
	bidAmount    sql.NullFloat64
	proposalText string
	nlpScore     sql.NullFloat64
	createdAt    sql.NullString
	isSuspicious bool
	tenderBudget sql.NullFloat64
	deadline     sql.NullString
}

func (r bidFieldsRow) fields() types.BidFields {
	return types.BidFields{
		BidID:          r.id,
		TenderID:       r.tenderID,
		CompanyName:    r.companyName,
		BidAmount:      floatPtr(r.bidAmount),
		ProposalText:   r.proposalText,
		NLPScore:       floatPtr(r.nlpScore),
		CreatedAt:      r.createdAt.String,
		TenderBudget:   floatPtr(r.tenderBudget),
		TenderDeadline: r.deadline.String,
		IsSuspicious:   r.isSuspicious,
	}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
