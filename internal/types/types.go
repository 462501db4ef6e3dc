package types

import (
	"math"
	"strings"
	"time"
)

// TimestampLayout is how storage writes created_at and deadline columns.
const TimestampLayout = "2006-01-02 15:04:05"

const (
	DefaultNLPScore     = 0.5
	DefaultTenderBudget = 100000.0
)

var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

// BidFields is a bid row joined with its tender exactly as storage returns it.
// Nil pointers and empty strings mean the column was missing or NULL.
type BidFields struct {
	BidID          int64
	TenderID       int64
	CompanyName    string
	BidAmount      *float64
	ProposalText   string
	NLPScore       *float64
	CreatedAt      string
	TenderBudget   *float64
	TenderDeadline string
	IsSuspicious   bool
}

// BidRecord is the immutable input of the anomaly pipeline. Every field already
// carries its default, so consumers never need to look at BidFields.
type BidRecord struct {
	BidID          int64     `json:"bid_id"`
	TenderID       int64     `json:"tender_id"`
	CompanyName    string    `json:"company_name"`
	BidAmount      float64   `json:"bid_amount"`
	ProposalText   string    `json:"proposal_text"`
	NLPScore       float64   `json:"nlp_score"`
	CreatedAt      time.Time `json:"created_at"`
	CreatedAtKnown bool      `json:"created_at_known"`
	TenderBudget   float64   `json:"tender_budget"`
	TenderDeadline time.Time `json:"tender_deadline"`
	DeadlineKnown  bool      `json:"deadline_known"`
	IsSuspicious   bool      `json:"is_suspicious"`
}

// NewBidRecord applies the documented defaults to a raw row. now stands in for
// an unparsable created_at.
func NewBidRecord(f BidFields, now time.Time) BidRecord {
	rec := BidRecord{
		BidID:        f.BidID,
		TenderID:     f.TenderID,
		CompanyName:  f.CompanyName,
		BidAmount:    finiteOr(f.BidAmount, 0),
		ProposalText: f.ProposalText,
		NLPScore:     finiteOr(f.NLPScore, DefaultNLPScore),
		TenderBudget: finiteOr(f.TenderBudget, DefaultTenderBudget),
		IsSuspicious: f.IsSuspicious,
	}

	if ts, ok := ParseTimestamp(f.CreatedAt); ok {
		rec.CreatedAt = ts
		rec.CreatedAtKnown = true
	} else {
		rec.CreatedAt = now
	}

	if ts, ok := ParseTimestamp(f.TenderDeadline); ok {
		rec.TenderDeadline = ts
		rec.DeadlineKnown = true
	}

	return rec
}

// ParseTimestamp accepts the storage layout, RFC3339 and a bare date.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders t the way storage expects it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func finiteOr(v *float64, def float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return def
	}
	return *v
}

// Float returns a pointer to v, handy when building BidFields by hand.
func Float(v float64) *float64 {
	return &v
}
