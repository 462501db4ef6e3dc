package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/tender-guard/internal/analysis"
	"github.com/ZanzyTHEbar/tender-guard/internal/types"
)

// ErrTenderNotFound is returned when a bid references an unknown tender
var ErrTenderNotFound = errors.New("tender not found")

const bidWithTenderColumns = `b.id, b.tender_id, b.company_name, b.bid_amount, b.proposal_text,
	b.nlp_score, b.created_at, b.is_suspicious, t.budget, t.deadline`

const bidColumns = `b.id, b.tender_id, b.company_name, b.bid_amount, b.proposal_text, b.company_info,
	b.contact_email, b.anomaly_score, b.is_suspicious, b.nlp_score, b.status, b.created_at,
	t.title, t.department`

// Repository handles database operations. It is the BidSource of the anomaly
// pipeline.
type Repository struct {
	db  *DB
	now func() time.Time
}

var _ analysis.BidSource = (*Repository)(nil)

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Ping reports whether the database answers
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateTender inserts a tender and returns its id
func (r *Repository) CreateTender(ctx context.Context, t NewTender) (int64, error) {
	now := types.FormatTimestamp(r.now())
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tenders (title, description, department, region, budget, deadline, requirements, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Title, t.Description, t.Department, t.Region, t.Budget, t.Deadline, t.Requirements, TenderStatusActive, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create tender: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read tender id: %w", err)
	}
	return id, nil
}

// GetTender loads one tender
func (r *Repository) GetTender(ctx context.Context, id int64) (*Tender, error) {
	var t Tender
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, department, region, budget, deadline, requirements, status, created_at, updated_at
		FROM tenders WHERE id = ?
	`, id).Scan(&t.ID, &t.Title, &t.Description, &t.Department, &t.Region, &t.Budget,
		&t.Deadline, &t.Requirements, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tender: %w", err)
	}
	return &t, nil
}

// ListTenders returns all tenders, newest first
func (r *Repository) ListTenders(ctx context.Context) ([]Tender, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, description, department, region, budget, deadline, requirements, status, created_at, updated_at
		FROM tenders ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenders: %w", err)
	}
	defer rows.Close()

	tenders := []Tender{}
	for rows.Next() {
		var t Tender
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Department, &t.Region, &t.Budget,
			&t.Deadline, &t.Requirements, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tender: %w", err)
		}
		tenders = append(tenders, t)
	}
	return tenders, rows.Err()
}

// CreateBid inserts a bid and returns its id
func (r *Repository) CreateBid(ctx context.Context, b NewBid) (int64, error) {
	info := b.CompanyInfo
	if info == nil {
		info = map[string]any{}
	}
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return 0, fmt.Errorf("failed to encode company info: %w", err)
	}

	res, err := r.db.execNamed(ctx, nil, "insert_bid",
		b.TenderID, b.CompanyName, b.BidAmount, b.ProposalText, string(infoJSON),
		b.ContactEmail, b.NLPScore, BidStatusSubmitted, types.FormatTimestamp(r.now()))
	if err != nil {
		return 0, fmt.Errorf("failed to create bid: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read bid id: %w", err)
	}
	return id, nil
}

// ListBids returns bids joined with their tender, newest first. A non-nil
// tenderID restricts the list to that tender.
func (r *Repository) ListBids(ctx context.Context, tenderID *int64) ([]Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids b JOIN tenders t ON b.tender_id = t.id`
	var args []any
	if tenderID != nil {
		query += ` WHERE b.tender_id = ?`
		args = append(args, *tenderID)
	}
	query += ` ORDER BY b.created_at DESC, b.id DESC`

	return r.queryBids(ctx, query, args...)
}

// ListSuspiciousBids returns flagged bids, most anomalous first. A lower
// anomaly_score means less normal.
func (r *Repository) ListSuspiciousBids(ctx context.Context) ([]Bid, error) {
	return r.queryBids(ctx, `SELECT `+bidColumns+`
		FROM bids b JOIN tenders t ON b.tender_id = t.id
		WHERE b.is_suspicious = 1
		ORDER BY b.anomaly_score ASC, b.created_at DESC`)
}

func (r *Repository) queryBids(ctx context.Context, query string, args ...any) ([]Bid, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	bids := []Bid{}
	for rows.Next() {
		var (
			b       Bid
			info    sql.NullString
			email   sql.NullString
			anomaly sql.NullFloat64
			nlp     sql.NullFloat64
		)
		if err := rows.Scan(&b.ID, &b.TenderID, &b.CompanyName, &b.BidAmount, &b.ProposalText, &info,
			&email, &anomaly, &b.IsSuspicious, &nlp, &b.Status, &b.CreatedAt,
			&b.TenderTitle, &b.Department); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}

		b.CompanyInfo = json.RawMessage("{}")
		if info.Valid && json.Valid([]byte(info.String)) {
			b.CompanyInfo = json.RawMessage(info.String)
		}
		b.ContactEmail = email.String
		b.AnomalyScore = floatPtr(anomaly)
		b.NLPScore = types.DefaultNLPScore
		if nlp.Valid {
			b.NLPScore = nlp.Float64
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// UpdateBidAnomalyScore stores the verdict for a bid. A suspicious verdict
// raises a high-severity alert in the same transaction; the alert is
// returned so callers can forward it.
func (r *Repository) UpdateBidAnomalyScore(ctx context.Context, bidID int64, score float64, suspicious bool) (*Alert, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := r.db.execNamed(ctx, tx, "update_bid_anomaly", score, suspicious, bidID)
	if err != nil {
		return nil, fmt.Errorf("failed to update bid anomaly score: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, analysis.ErrBidNotFound
	}

	var alert *Alert
	if suspicious {
		related := bidID
		alert = &Alert{
			Type:        AlertTypeAnomaly,
			Title:       "Suspicious Bid Detected",
			Message:     fmt.Sprintf("Bid #%d flagged as suspicious with anomaly score %.3f", bidID, score),
			Severity:    SeverityHigh,
			RelatedID:   &related,
			RelatedType: RelatedTypeBid,
			CreatedAt:   r.now(),
		}
		if alert.ID, err = r.insertAlert(ctx, tx, alert); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit anomaly update: %w", err)
	}
	return alert, nil
}

// CreateAlert stores an alert and returns its id
func (r *Repository) CreateAlert(ctx context.Context, a *Alert) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now()
	}
	if a.Severity == "" {
		a.Severity = SeverityMedium
	}
	id, err := r.insertAlert(ctx, nil, a)
	if err != nil {
		return 0, err
	}
	a.ID = id
	return id, nil
}

func (r *Repository) insertAlert(ctx context.Context, tx *sql.Tx, a *Alert) (int64, error) {
	var related any
	if a.RelatedID != nil {
		related = *a.RelatedID
	}

	res, err := r.db.execNamed(ctx, tx, "insert_alert",
		a.Type, a.Title, a.Message, a.Severity, related, a.RelatedType, types.FormatTimestamp(a.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to create alert: %w", err)
	}
	return res.LastInsertId()
}

// RecentAlerts returns the newest alerts
func (r *Repository) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, title, message, severity, related_id, related_type, is_read, created_at
		FROM alerts ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []Alert{}
	for rows.Next() {
		var (
			a           Alert
			related     sql.NullInt64
			relatedType sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Type, &a.Title, &a.Message, &a.Severity, &related,
			&relatedType, &a.IsRead, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if related.Valid {
			id := related.Int64
			a.RelatedID = &id
		}
		a.RelatedType = relatedType.String
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// LogAudit appends an audit entry
func (r *Repository) LogAudit(ctx context.Context, entry AuditLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now()
	}
	_, err := r.db.execNamed(ctx, nil, "insert_audit_log",
		entry.Action, entry.UserID, entry.Details, entry.IPAddress, entry.UserAgent,
		types.FormatTimestamp(entry.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// AuditLogs returns the newest audit entries
func (r *Repository) AuditLogs(ctx context.Context, limit int) ([]AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, action, user_id, details, ip_address, user_agent, timestamp
		FROM audit_logs ORDER BY timestamp DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		var l AuditLog
		var details, ip, agent sql.NullString
		if err := rows.Scan(&l.ID, &l.Action, &l.UserID, &details, &ip, &agent, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		l.Details = details.String
		l.IPAddress = ip.String
		l.UserAgent = agent.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// DeleteAuditLogsBefore removes audit entries older than cutoff and reports how many went
func (r *Repository) DeleteAuditLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE timestamp < ?`, types.FormatTimestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit logs: %w", err)
	}
	return res.RowsAffected()
}

// FetchBidWithTender loads one bid with its tender budget and deadline
func (r *Repository) FetchBidWithTender(ctx context.Context, bidID int64) (types.BidRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bidWithTenderColumns+`
		FROM bids b JOIN tenders t ON b.tender_id = t.id
		WHERE b.id = ?`, bidID)

	f, err := scanBidFields(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.BidRecord{}, analysis.ErrBidNotFound
	}
	if err != nil {
		return types.BidRecord{}, fmt.Errorf("failed to fetch bid %d: %w", bidID, err)
	}
	return types.NewBidRecord(f, r.now()), nil
}

// FetchAllBidsWithTenders loads every bid in submission order
func (r *Repository) FetchAllBidsWithTenders(ctx context.Context) ([]types.BidRecord, error) {
	return r.fetchRecords(ctx, `SELECT `+bidWithTenderColumns+`
		FROM bids b JOIN tenders t ON b.tender_id = t.id
		ORDER BY b.created_at, b.id`)
}

// FetchBidsPartitionedBySuspicion splits stored bids by their persisted
// verdict, newest first.
func (r *Repository) FetchBidsPartitionedBySuspicion(ctx context.Context) ([]types.BidRecord, []types.BidRecord, error) {
	records, err := r.fetchRecords(ctx, `SELECT `+bidWithTenderColumns+`
		FROM bids b JOIN tenders t ON b.tender_id = t.id
		ORDER BY b.created_at DESC, b.id DESC`)
	if err != nil {
		return nil, nil, err
	}

	var suspicious, normal []types.BidRecord
	for _, rec := range records {
		if rec.IsSuspicious {
			suspicious = append(suspicious, rec)
		} else {
			normal = append(normal, rec)
		}
	}
	return suspicious, normal, nil
}

func (r *Repository) fetchRecords(ctx context.Context, query string, args ...any) ([]types.BidRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	now := r.now()
	var records []types.BidRecord
	for rows.Next() {
		f, err := scanBidFields(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		records = append(records, types.NewBidRecord(f, now))
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBidFields(s scanner) (types.BidFields, error) {
	var row bidFieldsRow
	err := s.Scan(&row.id, &row.tenderID, &row.companyName, &row.bidAmount, &row.proposalText,
		&row.nlpScore, &row.createdAt, &row.isSuspicious, &row.tenderBudget, &row.deadline)
	if err != nil {
		return types.BidFields{}, err
	}
	return row.fields(), nil
}
