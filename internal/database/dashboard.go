package database

import (
	"context"
	"fmt"
	"time"
)

// Risk buckets over the normalized anomaly score. Scores are oriented so that
// lower means less normal.
const (
	RiskHigh     = "High Risk"
	RiskMedium   = "Medium Risk"
	RiskLow      = "Low Risk"
	RiskUnscored = "Unscored"
)

func (r *Repository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

// CountTenders returns the number of tenders
func (r *Repository) CountTenders(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM tenders`)
}

// CountActiveBids returns the number of bids still in submitted status
func (r *Repository) CountActiveBids(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM bids WHERE status = ?`, BidStatusSubmitted)
}

// CountSuspiciousBids returns the number of flagged bids
func (r *Repository) CountSuspiciousBids(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM bids WHERE is_suspicious = 1`)
}

// CountAlertsOn returns the number of alerts raised on the UTC day of t
func (r *Repository) CountAlertsOn(ctx context.Context, t time.Time) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM alerts WHERE DATE(created_at) = ?`, t.UTC().Format("2006-01-02"))
}

// TenderStatusDistribution counts tenders per status
func (r *Repository) TenderStatusDistribution(ctx context.Context) (map[string]int, error) {
	buckets, err := r.buckets(ctx, `SELECT status, COUNT(*) FROM tenders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(buckets))
	for _, b := range buckets {
		out[b.Label] = b.Count
	}
	return out, nil
}

// RiskDistribution buckets bids by anomaly score
func (r *Repository) RiskDistribution(ctx context.Context) ([]CountBucket, error) {
	return r.buckets(ctx, `
		SELECT
			CASE
				WHEN anomaly_score IS NULL THEN ?
				WHEN anomaly_score < 0.3 THEN ?
				WHEN anomaly_score < 0.7 THEN ?
				ELSE ?
			END AS risk_level,
			COUNT(*)
		FROM bids
		GROUP BY risk_level
		ORDER BY risk_level`, RiskUnscored, RiskHigh, RiskMedium, RiskLow)
}

// TenderValueDistribution buckets tenders by budget
func (r *Repository) TenderValueDistribution(ctx context.Context) ([]CountBucket, error) {
	return r.buckets(ctx, `
		SELECT
			CASE
				WHEN budget < 100000 THEN 'Under $100K'
				WHEN budget < 500000 THEN '$100K - $500K'
				WHEN budget < 1000000 THEN '$500K - $1M'
				ELSE 'Over $1M'
			END AS value_range,
			COUNT(*)
		FROM tenders
		GROUP BY value_range
		ORDER BY MIN(budget)`)
}

func (r *Repository) buckets(ctx context.Context, query string, args ...any) ([]CountBucket, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query distribution: %w", err)
	}
	defer rows.Close()

	out := []CountBucket{}
	for rows.Next() {
		var b CountBucket
		if err := rows.Scan(&b.Label, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan distribution: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// RecentSuspiciousBids returns the newest flagged bids
func (r *Repository) RecentSuspiciousBids(ctx context.Context, limit int) ([]SuspiciousBidSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT b.id, b.company_name, b.bid_amount, COALESCE(b.anomaly_score, 0.5), t.title, b.created_at
		FROM bids b
		JOIN tenders t ON b.tender_id = t.id
		WHERE b.is_suspicious = 1
		ORDER BY b.created_at DESC, b.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query suspicious bids: %w", err)
	}
	defer rows.Close()

	out := []SuspiciousBidSummary{}
	for rows.Next() {
		var s SuspiciousBidSummary
		if err := rows.Scan(&s.ID, &s.CompanyName, &s.BidAmount, &s.AnomalyScore, &s.TenderTitle, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan suspicious bid: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ActivityTimeline counts tenders and bids per day over the last days days,
// oldest first. Days without activity are omitted.
func (r *Repository) ActivityTimeline(ctx context.Context, days int) ([]TimelinePoint, error) {
	start := r.now().AddDate(0, 0, -days).Format("2006-01-02")

	rows, err := r.db.QueryContext(ctx, `
		SELECT date, SUM(tender_count), SUM(bid_count) FROM (
			SELECT DATE(created_at) AS date, COUNT(*) AS tender_count, 0 AS bid_count
			FROM tenders WHERE DATE(created_at) >= ? GROUP BY DATE(created_at)
			UNION ALL
			SELECT DATE(created_at) AS date, 0 AS tender_count, COUNT(*) AS bid_count
			FROM bids WHERE DATE(created_at) >= ? GROUP BY DATE(created_at)
		)
		GROUP BY date
		ORDER BY date`, start, start)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity timeline: %w", err)
	}
	defer rows.Close()

	out := []TimelinePoint{}
	for rows.Next() {
		var p TimelinePoint
		if err := rows.Scan(&p.Date, &p.TenderCount, &p.BidCount); err != nil {
			return nil, fmt.Errorf("failed to scan activity timeline: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
