package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/tender-guard/internal/analysis"
	"github.com/ZanzyTHEbar/tender-guard/internal/types"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "database_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	db, err := NewDB(tempDir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(db)
}

func createTender(t *testing.T, repo *Repository, budget float64) int64 {
	t.Helper()
	id, err := repo.CreateTender(context.Background(), NewTender{
		Title:      "Road resurfacing",
		Department: "Public Works",
		Region:     "North",
		Budget:     budget,
		Deadline:   "2024-12-31 23:59:59",
	})
	require.NoError(t, err)
	return id
}

func TestNewDB_CreatesSchema(t *testing.T) {
	repo := newTestRepository(t)

	for _, table := range []string{"tenders", "bids", "audit_logs", "alerts"} {
		var name string
		err := repo.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}

	for name := range statements {
		_, err := repo.db.GetPreparedStatement(name)
		assert.NoError(t, err)
	}
	assert.Contains(t, repo.db.GetPoolStats(), "open_connections")
}

func TestRepository_BidLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	repo.now = func() time.Time { return time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC) }

	tenderID := createTender(t, repo, 1000000)

	bidID, err := repo.CreateBid(ctx, NewBid{
		TenderID:     tenderID,
		CompanyName:  "SuspiciousCompany_X1",
		BidAmount:    5000,
		ProposalText: strings.Repeat("x", 20),
		CompanyInfo:  map[string]any{"employees": 3},
		ContactEmail: "ops@example.com",
		NLPScore:     0.15,
	})
	require.NoError(t, err)

	rec, err := repo.FetchBidWithTender(ctx, bidID)
	require.NoError(t, err)
	assert.Equal(t, bidID, rec.BidID)
	assert.Equal(t, 5000.0, rec.BidAmount)
	assert.Equal(t, 1000000.0, rec.TenderBudget)
	assert.Equal(t, 0.15, rec.NLPScore)
	assert.True(t, rec.CreatedAtKnown)
	assert.Equal(t, 2, rec.CreatedAt.Hour())
	assert.True(t, rec.DeadlineKnown)

	bids, err := repo.ListBids(ctx, &tenderID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Nil(t, bids[0].AnomalyScore, "not analyzed yet")
	assert.JSONEq(t, `{"employees":3}`, string(bids[0].CompanyInfo))
	assert.Equal(t, "Road resurfacing", bids[0].TenderTitle)
	assert.Equal(t, BidStatusSubmitted, bids[0].Status)

	alert, err := repo.UpdateBidAnomalyScore(ctx, bidID, 0.41, true)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, AlertTypeAnomaly, alert.Type)
	assert.Equal(t, SeverityHigh, alert.Severity)
	assert.Equal(t, fmt.Sprintf("Bid #%d flagged as suspicious with anomaly score 0.410", bidID), alert.Message)

	alerts, err := repo.RecentAlerts(ctx, 50)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.NotNil(t, alerts[0].RelatedID)
	assert.Equal(t, bidID, *alerts[0].RelatedID)
	assert.Equal(t, RelatedTypeBid, alerts[0].RelatedType)

	suspicious, err := repo.ListSuspiciousBids(ctx)
	require.NoError(t, err)
	require.Len(t, suspicious, 1)
	require.NotNil(t, suspicious[0].AnomalyScore)
	assert.Equal(t, 0.41, *suspicious[0].AnomalyScore)

	flagged, normal, err := repo.FetchBidsPartitionedBySuspicion(ctx)
	require.NoError(t, err)
	assert.Len(t, flagged, 1)
	assert.Empty(t, normal)
}

func TestRepository_NormalVerdictRaisesNoAlert(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	tenderID := createTender(t, repo, 500000)

	bidID, err := repo.CreateBid(ctx, NewBid{TenderID: tenderID, CompanyName: "Acme", BidAmount: 200000, ProposalText: "We propose", NLPScore: 0.6})
	require.NoError(t, err)

	alert, err := repo.UpdateBidAnomalyScore(ctx, bidID, 0.61, false)
	require.NoError(t, err)
	assert.Nil(t, alert)

	alerts, err := repo.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestRepository_MissingRows(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.FetchBidWithTender(ctx, 999999)
	assert.ErrorIs(t, err, analysis.ErrBidNotFound)

	_, err = repo.UpdateBidAnomalyScore(ctx, 999999, 0.2, true)
	assert.ErrorIs(t, err, analysis.ErrBidNotFound)

	_, err = repo.GetTender(ctx, 42)
	assert.ErrorIs(t, err, ErrTenderNotFound)

	_, err = repo.CreateBid(ctx, NewBid{TenderID: 42, CompanyName: "Ghost", BidAmount: 1, ProposalText: "x"})
	assert.Error(t, err, "foreign keys are enforced")
}

func TestRepository_AuditLogs(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.LogAudit(ctx, AuditLog{
			Action:    fmt.Sprintf("action_%d", i),
			UserID:    "system",
			Details:   "details",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	logs, err := repo.AuditLogs(ctx, 3)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "action_4", logs[0].Action)
	assert.Equal(t, "action_2", logs[2].Action)
}

func TestRepository_DeleteAuditLogsBefore(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, repo.LogAudit(ctx, AuditLog{
			Action:    fmt.Sprintf("action_%d", i),
			UserID:    "system",
			Timestamp: base.AddDate(0, 0, i),
		}))
	}

	deleted, err := repo.DeleteAuditLogsBefore(ctx, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	logs, err := repo.AuditLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "action_3", logs[0].Action)
	assert.Equal(t, "action_2", logs[1].Action)
}

func TestRepository_Dashboard(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	small := createTender(t, repo, 50000)
	createTender(t, repo, 2000000)

	var ids []int64
	for i, score := range []float64{0.1, 0.5, 0.9} {
		id, err := repo.CreateBid(ctx, NewBid{TenderID: small, CompanyName: fmt.Sprintf("Co_%d", i), BidAmount: 1000, ProposalText: "text"})
		require.NoError(t, err)
		_, err = repo.UpdateBidAnomalyScore(ctx, id, score, score < 0.3)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := repo.CreateBid(ctx, NewBid{TenderID: small, CompanyName: "Pending", BidAmount: 1000, ProposalText: "text"})
	require.NoError(t, err)

	tenders, err := repo.CountTenders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, tenders)

	active, err := repo.CountActiveBids(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, active)

	suspicious, err := repo.CountSuspiciousBids(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, suspicious)

	alertsToday, err := repo.CountAlertsOn(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, alertsToday)

	status, err := repo.TenderStatusDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{TenderStatusActive: 2}, status)

	risk, err := repo.RiskDistribution(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []CountBucket{
		{Label: RiskHigh, Count: 1},
		{Label: RiskMedium, Count: 1},
		{Label: RiskLow, Count: 1},
		{Label: RiskUnscored, Count: 1},
	}, risk)

	values, err := repo.TenderValueDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, []CountBucket{{Label: "Under $100K", Count: 1}, {Label: "Over $1M", Count: 1}}, values)

	recent, err := repo.RecentSuspiciousBids(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, ids[0], recent[0].ID)

	timeline, err := repo.ActivityTimeline(ctx, 30)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, 2, timeline[0].TenderCount)
	assert.Equal(t, 4, timeline[0].BidCount)
}

func TestRepository_FeedsTrainer(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	tenderID := createTender(t, repo, 500000)

	for _, rec := range analysis.GenerateSyntheticBids(15, 3) {
		_, err := repo.CreateBid(ctx, NewBid{
			TenderID:     tenderID,
			CompanyName:  rec.CompanyName,
			BidAmount:    rec.BidAmount,
			ProposalText: rec.ProposalText,
			NLPScore:     rec.NLPScore,
		})
		require.NoError(t, err)
	}

	records, err := repo.FetchAllBidsWithTenders(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 15)

	trainer := analysis.NewTrainer(repo, nil, analysis.TrainerOptions{})
	report := trainer.Train(ctx, false)
	require.True(t, report.Success, report.Error)
	assert.False(t, report.UsedSyntheticData)
	assert.Equal(t, 15, report.NSamples)
}

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := NewRepository(wrap(sqlDB, nil))
	repo.now = func() time.Time { return time.Date(2025, 6, 4, 15, 0, 0, 0, time.UTC) }
	return repo, mock
}

func TestRepository_FetchBidWithTender_Mock(t *testing.T) {
	columns := []string{"id", "tender_id", "company_name", "bid_amount", "proposal_text",
		"nlp_score", "created_at", "is_suspicious", "budget", "deadline"}

	t.Run("null columns fall back to defaults", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery("SELECT (.+) FROM bids b JOIN tenders t ON b.tender_id = t.id").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(int64(7), int64(1), "Acme", nil, "text", nil, "not a date", int64(0), nil, nil))

		rec, err := repo.FetchBidWithTender(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, 0.0, rec.BidAmount)
		assert.Equal(t, types.DefaultNLPScore, rec.NLPScore)
		assert.Equal(t, types.DefaultTenderBudget, rec.TenderBudget)
		assert.False(t, rec.CreatedAtKnown)
		assert.False(t, rec.DeadlineKnown)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver failure is not a missing bid", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery("SELECT (.+) FROM bids b").
			WithArgs(int64(7)).
			WillReturnError(errors.New("disk I/O error"))

		_, err := repo.FetchBidWithTender(context.Background(), 7)
		require.Error(t, err)
		assert.NotErrorIs(t, err, analysis.ErrBidNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_UpdateBidAnomalyScore_RollsBack(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bids SET anomaly_score").
		WithArgs(0.12, true, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO alerts").
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	_, err := repo.UpdateBidAnomalyScore(context.Background(), 5, 0.12, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create alert")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_LogAudit_Mock(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs("bid_submitted", "system", "Bid 3 submitted", "10.0.0.1", "curl/8", "2025-06-04 15:00:00").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.LogAudit(context.Background(), AuditLog{
		Action:    "bid_submitted",
		UserID:    "system",
		Details:   "Bid 3 submitted",
		IPAddress: "10.0.0.1",
		UserAgent: "curl/8",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
